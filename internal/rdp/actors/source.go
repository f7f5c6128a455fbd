// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package actors

import (
	"context"
	"encoding/json"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
)

// Source is the proxy for a source actor.
type Source struct {
	*rdp.Actor
}

// NewSource creates a source proxy and registers it with the connection.
func NewSource(conn *rdp.Connection, name string, log logr.Logger) *Source {
	s := &Source{
		Actor: rdp.NewActor(conn, name, log),
	}

	conn.Register(s)
	return s
}

// SetBlackbox flips the engine-level blackbox flag for this source. A
// blackboxed source never pauses execution.
func (s *Source) SetBlackbox(ctx context.Context, blackbox bool) error {
	requestType := "unblackbox"
	if blackbox {
		requestType = "blackbox"
	}

	_, requestErr := s.SendRequest(ctx, requestType, nil)
	return requestErr
}

// GetBreakpointPositions fetches the possible breakpoint positions of the
// source. The engine compresses them as a line -> columns map.
func (s *Source) GetBreakpointPositions(ctx context.Context) ([]BreakpointPosition, error) {
	packet, requestErr := s.SendRequest(ctx, "getBreakpointPositionsCompressed", nil)
	if requestErr != nil {
		return nil, requestErr
	}

	var response struct {
		Positions map[string][]int `json:"positions"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return nil, err
	}

	positions := make([]BreakpointPosition, 0, len(response.Positions))
	for lineStr, columns := range response.Positions {
		var line int
		if err := json.Unmarshal([]byte(lineStr), &line); err != nil {
			s.Log().Info("Dropping breakpoint position with non-numeric line", "line", lineStr)
			continue
		}
		positions = append(positions, BreakpointPosition{Line: line, Columns: columns})
	}
	return positions, nil
}

// Prettify asks the engine to pretty-print the source.
func (s *Source) Prettify(ctx context.Context) error {
	type args struct {
		Indent int `json:"indent"`
	}

	_, requestErr := s.SendRequest(ctx, "prettyPrint", args{Indent: 2})
	return requestErr
}

// LoadSource fetches the text of the source. The engine replies with either an
// inline string or a long-string grip.
func (s *Source) LoadSource(ctx context.Context) (*Grip, error) {
	packet, requestErr := s.SendRequest(ctx, "source", nil)
	if requestErr != nil {
		return nil, requestErr
	}

	var response struct {
		Source Grip `json:"source"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return nil, err
	}
	return &response.Source, nil
}
