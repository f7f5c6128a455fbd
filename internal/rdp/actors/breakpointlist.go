// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package actors

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
)

// BreakpointOptions carries the optional behavior of one breakpoint. LogValue
// makes the engine log the expression instead of pausing (native logpoints).
type BreakpointOptions struct {
	Condition string `json:"condition,omitempty"`
	LogValue  string `json:"logValue,omitempty"`
}

// BreakpointLocation addresses a breakpoint by generated source URL (or source
// id) plus position.
type BreakpointLocation struct {
	SourceURL string `json:"sourceUrl,omitempty"`
	SourceId  string `json:"sourceId,omitempty"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
}

// BreakpointList is the proxy for the session-wide breakpoint list actor. All
// breakpoints of the session are installed through it; the engine applies them
// to every matching source, current and future.
type BreakpointList struct {
	*rdp.Actor
}

func newBreakpointList(conn *rdp.Connection, name string, log logr.Logger) *BreakpointList {
	return &BreakpointList{
		Actor: rdp.NewActor(conn, name, log),
	}
}

// SetBreakpoint installs or updates the breakpoint at the given location. The
// engine may slide the breakpoint to the nearest valid position and report it
// back as actualLocation; when it stays silent the requested location stands.
func (b *BreakpointList) SetBreakpoint(ctx context.Context, location BreakpointLocation, options BreakpointOptions) (BreakpointLocation, error) {
	type args struct {
		Location BreakpointLocation `json:"location"`
		Options  BreakpointOptions  `json:"options"`
	}

	packet, requestErr := b.SendRequest(ctx, "setBreakpoint", args{
		Location: location,
		Options:  options,
	})
	if requestErr != nil {
		return BreakpointLocation{}, requestErr
	}

	var response struct {
		ActualLocation *BreakpointLocation `json:"actualLocation"`
	}
	if err := packet.Unmarshal(&response); err == nil && response.ActualLocation != nil {
		return *response.ActualLocation, nil
	}
	return location, nil
}

// RemoveBreakpoint removes the breakpoint at the given location.
func (b *BreakpointList) RemoveBreakpoint(ctx context.Context, location BreakpointLocation) error {
	type args struct {
		Location BreakpointLocation `json:"location"`
	}

	_, requestErr := b.SendRequest(ctx, "removeBreakpoint", args{Location: location})
	return requestErr
}
