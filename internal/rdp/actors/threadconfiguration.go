// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package actors

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
)

// ThreadConfigurationUpdate is a partial update of the session-wide thread
// configuration. Nil fields are left unchanged.
type ThreadConfigurationUpdate struct {
	PauseOnExceptions       *bool `json:"pauseOnExceptions,omitempty"`
	IgnoreCaughtExceptions  *bool `json:"ignoreCaughtExceptions,omitempty"`
	ShouldPauseOnDebuggerStatement *bool `json:"shouldPauseOnDebuggerStatement,omitempty"`
}

// ThreadConfiguration is the proxy for the session-wide thread configuration
// actor brokered by the watcher. Exception pause behavior is configured through
// it rather than per thread.
type ThreadConfiguration struct {
	*rdp.Actor
}

func newThreadConfiguration(conn *rdp.Connection, name string, log logr.Logger) *ThreadConfiguration {
	return &ThreadConfiguration{
		Actor: rdp.NewActor(conn, name, log),
	}
}

// Update applies a partial configuration update to all threads of the session.
func (t *ThreadConfiguration) Update(ctx context.Context, update ThreadConfigurationUpdate) error {
	type args struct {
		Configuration ThreadConfigurationUpdate `json:"configuration"`
	}

	_, requestErr := t.SendRequest(ctx, "updateConfiguration", args{Configuration: update})
	return requestErr
}
