// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package dapserver

import (
	"github.com/google/go-dap"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/session"
)

// The server implements session.EventSink: every editor-facing event the
// session produces is written here.
var _ session.EventSink = (*Server)(nil)

// customEvent carries the bridge's protocol extensions (newSource,
// threadStarted, threadExited) that have no go-dap message type.
type customEvent struct {
	dap.Event
	Body any `json:"body"`
}

type newSourceEventBody struct {
	ThreadId int     `json:"threadId"`
	SourceId int     `json:"sourceId"`
	URL      string  `json:"url"`
	Path     *string `json:"path"`
}

type threadStartedEventBody struct {
	Name string `json:"name"`
	Id   int    `json:"id"`
}

type threadExitedEventBody struct {
	Id int `json:"id"`
}

func (s *Server) Initialized() {
	s.write(&dap.InitializedEvent{Event: s.newEvent("initialized")})
}

func (s *Server) Terminated() {
	s.write(&dap.TerminatedEvent{Event: s.newEvent("terminated")})
}

func (s *Server) Stopped(reason string, threadId int, text string) {
	event := &dap.StoppedEvent{Event: s.newEvent("stopped")}
	event.Body.Reason = reason
	event.Body.ThreadId = threadId
	event.Body.Text = text
	event.Body.AllThreadsStopped = false
	s.write(event)
}

func (s *Server) Continued(threadId int) {
	event := &dap.ContinuedEvent{Event: s.newEvent("continued")}
	event.Body.ThreadId = threadId
	event.Body.AllThreadsContinued = false
	s.write(event)
}

func (s *Server) ThreadStarted(threadId int, name string) {
	event := &dap.ThreadEvent{Event: s.newEvent("thread")}
	event.Body.Reason = "started"
	event.Body.ThreadId = threadId
	s.write(event)

	s.write(&customEvent{
		Event: s.newEvent("threadStarted"),
		Body:  threadStartedEventBody{Name: name, Id: threadId},
	})
}

func (s *Server) ThreadExited(threadId int) {
	event := &dap.ThreadEvent{Event: s.newEvent("thread")}
	event.Body.Reason = "exited"
	event.Body.ThreadId = threadId
	s.write(event)

	s.write(&customEvent{
		Event: s.newEvent("threadExited"),
		Body:  threadExitedEventBody{Id: threadId},
	})
}

func (s *Server) Output(category string, output string, variablesReference int, source *session.OutputSource) {
	event := &dap.OutputEvent{Event: s.newEvent("output")}
	event.Body.Category = category
	event.Body.Output = output
	event.Body.VariablesReference = variablesReference
	if source != nil {
		event.Body.Source = &dap.Source{Name: source.URL, Path: source.Path}
		event.Body.Line = source.Line
		event.Body.Column = source.Column
	}
	s.write(event)
}

func (s *Server) NewSource(threadId int, sourceId int, url string, path string) {
	body := newSourceEventBody{
		ThreadId: threadId,
		SourceId: sourceId,
		URL:      url,
	}
	if path != "" {
		body.Path = &path
	}

	s.write(&customEvent{
		Event: s.newEvent("newSource"),
		Body:  body,
	})
}

func (s *Server) BreakpointChanged(breakpointId int, verified bool, line int) {
	event := &dap.BreakpointEvent{Event: s.newEvent("breakpoint")}
	event.Body.Reason = "changed"
	event.Body.Breakpoint = dap.Breakpoint{Id: breakpointId, Verified: verified, Line: line}
	s.write(event)
}
