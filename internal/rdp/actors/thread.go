// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package actors

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
)

// StepKind selects the resume limit for a step request.
type StepKind string

const (
	// StepNext steps over the current line.
	StepNext StepKind = "next"
	// StepIn steps into calls on the current line.
	StepIn StepKind = "step"
	// StepOut finishes the current frame.
	StepOut StepKind = "finish"
)

// Thread is the proxy for a thread actor. With watcher-based thread actors the
// engine never attaches explicitly; pause and resume transitions are observed
// through the owning target's thread-state resource, and this proxy only issues
// control requests and stack queries.
type Thread struct {
	*rdp.Actor
}

// NewThread creates a thread proxy and registers it with the connection.
func NewThread(conn *rdp.Connection, name string, log logr.Logger) *Thread {
	t := &Thread{
		Actor: rdp.NewActor(conn, name, log),
	}

	// Legacy servers still send paused/resumed/newSource as thread events; the
	// modern flow delivers them as thread-state and source resources instead.
	t.OnEvent("paused", func(p *rdp.Packet) {
		t.Log().V(1).Info("Ignoring legacy paused event")
	})
	t.OnEvent("resumed", func(p *rdp.Packet) {
		t.Log().V(1).Info("Ignoring legacy resumed event")
	})
	t.OnEvent("newSource", func(p *rdp.Packet) {
		t.Log().V(1).Info("Ignoring legacy newSource event")
	})

	conn.Register(t)
	return t
}

type resumeLimit struct {
	Type StepKind `json:"type"`
}

type resumeArgs struct {
	ResumeLimit *resumeLimit `json:"resumeLimit,omitempty"`
}

// Resume resumes execution.
func (t *Thread) Resume(ctx context.Context) error {
	_, requestErr := t.SendRequest(ctx, "resume", resumeArgs{})
	return requestErr
}

// ResumeAsync resumes execution without awaiting the acknowledgement. Safe to
// call from packet dispatch, where awaiting a response would deadlock.
func (t *Thread) ResumeAsync() error {
	return t.SendRequestNoReply("resume", resumeArgs{})
}

// Step resumes execution bounded by the given step kind.
func (t *Thread) Step(ctx context.Context, kind StepKind) error {
	_, requestErr := t.SendRequest(ctx, "resume", resumeArgs{
		ResumeLimit: &resumeLimit{Type: kind},
	})
	return requestErr
}

// Interrupt requests a pause. The request carries when "onNext", so the engine
// pauses when it next runs script rather than immediately.
func (t *Thread) Interrupt(ctx context.Context) error {
	type args struct {
		When string `json:"when"`
	}

	_, requestErr := t.SendRequest(ctx, "interrupt", args{When: "onNext"})
	return requestErr
}

// Frames fetches a slice of the call stack.
func (t *Thread) Frames(ctx context.Context, start int, count int) ([]FrameForm, error) {
	type args struct {
		Start int `json:"start"`
		Count int `json:"count"`
	}

	packet, requestErr := t.SendRequest(ctx, "frames", args{Start: start, Count: count})
	if requestErr != nil {
		return nil, requestErr
	}

	var response struct {
		Frames []FrameForm `json:"frames"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return nil, err
	}
	return response.Frames, nil
}

// Sources enumerates the sources the thread has observed.
func (t *Thread) Sources(ctx context.Context) ([]SourceForm, error) {
	packet, requestErr := t.SendRequest(ctx, "sources", nil)
	if requestErr != nil {
		return nil, requestErr
	}

	var response struct {
		Sources []SourceForm `json:"sources"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return nil, err
	}
	return response.Sources, nil
}
