// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp/actors"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/sourcemaps"
)

type threadState int

const (
	threadRunning threadState = iota
	threadPaused
	threadExited
)

// FrameAdapter is the bridge-side state for one stack frame of a paused thread.
// Frame ids have pause lifetime.
type FrameAdapter struct {
	Id       int
	ThreadId int
	Name     string
	Source   *sourcemaps.Source
	URL      string
	Line     int
	Column   int

	form actors.FrameForm
}

// ThreadAdapter owns the pause/resume state machine for one target. All pause
// gates (blackbox, hit count, debugger-eval exceptions) are applied here before
// a stop is surfaced to the editor.
type ThreadAdapter struct {
	Id         int
	Name       string
	TargetType string

	session *Session
	target  *actors.Target
	thread  *actors.Thread
	console *actors.Console

	mu          sync.Mutex
	state       threadState
	why         *actors.PausedReason
	topFrame    *actors.FrameForm
	frames      []*FrameAdapter
	frameIds    []int
	pauseRefs   []int
	pauseActors []string
	exitEmitted bool
}

func newThreadAdapter(id int, name string, session *Session, target *actors.Target, thread *actors.Thread, console *actors.Console) *ThreadAdapter {
	return &ThreadAdapter{
		Id:         id,
		Name:       name,
		TargetType: target.Form().TargetType,
		session:    session,
		target:     target,
		thread:     thread,
		console:    console,
		state:      threadRunning,
	}
}

// HandleThreadState processes one thread-state resource. Runs on the packet
// dispatcher; everything it triggers on the wire must be fire-and-forget.
func (t *ThreadAdapter) HandleThreadState(resource actors.ThreadStateResource) {
	switch resource.State {
	case "paused":
		t.onPaused(resource)
	case "resumed":
		t.onResumed()
	default:
		t.session.log.V(1).Info("Ignoring unknown thread state", "state", resource.State, "threadId", t.Id)
	}
}

func (t *ThreadAdapter) onPaused(resource actors.ThreadStateResource) {
	t.mu.Lock()
	if t.state == threadExited {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	why := resource.Why
	if why == nil {
		why = &actors.PausedReason{Type: "interrupted"}
	}

	var source *sourcemaps.Source
	line := 0
	if resource.Frame != nil {
		source, line, _ = t.session.sources.ApplySourceMapToFrame(
			resource.Frame.Where.Actor, resource.Frame.Where.Line, resource.Frame.Where.Column)
	}

	// A stop inside a skipped source can race a just-loaded source before its
	// blackbox flag reached the engine; treat it as spurious.
	if source != nil && (source.Blackboxed || t.session.skipFiles.ShouldSkipSource(source)) {
		t.session.log.V(1).Info("Auto-resuming stop in blackboxed source", "threadId", t.Id, "url", source.URL)
		t.autoResume()
		return
	}

	if why.Type == "breakpoint" && source != nil {
		key := source.Path
		if key == "" {
			key = source.URL
		}
		if !t.session.breakpoints.ShouldStop(key, line) {
			t.session.log.V(1).Info("Auto-resuming hit-limited breakpoint", "threadId", t.Id, "line", line)
			t.autoResume()
			return
		}
	}

	// Exceptions thrown from debugger-eval code are reported through the
	// console result instead.
	if why.Type == "exception" && source != nil && source.IsDebuggerEval() {
		t.session.log.V(1).Info("Auto-resuming exception in debugger-eval source", "threadId", t.Id)
		t.autoResume()
		return
	}

	t.mu.Lock()
	t.state = threadPaused
	t.why = why
	t.topFrame = resource.Frame
	t.frames = nil
	t.mu.Unlock()

	// Consumers will ask for the stack momentarily; warm it up.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = t.StackTrace(ctx, 0, 0)
	}()

	reason := classifyStopReason(why)
	text := ""
	if why.Type == "exception" {
		text = exceptionText(why)
	}
	t.session.sink().Stopped(reason, t.Id, text)
}

func (t *ThreadAdapter) onResumed() {
	t.mu.Lock()
	if t.state == threadExited {
		t.mu.Unlock()
		return
	}
	t.state = threadRunning
	t.why = nil
	t.topFrame = nil
	t.mu.Unlock()

	// Pause-lifetime disposal must complete before the editor observes the
	// resumed state, so no stale variables-reference id stays queryable.
	t.disposePauseLifetime()

	t.session.sink().Continued(t.Id)
}

func (t *ThreadAdapter) autoResume() {
	if resumeErr := t.thread.ResumeAsync(); resumeErr != nil {
		t.session.log.Info("Failed to auto-resume thread", "threadId", t.Id, "error", resumeErr.Error())
	}
}

// disposePauseLifetime drops all frame ids, variables-reference ids and grip
// proxies issued under the current pause.
func (t *ThreadAdapter) disposePauseLifetime() {
	t.mu.Lock()
	frameIds := t.frameIds
	pauseRefs := t.pauseRefs
	pauseActors := t.pauseActors
	t.frameIds = nil
	t.pauseRefs = nil
	t.pauseActors = nil
	t.frames = nil
	t.mu.Unlock()

	for _, id := range frameIds {
		t.session.frames.Unregister(id)
	}
	for _, id := range pauseRefs {
		t.session.variables.Unregister(id)
	}
	for _, name := range pauseActors {
		if handler, found := t.session.conn.Lookup(name); found {
			if actor, ok := handler.(interface{ Dispose() }); ok {
				actor.Dispose()
			}
		}
	}
}

// registerPauseProvider registers a variables provider with pause lifetime and
// returns its variables-reference id.
func (t *ThreadAdapter) registerPauseProvider(provider VariablesProvider, actorName string) int {
	id := t.session.variables.Register(provider)

	t.mu.Lock()
	t.pauseRefs = append(t.pauseRefs, id)
	if actorName != "" {
		t.pauseActors = append(t.pauseActors, actorName)
	}
	t.mu.Unlock()

	return id
}

// Paused reports whether the thread is currently paused.
func (t *ThreadAdapter) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == threadPaused
}

// Exited reports whether the thread has exited.
func (t *ThreadAdapter) Exited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == threadExited
}

// PausedReason returns the recorded pause reason, if paused.
func (t *ThreadAdapter) PausedReason() *actors.PausedReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.why
}

// markExited transitions the thread to its terminal state. Returns false if it
// already exited, so the exit event is emitted exactly once.
func (t *ThreadAdapter) markExited() bool {
	t.mu.Lock()
	if t.exitEmitted {
		t.mu.Unlock()
		return false
	}
	t.exitEmitted = true
	t.state = threadExited
	t.mu.Unlock()

	t.disposePauseLifetime()
	t.target.MarkDestroyed()
	return true
}

// Resume resumes the thread. wrongState races with the engine's own resume are
// benign.
func (t *ThreadAdapter) Resume(ctx context.Context) error {
	return ignoreWrongState(t.thread.Resume(ctx))
}

// Step performs one step of the given kind.
func (t *ThreadAdapter) Step(ctx context.Context, kind actors.StepKind) error {
	return ignoreWrongState(t.thread.Step(ctx, kind))
}

// Pause requests an interrupt.
func (t *ThreadAdapter) Pause(ctx context.Context) error {
	return ignoreWrongState(t.thread.Interrupt(ctx))
}

// Evaluate runs an expression against this thread, in the given frame when
// frameId is non-zero.
func (t *ThreadAdapter) Evaluate(ctx context.Context, expression string, frameId int) (Variable, error) {
	frameActor := ""
	if frameId != 0 {
		if frame, found := t.session.frames.Find(frameId); found {
			frameActor = frame.form.Actor
		}
	}

	result, evalErr := t.console.Evaluate(ctx, expression, frameActor)
	if evalErr != nil {
		return Variable{}, evalErr
	}

	if result.Failed() {
		message := result.ExceptionMessage
		if message == nil {
			message = result.Exception
		}
		return Variable{}, fmt.Errorf("%s", renderGrip(message))
	}

	return t.session.variableFromGrip(t, "", result.Result), nil
}

// StackTrace returns the frames of the paused thread. levels 0 means all.
func (t *ThreadAdapter) StackTrace(ctx context.Context, start int, levels int) ([]*FrameAdapter, error) {
	t.mu.Lock()
	if t.state == threadExited {
		t.mu.Unlock()
		return nil, fmt.Errorf("thread %d has exited", t.Id)
	}
	if t.state != threadPaused {
		t.mu.Unlock()
		return nil, fmt.Errorf("thread %d is not paused", t.Id)
	}
	cached := t.frames
	t.mu.Unlock()

	if cached == nil {
		count := levels
		if count == 0 {
			count = 1000
		}
		forms, framesErr := t.thread.Frames(ctx, 0, count)
		if framesErr != nil {
			return nil, framesErr
		}

		cached = make([]*FrameAdapter, 0, len(forms))
		for _, form := range forms {
			cached = append(cached, t.adaptFrame(form))
		}

		t.mu.Lock()
		if t.state == threadPaused && t.frames == nil {
			t.frames = cached
		} else {
			cached = t.frames
		}
		t.mu.Unlock()

		if cached == nil {
			return nil, fmt.Errorf("thread %d resumed while fetching frames", t.Id)
		}
	}

	if start >= len(cached) {
		return []*FrameAdapter{}, nil
	}
	end := len(cached)
	if levels > 0 && start+levels < end {
		end = start + levels
	}
	return cached[start:end], nil
}

// adaptFrame rewrites one frame through the source-maps and registers it with
// pause lifetime.
func (t *ThreadAdapter) adaptFrame(form actors.FrameForm) *FrameAdapter {
	source, line, column := t.session.sources.ApplySourceMapToFrame(
		form.Where.Actor, form.Where.Line, form.Where.Column)

	name := form.DisplayName
	if name == "" {
		name = "(" + form.Type + ")"
	}

	frame := &FrameAdapter{
		ThreadId: t.Id,
		Name:     name,
		Source:   source,
		Line:     line,
		Column:   column,
		form:     form,
	}
	if source != nil {
		frame.URL = source.URL
	}

	frame.Id = t.session.frames.Register(frame)

	t.mu.Lock()
	t.frameIds = append(t.frameIds, frame.Id)
	t.mu.Unlock()

	return frame
}

// Scopes materializes the scope chain of a frame as variables providers.
func (t *ThreadAdapter) Scopes(frame *FrameAdapter) []Scope {
	var scopes []Scope

	raw := frame.form.Environment
	for len(raw) > 0 {
		var env environmentForm
		if err := json.Unmarshal(raw, &env); err != nil {
			t.session.log.V(1).Info("Malformed environment in frame", "error", err.Error())
			break
		}

		var provider VariablesProvider
		actorName := ""
		if env.Object != nil && env.Object.IsObject() {
			proxy := actors.NewObjectGrip(t.session.conn, env.Object.Actor, t.session.log)
			provider = &objectGripProvider{session: t.session, thread: t, grip: proxy}
			actorName = env.Object.Actor
		} else {
			envCopy := env
			provider = &bindingsProvider{session: t.session, thread: t, env: &envCopy}
		}

		scopes = append(scopes, Scope{
			Name:               env.scopeName(),
			VariablesReference: t.registerPauseProvider(provider, actorName),
			Expensive:          env.Type == "object",
		})

		raw = env.Parent
	}

	return scopes
}

// classifyStopReason maps engine pause reasons to editor stop reasons.
func classifyStopReason(why *actors.PausedReason) string {
	switch why.Type {
	case "exception":
		return "exception"
	case "breakpoint":
		return "breakpoint"
	case "debuggerStatement":
		return "debugger statement"
	default:
		return "interrupt"
	}
}

func ignoreWrongState(err error) error {
	if rdp.IsWrongState(err) {
		return nil
	}
	return err
}
