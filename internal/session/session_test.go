// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/breakpoints"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/config"
	"github.com/firefox-devtools/vscode-firefox-debug/pkg/testutil"
)

// recorderSink records the editor-facing events the session emits.
type recorderSink struct {
	mu     sync.Mutex
	events []string

	stoppedReasons []string
	outputs        []string
}

func (r *recorderSink) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorderSink) Initialized() { r.record("initialized") }
func (r *recorderSink) Terminated()  { r.record("terminated") }

func (r *recorderSink) Stopped(reason string, threadId int, _ string) {
	r.mu.Lock()
	r.stoppedReasons = append(r.stoppedReasons, reason)
	r.mu.Unlock()
	r.record(fmt.Sprintf("stopped(%s,%d)", reason, threadId))
}

func (r *recorderSink) Continued(threadId int) {
	r.record(fmt.Sprintf("continued(%d)", threadId))
}

func (r *recorderSink) ThreadStarted(threadId int, _ string) {
	r.record(fmt.Sprintf("threadStarted(%d)", threadId))
}

func (r *recorderSink) ThreadExited(threadId int) {
	r.record(fmt.Sprintf("threadExited(%d)", threadId))
}

func (r *recorderSink) Output(category string, output string, _ int, _ *OutputSource) {
	r.mu.Lock()
	r.outputs = append(r.outputs, category+": "+output)
	r.mu.Unlock()
	r.record("output")
}

func (r *recorderSink) NewSource(threadId int, _ int, url string, _ string) {
	r.record(fmt.Sprintf("newSource(%d,%s)", threadId, url))
}

func (r *recorderSink) BreakpointChanged(int, bool, int) { r.record("breakpoint") }

func (r *recorderSink) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorderSink) count(event string) int {
	n := 0
	for _, e := range r.snapshot() {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorderSink) waitFor(t *testing.T, event string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range r.snapshot() {
			if e == event {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("event %q was not emitted; got %v", event, r.snapshot())
}

// enginePeer is a scripted debug server on the far end of a pipe.
type enginePeer struct {
	conn   net.Conn
	reader *bufio.Reader

	mu         sync.Mutex
	responders map[string]func(req map[string]any) []map[string]any

	requests chan map[string]any
}

func (e *enginePeer) respond(requestType string, fn func(req map[string]any) []map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responders[requestType] = fn
}

func (e *enginePeer) send(t *testing.T, fields map[string]any) {
	t.Helper()
	body, err := json.Marshal(fields)
	require.NoError(t, err)
	if _, writeErr := fmt.Fprintf(e.conn, "%d:%s", len(body), body); writeErr != nil {
		return
	}
}

func (e *enginePeer) serve(t *testing.T) {
	for {
		prefix, readErr := e.reader.ReadString(':')
		if readErr != nil {
			return
		}
		length, parseErr := strconv.Atoi(prefix[:len(prefix)-1])
		if parseErr != nil {
			return
		}

		body := make([]byte, length)
		read := 0
		for read < length {
			n, readErr := e.reader.Read(body[read:])
			if readErr != nil {
				return
			}
			read += n
		}

		var request map[string]any
		if unmarshalErr := json.Unmarshal(body, &request); unmarshalErr != nil {
			return
		}

		select {
		case e.requests <- request:
		default:
		}

		requestType, _ := request["type"].(string)
		e.mu.Lock()
		responder := e.responders[requestType]
		e.mu.Unlock()

		if responder != nil {
			for _, response := range responder(request) {
				e.send(t, response)
			}
		}
	}
}

// waitForRequest blocks until the engine has received a request of the given
// type.
func (e *enginePeer) waitForRequest(t *testing.T, requestType string) map[string]any {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case request := <-e.requests:
			if request["type"] == requestType {
				return request
			}
		case <-deadline:
			t.Fatalf("engine did not receive a %q request", requestType)
			return nil
		}
	}
}

func ack(req map[string]any) []map[string]any {
	return []map[string]any{{"from": req["to"]}}
}

// installDiscoveryResponders scripts the modern discovery conversation.
func installDiscoveryResponders(engine *enginePeer) {
	engine.respond("getProcess", func(req map[string]any) []map[string]any {
		return []map[string]any{{
			"from":              "root",
			"processDescriptor": map[string]any{"actor": "server1.conn1.processDescriptor1", "id": 0, "isParent": true},
		}}
	})
	engine.respond("getWatcher", func(req map[string]any) []map[string]any {
		return []map[string]any{{
			"from":    "server1.conn1.processDescriptor1",
			"watcher": map[string]any{"actor": "server1.conn1.watcher1", "traits": map[string]any{"frame": true}},
		}}
	})
	engine.respond("getBreakpointListActor", func(req map[string]any) []map[string]any {
		return []map[string]any{{
			"from":        "server1.conn1.watcher1",
			"breakpoints": map[string]any{"actor": "server1.conn1.breakpointList1"},
		}}
	})
	engine.respond("getThreadConfigurationActor", func(req map[string]any) []map[string]any {
		return []map[string]any{{
			"from":          "server1.conn1.watcher1",
			"configuration": map[string]any{"actor": "server1.conn1.threadConfiguration1"},
		}}
	})
	engine.respond("watchTargets", ack)
	engine.respond("watchResources", ack)
	engine.respond("getRoot", func(req map[string]any) []map[string]any {
		return []map[string]any{{
			"from":        "root",
			"addonsActor": "server1.conn1.addons1",
		}}
	})
	engine.respond("setBreakpoint", ack)
	engine.respond("removeBreakpoint", ack)
	engine.respond("updateConfiguration", ack)
	engine.respond("interrupt", ack)
}

// startSession wires a session to a scripted engine through a real TCP socket.
func startSession(t *testing.T, cfg *config.Config) (*Session, *enginePeer, *recorderSink) {
	t.Helper()

	listener, listenErr := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, listenErr)
	t.Cleanup(func() { listener.Close() })

	engineConn := make(chan net.Conn, 1)
	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr == nil {
			engineConn <- conn
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	cfg.Request = config.RequestAttach
	cfg.Host = "127.0.0.1"
	cfg.Port = addr.Port

	sink := &recorderSink{}
	sess := New(cfg, sink, testutil.NewLogForTesting("session"))

	startResult := make(chan error, 1)
	ctx, cancel := testutil.GetTestContext(t, 20*time.Second)
	t.Cleanup(cancel)
	go func() {
		startResult <- sess.Start(ctx)
	}()

	var engine *enginePeer
	select {
	case conn := <-engineConn:
		t.Cleanup(func() { conn.Close() })
		engine = &enginePeer{
			conn:       conn,
			reader:     bufio.NewReader(conn),
			responders: make(map[string]func(map[string]any) []map[string]any),
			requests:   make(chan map[string]any, 256),
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not connect")
	}

	installDiscoveryResponders(engine)
	go engine.serve(t)

	engine.send(t, map[string]any{
		"from":            "root",
		"applicationType": "browser",
		"traits": map[string]any{
			"nativeLogpoints":                        true,
			"supportsEnableWindowGlobalThreadActors": true,
		},
	})

	require.NoError(t, <-startResult)
	t.Cleanup(func() {
		sess.Shutdown(context.Background())
	})

	return sess, engine, sink
}

// announceTarget delivers one frame target with a thread and console actor.
func announceTarget(t *testing.T, engine *enginePeer, url string) {
	engine.send(t, map[string]any{
		"from": "server1.conn1.watcher1",
		"type": "target-available-form",
		"target": map[string]any{
			"actor":        "server1.conn1.windowGlobal1",
			"targetType":   "frame",
			"url":          url,
			"threadActor":  "server1.conn1.thread1",
			"consoleActor": "server1.conn1.console1",
		},
	})
}

// announceSource delivers one source resource on the target.
func announceSource(t *testing.T, engine *enginePeer, sourceActor string, url string) {
	engine.send(t, map[string]any{
		"from": "server1.conn1.windowGlobal1",
		"type": "resources-available-array",
		"array": []any{
			[]any{"source", []any{map[string]any{"actor": sourceActor, "url": url}}},
		},
	})
}

// announcePause delivers a paused thread-state resource.
func announcePause(t *testing.T, engine *enginePeer, whyType string, sourceActor string, line int) {
	engine.send(t, map[string]any{
		"from": "server1.conn1.windowGlobal1",
		"type": "resources-available-array",
		"array": []any{
			[]any{"thread-state", []any{map[string]any{
				"state": "paused",
				"why":   map[string]any{"type": whyType},
				"frame": map[string]any{
					"actor":       "server1.conn1.frame1",
					"type":        "call",
					"displayName": "f",
					"where":       map[string]any{"actor": sourceActor, "line": line, "column": 0},
				},
			}}},
		},
	})
}

func announceResumed(t *testing.T, engine *enginePeer) {
	engine.send(t, map[string]any{
		"from": "server1.conn1.windowGlobal1",
		"type": "resources-available-array",
		"array": []any{
			[]any{"thread-state", []any{map[string]any{"state": "resumed"}}},
		},
	})
}

func testConfig() *config.Config {
	return &config.Config{
		PathMappings: []config.PathMappingEntry{
			{URL: "https://example.org/", Path: "/www/"},
		},
	}
}

func TestTargetLifecycle(t *testing.T) {
	t.Parallel()

	_, engine, sink := startSession(t, testConfig())

	announceTarget(t, engine, "https://example.org/")
	sink.waitFor(t, "threadStarted(1)")

	announceSource(t, engine, "server1.conn1.source1", "https://example.org/s.js")
	sink.waitFor(t, "newSource(1,https://example.org/s.js)")

	engine.send(t, map[string]any{
		"from":   "server1.conn1.watcher1",
		"type":   "target-destroyed-form",
		"target": map[string]any{"actor": "server1.conn1.windowGlobal1"},
	})
	sink.waitFor(t, "threadExited(1)")

	// threadStarted precedes newSource which precedes threadExited.
	events := sink.snapshot()
	started, source, exited := -1, -1, -1
	for i, e := range events {
		switch e {
		case "threadStarted(1)":
			started = i
		case "newSource(1,https://example.org/s.js)":
			source = i
		case "threadExited(1)":
			exited = i
		}
	}
	assert.True(t, started < source && source < exited, "event order was %v", events)

	// Exactly one exit per thread, even if the engine repeats itself.
	engine.send(t, map[string]any{
		"from":   "server1.conn1.watcher1",
		"type":   "target-destroyed-form",
		"target": map[string]any{"actor": "server1.conn1.windowGlobal1"},
	})
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, sink.count("threadExited(1)"))
}

func TestStackTraceFailsAfterThreadExit(t *testing.T) {
	t.Parallel()

	sess, engine, sink := startSession(t, testConfig())

	announceTarget(t, engine, "https://example.org/")
	sink.waitFor(t, "threadStarted(1)")

	thread, found := sess.FindThread(1)
	require.True(t, found)

	engine.send(t, map[string]any{
		"from":   "server1.conn1.watcher1",
		"type":   "target-destroyed-form",
		"target": map[string]any{"actor": "server1.conn1.windowGlobal1"},
	})
	sink.waitFor(t, "threadExited(1)")

	_, traceErr := thread.StackTrace(context.Background(), 0, 0)
	assert.Error(t, traceErr)

	_, stillRegistered := sess.FindThread(1)
	assert.False(t, stillRegistered)
}

func TestBlackboxedStopIsAutoResumed(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.FilesToSkip = []string{"**/lib/**"}
	_, engine, sink := startSession(t, cfg)

	resumed := make(chan struct{}, 4)
	engine.respond("resume", func(req map[string]any) []map[string]any {
		resumed <- struct{}{}
		return []map[string]any{{"from": req["to"]}}
	})
	engine.respond("blackbox", ack)

	announceTarget(t, engine, "https://example.org/")
	sink.waitFor(t, "threadStarted(1)")

	announceSource(t, engine, "server1.conn1.source1", "https://example.org/lib/a.js")
	sink.waitFor(t, "newSource(1,https://example.org/lib/a.js)")

	announcePause(t, engine, "exception", "server1.conn1.source1", 1)

	select {
	case <-resumed:
	case <-time.After(5 * time.Second):
		t.Fatal("thread was not auto-resumed")
	}

	announceResumed(t, engine)
	sink.waitFor(t, "continued(1)")
	assert.Empty(t, sink.stoppedReasons, "a stop in a blackboxed source must not surface")
}

func TestHitCountBreakpointSuppression(t *testing.T) {
	t.Parallel()

	sess, engine, sink := startSession(t, testConfig())

	resumeRequests := make(chan struct{}, 8)
	engine.respond("resume", func(req map[string]any) []map[string]any {
		resumeRequests <- struct{}{}
		return []map[string]any{{"from": req["to"]}}
	})
	engine.respond("frames", func(req map[string]any) []map[string]any {
		return []map[string]any{{"from": req["to"], "frames": []any{}}}
	})

	announceTarget(t, engine, "https://example.org/")
	sink.waitFor(t, "threadStarted(1)")
	announceSource(t, engine, "server1.conn1.source1", "https://example.org/s.js")
	sink.waitFor(t, "newSource(1,https://example.org/s.js)")

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	realized := sess.Breakpoints().SetBreakpoints(ctx, "/www/s.js", []breakpoints.Desired{
		{Path: "/www/s.js", Line: 1, HitLimit: 3},
	})
	require.Len(t, realized, 1)
	require.True(t, realized[0].Verified)

	// Five hits: the first two and the last two are suppressed with an
	// auto-resume, only the third surfaces.
	for hit := 1; hit <= 5; hit++ {
		announcePause(t, engine, "breakpoint", "server1.conn1.source1", 1)

		if hit == 3 {
			sink.waitFor(t, "stopped(breakpoint,1)")
			thread, found := sess.FindThread(1)
			require.True(t, found)
			require.NoError(t, thread.Resume(ctx))
		}

		select {
		case <-resumeRequests:
		case <-time.After(5 * time.Second):
			t.Fatalf("no resume request after hit %d", hit)
		}
		announceResumed(t, engine)
	}

	assert.Equal(t, []string{"breakpoint"}, sink.stoppedReasons)
}

func TestDebuggerEvalExceptionIsSuppressed(t *testing.T) {
	t.Parallel()

	_, engine, sink := startSession(t, testConfig())

	resumed := make(chan struct{}, 1)
	engine.respond("resume", func(req map[string]any) []map[string]any {
		resumed <- struct{}{}
		return []map[string]any{{"from": req["to"]}}
	})

	announceTarget(t, engine, "https://example.org/")
	sink.waitFor(t, "threadStarted(1)")

	engine.send(t, map[string]any{
		"from": "server1.conn1.windowGlobal1",
		"type": "resources-available-array",
		"array": []any{
			[]any{"source", []any{map[string]any{
				"actor":            "server1.conn1.source9",
				"url":              "https://example.org/eval.js",
				"introductionType": "debugger eval",
			}}},
		},
	})
	sink.waitFor(t, "newSource(1,https://example.org/eval.js)")

	announcePause(t, engine, "exception", "server1.conn1.source9", 1)

	select {
	case <-resumed:
	case <-time.After(5 * time.Second):
		t.Fatal("exception in debugger-eval source was not auto-resumed")
	}
	assert.Empty(t, sink.stoppedReasons)
}

func TestPauseLifetimeReferencesAreInvalidatedOnResume(t *testing.T) {
	t.Parallel()

	sess, engine, sink := startSession(t, testConfig())

	engine.respond("frames", func(req map[string]any) []map[string]any {
		return []map[string]any{{
			"from": req["to"],
			"frames": []any{map[string]any{
				"actor":       "server1.conn1.frame1",
				"type":        "call",
				"displayName": "f",
				"where":       map[string]any{"actor": "server1.conn1.source1", "line": 2, "column": 0},
				"environment": map[string]any{
					"type": "function",
					"bindings": map[string]any{
						"arguments": []any{map[string]any{"x": map[string]any{"value": 1}}},
						"variables": map[string]any{"i": map[string]any{"value": 2}},
					},
				},
			}},
		}}
	})

	announceTarget(t, engine, "https://example.org/")
	sink.waitFor(t, "threadStarted(1)")
	announceSource(t, engine, "server1.conn1.source1", "https://example.org/s.js")
	sink.waitFor(t, "newSource(1,https://example.org/s.js)")

	announcePause(t, engine, "interrupted", "server1.conn1.source1", 2)
	sink.waitFor(t, "stopped(interrupt,1)")

	thread, found := sess.FindThread(1)
	require.True(t, found)

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	frames, traceErr := thread.StackTrace(ctx, 0, 0)
	require.NoError(t, traceErr)
	require.Len(t, frames, 1)

	frame, frameFound := sess.FindFrame(frames[0].Id)
	require.True(t, frameFound)

	scopes := thread.Scopes(frame)
	require.NotEmpty(t, scopes)

	provider, providerFound := sess.FindVariablesProvider(scopes[0].VariablesReference)
	require.True(t, providerFound)

	variables, varsErr := provider.FetchVariables(ctx)
	require.NoError(t, varsErr)
	names := make([]string, 0, len(variables))
	for _, v := range variables {
		names = append(names, v.Name+"="+v.Value)
	}
	assert.Contains(t, names, "i=2")
	assert.Contains(t, names, "x=1")

	announceResumed(t, engine)
	sink.waitFor(t, "continued(1)")

	// Every id issued under the pause is invalid after continued.
	_, providerFound = sess.FindVariablesProvider(scopes[0].VariablesReference)
	assert.False(t, providerFound)
	_, frameFound = sess.FindFrame(frames[0].Id)
	assert.False(t, frameFound)
}

func TestConsoleTimerOutput(t *testing.T) {
	t.Parallel()

	_, engine, sink := startSession(t, testConfig())

	announceTarget(t, engine, "https://example.org/")
	sink.waitFor(t, "threadStarted(1)")

	// console.time emits nothing; console.timeEnd reports the timer once.
	engine.send(t, map[string]any{
		"from": "server1.conn1.windowGlobal1",
		"type": "resources-available-array",
		"array": []any{
			[]any{"console-message", []any{
				map[string]any{"level": "time", "timerName": "t"},
				map[string]any{"level": "timeEnd", "timerName": "t", "timerDuration": 2.5},
			}},
		},
	})

	sink.waitFor(t, "output")
	sink.mu.Lock()
	outputs := append([]string(nil), sink.outputs...)
	sink.mu.Unlock()

	require.Len(t, outputs, 1)
	assert.Regexp(t, `^console: t: \d+(\.\d+)?ms - timer ended`, outputs[0])
}

func TestDisconnectCleansUpAllRegistries(t *testing.T) {
	t.Parallel()

	sess, engine, sink := startSession(t, testConfig())

	announceTarget(t, engine, "https://example.org/")
	sink.waitFor(t, "threadStarted(1)")
	announceSource(t, engine, "server1.conn1.source1", "https://example.org/s.js")
	sink.waitFor(t, "newSource(1,https://example.org/s.js)")

	// The engine closes the socket: the session terminates unconditionally.
	engine.conn.Close()
	sink.waitFor(t, "terminated")

	assert.Empty(t, sess.AllThreads())
	assert.Equal(t, 0, sess.Sources().Count())

	_, found := sess.FindThread(1)
	assert.False(t, found)

	// No further editor events after termination.
	before := len(sink.snapshot())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, len(sink.snapshot()))
}
