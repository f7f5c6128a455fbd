// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package rdp

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefox-devtools/vscode-firefox-debug/pkg/testutil"
)

func TestActorResolvesResponsesInRequestOrder(t *testing.T) {
	t.Parallel()

	conn, peer := startConnection(t)
	actor := NewActor(conn, "server1.conn1.thread1", testutil.NewLogForTesting("actor"))
	conn.Register(actor)

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	const requestCount = 5

	type outcome struct {
		index int
		reply int
	}

	outcomes := make(chan outcome, requestCount)
	var wg sync.WaitGroup
	for i := 0; i < requestCount; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			packet, requestErr := actor.SendRequest(ctx, "interrupt", nil)
			require.NoError(t, requestErr)

			var decoded struct {
				Reply int `json:"reply"`
			}
			require.NoError(t, packet.Unmarshal(&decoded))
			outcomes <- outcome{index: index, reply: decoded.Reply}
		}(i)
	}

	// Drain the five requests off the wire, then answer them in order. Each
	// response must resolve the oldest pending request.
	for i := 0; i < requestCount; i++ {
		peer.readPacket(t)
	}
	for i := 0; i < requestCount; i++ {
		peer.sendPacket(t, map[string]any{"from": "server1.conn1.thread1", "reply": i})
	}

	wg.Wait()
	close(outcomes)

	replies := map[int]int{}
	for o := range outcomes {
		replies[o.reply]++
	}
	// Every reply was delivered to exactly one waiter.
	assert.Len(t, replies, requestCount)
}

func TestActorErrorPacketRejectsOldestPending(t *testing.T) {
	t.Parallel()

	conn, peer := startConnection(t)
	actor := NewActor(conn, "server1.conn1.thread1", testutil.NewLogForTesting("actor"))
	conn.Register(actor)

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	resultChan := make(chan error, 1)
	go func() {
		_, requestErr := actor.SendRequest(ctx, "resume", nil)
		resultChan <- requestErr
	}()

	peer.readPacket(t)
	peer.sendPacket(t, map[string]any{
		"from":    "server1.conn1.thread1",
		"error":   "wrongState",
		"message": "thread is not paused",
	})

	requestErr := <-resultChan
	require.Error(t, requestErr)

	assert.True(t, IsWrongState(requestErr))

	var actorErr *ActorError
	require.ErrorAs(t, requestErr, &actorErr)
	assert.Equal(t, "server1.conn1.thread1", actorErr.Actor)
	assert.Equal(t, "thread is not paused", actorErr.Message)
}

func TestActorEventsDoNotConsumePendingResponses(t *testing.T) {
	t.Parallel()

	conn, peer := startConnection(t)
	actor := NewActor(conn, "server1.conn1.thread1", testutil.NewLogForTesting("actor"))
	conn.Register(actor)

	events := make(chan *Packet, 1)
	actor.OnEvent("newSource", func(p *Packet) {
		events <- p
	})

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	resultChan := make(chan *Packet, 1)
	go func() {
		packet, requestErr := actor.SendRequest(ctx, "frames", nil)
		require.NoError(t, requestErr)
		resultChan <- packet
	}()

	peer.readPacket(t)

	// An event arriving before the response must be routed to the event handler,
	// leaving the pending request intact.
	peer.sendPacket(t, map[string]any{"from": "server1.conn1.thread1", "type": "newSource"})
	peer.sendPacket(t, map[string]any{"from": "server1.conn1.thread1", "frames": []any{}})

	select {
	case <-events:
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}

	select {
	case packet := <-resultChan:
		assert.False(t, packet.IsError())
	case <-time.After(5 * time.Second):
		t.Fatal("response was not delivered")
	}
}

func TestActorGateQueuesRequestsUntilReleased(t *testing.T) {
	t.Parallel()

	conn, peer := startConnection(t)
	actor := NewActor(conn, "root", testutil.NewLogForTesting("actor"))
	conn.Register(actor)
	actor.HoldRequests()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	resultChan := make(chan error, 1)
	go func() {
		_, requestErr := actor.SendRequest(ctx, "getRoot", nil)
		resultChan <- requestErr
	}()

	// Nothing may hit the wire while the gate is closed.
	time.Sleep(100 * time.Millisecond)

	// The release writes synchronously and the pipe blocks until the peer reads.
	go actor.ReleaseRequests()

	fields := peer.readPacket(t)
	assert.Equal(t, "getRoot", fields["type"])

	peer.sendPacket(t, map[string]any{"from": "root", "preferenceActor": "server1.conn1.pref1"})
	require.NoError(t, <-resultChan)
}

func TestSendCachedIssuesAtMostOneWireRequest(t *testing.T) {
	t.Parallel()

	conn, peer := startConnection(t)
	actor := NewActor(conn, "server1.conn1.tab1", testutil.NewLogForTesting("actor"))
	conn.Register(actor)

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	mapWatcher := func(p *Packet) (string, error) {
		var decoded struct {
			Watcher struct {
				Actor string `json:"actor"`
			} `json:"watcher"`
		}
		if err := p.Unmarshal(&decoded); err != nil {
			return "", err
		}
		return decoded.Watcher.Actor, nil
	}

	go func() {
		peer.readPacket(t)
		peer.sendPacket(t, map[string]any{
			"from":    "server1.conn1.tab1",
			"watcher": map[string]any{"actor": "server1.conn1.watcher1"},
		})
	}()

	first, firstErr := SendCached(ctx, actor, "getWatcher", "getWatcher", nil, mapWatcher)
	require.NoError(t, firstErr)
	assert.Equal(t, "server1.conn1.watcher1", first)

	// The second call must be served from cache; the fake peer answers nothing,
	// so a wire request would hang until the context deadline.
	second, secondErr := SendCached(ctx, actor, "getWatcher", "getWatcher", nil, mapWatcher)
	require.NoError(t, secondErr)
	assert.Equal(t, first, second)
}

func TestSendCachedDoesNotMemoizeFailures(t *testing.T) {
	t.Parallel()

	conn, peer := startConnection(t)
	actor := NewActor(conn, "server1.conn1.tab1", testutil.NewLogForTesting("actor"))
	conn.Register(actor)

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	identity := func(p *Packet) (json.RawMessage, error) {
		return p.Raw(), nil
	}

	go func() {
		peer.readPacket(t)
		peer.sendPacket(t, map[string]any{"from": "server1.conn1.tab1", "error": "unknownMethod"})
		peer.readPacket(t)
		peer.sendPacket(t, map[string]any{"from": "server1.conn1.tab1", "ok": true})
	}()

	_, firstErr := SendCached(ctx, actor, "k", "describe", nil, identity)
	require.Error(t, firstErr)

	// After a failure the next call goes back to the wire.
	raw, secondErr := SendCached(ctx, actor, "k", "describe", nil, identity)
	require.NoError(t, secondErr)
	assert.Contains(t, string(raw), "ok")
}
