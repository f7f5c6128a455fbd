// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package rdp

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
)

// requestResult carries either the response packet or the failure for one request.
type requestResult struct {
	packet *Packet
	err    error
}

// pendingRequest is a request that has been written to the wire and awaits its
// response. The wire protocol guarantees per-actor response ordering, so pending
// requests form a FIFO queue and the next non-event packet resolves the oldest one.
type pendingRequest struct {
	ch chan requestResult
}

// queuedRequest is a request held back while the actor is gated (e.g. the root
// actor before its init event arrives).
type queuedRequest struct {
	body    []byte
	pending *pendingRequest
}

type cacheEntry struct {
	done  chan struct{}
	value any
	err   error
}

// Actor is the base of every actor proxy: it owns the per-actor request queue,
// the pending-response queue, the idempotent-request cache and event routing.
// Typed proxies embed *Actor and register event handlers for the event types
// their actor category emits.
type Actor struct {
	name string
	conn *Connection
	log  logr.Logger

	mu            sync.Mutex
	pending       []*pendingRequest
	queue         []*queuedRequest
	gated         bool
	events        map[string]func(*Packet)
	cache         map[string]*cacheEntry
	disconnectErr error
}

// NewActor creates a proxy base for the given actor name and registers it with
// the connection.
func NewActor(conn *Connection, name string, log logr.Logger) *Actor {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Actor{
		name:   name,
		conn:   conn,
		log:    log.WithValues("actor", name),
		events: make(map[string]func(*Packet)),
		cache:  make(map[string]*cacheEntry),
	}
}

func (a *Actor) Name() string {
	return a.name
}

func (a *Actor) Connection() *Connection {
	return a.conn
}

func (a *Actor) Log() logr.Logger {
	return a.log
}

// OnEvent registers the handler for one event type. Packets whose "type" field
// matches a registered event type are routed to the handler instead of consuming
// a pending response.
func (a *Actor) OnEvent(eventType string, handler func(*Packet)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events[eventType] = handler
}

// HoldRequests gates the actor: requests are queued instead of written until
// ReleaseRequests is called.
func (a *Actor) HoldRequests() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gated = true
}

// ReleaseRequests opens the gate and writes all queued requests in order.
func (a *Actor) ReleaseRequests() {
	a.mu.Lock()
	queued := a.queue
	a.queue = nil
	a.gated = false

	for _, qr := range queued {
		a.pending = append(a.pending, qr.pending)
	}
	a.mu.Unlock()

	for _, qr := range queued {
		if sendErr := a.conn.send(qr.body); sendErr != nil {
			a.failPending(qr.pending, sendErr)
		}
	}
}

// SendRequest issues a request to this actor and waits for the corresponding
// response. Cancellation of ctx abandons the wait but intentionally leaves the
// pending slot in place so that response ordering stays aligned.
func (a *Actor) SendRequest(ctx context.Context, requestType string, args any) (*Packet, error) {
	pending, sendErr := a.sendAsync(requestType, args)
	if sendErr != nil {
		return nil, sendErr
	}

	select {
	case result := <-pending.ch:
		return result.packet, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendRequestNoReply issues a request and discards the eventual response packet.
// Used for notifications the caller does not need to await.
func (a *Actor) SendRequestNoReply(requestType string, args any) error {
	_, sendErr := a.sendAsync(requestType, args)
	return sendErr
}

func (a *Actor) sendAsync(requestType string, args any) (*pendingRequest, error) {
	body, encodeErr := encodeRequest(a.name, requestType, args)
	if encodeErr != nil {
		return nil, encodeErr
	}

	pending := &pendingRequest{ch: make(chan requestResult, 1)}

	a.mu.Lock()
	if a.disconnectErr != nil {
		err := a.disconnectErr
		a.mu.Unlock()
		return nil, err
	}

	if a.gated {
		a.queue = append(a.queue, &queuedRequest{body: body, pending: pending})
		a.mu.Unlock()
		return pending, nil
	}

	a.pending = append(a.pending, pending)
	a.mu.Unlock()

	a.log.V(1).Info("Sending request", "type", requestType)

	if sendErr := a.conn.send(body); sendErr != nil {
		a.failPending(pending, sendErr)
		return nil, sendErr
	}

	return pending, nil
}

// HandlePacket routes one inbound packet addressed to this actor: registered
// event types go to their handlers, everything else resolves the oldest pending
// request.
func (a *Actor) HandlePacket(p *Packet) {
	if p.Type != "" {
		a.mu.Lock()
		handler, isEvent := a.events[p.Type]
		a.mu.Unlock()

		if isEvent {
			handler(p)
			return
		}
	}

	a.mu.Lock()
	if len(a.pending) == 0 {
		a.mu.Unlock()
		a.log.Info("Dropping unsolicited packet", "type", p.Type, "error", p.Error)
		return
	}
	pending := a.pending[0]
	a.pending = a.pending[1:]
	a.mu.Unlock()

	if p.IsError() {
		pending.ch <- requestResult{err: p.ToActorError()}
	} else {
		pending.ch <- requestResult{packet: p}
	}
}

// RejectAllPending fails every pending and queued request with err. Used for
// one-shot transitions and on disconnect.
func (a *Actor) RejectAllPending(err error) {
	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	queued := a.queue
	a.queue = nil
	a.mu.Unlock()

	for _, pr := range pending {
		pr.ch <- requestResult{err: err}
	}
	for _, qr := range queued {
		qr.pending.ch <- requestResult{err: err}
	}
}

// Dispose deregisters the proxy from the connection and rejects anything still
// pending.
func (a *Actor) Dispose() {
	a.conn.Unregister(a.name)
	a.RejectAllPending(ErrDisconnected)
}

// rejectPending implements Handler; the connection calls it on teardown.
func (a *Actor) rejectPending(err error) {
	a.mu.Lock()
	a.disconnectErr = err
	a.mu.Unlock()

	a.RejectAllPending(err)
}

// failPending removes one pending request (wherever it sits in the queue) and
// resolves it with err. A request that is no longer pending has already been
// resolved (for example rejected by a disconnect) and is left alone.
func (a *Actor) failPending(pending *pendingRequest, err error) {
	a.mu.Lock()
	found := false
	for i, pr := range a.pending {
		if pr == pending {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			found = true
			break
		}
	}
	a.mu.Unlock()

	if found {
		pending.ch <- requestResult{err: err}
	}
}

// SendCached performs the request at most once per cache key on this actor:
// a prior successful response is returned from cache without I/O, and concurrent
// callers for the same key share one wire request. Failed requests are not cached.
func SendCached[T any](ctx context.Context, a *Actor, key string, requestType string, args any, mapFn func(*Packet) (T, error)) (T, error) {
	var zero T

	a.mu.Lock()
	if a.disconnectErr != nil {
		err := a.disconnectErr
		a.mu.Unlock()
		return zero, err
	}

	if entry, found := a.cache[key]; found {
		a.mu.Unlock()

		select {
		case <-entry.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}

		if entry.err != nil {
			return zero, entry.err
		}
		return entry.value.(T), nil
	}

	entry := &cacheEntry{done: make(chan struct{})}
	a.cache[key] = entry
	a.mu.Unlock()

	packet, requestErr := a.SendRequest(ctx, requestType, args)

	var value T
	var mapErr error
	if requestErr == nil {
		value, mapErr = mapFn(packet)
	}

	a.mu.Lock()
	if requestErr != nil || mapErr != nil {
		if requestErr != nil {
			entry.err = requestErr
		} else {
			entry.err = mapErr
		}
		// Do not memoize failures
		delete(a.cache, key)
	} else {
		entry.value = value
	}
	a.mu.Unlock()

	close(entry.done)

	if entry.err != nil {
		return zero, entry.err
	}
	return value, nil
}
