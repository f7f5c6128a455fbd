// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package rdp implements the engine-facing remote debugging protocol: length-prefixed
// JSON packet framing, a connection that routes inbound packets to actor proxies, and
// the actor proxy base with per-actor request/response correlation.
package rdp

import (
	"context"
	"errors"
	"sync"

	"github.com/go-logr/logr"
)

// Handler receives the packets addressed to one actor name. Actor proxies embed
// *Actor, which implements this interface; the unexported method keeps foreign
// implementations out of the registry.
type Handler interface {
	Name() string
	HandlePacket(p *Packet)

	rejectPending(err error)
}

// Connection routes inbound packets to actor proxies and serializes outbound
// writes through its transport. There is at most one live proxy per actor name
// for the lifetime of the connection.
type Connection struct {
	transport Transport
	log       logr.Logger

	mu     sync.Mutex
	actors map[string]Handler
	closed bool

	done     chan struct{}
	doneOnce sync.Once
	runErr   error
}

// NewConnection creates a connection over the given transport. Call Run to start
// dispatching inbound packets.
func NewConnection(transport Transport, log logr.Logger) *Connection {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Connection{
		transport: transport,
		log:       log,
		actors:    make(map[string]Handler),
		done:      make(chan struct{}),
	}
}

// Run reads packets from the transport and routes them until the stream ends or
// the context is cancelled. It returns nil on clean end of stream and the fatal
// transport error otherwise. Run must be called at most once.
func (c *Connection) Run(ctx context.Context) error {
	defer c.teardown()

	go func() {
		select {
		case <-ctx.Done():
			// Unblock the reader
			_ = c.transport.Close()
		case <-c.done:
		}
	}()

	for {
		packet, readErr := c.transport.ReadPacket()
		if readErr != nil {
			if errors.Is(readErr, ErrEndOfStream) || ctx.Err() != nil {
				return nil
			}

			var transportErr *TransportError
			if errors.As(readErr, &transportErr) && transportErr.Kind == TransportErrorClosed {
				return nil
			}

			c.log.Error(readErr, "Fatal transport error")
			c.setRunErr(readErr)
			return readErr
		}

		c.dispatch(packet)
	}
}

func (c *Connection) dispatch(packet *Packet) {
	c.mu.Lock()
	handler, found := c.actors[packet.From]
	c.mu.Unlock()

	if !found {
		c.log.Info("Dropping packet from unknown actor", "actor", packet.From, "type", packet.Type)
		return
	}

	c.log.V(1).Info("Dispatching packet", "actor", packet.From, "type", packet.Type)
	handler.HandlePacket(packet)
}

// Register adds a proxy to the registry. Registering a name twice is a bug in the
// caller; the second registration wins and is logged.
func (c *Connection) Register(handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.actors[handler.Name()]; exists {
		c.log.Info("Replacing existing proxy for actor", "actor", handler.Name())
	}
	c.actors[handler.Name()] = handler
}

// Unregister removes the proxy for the given actor name, if any.
func (c *Connection) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.actors, name)
}

// GetOrCreate returns the registered proxy for name, or registers and returns the
// proxy produced by factory. It is idempotent.
func (c *Connection) GetOrCreate(name string, factory func() Handler) Handler {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, found := c.actors[name]; found {
		return existing
	}

	created := factory()
	c.actors[name] = created
	return created
}

// Lookup returns the registered proxy for name.
func (c *Connection) Lookup(name string) (Handler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	handler, found := c.actors[name]
	return handler, found
}

// send writes one request body to the transport. Fails fast with ErrDisconnected
// once the connection is closed.
func (c *Connection) send(body []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrDisconnected
	}

	if writeErr := c.transport.WritePacket(body); writeErr != nil {
		// A write cut off by a concurrent teardown reports the disconnect.
		c.mu.Lock()
		closed = c.closed
		c.mu.Unlock()
		if closed {
			return ErrDisconnected
		}
		return writeErr
	}
	return nil
}

// Disconnect closes the transport and rejects all pending requests on all proxies
// with ErrDisconnected. Safe to call multiple times.
func (c *Connection) Disconnect() {
	c.teardown()
}

// Done is closed when the connection has been torn down, either by Disconnect or
// by the remote side closing the stream.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns the fatal transport error that ended the connection, if any.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

func (c *Connection) setRunErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runErr = err
}

func (c *Connection) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	handlers := make([]Handler, 0, len(c.actors))
	for _, handler := range c.actors {
		handlers = append(handlers, handler)
	}
	c.actors = make(map[string]Handler)
	c.mu.Unlock()

	_ = c.transport.Close()

	for _, handler := range handlers {
		handler.rejectPending(ErrDisconnected)
	}

	c.doneOnce.Do(func() {
		close(c.done)
	})
}
