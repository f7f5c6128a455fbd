// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package actors

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
)

// Descriptor is the proxy for a descriptor actor: a debuggable scope such as a
// tab, a web extension or a process. A descriptor owns exactly one watcher.
type Descriptor struct {
	*rdp.Actor

	mu          sync.Mutex
	onDestroyed func()
}

// NewDescriptor creates a descriptor proxy and registers it with the connection.
func NewDescriptor(conn *rdp.Connection, name string, log logr.Logger) *Descriptor {
	d := &Descriptor{
		Actor: rdp.NewActor(conn, name, log),
	}

	d.OnEvent("descriptor-destroyed", func(p *rdp.Packet) {
		d.mu.Lock()
		handler := d.onDestroyed
		d.mu.Unlock()
		if handler != nil {
			handler()
		}
	})

	conn.Register(d)
	return d
}

// OnDestroyed sets the handler invoked when the engine destroys the descriptor.
// Destruction cascades to all threads under this descriptor; the session handles
// that when the handler fires.
func (d *Descriptor) OnDestroyed(handler func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDestroyed = handler
}

// GetWatcher returns the watcher actor of this descriptor. The watcher is
// immutable per descriptor, so the request is cached.
func (d *Descriptor) GetWatcher(ctx context.Context) (*Watcher, error) {
	form, cachedErr := rdp.SendCached(ctx, d.Actor, "getWatcher", "getWatcher", nil,
		func(p *rdp.Packet) (watcherForm, error) {
			var response struct {
				Watcher watcherForm `json:"watcher"`
			}
			if err := p.Unmarshal(&response); err != nil {
				return watcherForm{}, err
			}
			return response.Watcher, nil
		})
	if cachedErr != nil {
		return nil, cachedErr
	}

	handler := d.Connection().GetOrCreate(form.Actor, func() rdp.Handler {
		return newWatcher(d.Connection(), form.Actor, form.Traits, d.Log())
	})
	return handler.(*Watcher), nil
}

// Reload reloads the document(s) this descriptor covers.
func (d *Descriptor) Reload(ctx context.Context) error {
	_, requestErr := d.SendRequest(ctx, "reloadDescriptor", nil)
	return requestErr
}

// GetTarget fetches the target form directly. Legacy discovery path for engines
// without watcher-based thread actors.
func (d *Descriptor) GetTarget(ctx context.Context) (TargetForm, error) {
	packet, requestErr := d.SendRequest(ctx, "getTarget", nil)
	if requestErr != nil {
		return TargetForm{}, requestErr
	}

	var response struct {
		Frame TargetForm `json:"frame"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return TargetForm{}, err
	}
	return response.Frame, nil
}

type watcherForm struct {
	Actor  string        `json:"actor"`
	Traits WatcherTraits `json:"traits"`
}
