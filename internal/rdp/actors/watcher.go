// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package actors

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
)

// Watcher is the proxy for a watcher actor. It subscribes to target and resource
// notifications for its descriptor and brokers the session-wide thread
// configuration and breakpoint list actors.
type Watcher struct {
	*rdp.Actor

	traits WatcherTraits

	mu                sync.Mutex
	onTargetAvailable func(TargetForm)
	onTargetDestroyed func(actorName string)
}

func newWatcher(conn *rdp.Connection, name string, traits WatcherTraits, log logr.Logger) *Watcher {
	w := &Watcher{
		Actor:  rdp.NewActor(conn, name, log),
		traits: traits,
	}

	w.OnEvent("target-available-form", func(p *rdp.Packet) {
		var event struct {
			Target TargetForm `json:"target"`
		}
		if err := p.Unmarshal(&event); err != nil {
			w.Log().Error(err, "Malformed target-available-form event")
			return
		}

		w.mu.Lock()
		handler := w.onTargetAvailable
		w.mu.Unlock()
		if handler != nil {
			handler(event.Target)
		}
	})

	w.OnEvent("target-destroyed-form", func(p *rdp.Packet) {
		var event struct {
			Target TargetForm `json:"target"`
		}
		if err := p.Unmarshal(&event); err != nil {
			w.Log().Error(err, "Malformed target-destroyed-form event")
			return
		}

		w.mu.Lock()
		handler := w.onTargetDestroyed
		w.mu.Unlock()
		if handler != nil {
			handler(event.Target.Actor)
		}
	})

	return w
}

// Traits returns the watcher's target-kind support flags.
func (w *Watcher) Traits() WatcherTraits {
	return w.traits
}

// OnTargetAvailable sets the handler for target-available notifications.
// Must be set before WatchTargets is issued, or early targets are lost.
func (w *Watcher) OnTargetAvailable(handler func(TargetForm)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onTargetAvailable = handler
}

// OnTargetDestroyed sets the handler for target-destroyed notifications.
func (w *Watcher) OnTargetDestroyed(handler func(actorName string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onTargetDestroyed = handler
}

// WatchTargets subscribes to targets of the given kind. Target forms stream in
// as target-available-form events, including for targets that already exist.
func (w *Watcher) WatchTargets(ctx context.Context, targetType TargetType) error {
	type args struct {
		TargetType TargetType `json:"targetType"`
	}

	_, requestErr := w.SendRequest(ctx, "watchTargets", args{TargetType: targetType})
	return requestErr
}

// WatchResources subscribes to the given resource kinds. Resources are delivered
// through the individual target actors. Issued after targets have been
// registered in the parent process so early resources are not missed.
func (w *Watcher) WatchResources(ctx context.Context, resourceTypes []ResourceType) error {
	type args struct {
		ResourceTypes []ResourceType `json:"resourceTypes"`
	}

	_, requestErr := w.SendRequest(ctx, "watchResources", args{ResourceTypes: resourceTypes})
	return requestErr
}

// GetBreakpointList returns the session-wide breakpoint list actor. Cached; the
// engine hands out the same actor for the watcher's lifetime.
func (w *Watcher) GetBreakpointList(ctx context.Context) (*BreakpointList, error) {
	form, cachedErr := rdp.SendCached(ctx, w.Actor, "getBreakpointListActor", "getBreakpointListActor", nil,
		func(p *rdp.Packet) (subActorForm, error) {
			var response struct {
				Breakpoints subActorForm `json:"breakpoints"`
			}
			if err := p.Unmarshal(&response); err != nil {
				return subActorForm{}, err
			}
			return response.Breakpoints, nil
		})
	if cachedErr != nil {
		return nil, cachedErr
	}

	handler := w.Connection().GetOrCreate(form.Actor, func() rdp.Handler {
		return newBreakpointList(w.Connection(), form.Actor, w.Log())
	})
	return handler.(*BreakpointList), nil
}

// GetThreadConfiguration returns the session-wide thread configuration actor.
func (w *Watcher) GetThreadConfiguration(ctx context.Context) (*ThreadConfiguration, error) {
	form, cachedErr := rdp.SendCached(ctx, w.Actor, "getThreadConfigurationActor", "getThreadConfigurationActor", nil,
		func(p *rdp.Packet) (subActorForm, error) {
			var response struct {
				Configuration subActorForm `json:"configuration"`
			}
			if err := p.Unmarshal(&response); err != nil {
				return subActorForm{}, err
			}
			return response.Configuration, nil
		})
	if cachedErr != nil {
		return nil, cachedErr
	}

	handler := w.Connection().GetOrCreate(form.Actor, func() rdp.Handler {
		return newThreadConfiguration(w.Connection(), form.Actor, w.Log())
	})
	return handler.(*ThreadConfiguration), nil
}

type subActorForm struct {
	Actor string `json:"actor"`
}
