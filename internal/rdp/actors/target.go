// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package actors

import (
	"encoding/json"
	"sync"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
)

// ResourceHandlers receives the watched resources a target delivers. Handlers
// for kinds the session did not subscribe to stay nil.
type ResourceHandlers struct {
	ConsoleMessage func(ConsoleMessageResource)
	ErrorMessage   func(ErrorMessageResource)
	Source         func(SourceForm)
	ThreadState    func(ThreadStateResource)
}

// Target is the proxy for a target actor: one concrete execution context under
// a descriptor. Watched resources (console messages, errors, sources, thread
// state transitions) arrive through it as resources-available-array events.
type Target struct {
	*rdp.Actor

	form TargetForm

	mu        sync.Mutex
	destroyed bool
	handlers  ResourceHandlers
}

// NewTarget creates a target proxy for a target form and registers it with the
// connection.
func NewTarget(conn *rdp.Connection, form TargetForm, log logr.Logger) *Target {
	t := &Target{
		Actor: rdp.NewActor(conn, form.Actor, log),
		form:  form,
	}

	t.OnEvent("resources-available-array", t.handleResources)
	t.OnEvent("frameUpdate", func(p *rdp.Packet) {
		// Frame tree updates are not surfaced to the editor.
	})
	t.OnEvent("tabNavigated", func(p *rdp.Packet) {
		t.Log().V(1).Info("Target navigated")
	})

	conn.Register(t)
	return t
}

// Form returns the target form this proxy was created from.
func (t *Target) Form() TargetForm {
	return t.form
}

// SetResourceHandlers installs the resource fan-out callbacks. Must happen
// before resources are watched.
func (t *Target) SetResourceHandlers(handlers ResourceHandlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = handlers
}

// MarkDestroyed flags the target as destroyed by the engine. Resources arriving
// afterwards are dropped.
func (t *Target) MarkDestroyed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroyed = true
}

// Destroyed reports whether the engine has destroyed this target.
func (t *Target) Destroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}

// handleResources unpacks a resources-available-array event: an array of
// [resourceType, [resource...]] pairs.
func (t *Target) handleResources(p *rdp.Packet) {
	t.mu.Lock()
	destroyed := t.destroyed
	handlers := t.handlers
	t.mu.Unlock()

	if destroyed {
		t.Log().V(1).Info("Dropping resources for destroyed target")
		return
	}

	var event struct {
		Array []json.RawMessage `json:"array"`
	}
	if err := p.Unmarshal(&event); err != nil {
		t.Log().Error(err, "Malformed resources-available-array event")
		return
	}

	for _, entry := range event.Array {
		var pair []json.RawMessage
		if err := json.Unmarshal(entry, &pair); err != nil || len(pair) != 2 {
			t.Log().Info("Dropping malformed resource entry")
			continue
		}

		var resourceType string
		if err := json.Unmarshal(pair[0], &resourceType); err != nil {
			t.Log().Info("Dropping resource entry with non-string type")
			continue
		}

		switch ResourceType(resourceType) {
		case ResourceConsoleMessage:
			fanOut(t.Log(), pair[1], func(r ConsoleMessageResource) {
				if handlers.ConsoleMessage != nil {
					handlers.ConsoleMessage(r)
				}
			})
		case ResourceErrorMessage:
			fanOut(t.Log(), pair[1], func(r ErrorMessageResource) {
				if handlers.ErrorMessage != nil {
					handlers.ErrorMessage(r)
				}
			})
		case ResourceSource:
			fanOut(t.Log(), pair[1], func(r SourceForm) {
				if handlers.Source != nil {
					handlers.Source(r)
				}
			})
		case ResourceThreadState:
			fanOut(t.Log(), pair[1], func(r ThreadStateResource) {
				if handlers.ThreadState != nil {
					handlers.ThreadState(r)
				}
			})
		default:
			t.Log().V(1).Info("Ignoring unwatched resource type", "resourceType", resourceType)
		}
	}
}

func fanOut[R any](log logr.Logger, raw json.RawMessage, deliver func(R)) {
	var resources []R
	if err := json.Unmarshal(raw, &resources); err != nil {
		log.Error(err, "Malformed resource array")
		return
	}
	for _, resource := range resources {
		deliver(resource)
	}
}
