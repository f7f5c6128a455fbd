// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package actors

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
)

// RootActorName is the well-known name of the root actor.
const RootActorName = "root"

// RootInit is the content of the engine's initial packet.
type RootInit struct {
	ApplicationType string     `json:"applicationType"`
	TestConnectionPrefix string `json:"testConnectionPrefix,omitempty"`
	Traits          RootTraits `json:"traits"`
}

// RootSubActors enumerates the top-level sub-actors reported by getRoot.
type RootSubActors struct {
	PreferenceActor string `json:"preferenceActor,omitempty"`
	AddonsActor     string `json:"addonsActor,omitempty"`
	DeviceActor     string `json:"deviceActor,omitempty"`
}

// Root is the proxy for the root actor. The engine opens the conversation with
// one untyped packet carrying its traits; requests issued before that packet
// arrives are queued.
type Root struct {
	*rdp.Actor

	mu           sync.Mutex
	initReceived bool
	init         RootInit
	initChan     chan struct{}

	onTabListChanged func()
	onTabOpened      func(TabDescriptorForm)
	onAddonListChanged func()
}

// NewRoot creates the root proxy and registers it with the connection.
func NewRoot(conn *rdp.Connection, log logr.Logger) *Root {
	r := &Root{
		Actor:    rdp.NewActor(conn, RootActorName, log),
		initChan: make(chan struct{}),
	}

	r.HoldRequests()

	r.OnEvent("tabListChanged", func(p *rdp.Packet) {
		r.mu.Lock()
		handler := r.onTabListChanged
		r.mu.Unlock()
		if handler != nil {
			handler()
		}
	})
	r.OnEvent("tabOpened", func(p *rdp.Packet) {
		var tab TabDescriptorForm
		if err := p.Unmarshal(&tab); err != nil {
			r.Log().Error(err, "Malformed tabOpened event")
			return
		}
		r.mu.Lock()
		handler := r.onTabOpened
		r.mu.Unlock()
		if handler != nil {
			handler(tab)
		}
	})
	r.OnEvent("addonListChanged", func(p *rdp.Packet) {
		r.mu.Lock()
		handler := r.onAddonListChanged
		r.mu.Unlock()
		if handler != nil {
			handler()
		}
	})

	conn.Register(r)
	return r
}

// HandlePacket intercepts the init packet; everything else follows the base
// request/event routing.
func (r *Root) HandlePacket(p *rdp.Packet) {
	r.mu.Lock()
	needInit := !r.initReceived
	r.mu.Unlock()

	if needInit && p.Type == "" {
		var init RootInit
		if err := p.Unmarshal(&init); err != nil {
			r.Log().Error(err, "Malformed init packet")
			return
		}

		r.mu.Lock()
		r.initReceived = true
		r.init = init
		r.mu.Unlock()

		r.Log().Info("Connected to engine",
			"applicationType", init.ApplicationType,
			"modernThreadActors", init.Traits.SupportsEnableWindowGlobalThreadActors)

		close(r.initChan)
		r.ReleaseRequests()
		return
	}

	r.Actor.HandlePacket(p)
}

// WaitForInit blocks until the init packet has arrived and returns its content.
func (r *Root) WaitForInit(ctx context.Context) (RootInit, error) {
	select {
	case <-r.initChan:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.init, nil
	case <-ctx.Done():
		return RootInit{}, ctx.Err()
	}
}

// Traits returns the engine traits. Only valid after WaitForInit.
func (r *Root) Traits() RootTraits {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.init.Traits
}

// OnTabListChanged sets the handler for tab list change notifications.
func (r *Root) OnTabListChanged(handler func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTabListChanged = handler
}

// OnTabOpened sets the handler for tab open notifications.
func (r *Root) OnTabOpened(handler func(TabDescriptorForm)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTabOpened = handler
}

// OnAddonListChanged sets the handler for addon list change notifications.
func (r *Root) OnAddonListChanged(handler func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAddonListChanged = handler
}

// FetchRoot enumerates the top-level sub-actors. The result is cached; the
// actors it names live for the whole connection.
func (r *Root) FetchRoot(ctx context.Context) (RootSubActors, error) {
	return rdp.SendCached(ctx, r.Actor, "getRoot", "getRoot", nil,
		func(p *rdp.Packet) (RootSubActors, error) {
			var subActors RootSubActors
			if err := p.Unmarshal(&subActors); err != nil {
				return RootSubActors{}, err
			}
			return subActors, nil
		})
}

// ListTabs enumerates the currently open tabs.
func (r *Root) ListTabs(ctx context.Context) ([]TabDescriptorForm, error) {
	packet, requestErr := r.SendRequest(ctx, "listTabs", nil)
	if requestErr != nil {
		return nil, requestErr
	}

	var response struct {
		Tabs []TabDescriptorForm `json:"tabs"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return nil, err
	}
	return response.Tabs, nil
}

// ListAddons enumerates installed addons.
func (r *Root) ListAddons(ctx context.Context) ([]AddonForm, error) {
	packet, requestErr := r.SendRequest(ctx, "listAddons", nil)
	if requestErr != nil {
		return nil, requestErr
	}

	var response struct {
		Addons []AddonForm `json:"addons"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return nil, err
	}
	return response.Addons, nil
}

// GetParentProcess fetches the descriptor of the parent process. Used by the
// modern discovery mode.
func (r *Root) GetParentProcess(ctx context.Context) (ProcessDescriptorForm, error) {
	type args struct {
		Id int `json:"id"`
	}

	packet, requestErr := r.SendRequest(ctx, "getProcess", args{Id: 0})
	if requestErr != nil {
		return ProcessDescriptorForm{}, requestErr
	}

	var response struct {
		ProcessDescriptor ProcessDescriptorForm `json:"processDescriptor"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return ProcessDescriptorForm{}, err
	}
	return response.ProcessDescriptor, nil
}
