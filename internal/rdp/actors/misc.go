// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package actors

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
)

// AddonForm describes one installed addon.
type AddonForm struct {
	Actor string `json:"actor"`
	Id    string `json:"id"`
	Name  string `json:"name,omitempty"`
	URL   string `json:"url,omitempty"`
	IsWebExtension bool `json:"isWebExtension,omitempty"`
}

// Preference is the proxy for the preference actor.
type Preference struct {
	*rdp.Actor
}

// NewPreference creates a preference proxy and registers it with the connection.
func NewPreference(conn *rdp.Connection, name string, log logr.Logger) *Preference {
	p := &Preference{
		Actor: rdp.NewActor(conn, name, log),
	}

	conn.Register(p)
	return p
}

type prefNameArgs struct {
	Value string `json:"value"`
}

// GetBoolPref reads a boolean engine preference.
func (p *Preference) GetBoolPref(ctx context.Context, name string) (bool, error) {
	packet, requestErr := p.SendRequest(ctx, "getBoolPref", prefNameArgs{Value: name})
	if requestErr != nil {
		return false, requestErr
	}

	var response struct {
		Value bool `json:"value"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return false, err
	}
	return response.Value, nil
}

// SetBoolPref writes a boolean engine preference.
func (p *Preference) SetBoolPref(ctx context.Context, name string, value bool) error {
	type args struct {
		Name  string `json:"name"`
		Value bool   `json:"value"`
	}

	_, requestErr := p.SendRequest(ctx, "setBoolPref", args{Name: name, Value: value})
	return requestErr
}

// Addons is the proxy for the addons actor.
type Addons struct {
	*rdp.Actor
}

// NewAddons creates an addons proxy and registers it with the connection.
func NewAddons(conn *rdp.Connection, name string, log logr.Logger) *Addons {
	a := &Addons{
		Actor: rdp.NewActor(conn, name, log),
	}

	conn.Register(a)
	return a
}

// InstallTemporaryAddon side-loads an unpacked addon from a directory. Used to
// install the terminator helper during session teardown.
func (a *Addons) InstallTemporaryAddon(ctx context.Context, addonPath string) (string, error) {
	type args struct {
		AddonPath string `json:"addonPath"`
	}

	packet, requestErr := a.SendRequest(ctx, "installTemporaryAddon", args{AddonPath: addonPath})
	if requestErr != nil {
		return "", requestErr
	}

	var response struct {
		Addon AddonForm `json:"addon"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return "", err
	}
	return response.Addon.Id, nil
}

// Device is the proxy for the device actor.
type Device struct {
	*rdp.Actor
}

// NewDevice creates a device proxy and registers it with the connection.
func NewDevice(conn *rdp.Connection, name string, log logr.Logger) *Device {
	d := &Device{
		Actor: rdp.NewActor(conn, name, log),
	}

	conn.Register(d)
	return d
}

// DeviceDescription carries the engine version information consulted during the
// session's engine support check.
type DeviceDescription struct {
	Apptype         string `json:"apptype,omitempty"`
	Version         string `json:"version,omitempty"`
	PlatformVersion string `json:"platformversion,omitempty"`
}

// GetDescription fetches the engine's device description. Cached; it cannot
// change during a connection.
func (d *Device) GetDescription(ctx context.Context) (DeviceDescription, error) {
	return rdp.SendCached(ctx, d.Actor, "getDescription", "getDescription", nil,
		func(p *rdp.Packet) (DeviceDescription, error) {
			var response struct {
				Value DeviceDescription `json:"value"`
			}
			if err := p.Unmarshal(&response); err != nil {
				return DeviceDescription{}, err
			}
			return response.Value, nil
		})
}
