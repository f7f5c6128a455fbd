// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package actors

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
)

// ObjectGrip is the proxy for an object grip actor: a server-side reference to
// a live object. Its lifetime follows the grip's lifetime tag: pause-lifetime
// grips become invalid on resume, thread-lifetime grips on thread exit.
type ObjectGrip struct {
	*rdp.Actor
}

// NewObjectGrip creates an object grip proxy and registers it with the
// connection.
func NewObjectGrip(conn *rdp.Connection, name string, log logr.Logger) *ObjectGrip {
	g := &ObjectGrip{
		Actor: rdp.NewActor(conn, name, log),
	}

	conn.Register(g)
	return g
}

// PrototypeAndProperties fetches the object's own properties and prototype.
func (g *ObjectGrip) PrototypeAndProperties(ctx context.Context) (map[string]GripProperty, error) {
	packet, requestErr := g.SendRequest(ctx, "prototypeAndProperties", nil)
	if requestErr != nil {
		return nil, requestErr
	}

	var response struct {
		OwnProperties map[string]GripProperty `json:"ownProperties"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return nil, err
	}
	return response.OwnProperties, nil
}

// ThreadGrip promotes the grip from pause lifetime to thread lifetime.
func (g *ObjectGrip) ThreadGrip(ctx context.Context) error {
	_, requestErr := g.SendRequest(ctx, "threadGrip", nil)
	return requestErr
}

// LongStringGrip is the proxy for a long-string grip actor.
type LongStringGrip struct {
	*rdp.Actor

	length int
}

// NewLongStringGrip creates a long-string grip proxy and registers it with the
// connection.
func NewLongStringGrip(conn *rdp.Connection, name string, length int, log logr.Logger) *LongStringGrip {
	g := &LongStringGrip{
		Actor:  rdp.NewActor(conn, name, log),
		length: length,
	}

	conn.Register(g)
	return g
}

// Length returns the full length of the string the grip references.
func (g *LongStringGrip) Length() int {
	return g.length
}

// Substring fetches the [start, end) slice of the string.
func (g *LongStringGrip) Substring(ctx context.Context, start int, end int) (string, error) {
	type args struct {
		Start int `json:"start"`
		End   int `json:"end"`
	}

	packet, requestErr := g.SendRequest(ctx, "substring", args{Start: start, End: end})
	if requestErr != nil {
		return "", requestErr
	}

	var response struct {
		Substring string `json:"substring"`
	}
	if err := packet.Unmarshal(&response); err != nil {
		return "", err
	}
	return response.Substring, nil
}

// FetchAll fetches the complete string content.
func (g *LongStringGrip) FetchAll(ctx context.Context) (string, error) {
	return g.Substring(ctx, 0, g.length)
}
