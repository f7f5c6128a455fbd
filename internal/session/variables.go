// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package session

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp/actors"
)

// Variable is one editor-facing variable.
type Variable struct {
	Name               string
	Value              string
	VariablesReference int
}

// VariablesProvider produces the variables behind one variables-reference id.
// Providers created while a thread is paused have pause lifetime: their ids are
// invalidated when the thread resumes.
type VariablesProvider interface {
	FetchVariables(ctx context.Context) ([]Variable, error)
}

// Scope is one scope of a stack frame.
type Scope struct {
	Name               string
	VariablesReference int
	Expensive          bool
}

// environmentForm is the engine's lexical environment description attached to
// a frame.
type environmentForm struct {
	Type  string `json:"type"`
	Actor string `json:"actor,omitempty"`

	Bindings *struct {
		Arguments []map[string]actors.GripProperty `json:"arguments,omitempty"`
		Variables map[string]actors.GripProperty   `json:"variables,omitempty"`
	} `json:"bindings,omitempty"`

	Object *actors.Grip    `json:"object,omitempty"`
	Parent json.RawMessage `json:"parent,omitempty"`
}

func (e *environmentForm) scopeName() string {
	switch e.Type {
	case "function":
		return "Local"
	case "block":
		return "Block"
	case "with":
		return "With"
	case "object":
		if e.Object != nil && e.Object.Class == "Window" {
			return "Global"
		}
		return "Object"
	default:
		return "Scope"
	}
}

// bindingsProvider serves the variables of one lexical environment from the
// bindings delivered with the frame; no engine round trip is needed.
type bindingsProvider struct {
	session *Session
	thread  *ThreadAdapter
	env     *environmentForm
}

func (p *bindingsProvider) FetchVariables(_ context.Context) ([]Variable, error) {
	var variables []Variable

	if p.env.Bindings != nil {
		for _, argument := range p.env.Bindings.Arguments {
			for name, descriptor := range argument {
				variables = append(variables, p.session.variableFromProperty(p.thread, name, descriptor))
			}
		}
		for name, descriptor := range p.env.Bindings.Variables {
			variables = append(variables, p.session.variableFromProperty(p.thread, name, descriptor))
		}
	}

	sort.Slice(variables, func(i, j int) bool {
		return variables[i].Name < variables[j].Name
	})
	return variables, nil
}

// objectGripProvider fetches the properties of an object grip on demand.
type objectGripProvider struct {
	session *Session
	thread  *ThreadAdapter
	grip    *actors.ObjectGrip
}

func (p *objectGripProvider) FetchVariables(ctx context.Context) ([]Variable, error) {
	properties, fetchErr := p.grip.PrototypeAndProperties(ctx)
	if fetchErr != nil {
		return nil, fetchErr
	}

	variables := make([]Variable, 0, len(properties))
	for name, descriptor := range properties {
		variables = append(variables, p.session.variableFromProperty(p.thread, name, descriptor))
	}

	sort.Slice(variables, func(i, j int) bool {
		return variables[i].Name < variables[j].Name
	})
	return variables, nil
}

// longStringProvider fetches the full content of a long string grip.
type longStringProvider struct {
	grip *actors.LongStringGrip
}

func (p *longStringProvider) FetchVariables(ctx context.Context) ([]Variable, error) {
	full, fetchErr := p.grip.FetchAll(ctx)
	if fetchErr != nil {
		return nil, fetchErr
	}

	return []Variable{{Name: "value", Value: full}}, nil
}

// variableFromProperty converts a property descriptor into a variable,
// registering a pause-lifetime provider when the value is inspectable.
func (s *Session) variableFromProperty(thread *ThreadAdapter, name string, descriptor actors.GripProperty) Variable {
	if descriptor.Value == nil {
		if descriptor.Getter != nil {
			return Variable{Name: name, Value: "(getter)"}
		}
		return Variable{Name: name, Value: "undefined"}
	}

	var grip actors.Grip
	if err := json.Unmarshal(descriptor.Value, &grip); err != nil {
		return Variable{Name: name, Value: string(descriptor.Value)}
	}

	return s.variableFromGrip(thread, name, &grip)
}

// variableFromGrip converts a grip into a variable. Object and long-string
// grips get a pause-lifetime proxy and a variables-reference id.
func (s *Session) variableFromGrip(thread *ThreadAdapter, name string, grip *actors.Grip) Variable {
	variable := Variable{
		Name:  name,
		Value: renderGrip(grip),
	}

	switch {
	case grip.IsObject():
		proxy := actors.NewObjectGrip(s.conn, grip.Actor, s.log)
		provider := &objectGripProvider{session: s, thread: thread, grip: proxy}
		variable.VariablesReference = thread.registerPauseProvider(provider, proxy.Name())

	case grip.IsLongString():
		proxy := actors.NewLongStringGrip(s.conn, grip.Actor, grip.Length, s.log)
		provider := &longStringProvider{grip: proxy}
		variable.VariablesReference = thread.registerPauseProvider(provider, proxy.Name())
	}

	return variable
}
