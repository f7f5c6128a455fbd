// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package actors contains the typed proxies for the server-side actor categories
// the bridge talks to: root, descriptors, watchers, targets, threads, consoles,
// sources, breakpoint lists and value grips. Each proxy is a thin veneer over the
// rdp.Actor base that translates between Go types and the wire vocabulary of its
// actor category.
package actors

import (
	"bytes"
	"encoding/json"
)

// RootTraits are the capability flags the engine reports in its initial packet.
type RootTraits struct {
	WebExtensionAddonConnect bool `json:"webExtensionAddonConnect,omitempty"`
	NativeLogpoints          bool `json:"nativeLogpoints,omitempty"`
	// SupportsEnableWindowGlobalThreadActors selects the watcher-based discovery
	// mode; without it the legacy tab-list flow is used.
	SupportsEnableWindowGlobalThreadActors bool `json:"supportsEnableWindowGlobalThreadActors,omitempty"`
}

// WatcherTraits describe which target and resource kinds a watcher supports.
type WatcherTraits struct {
	Frame         bool `json:"frame,omitempty"`
	Worker        bool `json:"worker,omitempty"`
	ContentScript bool `json:"content_script,omitempty"`
}

// TargetType enumerates the target kinds a watcher can subscribe to.
type TargetType string

const (
	TargetTypeFrame         TargetType = "frame"
	TargetTypeWorker        TargetType = "worker"
	TargetTypeContentScript TargetType = "content_script"
)

// ResourceType enumerates the resource kinds the bridge watches.
type ResourceType string

const (
	ResourceConsoleMessage ResourceType = "console-message"
	ResourceErrorMessage   ResourceType = "error-message"
	ResourceSource         ResourceType = "source"
	ResourceThreadState    ResourceType = "thread-state"
)

// TabDescriptorForm is the form the root actor hands out for each tab.
type TabDescriptorForm struct {
	Actor     string `json:"actor"`
	BrowserId int    `json:"browserId,omitempty"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
	Selected  bool   `json:"selected,omitempty"`
}

// ProcessDescriptorForm describes a process descriptor (the parent process in
// modern discovery mode).
type ProcessDescriptorForm struct {
	Actor    string `json:"actor"`
	Id       int    `json:"id"`
	IsParent bool   `json:"isParent,omitempty"`
}

// TargetForm is the form delivered with target-available-form events. It names
// the thread and console actors belonging to the target.
type TargetForm struct {
	Actor          string `json:"actor"`
	TargetType     string `json:"targetType,omitempty"`
	Title          string `json:"title,omitempty"`
	URL            string `json:"url,omitempty"`
	ThreadActor    string `json:"threadActor,omitempty"`
	ConsoleActor   string `json:"consoleActor,omitempty"`
	AddonId        string `json:"addonId,omitempty"`
	BrowsingContextID int `json:"browsingContextID,omitempty"`
	InnerWindowId  int    `json:"innerWindowId,omitempty"`
	IsFallbackExtensionDocument bool `json:"isFallbackExtensionDocument,omitempty"`
	IsTopLevelTarget            bool `json:"isTopLevelTarget,omitempty"`
}

// SourceForm describes one source actor.
type SourceForm struct {
	Actor            string `json:"actor"`
	URL              string `json:"url,omitempty"`
	GeneratedURL     string `json:"generatedUrl,omitempty"`
	IntroductionType string `json:"introductionType,omitempty"`
	IsBlackBoxed     bool   `json:"isBlackBoxed,omitempty"`
	SourceMapURL     string `json:"sourceMapURL,omitempty"`
	SourceMapBaseURL string `json:"sourceMapBaseURL,omitempty"`
}

// SourceLocation is a position within a source, as the engine reports it.
// Lines are 1-based, columns 0-based on the wire.
type SourceLocation struct {
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

// FrameWhere is the position of a stack frame.
type FrameWhere struct {
	Actor  string `json:"actor,omitempty"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

// FrameForm describes one stack frame.
type FrameForm struct {
	Actor        string          `json:"actor"`
	Type         string          `json:"type"`
	DisplayName  string          `json:"displayName,omitempty"`
	Where        FrameWhere      `json:"where"`
	This         json.RawMessage `json:"this,omitempty"`
	Environment  json.RawMessage `json:"environment,omitempty"`
	Depth        int             `json:"depth,omitempty"`
	AsyncCause   string          `json:"asyncCause,omitempty"`
	State        string          `json:"state,omitempty"`
}

// PausedReason is the "why" member of a paused packet or thread-state resource.
type PausedReason struct {
	Type            string          `json:"type"`
	FrameFinished   json.RawMessage `json:"frameFinished,omitempty"`
	Exception       *Grip           `json:"exception,omitempty"`
	ActorGrips      json.RawMessage `json:"actors,omitempty"`
	Message         string          `json:"message,omitempty"`
}

// Grip is a server-side reference to a live value. On the wire a grip is either
// a JSON primitive or an object form carrying a type tag, an actor name for
// further inspection and (for objects) a preview.
type Grip struct {
	// Primitive holds the raw JSON of a primitive grip (string, number, bool).
	// It is nil when the grip is an object form.
	Primitive json.RawMessage `json:"-"`

	Type      string       `json:"type,omitempty"`
	Class     string       `json:"class,omitempty"`
	Actor     string       `json:"actor,omitempty"`
	Length    int          `json:"length,omitempty"`
	Initial   string       `json:"initial,omitempty"`
	DisplayString string   `json:"displayString,omitempty"`
	Preview   *GripPreview `json:"preview,omitempty"`
}

// GripPreview is the engine-provided preview of an object grip.
type GripPreview struct {
	Kind       string                     `json:"kind,omitempty"`
	Message    *Grip                      `json:"message,omitempty"`
	Name       string                     `json:"name,omitempty"`
	OwnProperties map[string]GripProperty `json:"ownProperties,omitempty"`
	Items      []json.RawMessage          `json:"items,omitempty"`
}

// GripProperty is one property descriptor within a grip preview or a
// prototypeAndProperties response.
type GripProperty struct {
	Value        json.RawMessage `json:"value,omitempty"`
	Getter       json.RawMessage `json:"get,omitempty"`
	Setter       json.RawMessage `json:"set,omitempty"`
	Enumerable   bool            `json:"enumerable,omitempty"`
	Writable     bool            `json:"writable,omitempty"`
	Configurable bool            `json:"configurable,omitempty"`
}

func (g *Grip) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		type gripObject Grip
		var obj gripObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		*g = Grip(obj)
		return nil
	}

	g.Primitive = append(json.RawMessage(nil), trimmed...)
	return nil
}

func (g *Grip) MarshalJSON() ([]byte, error) {
	if g.Primitive != nil {
		return g.Primitive, nil
	}
	type gripObject Grip
	obj := gripObject(*g)
	return json.Marshal(&obj)
}

// IsObject reports whether the grip references a server-side object actor.
func (g *Grip) IsObject() bool {
	return g.Primitive == nil && g.Type == "object"
}

// IsLongString reports whether the grip is a long-string reference.
func (g *Grip) IsLongString() bool {
	return g.Primitive == nil && g.Type == "longString"
}

// ConsoleMessageResource is one console-message resource.
type ConsoleMessageResource struct {
	ResourceType string  `json:"resourceType,omitempty"`
	Message      *ConsolePageMessage `json:"message,omitempty"`

	// Modern servers inline the fields instead of nesting a message object.
	Arguments  []Grip `json:"arguments,omitempty"`
	Level      string `json:"level,omitempty"`
	Filename   string `json:"filename,omitempty"`
	LineNumber int    `json:"lineNumber,omitempty"`
	ColumnNumber int  `json:"columnNumber,omitempty"`
	TimerName    string `json:"timerName,omitempty"`
	TimerDuration float64 `json:"timerDuration,omitempty"`
}

// ConsolePageMessage is the nested form used by older servers.
type ConsolePageMessage struct {
	Arguments  []Grip `json:"arguments,omitempty"`
	Level      string `json:"level,omitempty"`
	Filename   string `json:"filename,omitempty"`
	LineNumber int    `json:"lineNumber,omitempty"`
}

// ErrorMessageResource is one error-message resource.
type ErrorMessageResource struct {
	ResourceType string `json:"resourceType,omitempty"`
	PageError    *PageError `json:"pageError,omitempty"`
}

// PageError carries an uncaught error or warning from the page.
type PageError struct {
	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorMessageName string `json:"errorMessageName,omitempty"`
	SourceName   string `json:"sourceName,omitempty"`
	LineNumber   int    `json:"lineNumber,omitempty"`
	ColumnNumber int    `json:"columnNumber,omitempty"`
	Error        bool   `json:"error,omitempty"`
	Warning      bool   `json:"warning,omitempty"`
	Exception    *Grip  `json:"exception,omitempty"`
}

// ThreadStateResource is one thread-state resource: the modern representation of
// thread pause and resume transitions.
type ThreadStateResource struct {
	ResourceType string        `json:"resourceType,omitempty"`
	State        string        `json:"state"`
	Why          *PausedReason `json:"why,omitempty"`
	Frame        *FrameForm    `json:"frame,omitempty"`
}

// BreakpointPosition is a possible breakpoint location within a source.
type BreakpointPosition struct {
	Line    int
	Columns []int
}
