// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package breakpoints reconciles the breakpoints the user asked for with the
// breakpoints realized in the engine, and enforces hit limits the engine does
// not know about.
package breakpoints

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp/actors"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/sourcemaps"
)

// Desired is a breakpoint as the user specified it.
type Desired struct {
	Path       string
	Line       int
	Column     int
	Condition  string
	LogMessage string
	// HitLimit suppresses the first HitLimit-1 stops; 0 means no limit.
	HitLimit int
}

// Realized is a desired breakpoint plus its engine-side state.
type Realized struct {
	Desired

	Id           int
	Verified     bool
	ActualLine   int
	ActualColumn int

	// HitCount is maintained by the bridge. Invariant: HitCount <= HitLimit
	// while the breakpoint is verified.
	HitCount int
}

// Lister is the subset of the breakpoint list actor the manager needs.
type Lister interface {
	SetBreakpoint(ctx context.Context, location actors.BreakpointLocation, options actors.BreakpointOptions) (actors.BreakpointLocation, error)
	RemoveBreakpoint(ctx context.Context, location actors.BreakpointLocation) error
}

// Manager owns the desired breakpoints keyed by source path.
type Manager struct {
	sources *sourcemaps.Manager
	log     logr.Logger

	mu     sync.Mutex
	lister Lister
	byPath map[string][]*Realized
	nextId int
}

// NewManager creates a breakpoint manager. The lister is attached later, once
// the watcher has brokered the session-wide breakpoint list actor.
func NewManager(sources *sourcemaps.Manager, log logr.Logger) *Manager {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Manager{
		sources: sources,
		log:     log,
		byPath:  make(map[string][]*Realized),
		nextId:  1,
	}
}

// AttachLister connects the manager to the session's breakpoint list actor.
func (m *Manager) AttachLister(lister Lister) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lister = lister
}

// SetBreakpoints replaces the breakpoints for one source path. It diffs against
// the currently realized set, removes what disappeared, installs what was added
// and returns the realized array in the order of the desired input.
func (m *Manager) SetBreakpoints(ctx context.Context, path string, desired []Desired) []*Realized {
	m.mu.Lock()
	lister := m.lister
	previous := m.byPath[path]
	m.mu.Unlock()

	next := make([]*Realized, 0, len(desired))
	kept := make(map[*Realized]bool)

	for _, want := range desired {
		if existing := findMatch(previous, want); existing != nil && !kept[existing] {
			kept[existing] = true
			next = append(next, existing)
			continue
		}

		realized := &Realized{Desired: want}

		m.mu.Lock()
		realized.Id = m.nextId
		m.nextId++
		m.mu.Unlock()

		next = append(next, realized)
		m.install(ctx, lister, realized)
	}

	// Remove what the user deleted.
	for _, old := range previous {
		if kept[old] {
			continue
		}
		m.remove(ctx, lister, old)
	}

	m.mu.Lock()
	m.byPath[path] = next
	m.mu.Unlock()

	return next
}

// OnNewSource installs the existing desired breakpoints of the source's path on
// a just-arrived source. The session breakpoint list applies breakpoints to
// matching sources by URL, so this only needs to run once per distinct URL.
func (m *Manager) OnNewSource(ctx context.Context, source *sourcemaps.Source) {
	if source.Path == "" {
		return
	}

	m.mu.Lock()
	lister := m.lister
	realized := m.byPath[source.Path]
	m.mu.Unlock()

	for _, bp := range realized {
		if !bp.Verified {
			m.install(ctx, lister, bp)
		}
	}
}

// Find returns the realized breakpoint matching a stop location, if any.
func (m *Manager) Find(path string, line int) (*Realized, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, bp := range m.byPath[path] {
		actualLine := bp.ActualLine
		if actualLine == 0 {
			actualLine = bp.Line
		}
		if bp.Verified && actualLine == line {
			return bp, true
		}
	}
	return nil, false
}

// ShouldStop implements hit-limit enforcement for a stop at the given location:
// it returns false while the realized breakpoint's hit count is below its
// limit, in which case the caller auto-resumes the thread and suppresses the
// stop. Stops without a hit-limited breakpoint always surface.
func (m *Manager) ShouldStop(path string, line int) bool {
	bp, found := m.Find(path, line)
	if !found || bp.HitLimit == 0 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if bp.HitCount >= bp.HitLimit {
		// The limit was already reached on an earlier hit; later hits are
		// suppressed again.
		return false
	}

	bp.HitCount++
	return bp.HitCount == bp.HitLimit
}

// Clear drops all bookkeeping. Used on session teardown.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPath = make(map[string][]*Realized)
}

// All returns the realized breakpoints for a path.
func (m *Manager) All(path string) []*Realized {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPath[path]
}

func (m *Manager) install(ctx context.Context, lister Lister, bp *Realized) {
	if lister == nil {
		return
	}

	location, locErr := m.locationFor(bp)
	if locErr != nil {
		m.log.V(1).Info("No source URL for breakpoint path", "path", bp.Path)
		return
	}

	options := actors.BreakpointOptions{
		Condition: bp.Condition,
		LogValue:  bp.LogMessage,
	}

	actual, setErr := lister.SetBreakpoint(ctx, location, options)
	if setErr != nil {
		m.log.Info("Failed to set breakpoint", "path", bp.Path, "line", bp.Line, "error", setErr.Error())
		return
	}

	m.mu.Lock()
	bp.Verified = true
	bp.ActualLine = actual.Line
	bp.ActualColumn = actual.Column
	m.mu.Unlock()
}

func (m *Manager) remove(ctx context.Context, lister Lister, bp *Realized) {
	if lister == nil || !bp.Verified {
		return
	}

	location, locErr := m.locationFor(bp)
	if locErr != nil {
		return
	}

	if removeErr := lister.RemoveBreakpoint(ctx, location); removeErr != nil {
		m.log.Info("Failed to remove breakpoint", "path", bp.Path, "line", bp.Line, "error", removeErr.Error())
	}
}

// locationFor derives the wire location for a breakpoint: the engine addresses
// breakpoints by generated URL.
func (m *Manager) locationFor(bp *Realized) (actors.BreakpointLocation, error) {
	location := actors.BreakpointLocation{
		Line:   bp.Line,
		Column: bp.Column,
	}

	for _, source := range m.sources.FindByPath(bp.Path) {
		if source.GeneratedURL != "" {
			location.SourceURL = source.GeneratedURL
		} else {
			location.SourceURL = source.URL
		}
		return location, nil
	}

	// No source loaded yet: derive the URL from the path mapping so the
	// breakpoint applies as soon as a matching source appears.
	url, urlErr := m.sources.PathToURL(bp.Path)
	if urlErr != nil {
		return actors.BreakpointLocation{}, urlErr
	}
	location.SourceURL = url
	return location, nil
}

func findMatch(previous []*Realized, want Desired) *Realized {
	for _, bp := range previous {
		if bp.Desired == want {
			return bp
		}
	}
	return nil
}
