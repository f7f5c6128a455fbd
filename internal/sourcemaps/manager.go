// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package sourcemaps owns the bridge's view of sources: the mapping from source
// actors to local paths, lazy source-map consumption and generated-to-original
// position translation.
package sourcemaps

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp/actors"
	"github.com/firefox-devtools/vscode-firefox-debug/pkg/dualmap"
)

// Source is the bridge-side adapter for one source actor: its URLs, the derived
// local path (possibly absent) and the current blackbox flag. One Source may be
// shared across threads when the engine coalesces identical sources.
type Source struct {
	ActorName        string
	URL              string
	GeneratedURL     string
	IntroductionType string

	// Path is the derived local path, or "" when no mapping matched.
	Path string

	Blackboxed bool
}

// IsDebuggerEval reports whether the source was introduced by a debugger
// evaluation. Exceptions thrown from such sources are not surfaced as stops.
func (s *Source) IsDebuggerEval() bool {
	return s.IntroductionType == "debugger eval" || s.IntroductionType == "eval"
}

// MappedLocation is an original-source position resolved through a source-map.
type MappedLocation struct {
	URL    string
	Path   string
	Line   int
	Column int
}

// Manager tracks all known sources and their source-maps. Sources are found
// either by actor name or by (resolved) URL.
type Manager struct {
	pathMapper *PathMapper
	loader     *Loader
	log        logr.Logger

	mu sync.Mutex
	// sources is keyed by actor name and resolved URL.
	sources *dualmap.Map[string, string, *Source]
	// consumers caches parsed source-maps by generated URL. A nil entry records
	// a load failure so it is not retried.
	consumers map[string]*consumerEntry
}

type consumerEntry struct {
	consumer *Consumer
}

// NewManager creates a source manager.
func NewManager(pathMapper *PathMapper, loader *Loader, log logr.Logger) *Manager {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	if loader == nil {
		loader = NewLoader(log)
	}

	return &Manager{
		pathMapper: pathMapper,
		loader:     loader,
		log:        log,
		sources:    dualmap.New[string, string, *Source](),
		consumers:  make(map[string]*consumerEntry),
	}
}

// AddSource registers a source actor and derives its local path. If the
// source's URL resolves to an original file through a source-map, the path is
// produced for the original URL; otherwise it is derived from the URL directly.
// Re-registering a known actor returns the existing adapter.
func (m *Manager) AddSource(ctx context.Context, form actors.SourceForm) *Source {
	m.mu.Lock()
	if _, existing, found := m.sources.FindByFirstKey(form.Actor); found {
		m.mu.Unlock()
		return existing
	}
	m.mu.Unlock()

	source := &Source{
		ActorName:        form.Actor,
		URL:              form.URL,
		GeneratedURL:     form.GeneratedURL,
		IntroductionType: form.IntroductionType,
		Blackboxed:       form.IsBlackBoxed,
	}

	// Consult the source-map lazily: only when the form announces one.
	if form.SourceMapURL != "" && form.URL != "" {
		if consumer := m.consumerFor(ctx, form); consumer != nil {
			if original := consumer.FirstSourceURL(); original != "" {
				source.GeneratedURL = form.URL
				source.URL = original
			}
		}
	}

	if source.URL != "" {
		path, pathErr := m.pathMapper.URLToPath(source.URL)
		if pathErr != nil {
			m.log.V(1).Info("No path mapping for source", "url", source.URL)
		} else {
			source.Path = path
		}
	}

	m.mu.Lock()
	key := source.URL
	if key == "" {
		key = source.ActorName
	}
	if _, shared, found := m.sources.FindBySecondKey(key); found {
		// The engine coalesced an identical source into a new actor: alias the
		// actor to the existing adapter, keyed uniquely by its own name.
		m.sources.Store(source.ActorName, source.ActorName, shared)
		m.mu.Unlock()
		return shared
	}
	m.sources.Store(source.ActorName, key, source)
	m.mu.Unlock()

	return source
}

// RemoveSource drops the adapter for a source actor.
func (m *Manager) RemoveSource(actorName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources.DeleteByFirstKey(actorName)
}

// FindByActor returns the adapter for a source actor name.
func (m *Manager) FindByActor(actorName string) (*Source, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, source, found := m.sources.FindByFirstKey(actorName)
	return source, found
}

// FindByURL returns the adapter for a resolved source URL.
func (m *Manager) FindByURL(url string) (*Source, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, source, found := m.sources.FindBySecondKey(url)
	return source, found
}

// FindByPath returns all adapters currently mapped to a local path.
func (m *Manager) FindByPath(path string) []*Source {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []*Source
	m.sources.Range(func(_ string, _ string, source *Source) bool {
		if source.Path == path {
			matches = append(matches, source)
		}
		return true
	})
	return matches
}

// Count returns the number of registered sources.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sources.Len()
}

// Clear drops all sources and cached source-maps.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources.Clear()
	m.consumers = make(map[string]*consumerEntry)
}

// URLToPath exposes the path mapping to other components.
func (m *Manager) URLToPath(url string) (string, error) {
	return m.pathMapper.URLToPath(url)
}

// PathToURL exposes the inverse path mapping.
func (m *Manager) PathToURL(path string) (string, error) {
	return m.pathMapper.PathToURL(path)
}

// FindOriginalLocation translates a generated position to the original source
// position using the cached source-map for the generated URL. Returns false
// when no map is known or the position is unmapped.
func (m *Manager) FindOriginalLocation(generatedURL string, line int, column int) (MappedLocation, bool) {
	m.mu.Lock()
	entry, found := m.consumers[generatedURL]
	m.mu.Unlock()

	if !found || entry.consumer == nil {
		return MappedLocation{}, false
	}

	originalURL, originalLine, originalColumn, ok := entry.consumer.OriginalPosition(line, column)
	if !ok {
		return MappedLocation{}, false
	}

	mapped := MappedLocation{
		URL:    originalURL,
		Line:   originalLine,
		Column: originalColumn,
	}
	if path, pathErr := m.pathMapper.URLToPath(originalURL); pathErr == nil {
		mapped.Path = path
	}
	return mapped, true
}

// ApplySourceMapToFrame rewrites a frame position to the original source when a
// mapping exists. The returned source adapter (if any) is the one the rewritten
// position belongs to.
func (m *Manager) ApplySourceMapToFrame(sourceActor string, line int, column int) (*Source, int, int) {
	source, found := m.FindByActor(sourceActor)
	if !found {
		return nil, line, column
	}

	if source.GeneratedURL == "" {
		return source, line, column
	}

	mapped, ok := m.FindOriginalLocation(source.GeneratedURL, line, column)
	if !ok {
		return source, line, column
	}

	if mappedSource, foundMapped := m.FindByURL(mapped.URL); foundMapped {
		source = mappedSource
	}
	return source, mapped.Line, mapped.Column
}

// consumerFor loads (or returns the cached) source-map consumer for a form.
func (m *Manager) consumerFor(ctx context.Context, form actors.SourceForm) *Consumer {
	m.mu.Lock()
	if entry, found := m.consumers[form.URL]; found {
		m.mu.Unlock()
		return entry.consumer
	}
	m.mu.Unlock()

	consumer, loadErr := m.loader.Load(ctx, form.SourceMapURL, form.SourceMapBaseURL, form.URL)
	if loadErr != nil {
		m.log.Info("Failed to load source-map", "sourceMapURL", form.SourceMapURL, "error", loadErr.Error())
		consumer = nil
	}

	m.mu.Lock()
	m.consumers[form.URL] = &consumerEntry{consumer: consumer}
	m.mu.Unlock()

	return consumer
}
