// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package skipfiles decides which sources the debugger should never pause in,
// based on an ordered list of glob rules, and propagates the decision to the
// engine as the source-level blackbox flag.
package skipfiles

import (
	"context"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/sourcemaps"
)

// Rule is one skip-file rule. Skip=false makes it a negative rule that
// re-includes sources matched by an earlier rule.
type Rule struct {
	Glob string
	Skip bool
}

// BlackboxSetter flips the engine-level blackbox flag of one source actor.
// Satisfied by the Source actor proxy.
type BlackboxSetter interface {
	SetBlackbox(ctx context.Context, blackbox bool) error
}

// Manager evaluates skip rules against sources. The engine usually enforces
// blackboxing itself, but a stop can race a just-loaded source; the thread
// adapter treats a stop in a skipped source as spurious and auto-resumes.
type Manager struct {
	log logr.Logger

	mu    sync.Mutex
	rules []Rule
}

// NewManager creates a skip-files manager with the given initial rules.
func NewManager(rules []Rule, log logr.Logger) *Manager {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	m := &Manager{log: log}
	m.SetRules(rules)
	return m
}

// SetRules replaces the rule list. Invalid globs are dropped with a log entry.
func (m *Manager) SetRules(rules []Rule) {
	valid := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if !doublestar.ValidatePattern(rule.Glob) {
			m.log.Info("Dropping invalid skip-files glob", "glob", rule.Glob)
			continue
		}
		valid = append(valid, rule)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = valid
}

// ShouldSkip evaluates the rules against one path or URL. The last matching
// rule wins. The third state (no rule matched) is reported as found=false so
// the caller can fall through to the next candidate string.
func (m *Manager) ShouldSkip(candidate string) (skip bool, found bool) {
	if candidate == "" {
		return false, false
	}

	stripped := sourcemaps.StripQuery(candidate)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rule := range m.rules {
		if matched, _ := doublestar.Match(rule.Glob, stripped); matched {
			skip = rule.Skip
			found = true
		}
	}
	return skip, found
}

// ShouldSkipSource decides for a source adapter: its path is consulted first,
// then the generated URL, then the URL.
func (m *Manager) ShouldSkipSource(source *sourcemaps.Source) bool {
	for _, candidate := range []string{source.Path, source.GeneratedURL, source.URL} {
		if skip, found := m.ShouldSkip(candidate); found {
			return skip
		}
	}
	return false
}

// ApplyToSource reconciles the adapter's blackbox state with the rules and
// propagates a change to the engine.
func (m *Manager) ApplyToSource(ctx context.Context, source *sourcemaps.Source, setter BlackboxSetter) error {
	skip := m.ShouldSkipSource(source)
	if skip == source.Blackboxed {
		return nil
	}

	if setErr := setter.SetBlackbox(ctx, skip); setErr != nil {
		return setErr
	}

	source.Blackboxed = skip
	m.log.V(1).Info("Updated blackbox state", "url", source.URL, "blackboxed", skip)
	return nil
}
