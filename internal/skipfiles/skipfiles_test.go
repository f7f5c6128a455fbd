// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package skipfiles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/sourcemaps"
	"github.com/firefox-devtools/vscode-firefox-debug/pkg/testutil"
)

type fakeSetter struct {
	calls []bool
}

func (f *fakeSetter) SetBlackbox(_ context.Context, blackbox bool) error {
	f.calls = append(f.calls, blackbox)
	return nil
}

func TestShouldSkipLastMatchWins(t *testing.T) {
	t.Parallel()

	manager := NewManager([]Rule{
		{Glob: "**/lib/**", Skip: true},
		{Glob: "**/lib/mine/**", Skip: false},
	}, testutil.NewLogForTesting("skipfiles"))

	skip, found := manager.ShouldSkip("/project/lib/vendor/x.js")
	require.True(t, found)
	assert.True(t, skip)

	skip, found = manager.ShouldSkip("/project/lib/mine/y.js")
	require.True(t, found)
	assert.False(t, skip, "negative rule must win as the last match")
}

func TestShouldSkipNoOpinion(t *testing.T) {
	t.Parallel()

	manager := NewManager([]Rule{
		{Glob: "**/node_modules/**", Skip: true},
	}, testutil.NewLogForTesting("skipfiles"))

	_, found := manager.ShouldSkip("/project/src/app.js")
	assert.False(t, found)
}

func TestShouldSkipStripsQueryString(t *testing.T) {
	t.Parallel()

	manager := NewManager([]Rule{
		{Glob: "https://example.org/lib/**", Skip: true},
	}, testutil.NewLogForTesting("skipfiles"))

	skip, found := manager.ShouldSkip("https://example.org/lib/a.js?version=7")
	require.True(t, found)
	assert.True(t, skip)
}

func TestShouldSkipSourceFallsBackThroughCandidates(t *testing.T) {
	t.Parallel()

	manager := NewManager([]Rule{
		{Glob: "https://example.org/gen/**", Skip: true},
	}, testutil.NewLogForTesting("skipfiles"))

	// No path, no opinion on the URL, but the generated URL matches.
	source := &sourcemaps.Source{
		URL:          "webpack:///src/app.ts",
		GeneratedURL: "https://example.org/gen/bundle.js",
	}
	assert.True(t, manager.ShouldSkipSource(source))
}

func TestApplyToSourcePropagatesOnlyChanges(t *testing.T) {
	t.Parallel()

	manager := NewManager([]Rule{
		{Glob: "**/lib/**", Skip: true},
	}, testutil.NewLogForTesting("skipfiles"))

	source := &sourcemaps.Source{Path: "/project/lib/a.js"}
	setter := &fakeSetter{}

	require.NoError(t, manager.ApplyToSource(context.Background(), source, setter))
	assert.Equal(t, []bool{true}, setter.calls)
	assert.True(t, source.Blackboxed)

	// Already in the desired state: no further engine round trip.
	require.NoError(t, manager.ApplyToSource(context.Background(), source, setter))
	assert.Len(t, setter.calls, 1)
}

func TestInvalidGlobIsDropped(t *testing.T) {
	t.Parallel()

	manager := NewManager([]Rule{
		{Glob: "[", Skip: true},
		{Glob: "**/ok/**", Skip: true},
	}, testutil.NewLogForTesting("skipfiles"))

	skip, found := manager.ShouldSkip("/x/ok/y.js")
	require.True(t, found)
	assert.True(t, skip)
}
