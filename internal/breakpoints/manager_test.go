// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package breakpoints

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp/actors"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/sourcemaps"
	"github.com/firefox-devtools/vscode-firefox-debug/pkg/testutil"
)

type fakeLister struct {
	set     []actors.BreakpointLocation
	removed []actors.BreakpointLocation

	// slideTo, when set, is reported as the actual location of every install.
	slideTo *actors.BreakpointLocation
}

func (f *fakeLister) SetBreakpoint(_ context.Context, location actors.BreakpointLocation, _ actors.BreakpointOptions) (actors.BreakpointLocation, error) {
	f.set = append(f.set, location)
	if f.slideTo != nil {
		return *f.slideTo, nil
	}
	return location, nil
}

func (f *fakeLister) RemoveBreakpoint(_ context.Context, location actors.BreakpointLocation) error {
	f.removed = append(f.removed, location)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *sourcemaps.Manager, *fakeLister) {
	t.Helper()

	log := testutil.NewLogForTesting("breakpoints")
	sources := sourcemaps.NewManager(sourcemaps.NewPathMapper([]sourcemaps.PathMapping{
		{URL: "https://example.org/", Path: "/www/"},
	}), nil, log)

	manager := NewManager(sources, log)
	lister := &fakeLister{}
	manager.AttachLister(lister)
	return manager, sources, lister
}

func TestSetBreakpointsInstallsAndVerifies(t *testing.T) {
	t.Parallel()

	manager, sources, lister := newTestManager(t)
	sources.AddSource(context.Background(), actors.SourceForm{
		Actor: "server1.conn1.source1",
		URL:   "https://example.org/s.js",
	})

	realized := manager.SetBreakpoints(context.Background(), "/www/s.js", []Desired{
		{Path: "/www/s.js", Line: 3},
		{Path: "/www/s.js", Line: 7, Condition: "i > 1"},
	})

	require.Len(t, realized, 2)
	assert.True(t, realized[0].Verified)
	assert.True(t, realized[1].Verified)
	assert.Equal(t, 3, realized[0].ActualLine)
	require.Len(t, lister.set, 2)
	assert.Equal(t, "https://example.org/s.js", lister.set[0].SourceURL)
}

func TestSetBreakpointsDiffsAgainstRealized(t *testing.T) {
	t.Parallel()

	manager, sources, lister := newTestManager(t)
	sources.AddSource(context.Background(), actors.SourceForm{
		Actor: "server1.conn1.source1",
		URL:   "https://example.org/s.js",
	})

	first := manager.SetBreakpoints(context.Background(), "/www/s.js", []Desired{
		{Path: "/www/s.js", Line: 3},
		{Path: "/www/s.js", Line: 7},
	})

	// Keep line 3, drop line 7, add line 9.
	second := manager.SetBreakpoints(context.Background(), "/www/s.js", []Desired{
		{Path: "/www/s.js", Line: 3},
		{Path: "/www/s.js", Line: 9},
	})

	require.Len(t, second, 2)
	assert.Same(t, first[0], second[0], "unchanged breakpoints keep their realized state")
	assert.Equal(t, 3, len(lister.set), "only the added breakpoint goes to the wire")
	require.Len(t, lister.removed, 1)
	assert.Equal(t, 7, lister.removed[0].Line)
}

func TestSetBreakpointsRecordsSlidLocation(t *testing.T) {
	t.Parallel()

	manager, sources, lister := newTestManager(t)
	sources.AddSource(context.Background(), actors.SourceForm{
		Actor: "server1.conn1.source1",
		URL:   "https://example.org/s.js",
	})
	lister.slideTo = &actors.BreakpointLocation{SourceURL: "https://example.org/s.js", Line: 4}

	realized := manager.SetBreakpoints(context.Background(), "/www/s.js", []Desired{
		{Path: "/www/s.js", Line: 3},
	})

	require.Len(t, realized, 1)
	assert.True(t, realized[0].Verified)
	assert.Equal(t, 4, realized[0].ActualLine)
}

func TestSetBreakpointsWithoutLoadedSourceUsesPathMapping(t *testing.T) {
	t.Parallel()

	manager, _, lister := newTestManager(t)

	realized := manager.SetBreakpoints(context.Background(), "/www/app.js", []Desired{
		{Path: "/www/app.js", Line: 12},
	})

	require.Len(t, realized, 1)
	assert.True(t, realized[0].Verified)
	require.Len(t, lister.set, 1)
	assert.Equal(t, "https://example.org/app.js", lister.set[0].SourceURL)
}

func TestHitLimitSuppressesAllButTheNthStop(t *testing.T) {
	t.Parallel()

	manager, sources, _ := newTestManager(t)
	sources.AddSource(context.Background(), actors.SourceForm{
		Actor: "server1.conn1.source1",
		URL:   "https://example.org/s.js",
	})

	manager.SetBreakpoints(context.Background(), "/www/s.js", []Desired{
		{Path: "/www/s.js", Line: 1, HitLimit: 3},
	})

	// A breakpoint with hitLimit = 3 suppresses the first two stops, surfaces
	// the third and suppresses later hits again.
	stops := make([]bool, 0, 5)
	for i := 0; i < 5; i++ {
		stops = append(stops, manager.ShouldStop("/www/s.js", 1))
	}
	assert.Equal(t, []bool{false, false, true, false, false}, stops)

	bp, found := manager.Find("/www/s.js", 1)
	require.True(t, found)
	assert.LessOrEqual(t, bp.HitCount, bp.HitLimit)
}

func TestShouldStopWithoutHitLimit(t *testing.T) {
	t.Parallel()

	manager, sources, _ := newTestManager(t)
	sources.AddSource(context.Background(), actors.SourceForm{
		Actor: "server1.conn1.source1",
		URL:   "https://example.org/s.js",
	})

	manager.SetBreakpoints(context.Background(), "/www/s.js", []Desired{
		{Path: "/www/s.js", Line: 1},
	})

	assert.True(t, manager.ShouldStop("/www/s.js", 1))
	assert.True(t, manager.ShouldStop("/www/s.js", 1))

	// A stop at a location without any breakpoint always surfaces.
	assert.True(t, manager.ShouldStop("/www/s.js", 99))
}
