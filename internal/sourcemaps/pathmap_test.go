// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package sourcemaps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMapper() *PathMapper {
	return NewPathMapper([]PathMapping{
		{URL: "webpack:///src/", Path: "/home/user/project/src/"},
		{URL: "https://example.org/js/", Path: "/home/user/project/www/js/"},
		{URL: "moz-extension://[0-9a-f-]+/", Path: "/home/user/extension/", IsRegex: true},
	})
}

func TestURLToPathFirstMatchWins(t *testing.T) {
	t.Parallel()

	mapper := NewPathMapper([]PathMapping{
		{URL: "https://example.org/js/vendor/", Path: "/vendor/"},
		{URL: "https://example.org/js/", Path: "/js/"},
	})

	path, err := mapper.URLToPath("https://example.org/js/vendor/lib.js")
	require.NoError(t, err)
	assert.Equal(t, "/vendor/lib.js", path)
}

func TestURLToPathIgnoresQueryString(t *testing.T) {
	t.Parallel()

	mapper := testMapper()

	path, err := mapper.URLToPath("https://example.org/js/app.js?version=5")
	require.NoError(t, err)
	assert.Equal(t, "/home/user/project/www/js/app.js", path)
}

func TestURLToPathRegexMapping(t *testing.T) {
	t.Parallel()

	mapper := testMapper()

	path, err := mapper.URLToPath("moz-extension://6b7e53a0-4f14-42a2-8f37-f7a30b3d0f8a/background.js")
	require.NoError(t, err)
	assert.Equal(t, "/home/user/extension/background.js", path)
}

func TestURLToPathMiss(t *testing.T) {
	t.Parallel()

	mapper := testMapper()

	_, err := mapper.URLToPath("https://other.example.com/a.js")
	assert.ErrorIs(t, err, ErrPathMappingMiss)
}

func TestPathMappingRoundTrip(t *testing.T) {
	t.Parallel()

	mapper := testMapper()

	// For any URL matched by a prefix mapping, url_to_path followed by
	// path_to_url yields an equivalent URL (ignoring the query string).
	urls := []string{
		"webpack:///src/components/app.ts",
		"https://example.org/js/main.js",
		"https://example.org/js/deep/nested/mod.js?cachebust=1",
	}

	for _, sourceURL := range urls {
		path, toPathErr := mapper.URLToPath(sourceURL)
		require.NoError(t, toPathErr, sourceURL)

		back, toURLErr := mapper.PathToURL(path)
		require.NoError(t, toURLErr, sourceURL)
		assert.Equal(t, StripQuery(sourceURL), back)
	}
}

func TestStripQuery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://example.org/a.js", StripQuery("https://example.org/a.js?v=2"))
	assert.Equal(t, "https://example.org/a.js", StripQuery("https://example.org/a.js#frag"))
	assert.Equal(t, "https://example.org/a.js", StripQuery("https://example.org/a.js"))
}
