// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathMapperPrefersUserMappings(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		PathMappings: []PathMappingEntry{
			{URL: "webpack:///", Path: "/custom/"},
		},
	}

	mapper := cfg.PathMapper()
	path, err := mapper.URLToPath("webpack:///src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "/custom/src/a.ts", path)
}

func TestDefaultWebpackMappings(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	mapper := cfg.PathMapper()

	path, err := mapper.URLToPath("webpack:///~/lodash/index.js")
	require.NoError(t, err)
	assert.Equal(t, "/node_modules/lodash/index.js", path)
}

func TestDefaultAddonMapping(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Addon: &AddonConfig{Id: "test@example.org", Path: "/home/user/ext"},
	}
	mapper := cfg.PathMapper()

	path, err := mapper.URLToPath("moz-extension://0a1b2c3d-0000-4444-8888-9e9e9e9e9e9e/bg.js")
	require.NoError(t, err)
	assert.Equal(t, "/home/user/ext/bg.js", path)
}

func TestSkipRulesNegation(t *testing.T) {
	t.Parallel()

	cfg := &Config{FilesToSkip: []string{"**/lib/**", "!**/lib/mine/**"}}
	rules := cfg.SkipRules()

	require.Len(t, rules, 2)
	assert.True(t, rules[0].Skip)
	assert.False(t, rules[1].Skip)
	assert.Equal(t, "**/lib/mine/**", rules[1].Glob)
}

func TestAddressDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, "127.0.0.1:6000", cfg.Address())

	cfg = &Config{Host: "localhost", Port: 9222}
	assert.Equal(t, "localhost:9222", cfg.Address())
}
