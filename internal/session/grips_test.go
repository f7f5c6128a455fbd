// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp/actors"
)

func gripFromJSON(t *testing.T, raw string) *actors.Grip {
	t.Helper()
	var grip actors.Grip
	require.NoError(t, json.Unmarshal([]byte(raw), &grip))
	return &grip
}

func TestRenderGrip(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "string", raw: `"hello"`, expected: "hello"},
		{name: "integer", raw: `42`, expected: "42"},
		{name: "float", raw: `3.5`, expected: "3.5"},
		{name: "bool", raw: `true`, expected: "true"},
		{name: "undefined", raw: `{"type":"undefined"}`, expected: "undefined"},
		{name: "null", raw: `{"type":"null"}`, expected: "null"},
		{name: "NaN", raw: `{"type":"NaN"}`, expected: "NaN"},
		{name: "long string", raw: `{"type":"longString","initial":"abc","length":100,"actor":"ls1"}`, expected: "abc…"},
		{name: "plain object", raw: `{"type":"object","class":"Array","actor":"obj1"}`, expected: "Array"},
		{name: "function", raw: `{"type":"object","class":"Function","actor":"obj2"}`, expected: "function"},
		{
			name:     "error with preview",
			raw:      `{"type":"object","class":"Error","actor":"obj3","preview":{"kind":"Error","message":{"type":"longString","initial":"Error: x","length":8}}}`,
			expected: "Error: x…",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, renderGrip(gripFromJSON(t, tc.raw)))
		})
	}
}

func TestClassifyStopReason(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "exception", classifyStopReason(&actors.PausedReason{Type: "exception"}))
	assert.Equal(t, "breakpoint", classifyStopReason(&actors.PausedReason{Type: "breakpoint"}))
	assert.Equal(t, "debugger statement", classifyStopReason(&actors.PausedReason{Type: "debuggerStatement"}))
	assert.Equal(t, "interrupt", classifyStopReason(&actors.PausedReason{Type: "interrupted"}))
	assert.Equal(t, "interrupt", classifyStopReason(&actors.PausedReason{Type: "resumeLimit"}))
}

func TestThreadName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Tab: Example", threadName(actors.TargetForm{TargetType: "frame", Title: "Example", URL: "https://example.org/"}))
	assert.Equal(t, "Tab: https://example.org/", threadName(actors.TargetForm{TargetType: "frame", URL: "https://example.org/"}))
	assert.Equal(t, "Worker https://example.org/w.js", threadName(actors.TargetForm{TargetType: "worker", URL: "https://example.org/w.js"}))
	assert.Equal(t, "Content script https://example.org/cs.js", threadName(actors.TargetForm{TargetType: "content_script", URL: "https://example.org/cs.js"}))
}

func TestSupportedPlatformVersion(t *testing.T) {
	t.Parallel()

	assert.True(t, supportedPlatformVersion(""))
	assert.True(t, supportedPlatformVersion("68.0"))
	assert.True(t, supportedPlatformVersion("115.0.2"))
	assert.False(t, supportedPlatformVersion("60.9"))
	assert.True(t, supportedPlatformVersion("not-a-version"))
}

func TestExceptionText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", exceptionText(nil))
	assert.Equal(t, "", exceptionText(&actors.PausedReason{Type: "exception"}))

	why := &actors.PausedReason{
		Type:      "exception",
		Exception: gripFromJSON(t, `{"type":"object","class":"Error","actor":"obj1","preview":{"kind":"Error","message":{"type":"longString","initial":"Error: boom","length":11}}}`),
	}
	assert.Equal(t, "Error: boom…", exceptionText(why))
}
