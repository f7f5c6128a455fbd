// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package config defines the configuration contract the external launch
// configuration parser fulfills. Parsing and validating the user's launch
// configuration happens outside the bridge; this package only carries the
// parsed result and injects the default path mappings.
package config

import (
	"github.com/firefox-devtools/vscode-firefox-debug/internal/skipfiles"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/sourcemaps"
)

// RequestKind selects between launching a browser and attaching to a running one.
type RequestKind string

const (
	RequestLaunch RequestKind = "launch"
	RequestAttach RequestKind = "attach"
)

// PathMappingEntry is one user-supplied url -> path rule.
type PathMappingEntry struct {
	URL     string `json:"url"`
	Path    string `json:"path"`
	IsRegex bool   `json:"isRegex,omitempty"`
}

// TabFilter restricts which tabs the session attaches to.
type TabFilter struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// AddonConfig describes the web extension under debug, when there is one.
type AddonConfig struct {
	Id   string `json:"id,omitempty"`
	Path string `json:"path,omitempty"`
}

// LaunchConfig describes how to start the browser child process.
type LaunchConfig struct {
	Executable  string   `json:"executable,omitempty"`
	Args        []string `json:"args,omitempty"`
	ProfileDir  string   `json:"profileDir,omitempty"`
	// TmpProfile marks ProfileDir as bridge-created; it is removed on shutdown.
	TmpProfile  bool     `json:"tmpProfile,omitempty"`
}

// Config is the parsed session configuration.
type Config struct {
	Request RequestKind `json:"request"`

	Host string `json:"host,omitempty"`
	Port int    `json:"port"`

	Launch *LaunchConfig `json:"launch,omitempty"`

	PathMappings []PathMappingEntry `json:"pathMappings,omitempty"`
	FilesToSkip  []string           `json:"filesToSkip,omitempty"`

	ReloadOnChange bool         `json:"reloadOnChange,omitempty"`
	Addon          *AddonConfig `json:"addon,omitempty"`
	TabFilter      TabFilter    `json:"tabFilter,omitempty"`

	// ReAttach keeps the browser alive on disconnect so a later session can
	// attach to the same port again.
	ReAttach  bool `json:"reAttach,omitempty"`
	Terminate bool `json:"terminate,omitempty"`

	ReloadTabs bool `json:"reloadTabs,omitempty"`

	ClearConsoleOnReload    bool `json:"clearConsoleOnReload,omitempty"`
	ShowConsoleCallLocation bool `json:"showConsoleCallLocation,omitempty"`
}

// PathMapper builds the ordered path mapper: user rules first, then the default
// mappings for webpack and extension resource schemes.
func (c *Config) PathMapper() *sourcemaps.PathMapper {
	mappings := make([]sourcemaps.PathMapping, 0, len(c.PathMappings)+2)
	for _, entry := range c.PathMappings {
		mappings = append(mappings, sourcemaps.PathMapping{
			URL:     entry.URL,
			Path:    entry.Path,
			IsRegex: entry.IsRegex,
		})
	}

	mappings = append(mappings, DefaultPathMappings(c.Addon)...)
	return sourcemaps.NewPathMapper(mappings)
}

// DefaultPathMappings returns the mappings the configuration layer injects for
// every session: webpack bundle URLs, and the extension resource scheme when an
// addon is configured.
func DefaultPathMappings(addon *AddonConfig) []sourcemaps.PathMapping {
	mappings := []sourcemaps.PathMapping{
		{URL: "webpack:///~/", Path: "/node_modules/"},
		{URL: "webpack:///./", Path: "/"},
		{URL: "webpack:///", Path: "/"},
	}

	if addon != nil && addon.Path != "" {
		mappings = append(mappings, sourcemaps.PathMapping{
			URL:     `moz-extension://[0-9a-fA-F-]+/`,
			Path:    addon.Path + "/",
			IsRegex: true,
		})
	}

	return mappings
}

// SkipRules converts the filesToSkip globs into skip-files rules. A leading
// "!" marks a negative rule.
func (c *Config) SkipRules() []skipfiles.Rule {
	rules := make([]skipfiles.Rule, 0, len(c.FilesToSkip))
	for _, glob := range c.FilesToSkip {
		if len(glob) > 0 && glob[0] == '!' {
			rules = append(rules, skipfiles.Rule{Glob: glob[1:], Skip: false})
		} else {
			rules = append(rules, skipfiles.Rule{Glob: glob, Skip: true})
		}
	}
	return rules
}

// Address returns the host:port the bridge connects to.
func (c *Config) Address() string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 6000
	}
	return hostPort(host, port)
}
