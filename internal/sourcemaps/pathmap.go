// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package sourcemaps

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrPathMappingMiss indicates that no local path could be derived for a URL.
// The source is still exposed to the editor by URL.
var ErrPathMappingMiss = errors.New("no path mapping matches")

// PathMapping is one URL prefix (or regex) to local path prefix rule.
type PathMapping struct {
	// URL is the prefix to match. When IsRegex is set it is compiled as a
	// regular expression instead.
	URL     string
	Path    string
	IsRegex bool

	compiled *regexp.Regexp
}

// PathMapper translates between source URLs and local filesystem paths using an
// ordered rule list. The first matching rule wins. Exact-prefix hits are served
// from an index without scanning the list.
type PathMapper struct {
	mappings []PathMapping

	// prefixIndex maps a literal URL prefix to its rule position.
	prefixIndex map[string]int
}

// NewPathMapper compiles the given rules in order. Invalid regex rules are
// dropped.
func NewPathMapper(mappings []PathMapping) *PathMapper {
	m := &PathMapper{
		prefixIndex: make(map[string]int),
	}

	for _, mapping := range mappings {
		if mapping.IsRegex {
			compiled, compileErr := regexp.Compile(mapping.URL)
			if compileErr != nil {
				continue
			}
			mapping.compiled = compiled
		} else {
			if _, exists := m.prefixIndex[mapping.URL]; !exists {
				m.prefixIndex[mapping.URL] = len(m.mappings)
			}
		}
		m.mappings = append(m.mappings, mapping)
	}

	return m
}

// URLToPath derives the local path for a source URL. The query string is
// ignored. Returns ErrPathMappingMiss when no rule matches.
func (m *PathMapper) URLToPath(sourceURL string) (string, error) {
	stripped := StripQuery(sourceURL)

	if index, found := m.prefixIndex[stripped]; found {
		return m.mappings[index].Path, nil
	}

	for _, mapping := range m.mappings {
		if mapping.IsRegex {
			if loc := mapping.compiled.FindStringIndex(stripped); loc != nil && loc[0] == 0 {
				return mapping.Path + stripped[loc[1]:], nil
			}
			continue
		}

		if strings.HasPrefix(stripped, mapping.URL) {
			return mapping.Path + stripped[len(mapping.URL):], nil
		}
	}

	return "", ErrPathMappingMiss
}

// PathToURL is the inverse of URLToPath: it finds the first rule whose path
// prefix matches and re-assembles the URL. Regex rules cannot be inverted and
// are skipped.
func (m *PathMapper) PathToURL(path string) (string, error) {
	for _, mapping := range m.mappings {
		if mapping.IsRegex {
			continue
		}
		if strings.HasPrefix(path, mapping.Path) {
			return mapping.URL + path[len(mapping.Path):], nil
		}
	}

	return "", ErrPathMappingMiss
}

// StripQuery removes the query string and fragment from a URL.
func StripQuery(sourceURL string) string {
	if parsed, parseErr := url.Parse(sourceURL); parseErr == nil && (parsed.RawQuery != "" || parsed.Fragment != "") {
		parsed.RawQuery = ""
		parsed.Fragment = ""
		return parsed.String()
	}

	// Fall back to plain truncation for URLs the parser rejects.
	if i := strings.IndexAny(sourceURL, "?#"); i >= 0 {
		return sourceURL[:i]
	}
	return sourceURL
}
