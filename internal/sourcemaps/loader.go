// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package sourcemaps

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-sourcemap/sourcemap"
)

// Consumer wraps a parsed source-map.
type Consumer struct {
	consumer *sourcemap.Consumer
	sources  []string
}

// OriginalPosition maps a generated position to its original source position.
// Lines are 1-based, columns 0-based, matching the wire convention.
func (c *Consumer) OriginalPosition(line int, column int) (string, int, int, bool) {
	source, _, origLine, origColumn, ok := c.consumer.Source(line, column)
	if !ok {
		return "", 0, 0, false
	}
	return source, origLine, origColumn, true
}

// FirstSourceURL returns the first original source named by the map, or "".
func (c *Consumer) FirstSourceURL() string {
	if len(c.sources) == 0 {
		return ""
	}
	return c.sources[0]
}

// SourceURLs returns all original sources named by the map.
func (c *Consumer) SourceURLs() []string {
	return c.sources
}

// rawSourceMap captures just the fields needed to list a map's original
// sources; the go-sourcemap consumer parses mappings but does not expose the
// source list itself, so it is extracted independently from the same bytes.
type rawSourceMap struct {
	Sources  []string `json:"sources"`
	Sections []struct {
		Map json.RawMessage `json:"map"`
	} `json:"sections"`
}

func extractSourceURLs(data []byte) []string {
	var raw rawSourceMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	sources := append([]string(nil), raw.Sources...)
	for _, section := range raw.Sections {
		sources = append(sources, extractSourceURLs(section.Map)...)
	}
	return sources
}

// Loader fetches and parses source-maps. It reads http(s) URLs, file URLs,
// plain filesystem paths and inline data: URLs; this is one of the few
// filesystem-aware pieces of the bridge.
type Loader struct {
	client *http.Client
	log    logr.Logger
}

// NewLoader creates a loader with a bounded-timeout HTTP client.
func NewLoader(log logr.Logger) *Loader {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Loader{
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Load resolves mapURL against baseURL (falling back to the generated file's
// URL) and fetches and parses the map.
func (l *Loader) Load(ctx context.Context, mapURL string, baseURL string, generatedURL string) (*Consumer, error) {
	resolved, resolveErr := resolveMapURL(mapURL, baseURL, generatedURL)
	if resolveErr != nil {
		return nil, resolveErr
	}

	data, fetchErr := l.fetch(ctx, resolved)
	if fetchErr != nil {
		return nil, fetchErr
	}

	consumer, parseErr := sourcemap.Parse(resolved, data)
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse source-map %s: %w", resolved, parseErr)
	}

	return &Consumer{consumer: consumer, sources: extractSourceURLs(data)}, nil
}

func (l *Loader) fetch(ctx context.Context, resolved string) ([]byte, error) {
	switch {
	case strings.HasPrefix(resolved, "data:"):
		return decodeDataURL(resolved)

	case strings.HasPrefix(resolved, "http://"), strings.HasPrefix(resolved, "https://"):
		request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
		if requestErr != nil {
			return nil, requestErr
		}

		response, fetchErr := l.client.Do(request)
		if fetchErr != nil {
			return nil, fmt.Errorf("failed to fetch source-map: %w", fetchErr)
		}
		defer response.Body.Close()

		if response.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to fetch source-map: HTTP %d", response.StatusCode)
		}
		return io.ReadAll(response.Body)

	case strings.HasPrefix(resolved, "file://"):
		parsed, parseErr := url.Parse(resolved)
		if parseErr != nil {
			return nil, parseErr
		}
		return os.ReadFile(parsed.Path)

	default:
		return os.ReadFile(resolved)
	}
}

func resolveMapURL(mapURL string, baseURL string, generatedURL string) (string, error) {
	if strings.HasPrefix(mapURL, "data:") {
		return mapURL, nil
	}

	base := baseURL
	if base == "" {
		base = generatedURL
	}
	if base == "" {
		return mapURL, nil
	}

	parsedBase, baseErr := url.Parse(base)
	if baseErr != nil {
		return "", fmt.Errorf("invalid source-map base URL %q: %w", base, baseErr)
	}

	parsedMap, mapErr := url.Parse(mapURL)
	if mapErr != nil {
		return "", fmt.Errorf("invalid source-map URL %q: %w", mapURL, mapErr)
	}

	return parsedBase.ResolveReference(parsedMap).String(), nil
}

func decodeDataURL(dataURL string) ([]byte, error) {
	comma := strings.Index(dataURL, ",")
	if comma < 0 {
		return nil, fmt.Errorf("malformed data: URL")
	}

	meta := dataURL[len("data:"):comma]
	payload := dataURL[comma+1:]

	if strings.HasSuffix(meta, ";base64") {
		decoded, decodeErr := base64.StdEncoding.DecodeString(payload)
		if decodeErr != nil {
			return nil, fmt.Errorf("malformed base64 data: URL: %w", decodeErr)
		}
		return decoded, nil
	}

	unescaped, unescapeErr := url.QueryUnescape(payload)
	if unescapeErr != nil {
		return nil, unescapeErr
	}
	return []byte(unescaped), nil
}
