// Package search normalizes web, image and video search providers
// into ClaireVue's canonical result shapes.
//
// Each web search backend implements [Provider] and is registered by
// name on a [Manager]; the orchestrator only ever talks to the
// manager. Image and YouTube search are separate capabilities with
// their own clients ([BraveImages], [YouTube]). Every client decodes
// HTML entities and strips markup from free text, applies the
// provider's strictest safe-search setting, and reports failures as
// classified [failure] errors.
package search

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/nugget/clairevue/internal/failure"
)

// Thumbnail is a preview image for a result.
type Thumbnail struct {
	Src      string `json:"src"`
	Original string `json:"original,omitempty"` // higher-resolution alternate
}

// MetaURL describes the site a result came from.
type MetaURL struct {
	Hostname string `json:"hostname"`
	Favicon  string `json:"favicon,omitempty"`
}

// Result is one canonical search result. URL is unique within a
// single provider response but not across providers: a news item and
// a web item may point at the same page.
type Result struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Description string     `json:"description"`
	Thumbnail   *Thumbnail `json:"thumbnail,omitempty"`
	Age         string     `json:"age,omitempty"`
	MetaURL     *MetaURL   `json:"meta_url,omitempty"`
	IsNews      bool       `json:"is_news,omitempty"`
	Query       string     `json:"query"`
}

// Hostname returns the result's site hostname, preferring the
// provider's meta_url over parsing URL.
func (r Result) Hostname() string {
	if r.MetaURL != nil && r.MetaURL.Hostname != "" {
		return r.MetaURL.Hostname
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Response is the bundle one web search call produces. Providers that
// have no news or video vertical leave those lists empty.
type Response struct {
	Results []Result `json:"results"`
	News    []Result `json:"news"`
	Videos  []Result `json:"videos"`
}

// Options are optional parameters for a search query.
type Options struct {
	// Count is the maximum number of results to return.
	// Providers may return fewer. Zero means provider default.
	Count int `json:"count,omitempty"`

	// Language is an ISO 639-1 language code (e.g., "en", "fr").
	Language string `json:"language,omitempty"`
}

// Provider is the interface that web search backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "searxng", "brave").
	Name() string

	// Search executes a query and returns the normalized bundle.
	Search(ctx context.Context, query string, opts Options) (*Response, error)
}

// Manager holds configured providers and routes searches.
type Manager struct {
	providers map[string]Provider
	primary   string
}

// NewManager creates a search manager. The primary provider name
// determines which backend is used by default.
func NewManager(primary string) *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
	}
}

// Register adds a provider to the manager.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Primary returns the name of the default provider.
func (m *Manager) Primary() string { return m.primary }

// Search runs a query against the primary provider. A primary that
// was never registered is a configuration failure.
func (m *Manager) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	return m.SearchWith(ctx, m.primary, query, opts)
}

// SearchWith runs a query against a specific named provider.
func (m *Manager) SearchWith(ctx context.Context, provider, query string, opts Options) (*Response, error) {
	p, ok := m.providers[provider]
	if !ok {
		return nil, failure.NotConfigured(provider, "web search provider")
	}
	return p.Search(ctx, query, opts)
}

// Providers returns the names of all registered providers, sorted.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configured reports whether the primary provider is registered.
func (m *Manager) Configured() bool {
	_, ok := m.providers[m.primary]
	return ok
}

// dedupeByURL drops later results whose URL was already seen,
// preserving order.
func dedupeByURL(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, r := range results {
		key := strings.TrimSpace(r.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
