package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugget/clairevue/internal/failure"
	"github.com/nugget/clairevue/internal/httpkit"
)

// SearXNG implements the Provider interface for a SearXNG instance.
// It only fills the web vertical; news and videos stay empty.
type SearXNG struct {
	baseURL    string
	httpClient *http.Client
}

// NewSearXNG creates a SearXNG provider. The baseURL should be the root
// URL of the SearXNG instance (e.g., "http://localhost:8080").
func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15 * time.Second),
		),
	}
}

func (s *SearXNG) Name() string { return "searxng" }

// searxngResponse is the JSON response from SearXNG's /search endpoint.
type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

type searxngResult struct {
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Content   string   `json:"content"`
	Thumbnail string   `json:"thumbnail"`
	ParsedURL []string `json:"parsed_url"` // scheme, host, path, ...
}

func (s *SearXNG) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	if s.baseURL == "" {
		return nil, failure.NotConfigured(s.Name(), "search.searxng.url")
	}

	params := url.Values{
		"q":          {query},
		"format":     {"json"},
		"safesearch": {"2"},
		"categories": {"general"},
	}
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}

	count := opts.Count
	if count == 0 {
		count = 10
	}

	var sr searxngResponse
	if err := httpkit.GetJSON(ctx, s.httpClient, s.Name(), s.baseURL+"/search?"+params.Encode(), nil, &sr); err != nil {
		return nil, err
	}

	results := make([]Result, 0, count)
	for _, r := range sr.Results {
		res := Result{
			Title:       CleanText(r.Title),
			URL:         r.URL,
			Description: CleanText(r.Content),
			Query:       query,
		}
		if r.Thumbnail != "" {
			res.Thumbnail = &Thumbnail{Src: r.Thumbnail}
		}
		if len(r.ParsedURL) > 1 && r.ParsedURL[1] != "" {
			res.MetaURL = &MetaURL{Hostname: r.ParsedURL[1]}
		}
		results = append(results, res)
	}
	results = dedupeByURL(results)
	if len(results) > count {
		results = results[:count]
	}

	return &Response{Results: results}, nil
}
