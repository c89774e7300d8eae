package search

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nugget/clairevue/internal/failure"
	"github.com/nugget/clairevue/internal/httpkit"
)

const braveBaseURL = "https://api.search.brave.com/res/v1"

// Brave implements the Provider interface for the Brave Search API.
// One web search call also returns the news and video verticals.
type Brave struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewBrave creates a Brave Search provider. An empty apiKey is allowed:
// every search then fails with a configuration error.
func NewBrave(apiKey string) *Brave {
	return &Brave{
		apiKey:  apiKey,
		baseURL: braveBaseURL,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15*time.Second),
			httpkit.WithRetry(2, 250*time.Millisecond),
		),
	}
}

func (b *Brave) Name() string { return "brave" }

// braveResponse is the JSON response from Brave's web search API.
type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
	News struct {
		Results []braveResult `json:"results"`
	} `json:"news"`
	Videos struct {
		Results []braveResult `json:"results"`
	} `json:"videos"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Age         string `json:"age"`
	Thumbnail   *struct {
		Src      string `json:"src"`
		Original string `json:"original"`
	} `json:"thumbnail"`
	MetaURL *struct {
		Hostname string `json:"hostname"`
		Favicon  string `json:"favicon"`
	} `json:"meta_url"`
}

func (r braveResult) normalize(query string, news bool) Result {
	out := Result{
		Title:       CleanText(r.Title),
		URL:         r.URL,
		Description: CleanText(r.Description),
		Age:         r.Age,
		IsNews:      news,
		Query:       query,
	}
	if r.Thumbnail != nil && r.Thumbnail.Src != "" {
		out.Thumbnail = &Thumbnail{Src: r.Thumbnail.Src, Original: r.Thumbnail.Original}
	}
	if r.MetaURL != nil && r.MetaURL.Hostname != "" {
		out.MetaURL = &MetaURL{Hostname: r.MetaURL.Hostname, Favicon: r.MetaURL.Favicon}
	}
	return out
}

func normalizeBrave(in []braveResult, query string, news bool) []Result {
	out := make([]Result, 0, len(in))
	for _, r := range in {
		out = append(out, r.normalize(query, news))
	}
	return dedupeByURL(out)
}

func (b *Brave) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	if b.apiKey == "" {
		return nil, failure.NotConfigured(b.Name(), "search.brave.api_key")
	}

	count := opts.Count
	if count == 0 {
		count = 10
	}

	params := url.Values{
		"q":             {query},
		"count":         {strconv.Itoa(count)},
		"safesearch":    {"strict"},
		"result_filter": {"web,news,videos"},
	}
	if opts.Language != "" {
		params.Set("search_lang", opts.Language)
	}

	// No explicit Accept-Encoding: the transport negotiates gzip and
	// decompresses only when it added the header itself.
	header := http.Header{"X-Subscription-Token": {b.apiKey}}

	var br braveResponse
	if err := httpkit.GetJSON(ctx, b.httpClient, b.Name(), b.baseURL+"/web/search?"+params.Encode(), header, &br); err != nil {
		return nil, err
	}

	return &Response{
		Results: normalizeBrave(br.Web.Results, query, false),
		News:    normalizeBrave(br.News.Results, query, true),
		Videos:  normalizeBrave(br.Videos.Results, query, false),
	}, nil
}
