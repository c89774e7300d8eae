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

// Image is one canonical image search result.
type Image struct {
	Title        string `json:"title"`
	PageURL      string `json:"page_url"`
	Source       string `json:"source"` // hostname of the page
	ThumbnailURL string `json:"thumbnail_url"`
	ImageURL     string `json:"image_url"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// ImageSearcher is implemented by image search backends.
type ImageSearcher interface {
	SearchImages(ctx context.Context, query string, opts Options) ([]Image, error)
}

// BraveImages queries the Brave image search endpoint. Brave issues
// image tokens separately, so it carries its own key.
type BraveImages struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewBraveImages creates an image search client.
func NewBraveImages(apiKey string) *BraveImages {
	return &BraveImages{
		apiKey:     apiKey,
		baseURL:    braveBaseURL,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

type braveImagesResponse struct {
	Results []struct {
		Title     string `json:"title"`
		URL       string `json:"url"`
		Source    string `json:"source"`
		Thumbnail struct {
			Src    string `json:"src"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"thumbnail"`
		Properties struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"properties"`
	} `json:"results"`
}

// SearchImages returns up to opts.Count images (default 20). Results
// without a full-size URL are skipped; duplicates by image URL are
// dropped.
func (b *BraveImages) SearchImages(ctx context.Context, query string, opts Options) ([]Image, error) {
	if b.apiKey == "" {
		return nil, failure.NotConfigured("brave-images", "images.brave.api_key")
	}

	count := opts.Count
	if count == 0 {
		count = 20
	}

	params := url.Values{
		"q":          {query},
		"count":      {strconv.Itoa(count)},
		"safesearch": {"strict"},
	}
	if opts.Language != "" {
		params.Set("search_lang", opts.Language)
	}
	header := http.Header{"X-Subscription-Token": {b.apiKey}}

	var br braveImagesResponse
	if err := httpkit.GetJSON(ctx, b.httpClient, "brave-images", b.baseURL+"/images/search?"+params.Encode(), header, &br); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(br.Results))
	images := make([]Image, 0, len(br.Results))
	for _, r := range br.Results {
		full := r.Properties.URL
		if full == "" || seen[full] {
			continue
		}
		seen[full] = true

		img := Image{
			Title:        CleanText(r.Title),
			PageURL:      r.URL,
			Source:       r.Source,
			ThumbnailURL: r.Thumbnail.Src,
			ImageURL:     full,
			Width:        r.Properties.Width,
			Height:       r.Properties.Height,
		}
		if img.Source == "" {
			img.Source = Result{URL: r.URL}.Hostname()
		}
		if img.ThumbnailURL == "" {
			img.ThumbnailURL = full
		}
		images = append(images, img)
	}
	return images, nil
}
