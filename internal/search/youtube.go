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

const youtubeBaseURL = "https://www.googleapis.com/youtube/v3"

// VideoThumbnail is one fixed-resolution thumbnail of a YouTube video.
type VideoThumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// VideoThumbnails holds the three resolution tiers YouTube serves.
type VideoThumbnails struct {
	Default VideoThumbnail `json:"default"`
	Medium  VideoThumbnail `json:"medium"`
	High    VideoThumbnail `json:"high"`
}

// Video is a canonical YouTube search result. ID is the stable key.
type Video struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	ChannelTitle string          `json:"channel_title"`
	PublishedAt  time.Time       `json:"published_at"`
	Thumbnails   VideoThumbnails `json:"thumbnails"`
}

// VideoSearcher is implemented by video search backends.
type VideoSearcher interface {
	SearchVideos(ctx context.Context, query string, opts Options) ([]Video, error)
}

// YouTube queries the YouTube Data API v3 search.list endpoint.
type YouTube struct {
	apiKey     string
	maxResults int
	baseURL    string
	httpClient *http.Client
}

// NewYouTube creates a YouTube search client. maxResults is used when
// a search does not set Options.Count.
func NewYouTube(apiKey string, maxResults int) *YouTube {
	if maxResults <= 0 {
		maxResults = 12
	}
	return &YouTube{
		apiKey:     apiKey,
		maxResults: maxResults,
		baseURL:    youtubeBaseURL,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

type youtubeThumb struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (t youtubeThumb) canonical() VideoThumbnail {
	return VideoThumbnail{URL: t.URL, Width: t.Width, Height: t.Height}
}

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			PublishedAt  time.Time `json:"publishedAt"`
			Title        string    `json:"title"`
			Description  string    `json:"description"`
			ChannelTitle string    `json:"channelTitle"`
			Thumbnails   struct {
				Default youtubeThumb `json:"default"`
				Medium  youtubeThumb `json:"medium"`
				High    youtubeThumb `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// SearchVideos returns videos matching query. Items without a video
// ID (channels, playlists) and repeated IDs are dropped.
func (y *YouTube) SearchVideos(ctx context.Context, query string, opts Options) ([]Video, error) {
	if y.apiKey == "" {
		return nil, failure.NotConfigured("youtube", "youtube.api_key")
	}

	count := opts.Count
	if count == 0 {
		count = y.maxResults
	}

	params := url.Values{
		"part":       {"snippet"},
		"type":       {"video"},
		"q":          {query},
		"maxResults": {strconv.Itoa(count)},
		"safeSearch": {"strict"},
	}
	if opts.Language != "" {
		params.Set("relevanceLanguage", opts.Language)
	}

	// The key travels in a header so it never shows up in logged URLs.
	header := http.Header{"X-Goog-Api-Key": {y.apiKey}}

	var yr youtubeSearchResponse
	if err := httpkit.GetJSON(ctx, y.httpClient, "youtube", y.baseURL+"/search?"+params.Encode(), header, &yr); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(yr.Items))
	videos := make([]Video, 0, len(yr.Items))
	for _, item := range yr.Items {
		id := item.ID.VideoID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		sn := item.Snippet
		videos = append(videos, Video{
			ID:           id,
			Title:        CleanText(sn.Title),
			Description:  CleanText(sn.Description),
			ChannelTitle: CleanText(sn.ChannelTitle),
			PublishedAt:  sn.PublishedAt,
			Thumbnails: VideoThumbnails{
				Default: sn.Thumbnails.Default.canonical(),
				Medium:  sn.Thumbnails.Medium.canonical(),
				High:    sn.Thumbnails.High.canonical(),
			},
		})
	}
	return videos, nil
}
