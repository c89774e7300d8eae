package cache

import (
	"time"

	"github.com/nugget/clairevue/internal/models"
	"github.com/nugget/clairevue/internal/search"
)

// Document is the unit stored per (query, language). Its sections are
// filled independently as each capability is fetched; the presence of
// one says nothing about the others.
type Document struct {
	Search  *models.State  `json:"search,omitempty"`
	Images  *ImagesBundle  `json:"images,omitempty"`
	YouTube *YouTubeBundle `json:"youtube,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ImagesBundle is the cached image search section.
type ImagesBundle struct {
	Images    []search.Image `json:"images"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// YouTubeBundle is the cached YouTube section.
type YouTubeBundle struct {
	Videos    []search.Video `json:"videos"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// Merge overlays every section present in fragment onto existing and
// returns the result. Sections absent from fragment are kept. It is
// pure: neither argument is modified, and merging the same fragment
// twice gives the same document as merging it once.
func Merge(existing, fragment Document) Document {
	out := existing
	if fragment.Search != nil {
		out.Search = fragment.Search
	}
	if fragment.Images != nil {
		out.Images = fragment.Images
	}
	if fragment.YouTube != nil {
		out.YouTube = fragment.YouTube
	}
	if !fragment.UpdatedAt.IsZero() {
		out.UpdatedAt = fragment.UpdatedAt
	}
	return out
}

// Sections lists the populated section names, for logs and events.
func (d Document) Sections() []string {
	var s []string
	if d.Search != nil {
		s = append(s, "search")
	}
	if d.Images != nil {
		s = append(s, "images")
	}
	if d.YouTube != nil {
		s = append(s, "youtube")
	}
	return s
}

// Empty reports whether no section is populated.
func (d Document) Empty() bool {
	return d.Search == nil && d.Images == nil && d.YouTube == nil
}
