// Package models holds the query state shapes shared by the cache,
// the orchestrator and the HTTP API.
package models

import (
	"slices"
	"strings"

	"github.com/nugget/clairevue/internal/intent"
	"github.com/nugget/clairevue/internal/search"
)

// Phase is where a query execution currently stands.
type Phase string

const (
	PhaseSearching  Phase = "searching"
	PhaseAnswering  Phase = "answering"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
)

// Terminal reports whether no further updates follow this phase.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError
}

// History is the previous exchange in a follow-up thread. It shapes
// the prompt only and is never part of the cache key.
type History struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

// Request is one caller-submitted query.
type Request struct {
	Query    string   `json:"query"`
	Language string   `json:"language"`
	History  *History `json:"history,omitempty"`
}

// Normalized returns the request with the query trimmed and the
// language lower-cased, defaulting to "en".
func (r Request) Normalized() Request {
	r.Query = strings.TrimSpace(r.Query)
	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	if r.Language == "" {
		r.Language = "en"
	}
	if r.History != nil && strings.TrimSpace(r.History.Query) == "" {
		r.History = nil
	}
	return r
}

// State is the caller-visible accumulator for one query execution.
// Every publish carries the whole state, never a delta.
type State struct {
	Query    string `json:"query"`
	Language string `json:"language"`
	Phase    Phase  `json:"phase"`

	// Message is a progress placeholder for the UI while the answer
	// has not started.
	Message string `json:"message,omitempty"`

	Results []search.Result `json:"results"`
	Answer  string          `json:"answer"`

	Videos     []search.Result `json:"videos"`
	ShowVideos bool            `json:"show_videos"`

	News     []search.Result `json:"news"`
	ShowNews bool            `json:"show_news"`

	RelatedQuestions []string `json:"related_questions"`
	ShowRelated      bool     `json:"show_related"`

	YouTube     []search.Video `json:"youtube"`
	ShowYouTube bool           `json:"show_youtube"`

	Intent intent.Intent `json:"intent,omitempty"`

	// FollowUp is the previous query when this one continues a thread.
	FollowUp string `json:"follow_up,omitempty"`

	// Cached is set when the state was served from the cache.
	Cached bool `json:"cached"`

	// Error is a generic failure notice on terminal error states.
	Error string `json:"error,omitempty"`
}

// Clone returns a copy whose slices can be published while the owner
// keeps mutating the original.
func (s State) Clone() State {
	s.Results = slices.Clone(s.Results)
	s.Videos = slices.Clone(s.Videos)
	s.News = slices.Clone(s.News)
	s.RelatedQuestions = slices.Clone(s.RelatedQuestions)
	s.YouTube = slices.Clone(s.YouTube)
	return s
}

// YouTubeState is published by the lazy YouTube fetch.
type YouTubeState struct {
	Videos  []search.Video `json:"videos"`
	Loading bool           `json:"loading"`
	Cached  bool           `json:"cached"`
}
