package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/nugget/clairevue/internal/cache"
	"github.com/nugget/clairevue/internal/failure"
	"github.com/nugget/clairevue/internal/models"
	"github.com/nugget/clairevue/internal/stream"
)

func TestRunImages_CacheThenFetch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.orch.RunImages(ctx, "volcan", "fr")
	second := h.orch.RunImages(ctx, "  volcan ", "FR")

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("images = %d, %d; want 1, 1", len(first), len(second))
	}
	if h.images.calls != 1 {
		t.Errorf("image provider calls = %d, want 1 (second served from cache)", h.images.calls)
	}

	doc, ok := h.store.Get(ctx, cache.Key(cache.KindQuery, "volcan", "fr"))
	if !ok || doc.Images == nil || doc.Search != nil {
		t.Errorf("document sections = %v, want images only", doc.Sections())
	}
}

func TestRunImages_Degrades(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*harness)
	}{
		{"provider error", func(h *harness) { h.images.err = failure.UpstreamStatus("brave-images", 500, "oops") }},
		{"not configured", func(h *harness) { h.orch.deps.Images = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.mutate(h)

			got := h.orch.RunImages(context.Background(), "volcan", "fr")
			if got == nil || len(got) != 0 {
				t.Errorf("RunImages = %#v, want empty non-nil list", got)
			}
			if _, ok := h.store.Get(context.Background(), cache.Key(cache.KindQuery, "volcan", "fr")); ok {
				t.Error("failed fetch should not be cached")
			}
		})
	}
}

func TestRunImages_EmptyQuery(t *testing.T) {
	h := newHarness(t)
	if got := h.orch.RunImages(context.Background(), " ", "en"); got == nil || len(got) != 0 {
		t.Errorf("RunImages = %#v", got)
	}
	if h.images.calls != 0 {
		t.Error("empty query should not reach the provider")
	}
}

func waitYouTube(t *testing.T, cell *stream.Cell[models.YouTubeState]) []stream.Snapshot[models.YouTubeState] {
	t.Helper()
	ch, cancel := cell.Subscribe(16)
	defer cancel()
	var out []stream.Snapshot[models.YouTubeState]
	for s := range ch {
		out = append(out, s)
	}
	return out
}

func TestRunYouTube(t *testing.T) {
	h := newHarness(t)
	h.videos.mu.Lock() // hold the fetch so the loading state is observable

	cell := h.orch.RunYouTube(context.Background(), "volcan", "fr")
	if last, ok := cell.Last(); !ok || !last.Value.Loading {
		t.Fatalf("first state should be loading, got %+v", last)
	}
	h.videos.mu.Unlock()

	snaps := waitYouTube(t, cell)
	final := snaps[len(snaps)-1]
	if !final.Final || final.Value.Loading || final.Value.Cached {
		t.Errorf("final = %+v", final)
	}
	if len(final.Value.Videos) != 1 || final.Value.Videos[0].ID != "abc123" {
		t.Errorf("videos = %+v", final.Value.Videos)
	}

	again := waitYouTube(t, h.orch.RunYouTube(context.Background(), "volcan", "fr"))
	if got := again[len(again)-1].Value; !got.Cached || len(got.Videos) != 1 {
		t.Errorf("second lookup = %+v, want cached", got)
	}
	if h.videos.calls != 1 {
		t.Errorf("youtube calls = %d, want 1", h.videos.calls)
	}
}

func TestRunYouTube_FailureYieldsEmpty(t *testing.T) {
	h := newHarness(t)
	h.videos.err = errors.New("quota exceeded")

	snaps := waitYouTube(t, h.orch.RunYouTube(context.Background(), "volcan", "fr"))
	final := snaps[len(snaps)-1]
	if final.Err != nil {
		t.Errorf("youtube failure should not fail the cell: %v", final.Err)
	}
	if final.Value.Videos == nil || len(final.Value.Videos) != 0 || final.Value.Loading {
		t.Errorf("final = %+v", final.Value)
	}
}

func TestRunYouTube_EmptyQuery(t *testing.T) {
	h := newHarness(t)
	snaps := waitYouTube(t, h.orch.RunYouTube(context.Background(), "", "en"))
	if len(snaps) != 1 || !snaps[0].Final || snaps[0].Value.Loading {
		t.Errorf("snaps = %+v", snaps)
	}
}
