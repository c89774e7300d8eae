package orchestrator

import (
	"context"
	"time"

	"github.com/nugget/clairevue/internal/cache"
	"github.com/nugget/clairevue/internal/events"
	"github.com/nugget/clairevue/internal/models"
	"github.com/nugget/clairevue/internal/search"
	"github.com/nugget/clairevue/internal/stream"
)

// RunImages returns the image results for (query, language), from the
// cache when present and otherwise from the image provider, caching
// what it fetched. It never fails: any problem yields an empty list.
func (o *Orchestrator) RunImages(ctx context.Context, query, language string) []search.Image {
	req := models.Request{Query: query, Language: language}.Normalized()
	if req.Query == "" {
		return []search.Image{}
	}
	key := cache.Key(cache.KindQuery, req.Query, req.Language)
	logger := o.logger.With("media", "images", "query", req.Query, "language", req.Language)

	if o.deps.Cache != nil {
		if doc, ok := o.deps.Cache.Get(ctx, key); ok && doc.Images != nil {
			o.emitMedia("images", req.Query, true, len(doc.Images.Images), nil)
			return nonNil(doc.Images.Images)
		}
	}

	if o.deps.Images == nil {
		logger.Debug("image search not configured")
		return []search.Image{}
	}

	images, err := o.deps.Images.SearchImages(ctx, req.Query, search.Options{Language: req.Language})
	if err != nil {
		logger.Warn("image search failed", "error", err)
		o.emitMedia("images", req.Query, false, 0, err)
		return []search.Image{}
	}
	images = nonNil(images)

	if o.deps.Cache != nil {
		bundle := &cache.ImagesBundle{Images: images, FetchedAt: time.Now().UTC()}
		if err := o.deps.Cache.Put(ctx, key, cache.Document{Images: bundle}); err != nil {
			logger.Warn("cache write failed", "error", err)
		}
	}
	o.emitMedia("images", req.Query, false, len(images), nil)
	return images
}

// RunYouTube looks up YouTube videos for (query, language) in the
// background. The returned cell first carries a loading state and
// finishes with the videos, or an empty list when the lookup failed.
// Like Run, the fetch outlives ctx's cancellation so the result still
// reaches the cache.
func (o *Orchestrator) RunYouTube(ctx context.Context, query, language string) *stream.Cell[models.YouTubeState] {
	cell := stream.New[models.YouTubeState]()
	req := models.Request{Query: query, Language: language}.Normalized()
	if req.Query == "" {
		cell.Done(models.YouTubeState{Videos: []search.Video{}})
		return cell
	}

	cell.Update(models.YouTubeState{Videos: []search.Video{}, Loading: true})
	go func() {
		videos, cached := o.fetchYouTube(context.WithoutCancel(ctx), req)
		cell.Done(models.YouTubeState{Videos: videos, Cached: cached})
	}()
	return cell
}

func (o *Orchestrator) fetchYouTube(ctx context.Context, req models.Request) ([]search.Video, bool) {
	key := cache.Key(cache.KindQuery, req.Query, req.Language)
	logger := o.logger.With("media", "youtube", "query", req.Query, "language", req.Language)

	if o.deps.Cache != nil {
		if doc, ok := o.deps.Cache.Get(ctx, key); ok && doc.YouTube != nil {
			o.emitMedia("youtube", req.Query, true, len(doc.YouTube.Videos), nil)
			return nonNil(doc.YouTube.Videos), true
		}
	}

	if o.deps.Videos == nil {
		logger.Debug("youtube search not configured")
		return []search.Video{}, false
	}

	videos, err := o.deps.Videos.SearchVideos(ctx, req.Query, search.Options{Language: req.Language})
	if err != nil {
		logger.Warn("youtube search failed", "error", err)
		o.emitMedia("youtube", req.Query, false, 0, err)
		return []search.Video{}, false
	}
	videos = nonNil(videos)

	if o.deps.Cache != nil {
		bundle := &cache.YouTubeBundle{Videos: videos, FetchedAt: time.Now().UTC()}
		if err := o.deps.Cache.Put(ctx, key, cache.Document{YouTube: bundle}); err != nil {
			logger.Warn("cache write failed", "error", err)
		}
	}
	o.emitMedia("youtube", req.Query, false, len(videos), nil)
	return videos, false
}

func (o *Orchestrator) emitMedia(kind, query string, cached bool, count int, err error) {
	data := map[string]any{
		"kind":   kind,
		"query":  query,
		"cached": cached,
		"count":  count,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	o.deps.Events.Emit(events.SourceOrchestrator, events.KindMediaFetch, data)
}
