package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nugget/clairevue/internal/cache"
	"github.com/nugget/clairevue/internal/config"
	"github.com/nugget/clairevue/internal/connwatch"
	"github.com/nugget/clairevue/internal/events"
	"github.com/nugget/clairevue/internal/intent"
	"github.com/nugget/clairevue/internal/llm"
	"github.com/nugget/clairevue/internal/orchestrator"
	"github.com/nugget/clairevue/internal/search"
)

// loadConfig locates, parses and validates the YAML configuration
// file. If explicit is non-empty, that exact path is used (and must
// exist). Otherwise, [config.FindConfig] searches the default
// locations. Returns the parsed config and the path that was loaded.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// newLogger builds the process logger from the configured level and
// format. Validate has already rejected unknown levels.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return config.NewLogger(w, level, cfg.LogFormat)
}

// openCache builds the shared cache store. The backend is dialed on
// first use, so an unreachable Redis does not block startup.
func openCache(cfg *config.Config, bus *events.Bus, logger *slog.Logger) (*cache.Store, error) {
	store, err := cache.Open(cfg.Cache.URL, cfg.Cache.MaxEntries, cache.Options{
		TTL:      cfg.Cache.TTL,
		Compress: cfg.Cache.CompressEnabled(),
		Logger:   logger,
		Events:   bus,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return store, nil
}

// createSearch builds the web search manager plus the optional image
// and video clients. A nil searcher disables that section.
func createSearch(cfg *config.Config, logger *slog.Logger) (*search.Manager, search.ImageSearcher, search.VideoSearcher) {
	mgr := search.NewManager(cfg.Search.Provider)
	mgr.Register(search.NewBrave(cfg.Search.Brave.APIKey))
	if cfg.Search.SearXNG.URL != "" {
		mgr.Register(search.NewSearXNG(cfg.Search.SearXNG.URL))
	}
	if cfg.Search.Provider == "brave" && cfg.Search.Brave.APIKey == "" {
		logger.Warn("web search has no credentials; every query will fail", "provider", "brave")
	}
	logger.Info("web search configured", "primary", mgr.Primary(), "providers", mgr.Providers())

	var images search.ImageSearcher
	if key := cfg.Images.Brave.APIKey; key != "" {
		images = search.NewBraveImages(key)
		logger.Info("image search enabled")
	} else {
		logger.Info("image search disabled (not configured)")
	}

	var videos search.VideoSearcher
	if cfg.YouTube.APIKey != "" {
		videos = search.NewYouTube(cfg.YouTube.APIKey, cfg.YouTube.MaxResults)
		logger.Info("youtube search enabled", "max_results", cfg.YouTube.MaxResults)
	} else {
		logger.Info("youtube search disabled (not configured)")
	}

	return mgr, images, videos
}

// createLLMClient builds a multi-provider LLM client. Every configured
// provider is registered; the answer and related-question models are
// mapped to the selected provider, which is also the fallback for
// unknown models.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	openai := llm.NewOpenAIClient(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.BaseURL, logger)
	anthropic := llm.NewAnthropicClient(cfg.LLM.Anthropic.APIKey, logger)

	var fallback llm.Client = openai
	if cfg.LLM.Provider == "anthropic" {
		fallback = anthropic
	}

	multi := llm.NewMultiClient(fallback)
	multi.AddProvider("openai", openai)
	multi.AddProvider("anthropic", anthropic)
	multi.AddModel(cfg.LLM.Model, cfg.LLM.Provider)
	multi.AddModel(cfg.LLM.RelatedModel, cfg.LLM.Provider)

	logger.Info("LLM client initialized",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"related_model", cfg.LLM.RelatedModel,
	)
	return multi
}

// llmConfigured reports whether the selected LLM provider has a key.
func llmConfigured(cfg *config.Config) bool {
	if cfg.LLM.Provider == "anthropic" {
		return cfg.LLM.Anthropic.APIKey != ""
	}
	return cfg.LLM.OpenAI.APIKey != ""
}

// stack is everything a query needs, assembled from config.
type stack struct {
	orch  *orchestrator.Orchestrator
	store *cache.Store
	llm   llm.Client
}

func buildStack(cfg *config.Config, bus *events.Bus, logger *slog.Logger) (*stack, error) {
	store, err := openCache(cfg, bus, logger)
	if err != nil {
		return nil, err
	}

	mgr, images, videos := createSearch(cfg, logger)
	llmClient := createLLMClient(cfg, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Search:       mgr,
		LLM:          llmClient,
		Images:       images,
		Videos:       videos,
		Cache:        store,
		Events:       bus,
		Logger:       logger,
		Model:        cfg.LLM.Model,
		RelatedModel: cfg.LLM.RelatedModel,
		MaxGrounding: cfg.LLM.MaxGroundingResults,
		SearchCount:  cfg.Search.Count,
		Thresholds: intent.Thresholds{
			MaxDistance:  cfg.Intent.MaxDistance,
			MinWordLen:   cfg.Intent.MinWordLen,
			MinJoinedLen: cfg.Intent.MinJoinedLen,
		},
	})

	return &stack{orch: orch, store: store, llm: llmClient}, nil
}

// watchDependencies registers connwatch watchers for the cache backend
// and, when credentials exist, the LLM provider. Health transitions
// are published on the event bus.
func watchDependencies(ctx context.Context, cfg *config.Config, st *stack, bus *events.Bus, logger *slog.Logger) *connwatch.Manager {
	connMgr := connwatch.NewManager(logger)

	transition := func(name string) (func(), func(error)) {
		up := func() {
			bus.Emit(events.SourceDependency, events.KindDependencyUp, map[string]any{"name": name})
		}
		down := func(err error) {
			bus.Emit(events.SourceDependency, events.KindDependencyDown, map[string]any{
				"name":  name,
				"error": err.Error(),
			})
		}
		return up, down
	}

	cacheUp, cacheDown := transition("cache")
	cacheWatcher := connMgr.Watch(ctx, connwatch.WatcherConfig{
		Name:    "cache",
		Probe:   st.store.Ping,
		Backoff: connwatch.DefaultBackoffConfig(),
		OnReady: cacheUp,
		OnDown: func(err error) {
			st.store.Reset()
			cacheDown(err)
		},
		Logger: logger,
	})
	// A failed cache operation triggers an immediate probe instead of
	// waiting for the next poll.
	st.store.SetFailureHook(func(error) { cacheWatcher.Nudge() })

	if llmConfigured(cfg) {
		llmUp, llmDown := transition("llm")
		connMgr.Watch(ctx, connwatch.WatcherConfig{
			Name:    "llm",
			Probe:   st.llm.Ping,
			Backoff: connwatch.DefaultBackoffConfig(),
			OnReady: llmUp,
			OnDown:  llmDown,
			Logger:  logger,
		})
	} else {
		logger.Warn("LLM provider has no credentials; answers will fail", "provider", cfg.LLM.Provider)
	}

	return connMgr
}
