// Package orchestrator drives one query from cache lookup through web
// search, the streamed LLM answer, related questions and intent
// classification, publishing every intermediate state to a
// [stream.Cell].
//
// A query moves through searching, answering and finalizing before it
// ends as done, or as error from any earlier phase. Only two failures
// are fatal: the web search and the answer stream. Everything else
// (related questions, cache reads and writes, images, YouTube)
// degrades to an empty section and a log line.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/clairevue/internal/cache"
	"github.com/nugget/clairevue/internal/events"
	"github.com/nugget/clairevue/internal/failure"
	"github.com/nugget/clairevue/internal/intent"
	"github.com/nugget/clairevue/internal/llm"
	"github.com/nugget/clairevue/internal/models"
	"github.com/nugget/clairevue/internal/prompts"
	"github.com/nugget/clairevue/internal/search"
	"github.com/nugget/clairevue/internal/stream"
)

const (
	// SearchingMessage is the placeholder shown until the answer starts.
	SearchingMessage = "Searching and analyzing…"

	// ErrorMessage is the generic notice carried by terminal error states.
	ErrorMessage = "Something went wrong while answering. Please try again."

	// DefaultMaxGrounding is how many results seed the answer prompt
	// when Deps.MaxGrounding is unset.
	DefaultMaxGrounding = 8
)

// Deps are the collaborators an Orchestrator needs. Search and LLM are
// required for a query to succeed; the rest are optional and a nil
// value disables that capability.
type Deps struct {
	Search *search.Manager
	LLM    llm.Client

	Images search.ImageSearcher
	Videos search.VideoSearcher
	Cache  *cache.Store
	Events *events.Bus
	Logger *slog.Logger

	Model        string
	RelatedModel string // defaults to Model
	MaxGrounding int
	SearchCount  int
	Thresholds   intent.Thresholds
}

// Orchestrator runs queries. It holds no per-query state and is safe
// for concurrent use.
type Orchestrator struct {
	deps   Deps
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RelatedModel == "" {
		deps.RelatedModel = deps.Model
	}
	if deps.MaxGrounding <= 0 {
		deps.MaxGrounding = DefaultMaxGrounding
	}
	if deps.Thresholds == (intent.Thresholds{}) {
		deps.Thresholds = intent.DefaultThresholds()
	}
	return &Orchestrator{
		deps:   deps,
		logger: deps.Logger.With("component", "orchestrator"),
	}
}

// Run starts executing req and returns the cell its states are
// published to. An empty query is a no-op: Run returns a nil cell and
// no error.
//
// Execution is detached from ctx's cancellation so an abandoned query
// still completes and lands in the cache; ctx values are kept.
func (o *Orchestrator) Run(ctx context.Context, req models.Request) (*stream.Cell[models.State], error) {
	req = req.Normalized()
	if req.Query == "" {
		return nil, nil
	}

	cell := stream.New[models.State]()
	go o.execute(context.WithoutCancel(ctx), req, cell)
	return cell, nil
}

// execution carries the bookkeeping for one query run.
type execution struct {
	id     string
	req    models.Request
	key    string
	start  time.Time
	logger *slog.Logger
	cell   *stream.Cell[models.State]
	state  models.State
}

func (x *execution) publish() {
	x.cell.Update(x.state.Clone())
}

func (x *execution) elapsedMS() int64 {
	return time.Since(x.start).Milliseconds()
}

func (o *Orchestrator) execute(ctx context.Context, req models.Request, cell *stream.Cell[models.State]) {
	x := &execution{
		id:    uuid.NewString(),
		req:   req,
		key:   cache.Key(cache.KindQuery, req.Query, req.Language),
		start: time.Now(),
		cell:  cell,
	}
	x.logger = o.logger.With("query_id", x.id)

	followUp := ""
	if req.History != nil {
		followUp = req.History.Query
	}
	x.logger.Info("query started", "query", req.Query, "language", req.Language, "follow_up", followUp != "")
	o.deps.Events.Emit(events.SourceOrchestrator, events.KindQueryStart, map[string]any{
		"query_id":  x.id,
		"query":     req.Query,
		"language":  req.Language,
		"follow_up": followUp,
	})

	var doc *cache.Document
	if o.deps.Cache != nil {
		doc, _ = o.deps.Cache.Get(ctx, x.key)
	}
	if doc != nil && doc.Search != nil {
		o.serveCached(x, doc)
		return
	}

	x.state = models.State{
		Query:    req.Query,
		Language: req.Language,
		Phase:    models.PhaseSearching,
		Message:  SearchingMessage,
		FollowUp: followUp,
	}
	if doc != nil && doc.YouTube != nil {
		x.state.YouTube = doc.YouTube.Videos
		x.state.ShowYouTube = len(doc.YouTube.Videos) > 0
	}
	x.publish()

	if err := o.searchPhase(ctx, x); err != nil {
		o.fail(x, err)
		return
	}
	if err := o.answerPhase(ctx, x); err != nil {
		o.fail(x, err)
		return
	}
	o.finalize(ctx, x)
}

// serveCached publishes a cached final state as the terminal value
// without touching any provider. A YouTube section cached after the
// search section replaces the one frozen into the search state.
func (o *Orchestrator) serveCached(x *execution, doc *cache.Document) {
	st := doc.Search.Clone()
	st.Cached = true
	if doc.YouTube != nil {
		st.YouTube = slices.Clone(doc.YouTube.Videos)
		st.ShowYouTube = len(doc.YouTube.Videos) > 0
	}
	x.cell.Done(st)

	x.logger.Info("query served from cache", "elapsed", time.Since(x.start))
	o.deps.Events.Emit(events.SourceOrchestrator, events.KindQueryDone, map[string]any{
		"query_id":   x.id,
		"intent":     string(st.Intent),
		"cached":     true,
		"related":    len(st.RelatedQuestions),
		"elapsed_ms": x.elapsedMS(),
	})
}

func (o *Orchestrator) searchPhase(ctx context.Context, x *execution) error {
	if o.deps.Search == nil {
		return failure.NotConfigured("search", "web search provider")
	}

	started := time.Now()
	resp, err := o.deps.Search.Search(ctx, x.req.Query, search.Options{
		Count:    o.deps.SearchCount,
		Language: x.req.Language,
	})
	if err != nil {
		return err
	}

	x.state.Results = nonNil(resp.Results)
	x.state.News = nonNil(resp.News)
	x.state.ShowNews = len(resp.News) > 0
	x.state.Videos = nonNil(resp.Videos)
	x.state.ShowVideos = len(resp.Videos) > 0
	x.publish()

	x.logger.Debug("search complete",
		"provider", o.deps.Search.Primary(),
		"results", len(resp.Results),
		"news", len(resp.News),
		"videos", len(resp.Videos),
		"elapsed", time.Since(started),
	)
	o.deps.Events.Emit(events.SourceOrchestrator, events.KindSearchDone, map[string]any{
		"query_id":   x.id,
		"provider":   o.deps.Search.Primary(),
		"results":    len(resp.Results),
		"news":       len(resp.News),
		"videos":     len(resp.Videos),
		"elapsed_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

// groundingMessages builds the answer conversation: the system prompt
// with numbered results, the previous exchange when this query
// continues a thread, then the query itself.
func (o *Orchestrator) groundingMessages(req models.Request, results []search.Result) []llm.Message {
	msgs := []llm.Message{{
		Role:    "system",
		Content: prompts.AnswerPrompt(req.Language, results, o.deps.MaxGrounding),
	}}
	if h := req.History; h != nil {
		msgs = append(msgs, llm.Message{Role: "user", Content: h.Query})
		if strings.TrimSpace(h.Response) != "" {
			msgs = append(msgs, llm.Message{Role: "assistant", Content: h.Response})
		}
	}
	return append(msgs, llm.Message{Role: "user", Content: req.Query})
}

func (o *Orchestrator) answerPhase(ctx context.Context, x *execution) error {
	if o.deps.LLM == nil {
		return failure.NotConfigured("llm", "llm provider")
	}

	x.state.Phase = models.PhaseAnswering
	started := time.Now()

	var (
		answer strings.Builder
		chunks int
	)
	resp, err := o.deps.LLM.ChatStream(ctx, o.deps.Model, o.groundingMessages(x.req, x.state.Results), func(e llm.StreamEvent) {
		if e.Kind != llm.KindToken || e.Token == "" {
			return
		}
		chunks++
		answer.WriteString(e.Token)
		x.state.Answer = answer.String()
		x.state.Message = ""
		x.publish()
	})
	if err != nil {
		if partial := failure.PartialText(err); len(partial) > len(x.state.Answer) {
			x.state.Answer = partial
		}
		return err
	}
	if x.state.Answer == "" && resp != nil {
		x.state.Answer = resp.Content
	}
	x.state.Message = ""

	x.logger.Debug("answer complete",
		"model", o.deps.Model,
		"answer_len", len(x.state.Answer),
		"chunks", chunks,
		"elapsed", time.Since(started),
	)
	o.deps.Events.Emit(events.SourceOrchestrator, events.KindAnswerDone, map[string]any{
		"query_id":   x.id,
		"model":      o.deps.Model,
		"answer_len": len(x.state.Answer),
		"chunks":     chunks,
		"elapsed_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, x *execution) {
	x.state.Phase = models.PhaseFinalizing
	x.publish()

	x.state.RelatedQuestions = []string{}
	if x.state.Answer != "" {
		related, err := llm.RelatedQuestions(ctx, o.deps.LLM, o.deps.RelatedModel, x.req.Query, x.state.Answer)
		if err != nil {
			x.logger.Warn("related questions failed", "error", err)
		} else if len(related) > 0 {
			x.state.RelatedQuestions = related
		}
	}
	x.state.ShowRelated = len(x.state.RelatedQuestions) > 0
	x.state.Intent = o.deps.Thresholds.Classify(x.req.Query, x.state.Results)
	x.state.Phase = models.PhaseDone

	final := x.state.Clone()
	if o.deps.Cache != nil {
		stored := final.Clone()
		if err := o.deps.Cache.Put(ctx, x.key, cache.Document{Search: &stored}); err != nil {
			x.logger.Warn("cache write failed", "error", err)
		}
	}
	x.cell.Done(final)

	x.logger.Info("query complete",
		"intent", final.Intent,
		"results", len(final.Results),
		"answer_len", len(final.Answer),
		"related", len(final.RelatedQuestions),
		"elapsed", time.Since(x.start),
	)
	o.deps.Events.Emit(events.SourceOrchestrator, events.KindQueryDone, map[string]any{
		"query_id":   x.id,
		"intent":     string(final.Intent),
		"cached":     false,
		"related":    len(final.RelatedQuestions),
		"elapsed_ms": x.elapsedMS(),
	})
}

// fail publishes the terminal error state. Any answer text received
// before the failure stays in the state.
func (o *Orchestrator) fail(x *execution, err error) {
	phase := x.state.Phase
	x.state.Phase = models.PhaseError
	x.state.Message = ""
	x.state.Error = ErrorMessage
	x.cell.Fail(x.state.Clone(), err)

	level := slog.LevelError
	if errors.Is(err, failure.Configuration) {
		level = slog.LevelWarn
	}
	x.logger.Log(context.Background(), level, "query failed",
		"phase", phase,
		"kind", failure.KindOf(err),
		"partial_len", len(x.state.Answer),
		"error", err,
	)
	o.deps.Events.Emit(events.SourceOrchestrator, events.KindQueryError, map[string]any{
		"query_id":   x.id,
		"phase":      string(phase),
		"kind":       string(failure.KindOf(err)),
		"error":      err.Error(),
		"elapsed_ms": x.elapsedMS(),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
