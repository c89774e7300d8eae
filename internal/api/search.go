package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/clairevue/internal/models"
	"github.com/nugget/clairevue/internal/orchestrator"
	"github.com/nugget/clairevue/internal/render"
	"github.com/nugget/clairevue/internal/search"
	"github.com/nugget/clairevue/internal/stream"
)

const (
	// sessionHeader carries the client session used for the in-flight
	// guard. A missing header gets a fresh ID, echoed back.
	sessionHeader = "X-Session-ID"

	// streamWriteTimeout bounds each individual SSE write.
	streamWriteTimeout = 30 * time.Second

	sseBuffer = 32
)

// SSE event names.
const (
	eventUpdate = "update"
	eventDone   = "done"
	eventError  = "error"
)

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query    string          `json:"query"`
	Language string          `json:"language"`
	History  *models.History `json:"history,omitempty"`
}

// SearchEvent is the data payload of every /v1/search SSE event.
type SearchEvent struct {
	models.State

	// AnswerHTML is the rendered answer, set on the terminal event
	// when the request asked for ?format=html.
	AnswerHTML string `json:"answer_html,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.errorResponse(w, http.StatusBadRequest, "invalid_request_error", "query is required")
		return
	}

	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	w.Header().Set(sessionHeader, sessionID)

	cell, err := s.sessions.Caller(sessionID).Run(r.Context(), models.Request{
		Query:    req.Query,
		Language: req.Language,
		History:  req.History,
	})
	if errors.Is(err, orchestrator.ErrBusy) {
		s.errorResponse(w, http.StatusConflict, "busy_error", "a previous query for this session is still running")
		return
	}
	if err != nil || cell == nil {
		s.errorResponse(w, http.StatusInternalServerError, "server_error", "query could not be started")
		return
	}

	wantHTML := r.URL.Query().Get("format") == "html"
	streamSSE(s, w, r, cell, func(snap stream.Snapshot[models.State]) any {
		ev := SearchEvent{State: snap.Value}
		if wantHTML && snap.Final && snap.Value.Answer != "" {
			html, err := render.HTML(snap.Value.Answer)
			if err != nil {
				s.logger.Warn("answer render failed", "error", err)
			}
			ev.AnswerHTML = html
		}
		return ev
	})
}

func (s *Server) handleYouTube(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		s.errorResponse(w, http.StatusBadRequest, "invalid_request_error", "q parameter is required")
		return
	}
	cell := s.orch.RunYouTube(r.Context(), q, r.URL.Query().Get("lang"))
	streamSSE(s, w, r, cell, func(snap stream.Snapshot[models.YouTubeState]) any {
		return snap.Value
	})
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		s.errorResponse(w, http.StatusBadRequest, "invalid_request_error", "q parameter is required")
		return
	}
	images := s.orch.RunImages(r.Context(), q, r.URL.Query().Get("lang"))
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, images, s.logger)
}

// streamSSE relays every snapshot of cell as a server-sent event until
// the terminal one or until the client goes away. Leaving early only
// detaches this reader; the producer keeps running.
func streamSSE[T any](s *Server, w http.ResponseWriter, r *http.Request, cell *stream.Cell[T], payload func(stream.Snapshot[T]) any) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "server_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	rc := http.NewResponseController(w)
	ch, cancel := cell.Subscribe(sseBuffer)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("stream client went away", "path", r.URL.Path)
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			name := eventUpdate
			if snap.Final {
				name = eventDone
				if snap.Err != nil {
					name = eventError
				}
			}
			_ = rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := s.writeSSE(w, name, payload(snap)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Debug("failed to marshal SSE event", "error", err)
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		s.logger.Debug("failed to write SSE event", "error", err)
		return err
	}
	return nil
}
