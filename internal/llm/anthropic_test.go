package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nugget/clairevue/internal/failure"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAnthropic(t *testing.T, handler http.HandlerFunc) *AnthropicClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewAnthropicClient("test-key", quietLogger())
	c.baseURL = srv.URL
	return c
}

func writeSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, e := range events {
		var probe struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(e), &probe)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", probe.Type, e)
	}
}

func textDelta(s string) string {
	b, _ := json.Marshal(map[string]any{
		"type":  "content_block_delta",
		"index": 0,
		"delta": map[string]string{"type": "text_delta", "text": s},
	})
	return string(b)
}

func TestConvertToAnthropic(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "Hello!"},
		{Role: "assistant", Content: "Hi there!"},
		{Role: "system", Content: "Cite sources."},
		{Role: "user", Content: "What is the tallest volcano?"},
	}

	result, system := convertToAnthropic(messages)

	if system != "You are a helpful assistant.\n\nCite sources." {
		t.Errorf("expected system prompts joined, got %q", system)
	}
	if len(result) != 3 {
		t.Fatalf("expected 3 messages (no system), got %d", len(result))
	}
	if result[0].Role != "user" || result[1].Role != "assistant" {
		t.Errorf("unexpected roles: %s, %s", result[0].Role, result[1].Role)
	}
}

func TestAnthropicChatStream(t *testing.T) {
	var gotReq anthropicRequest
	c := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		writeSSE(w,
			`{"type":"message_start","message":{"model":"claude-test","usage":{"input_tokens":12,"output_tokens":1}}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			textDelta("Mauna "),
			textDelta("Loa"),
			`{"type":"content_block_stop","index":0}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`,
			`{"type":"message_stop"}`,
		)
	})

	var tokens []string
	var done *ChatResponse
	resp, err := c.ChatStream(context.Background(), "claude-test", []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "q"},
	}, func(e StreamEvent) {
		switch e.Kind {
		case KindToken:
			tokens = append(tokens, e.Token)
		case KindDone:
			done = e.Response
		}
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	if !gotReq.Stream || gotReq.System != "sys" || len(gotReq.Messages) != 1 {
		t.Errorf("unexpected request: %+v", gotReq)
	}
	if strings.Join(tokens, "|") != "Mauna |Loa" {
		t.Errorf("tokens = %q", tokens)
	}
	if resp.Content != "Mauna Loa" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Model != "claude-test" || resp.StopReason != "end_turn" {
		t.Errorf("Model/StopReason = %q/%q", resp.Model, resp.StopReason)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 7 {
		t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if done != resp {
		t.Error("KindDone event should carry the final response")
	}
}

func TestAnthropicChatStream_EmptyAnswer(t *testing.T) {
	c := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"type":"message_start","message":{"model":"claude-test"}}`,
			`{"type":"message_stop"}`,
		)
	})

	resp, err := c.ChatStream(context.Background(), "claude-test", []Message{{Role: "user", Content: "q"}}, func(StreamEvent) {})
	if err != nil {
		t.Fatalf("clean empty stream should not error: %v", err)
	}
	if resp.Content != "" {
		t.Errorf("Content = %q, want empty", resp.Content)
	}
}

func TestAnthropicChatStream_Failures(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantKind    failure.Kind
		wantPartial string
		wantStatus  int
	}{
		{
			name: "rejected request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error"}}`))
			},
			wantKind:   failure.KindUpstream,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "error event mid-stream",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeSSE(w,
					`{"type":"message_start","message":{"model":"claude-test"}}`,
					textDelta("Le plus "),
					`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
				)
			},
			wantKind:    failure.KindStreamRead,
			wantPartial: "Le plus ",
		},
		{
			name: "truncated stream",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeSSE(w,
					`{"type":"message_start","message":{"model":"claude-test"}}`,
					textDelta("partial"),
				)
			},
			wantKind:    failure.KindStreamRead,
			wantPartial: "partial",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestAnthropic(t, tt.handler)
			_, err := c.ChatStream(context.Background(), "claude-test", []Message{{Role: "user", Content: "q"}}, func(StreamEvent) {})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := failure.KindOf(err); got != tt.wantKind {
				t.Errorf("kind = %q, want %q (%v)", got, tt.wantKind, err)
			}
			if got := failure.PartialText(err); got != tt.wantPartial {
				t.Errorf("partial = %q, want %q", got, tt.wantPartial)
			}
			var fe *failure.Error
			if errors.As(err, &fe) && fe.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", fe.Status, tt.wantStatus)
			}
		})
	}
}

func TestAnthropicChat_NonStreaming(t *testing.T) {
	c := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("Chat should not request streaming")
		}
		_, _ = w.Write([]byte(`{"model":"claude-test","role":"assistant","stop_reason":"end_turn",
			"content":[{"type":"text","text":"Why?\n"},{"type":"text","text":"How?"}],
			"usage":{"input_tokens":3,"output_tokens":4}}`))
	})

	resp, err := c.Chat(context.Background(), "claude-test", []Message{{Role: "user", Content: "q"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Why?\nHow?" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestAnthropic_NotConfigured(t *testing.T) {
	c := NewAnthropicClient("", quietLogger())
	if _, err := c.ChatStream(context.Background(), "m", nil, func(StreamEvent) {}); !errors.Is(err, failure.Configuration) {
		t.Errorf("ChatStream err = %v, want configuration failure", err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, failure.Configuration) {
		t.Errorf("Ping err = %v, want configuration failure", err)
	}
}

func TestAnthropicPing(t *testing.T) {
	c := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"claude-test"}]}`))
	})
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
