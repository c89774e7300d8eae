package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/nugget/clairevue/internal/failure"
	"github.com/nugget/clairevue/internal/httpkit"
)

const providerOpenAI = "openai"

// OpenAIClient talks to any OpenAI-compatible chat completions API.
type OpenAIClient struct {
	client     *openai.Client
	configured bool
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for apiKey. baseURL overrides the
// default endpoint for compatible gateways; empty keeps api.openai.com.
// An empty apiKey is allowed: every request then fails with a
// configuration error.
func NewOpenAIClient(apiKey, baseURL string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}

	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	// No global timeout; streamed answers can be long-lived.
	cfg.HTTPClient = httpkit.NewClient(httpkit.WithTimeout(0), httpkit.WithTransport(t))

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(cfg),
		configured: apiKey != "",
		logger:     logger.With("provider", providerOpenAI),
	}
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// classifyOpenAI maps go-openai errors onto the failure taxonomy.
func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return failure.UpstreamStatus(providerOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.HTTPStatus
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return failure.UpstreamStatus(providerOpenAI, reqErr.HTTPStatusCode, msg)
	}
	return failure.Transport(providerOpenAI, err)
}

// Chat sends a non-streaming chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	if !c.configured {
		return nil, failure.NotConfigured(providerOpenAI, "llm.openai.api_key")
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAI(messages),
	})
	if err != nil {
		c.logger.Error("chat request failed", "model", model, "error", err)
		return nil, classifyOpenAI(err)
	}

	out := &ChatResponse{
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Duration:     time.Since(start),
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.StopReason = string(resp.Choices[0].FinishReason)
	}

	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", out.Content)
	return out, nil
}

// ChatStream streams a completion, calling callback for every text
// delta. A nil callback falls back to Chat.
func (c *OpenAIClient) ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) (*ChatResponse, error) {
	if callback == nil {
		return c.Chat(ctx, model, messages)
	}
	if !c.configured {
		return nil, failure.NotConfigured(providerOpenAI, "llm.openai.api_key")
	}

	c.logger.Debug("preparing request", "model", model, "messages", len(messages), "stream", true)

	start := time.Now()
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAI(messages),
		Stream:   true,
	})
	if err != nil {
		c.logger.Error("stream request failed", "model", model, "error", err)
		return nil, classifyOpenAI(err)
	}
	defer stream.Close()

	var (
		content strings.Builder
		out     = &ChatResponse{Model: model}
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.logger.Warn("stream read failed", "error", err, "partial_len", content.Len())
			return nil, failure.Stream(providerOpenAI, content.String(), fmt.Errorf("read stream: %w", err))
		}

		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if chunk.Usage != nil {
			out.InputTokens = chunk.Usage.PromptTokens
			out.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			out.StopReason = string(choice.FinishReason)
		}
		if delta := choice.Delta.Content; delta != "" {
			content.WriteString(delta)
			callback(StreamEvent{Kind: KindToken, Token: delta})
		}
	}

	out.Content = content.String()
	out.Duration = time.Since(start)
	callback(StreamEvent{Kind: KindDone, Response: out})

	c.logger.Debug("stream complete",
		"model", out.Model,
		"content_len", len(out.Content),
		"stop_reason", out.StopReason,
		"elapsed", out.Duration,
	)
	c.logger.Log(ctx, LevelTrace, "stream final content", "content", out.Content)
	return out, nil
}

// Ping lists models to check reachability and the API key.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if !c.configured {
		return failure.NotConfigured(providerOpenAI, "llm.openai.api_key")
	}
	if _, err := c.client.ListModels(ctx); err != nil {
		return classifyOpenAI(err)
	}
	return nil
}
