package llm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/nugget/clairevue/internal/failure"
)

// MultiClient routes requests to the appropriate provider based on model name.
type MultiClient struct {
	clients  map[string]Client // provider name → client
	models   map[string]string // model name → provider name
	fallback Client            // default client for unknown models
}

// NewMultiClient creates a client that routes to multiple providers.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		clients:  make(map[string]Client),
		models:   make(map[string]string),
		fallback: fallback,
	}
}

// AddProvider registers a client for a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.clients[name] = client
}

// AddModel maps a model name to a provider.
func (m *MultiClient) AddModel(modelName, providerName string) {
	m.models[modelName] = providerName
}

// clientFor returns the appropriate client for a model.
func (m *MultiClient) clientFor(model string) Client {
	if provider, ok := m.models[model]; ok {
		if client, ok := m.clients[provider]; ok {
			return client
		}
	}
	return m.fallback
}

func noProvider(model string) error {
	return failure.NotConfigured("llm", fmt.Sprintf("provider for model %q", model))
}

// Chat sends a request to the appropriate provider for the model.
func (m *MultiClient) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	client := m.clientFor(model)
	if client == nil {
		return nil, noProvider(model)
	}
	return client.Chat(ctx, model, messages)
}

// ChatStream sends a streaming request to the appropriate provider.
func (m *MultiClient) ChatStream(ctx context.Context, model string, messages []Message, callback StreamCallback) (*ChatResponse, error) {
	client := m.clientFor(model)
	if client == nil {
		return nil, noProvider(model)
	}
	return client.ChatStream(ctx, model, messages, callback)
}

// Ping checks every provider a mapped model routes to, plus the
// fallback. Providers registered without a model are not probed, so
// an unused provider without credentials does not mark the LLM down.
func (m *MultiClient) Ping(ctx context.Context) error {
	var (
		targets []Client
		seen    = make(map[Client]bool)
	)
	add := func(c Client) {
		if c != nil && !seen[c] {
			seen[c] = true
			targets = append(targets, c)
		}
	}
	add(m.fallback)
	for _, model := range slices.Sorted(maps.Keys(m.models)) {
		add(m.clients[m.models[model]])
	}
	if len(targets) == 0 {
		return failure.NotConfigured("llm", "fallback provider")
	}

	var errs []error
	for _, c := range targets {
		if err := c.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
