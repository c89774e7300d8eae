package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestSentinelMatching(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *Error
	}{
		{"configuration", NotConfigured("brave", "api key"), Configuration},
		{"upstream status", UpstreamStatus("youtube", 403, "quota"), Upstream},
		{"malformed", Malformed("brave", errors.New("unexpected EOF")), Upstream},
		{"transport", Transport("brave", errors.New("dial tcp: refused")), Network},
		{"stream", Stream("openai", "partial", errors.New("reset")), StreamRead},
	}

	sentinels := []*Error{Configuration, Upstream, Network, StreamRead}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, s := range sentinels {
				got := errors.Is(tt.err, s)
				if got != (s == tt.want) {
					t.Errorf("errors.Is(%v, %s) = %v", tt.err, s.Kind, got)
				}
			}
		})
	}
}

func TestWrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("web search: %w", UpstreamStatus("brave", 500, "boom"))
	if !errors.Is(err, Upstream) {
		t.Error("wrapped upstream error should match Upstream")
	}
	if KindOf(err) != KindUpstream {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindUpstream)
	}
}

func TestProviderScopedSentinel(t *testing.T) {
	err := NotConfigured("youtube", "api key")
	if !errors.Is(err, &Error{Kind: KindConfiguration, Provider: "youtube"}) {
		t.Error("expected match on provider-scoped sentinel")
	}
	if errors.Is(err, &Error{Kind: KindConfiguration, Provider: "brave"}) {
		t.Error("unexpected match on a different provider")
	}
}

func TestTransportKeepsCancellation(t *testing.T) {
	err := Transport("brave", fmt.Errorf("get: %w", context.Canceled))
	if !errors.Is(err, context.Canceled) {
		t.Error("cancellation should survive classification")
	}
	if KindOf(err) != "" {
		t.Errorf("KindOf() = %q, want unclassified", KindOf(err))
	}
	if Transport("brave", nil) != nil {
		t.Error("Transport(nil) should be nil")
	}
}

func TestPartialText(t *testing.T) {
	err := fmt.Errorf("answer: %w", Stream("anthropic", "Mount Everest is", errors.New("EOF")))
	if got := PartialText(err); got != "Mount Everest is" {
		t.Errorf("PartialText() = %q", got)
	}
	if got := PartialText(errors.New("plain")); got != "" {
		t.Errorf("PartialText(plain) = %q, want empty", got)
	}
}

func TestIsNetwork(t *testing.T) {
	if !IsNetwork(&net.OpError{Op: "dial", Err: errors.New("refused")}) {
		t.Error("net.OpError should be a network error")
	}
	if !IsNetwork(Transport("redis", errors.New("broken pipe"))) {
		t.Error("classified transport error should be a network error")
	}
	if IsNetwork(errors.New("syntax error")) {
		t.Error("plain error should not be a network error")
	}
	if IsNetwork(nil) {
		t.Error("nil should not be a network error")
	}
}

func TestErrorString(t *testing.T) {
	err := UpstreamStatus("brave", 429, "rate limited")
	want := "brave: upstream failure (HTTP 429): rate limited"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
