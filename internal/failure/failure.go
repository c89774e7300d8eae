// Package failure defines the error taxonomy shared by every provider
// client. Callers branch on the kind with errors.Is against the
// sentinel values:
//
//	if errors.Is(err, failure.Configuration) { ... }
//
// The orchestrator uses the kind to decide whether a failure is fatal
// to a query or degrades a single capability to empty results.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind classifies a provider failure.
type Kind string

const (
	// KindConfiguration means a required credential or setting is missing.
	KindConfiguration Kind = "configuration"
	// KindUpstream means the provider answered with a non-success
	// status or a payload we could not decode.
	KindUpstream Kind = "upstream"
	// KindNetwork means the provider (or cache backend) was unreachable.
	KindNetwork Kind = "network"
	// KindStreamRead means the LLM token stream broke after it started.
	KindStreamRead Kind = "stream_read"
)

// Sentinels for errors.Is matching. An *Error matches the sentinel of
// its own kind.
var (
	Configuration = &Error{Kind: KindConfiguration}
	Upstream      = &Error{Kind: KindUpstream}
	Network       = &Error{Kind: KindNetwork}
	StreamRead    = &Error{Kind: KindStreamRead}
)

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string // "brave", "youtube", "openai", ...
	Status   int    // HTTP status for upstream failures, 0 otherwise

	// Partial holds text accumulated before a stream failure.
	Partial string

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s failure", e.Provider, e.Kind)
	if e.Provider == "" {
		msg = fmt.Sprintf("%s failure", e.Kind)
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so the package sentinels
// work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Provider == "" || t.Provider == e.Provider)
}

// NotConfigured reports a missing credential or setting.
func NotConfigured(provider, what string) error {
	return &Error{
		Kind:     KindConfiguration,
		Provider: provider,
		Err:      fmt.Errorf("%s not configured", what),
	}
}

// UpstreamStatus reports a non-success HTTP status. body is the
// (already truncated) response body for diagnostics.
func UpstreamStatus(provider string, status int, body string) error {
	return &Error{
		Kind:     KindUpstream,
		Provider: provider,
		Status:   status,
		Err:      errors.New(body),
	}
}

// Malformed reports a payload that could not be decoded.
func Malformed(provider string, err error) error {
	return &Error{Kind: KindUpstream, Provider: provider, Err: fmt.Errorf("decode response: %w", err)}
}

// Transport classifies an error returned by an HTTP client call. A
// cancelled context is returned unchanged so callers can still match
// context.Canceled.
func Transport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Kind: KindNetwork, Provider: provider, Err: err}
}

// Stream reports a token stream that failed after it started.
func Stream(provider, partial string, err error) error {
	return &Error{Kind: KindStreamRead, Provider: provider, Partial: partial, Err: err}
}

// KindOf returns the failure kind of err, or "" when err is not
// classified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// PartialText returns the partial answer carried by a stream failure.
func PartialText(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Partial
	}
	return ""
}

// IsNetwork reports whether err looks like a transport-level problem,
// whether or not it was classified. Cache backends use this to decide
// when to drop and redial a connection.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	if KindOf(err) == KindNetwork {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
