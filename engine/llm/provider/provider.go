// Package provider defines the LLM Provider contract (C4) and the
// langchaingo-backed local/hosted implementations the orchestrator routes
// across.
package provider

import (
	"context"
	"time"

	"github.com/learnloop/cortex/engine/core"
)

// Info describes a provider for status reporting and metric labels.
type Info struct {
	Name              string
	Model             string
	SupportsStreaming bool
}

// Result is a completed, non-streamed generation.
type Result struct {
	Provider  string
	Model     string
	Content   string
	LatencyMs int64
}

// Status is the health snapshot returned by the orchestrator's status
// endpoint.
type Status struct {
	Name              string
	Healthy           bool
	Enabled           bool
	SupportsStreaming bool
	Model             string
	LastError         string
	CoolingDown       bool
}

// StreamChunk is one piece of a streamed generation.
type StreamChunk struct {
	Content string
	Done    bool
}

// Request carries the generation parameters common to every provider.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// DefaultTemperature and DefaultMaxTokens mirror the provider contract's
// documented defaults.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
)

// Provider is the polymorphic contract every backend implements.
type Provider interface {
	Name() string
	ModelName() string
	SupportsStreaming() bool
	Timeout() time.Duration

	IsEnabled() bool
	IsConfigured() bool

	EnsureReady(ctx context.Context) error
	CheckHealth(ctx context.Context) error

	Generate(ctx context.Context, req Request) (Result, error)
	Stream(ctx context.Context, req Request, onChunk func(StreamChunk) error) error

	Info() Info
}

// ConfigurationError reports a provider that is enabled but missing
// required configuration (credentials, base URL, model id).
type ConfigurationError struct{ Provider, Reason string }

func (e *ConfigurationError) Error() string {
	return e.Provider + ": configuration error: " + e.Reason
}

// TimeoutError reports a generation that exceeded the provider's timeout.
type TimeoutError struct{ Provider string }

func (e *TimeoutError) Error() string {
	return e.Provider + ": timed out"
}

// NotReadyError reports a provider that failed lazy initialization.
type NotReadyError struct{ Provider, Reason string }

func (e *NotReadyError) Error() string {
	return e.Provider + ": not ready: " + e.Reason
}

// Error is the catch-all wrapping an underlying transport/API failure.
type Error struct {
	Provider string
	Cause    error
}

func (e *Error) Error() string {
	return e.Provider + ": provider error: " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// AsKindError maps a provider error to the error-kind taxonomy so callers
// can decide retry/backoff policy uniformly.
func AsKindError(err error) *core.Error {
	switch err.(type) {
	case *ConfigurationError:
		return core.NewKindError(err, core.KindProviderNotReady, nil)
	case *TimeoutError:
		return core.NewKindError(err, core.KindTransientInternal, nil)
	case *NotReadyError:
		return core.NewKindError(err, core.KindProviderNotReady, nil)
	default:
		return core.NewKindError(err, core.KindTransientInternal, nil)
	}
}
