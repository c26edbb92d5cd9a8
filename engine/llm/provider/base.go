package provider

import (
	"context"
	"sync"
	"time"
)

// Base implements the lifecycle/readiness bookkeeping shared by every
// langchaingo-backed provider: lazy, single-flight initialization and a
// per-provider timeout override.
type Base struct {
	name              string
	model             string
	supportsStreaming bool
	timeout           time.Duration
	enabled           bool
	configured        func() bool

	mu    sync.Mutex
	ready bool
	err   error
}

// NewBase builds the shared provider bookkeeping. configured reports
// whether credentials/endpoints required by this provider are present.
func NewBase(name, model string, supportsStreaming bool, timeout time.Duration, enabled bool, configured func() bool) Base {
	return Base{
		name:              name,
		model:             model,
		supportsStreaming: supportsStreaming,
		timeout:           timeout,
		enabled:           enabled,
		configured:        configured,
	}
}

func (b *Base) Name() string            { return b.name }
func (b *Base) ModelName() string       { return b.model }
func (b *Base) SupportsStreaming() bool { return b.supportsStreaming }
func (b *Base) Timeout() time.Duration  { return b.timeout }
func (b *Base) IsEnabled() bool         { return b.enabled }
func (b *Base) IsConfigured() bool      { return b.configured() }

func (b *Base) Info() Info {
	return Info{Name: b.name, Model: b.model, SupportsStreaming: b.supportsStreaming}
}

// EnsureReady runs init exactly once (subsequent calls return the cached
// result), guarded by a mutex so concurrent callers don't race the
// underlying client construction.
func (b *Base) EnsureReady(ctx context.Context, initOnce func(ctx context.Context) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}
	if b.err != nil {
		return b.err
	}
	if !b.IsConfigured() {
		b.err = &ConfigurationError{Provider: b.name, Reason: "required credentials or endpoint are not set"}
		return b.err
	}
	if err := initOnce(ctx); err != nil {
		b.err = &NotReadyError{Provider: b.name, Reason: err.Error()}
		return b.err
	}
	b.ready = true
	return nil
}
