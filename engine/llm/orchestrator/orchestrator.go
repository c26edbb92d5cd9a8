// Package orchestrator implements the LLM Provider Orchestrator (C4): a
// priority-ordered router over provider.Provider backends with per-provider
// failure tracking, cooldown, and metric emission.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/engine/llm/provider"
	"github.com/learnloop/cortex/pkg/logger"
)

// ExhaustedError is raised when every provider in priority order is
// disabled, unconfigured, unsupported, or cooling down.
type ExhaustedError struct {
	LastError error
}

func (e *ExhaustedError) Error() string {
	if e.LastError == nil {
		return "no providers available"
	}
	return fmt.Sprintf("all providers exhausted: %s", core.RedactError(e.LastError))
}

func (e *ExhaustedError) Unwrap() error { return e.LastError }

// MetricsRecorder observes orchestrator outcomes. Implementations back
// onto otel instruments; a nil recorder is a valid no-op.
type MetricsRecorder interface {
	ObserveLatency(ctx context.Context, providerName, model string, seconds float64)
	IncSuccess(ctx context.Context, providerName, model string)
	IncFailure(ctx context.Context, providerName, errorClass string)
}

type providerState struct {
	mu            sync.Mutex
	failureCount  int
	lastError     error
	cooldownUntil time.Time
}

func (s *providerState) inCooldown(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.cooldownUntil.IsZero() && now.Before(s.cooldownUntil)
}

func (s *providerState) onSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount = 0
	s.lastError = nil
	s.cooldownUntil = time.Time{}
}

func (s *providerState) onFailure(err error, retryLimit int, cooldown time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	s.lastError = err
	if s.failureCount >= retryLimit {
		s.cooldownUntil = now.Add(cooldown)
	}
}

func (s *providerState) snapshot() (failureCount int, lastErr error, coolingDown bool, cooldownUntil time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureCount, s.lastError, !s.cooldownUntil.IsZero() && time.Now().Before(s.cooldownUntil), s.cooldownUntil
}

// Config tunes failure-handling thresholds.
type Config struct {
	RetryLimit      int
	CooldownSeconds int
}

// Orchestrator routes generate/stream calls across a priority-ordered
// provider list.
type Orchestrator struct {
	providers []provider.Provider
	states    map[string]*providerState
	cfg       Config
	metrics   MetricsRecorder
	now       func() time.Time
}

// New builds an Orchestrator. providers is iterated in priority order as
// given — callers assemble the slice from configured provider_priority.
func New(providers []provider.Provider, cfg Config, metrics MetricsRecorder) *Orchestrator {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.CooldownSeconds <= 0 {
		cfg.CooldownSeconds = 60
	}
	states := make(map[string]*providerState, len(providers))
	for _, p := range providers {
		states[p.Name()] = &providerState{}
	}
	return &Orchestrator{providers: providers, states: states, cfg: cfg, metrics: metrics, now: time.Now}
}

func (o *Orchestrator) cooldown() time.Duration {
	return time.Duration(o.cfg.CooldownSeconds) * time.Second
}

func (o *Orchestrator) eligible(p provider.Provider, requireStreaming bool) bool {
	if !p.IsEnabled() || !p.IsConfigured() {
		return false
	}
	if requireStreaming && !p.SupportsStreaming() {
		return false
	}
	return !o.states[p.Name()].inCooldown(o.now())
}

// Generate tries each eligible provider in priority order, returning the
// first success. Every failure is recorded against that provider's state
// before the next candidate is tried.
func (o *Orchestrator) Generate(ctx context.Context, req provider.Request) (provider.Result, error) {
	var lastErr error
	tried := false
	for _, p := range o.providers {
		if !o.eligible(p, false) {
			continue
		}
		tried = true
		if err := p.EnsureReady(ctx); err != nil {
			o.recordFailure(ctx, p, err)
			lastErr = err
			continue
		}
		start := time.Now()
		result, err := p.Generate(ctx, req)
		if err != nil {
			o.recordFailure(ctx, p, err)
			lastErr = err
			continue
		}
		o.recordSuccess(ctx, p, time.Since(start))
		return result, nil
	}
	if !tried {
		return provider.Result{}, &ExhaustedError{LastError: errors.New("no providers available")}
	}
	return provider.Result{}, &ExhaustedError{LastError: lastErr}
}

// Stream tries each eligible, streaming-capable provider in priority
// order. An error before the first chunk counts as a full failure; a
// mid-stream error surfaces to the consumer without trying the next
// provider (the caller may already be mid-response).
func (o *Orchestrator) Stream(ctx context.Context, req provider.Request, onChunk func(provider.StreamChunk) error) error {
	var lastErr error
	tried := false
	for _, p := range o.providers {
		if !o.eligible(p, true) {
			continue
		}
		tried = true
		if err := p.EnsureReady(ctx); err != nil {
			o.recordFailure(ctx, p, err)
			lastErr = err
			continue
		}
		start := time.Now()
		firstChunk := true
		streamErr := p.Stream(ctx, req, func(chunk provider.StreamChunk) error {
			firstChunk = false
			return onChunk(chunk)
		})
		if streamErr != nil {
			o.recordFailure(ctx, p, streamErr)
			lastErr = streamErr
			if !firstChunk {
				return streamErr
			}
			continue
		}
		o.recordSuccess(ctx, p, time.Since(start))
		return nil
	}
	if !tried {
		return &ExhaustedError{LastError: errors.New("no providers available")}
	}
	return &ExhaustedError{LastError: lastErr}
}

// EnsureReady reports whether at least one configured provider is
// eligible and passes EnsureReady, without performing a generation. The
// Chat Coordinator calls this before doing any other work on a turn so a
// fully exhausted orchestrator fails fast with a 503 rather than paying
// for a context build and quota check first.
func (o *Orchestrator) EnsureReady(ctx context.Context) error {
	var lastErr error
	for _, p := range o.providers {
		if !o.eligible(p, false) {
			continue
		}
		if err := p.EnsureReady(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return &ExhaustedError{LastError: lastErr}
}

// Status returns a health snapshot for every configured provider.
func (o *Orchestrator) Status(ctx context.Context) []provider.Status {
	out := make([]provider.Status, 0, len(o.providers))
	for _, p := range o.providers {
		_, lastErr, cooling, _ := o.states[p.Name()].snapshot()
		healthErr := p.CheckHealth(ctx)
		healthy := healthErr == nil
		if healthy {
			o.states[p.Name()].onSuccess()
			lastErr = nil
		} else {
			lastErr = healthErr
		}
		lastErrStr := ""
		if lastErr != nil {
			// Status is a caller-facing health surface; never leak a raw
			// provider error, which can carry a credential.
			lastErrStr = core.RedactError(lastErr)
		}
		out = append(out, provider.Status{
			Name:              p.Name(),
			Healthy:           healthy,
			Enabled:           p.IsEnabled(),
			SupportsStreaming: p.SupportsStreaming(),
			Model:             p.ModelName(),
			LastError:         lastErrStr,
			CoolingDown:       cooling,
		})
	}
	return out
}

func (o *Orchestrator) recordSuccess(ctx context.Context, p provider.Provider, elapsed time.Duration) {
	o.states[p.Name()].onSuccess()
	if o.metrics != nil {
		o.metrics.ObserveLatency(ctx, p.Name(), p.ModelName(), elapsed.Seconds())
		o.metrics.IncSuccess(ctx, p.Name(), p.ModelName())
	}
	logger.FromContext(ctx).Debug("provider generation succeeded", "provider", p.Name(), "model", p.ModelName())
}

func (o *Orchestrator) recordFailure(ctx context.Context, p provider.Provider, err error) {
	o.states[p.Name()].onFailure(err, o.cfg.RetryLimit, o.cooldown(), o.now())
	if o.metrics != nil {
		o.metrics.IncFailure(ctx, p.Name(), errorClass(err))
	}
	logger.FromContext(ctx).Warn("provider generation failed", "provider", p.Name(), "error", core.RedactError(err))
}

func errorClass(err error) string {
	switch err.(type) {
	case *provider.ConfigurationError:
		return "configuration"
	case *provider.TimeoutError:
		return "timeout"
	case *provider.NotReadyError:
		return "not_ready"
	case *provider.Error:
		return "provider"
	default:
		return "unknown"
	}
}
