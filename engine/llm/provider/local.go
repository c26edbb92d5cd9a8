package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Local is the self-hosted Ollama provider backend.
type Local struct {
	Base
	serverURL string

	client llms.Model
}

// LocalConfig configures a Local provider instance.
type LocalConfig struct {
	Model     string
	ServerURL string
	Enabled   bool
	Timeout   time.Duration
	Streaming bool
}

// NewLocal builds a Local provider.
func NewLocal(cfg LocalConfig) *Local {
	l := &Local{serverURL: cfg.ServerURL}
	l.Base = NewBase("local", cfg.Model, cfg.Streaming, cfg.Timeout, cfg.Enabled, func() bool {
		return l.serverURL != ""
	})
	return l
}

func (l *Local) EnsureReady(ctx context.Context) error {
	return l.Base.EnsureReady(ctx, func(ctx context.Context) error {
		client, err := ollama.New(ollama.WithServerURL(l.serverURL), ollama.WithModel(l.ModelName()))
		if err != nil {
			return err
		}
		l.client = client
		return nil
	})
}

func (l *Local) CheckHealth(ctx context.Context) error {
	return l.EnsureReady(ctx)
}

func (l *Local) Generate(ctx context.Context, req Request) (Result, error) {
	if err := l.EnsureReady(ctx); err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, l.Timeout())
	defer cancel()
	start := time.Now()
	resp, err := l.client.GenerateContent(ctx, toMessageContent(req), callOptions(req)...)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, &TimeoutError{Provider: l.Name()}
		}
		return Result{}, &Error{Provider: l.Name(), Cause: err}
	}
	if len(resp.Choices) == 0 {
		return Result{}, &Error{Provider: l.Name(), Cause: fmt.Errorf("empty response")}
	}
	return Result{
		Provider:  l.Name(),
		Model:     l.ModelName(),
		Content:   resp.Choices[0].Content,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (l *Local) Stream(ctx context.Context, req Request, onChunk func(StreamChunk) error) error {
	if err := l.EnsureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, l.Timeout())
	defer cancel()
	opts := callOptions(req)
	opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		return onChunk(StreamChunk{Content: string(chunk)})
	}))
	_, err := l.client.GenerateContent(ctx, toMessageContent(req), opts...)
	if err != nil {
		if ctx.Err() != nil {
			return &TimeoutError{Provider: l.Name()}
		}
		return &Error{Provider: l.Name(), Cause: err}
	}
	return onChunk(StreamChunk{Done: true})
}
