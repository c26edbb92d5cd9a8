package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Hosted is the OpenAI-compatible hosted provider backend.
type Hosted struct {
	Base
	apiKey  string
	baseURL string

	client llms.Model
}

// HostedConfig configures a Hosted provider instance.
type HostedConfig struct {
	Model     string
	APIKey    string
	BaseURL   string
	Enabled   bool
	Timeout   time.Duration
	Streaming bool
}

// NewHosted builds a Hosted provider. The underlying openai.LLM client is
// constructed lazily on EnsureReady.
func NewHosted(cfg HostedConfig) *Hosted {
	h := &Hosted{apiKey: cfg.APIKey, baseURL: cfg.BaseURL}
	h.Base = NewBase("hosted", cfg.Model, cfg.Streaming, cfg.Timeout, cfg.Enabled, func() bool {
		return h.apiKey != ""
	})
	return h
}

func (h *Hosted) EnsureReady(ctx context.Context) error {
	return h.Base.EnsureReady(ctx, func(ctx context.Context) error {
		opts := []openai.Option{openai.WithToken(h.apiKey), openai.WithModel(h.ModelName())}
		if h.baseURL != "" {
			opts = append(opts, openai.WithBaseURL(h.baseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return err
		}
		h.client = client
		return nil
	})
}

func (h *Hosted) CheckHealth(ctx context.Context) error {
	return h.EnsureReady(ctx)
}

func (h *Hosted) Generate(ctx context.Context, req Request) (Result, error) {
	if err := h.EnsureReady(ctx); err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, h.Timeout())
	defer cancel()
	start := time.Now()
	resp, err := h.client.GenerateContent(ctx, toMessageContent(req), callOptions(req)...)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, &TimeoutError{Provider: h.Name()}
		}
		return Result{}, &Error{Provider: h.Name(), Cause: err}
	}
	if len(resp.Choices) == 0 {
		return Result{}, &Error{Provider: h.Name(), Cause: fmt.Errorf("empty response")}
	}
	return Result{
		Provider:  h.Name(),
		Model:     h.ModelName(),
		Content:   resp.Choices[0].Content,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (h *Hosted) Stream(ctx context.Context, req Request, onChunk func(StreamChunk) error) error {
	if err := h.EnsureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.Timeout())
	defer cancel()
	opts := callOptions(req)
	opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		return onChunk(StreamChunk{Content: string(chunk)})
	}))
	_, err := h.client.GenerateContent(ctx, toMessageContent(req), opts...)
	if err != nil {
		if ctx.Err() != nil {
			return &TimeoutError{Provider: h.Name()}
		}
		return &Error{Provider: h.Name(), Cause: err}
	}
	return onChunk(StreamChunk{Done: true})
}

func toMessageContent(req Request) []llms.MessageContent {
	var msgs []llms.MessageContent
	if req.SystemPrompt != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))
	return msgs
}

func callOptions(req Request) []llms.CallOption {
	temp := req.Temperature
	if temp == 0 {
		temp = DefaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	return []llms.CallOption{llms.WithTemperature(temp), llms.WithMaxTokens(maxTokens)}
}
