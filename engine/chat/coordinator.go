package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/engine/llm/provider"
	"github.com/learnloop/cortex/engine/memory"
	"github.com/learnloop/cortex/engine/reflection"
	"github.com/learnloop/cortex/engine/tokens"
	"github.com/learnloop/cortex/pkg/config"
	"github.com/learnloop/cortex/pkg/logger"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Orchestrator is the slice of the LLM Provider Orchestrator (C4) the
// coordinator depends on.
type Orchestrator interface {
	EnsureReady(ctx context.Context) error
	Generate(ctx context.Context, req provider.Request) (provider.Result, error)
	Stream(ctx context.Context, req provider.Request, onChunk func(provider.StreamChunk) error) error
}

// MemoryEngine is the slice of the Memory Engine (C8) the coordinator
// depends on.
type MemoryEngine interface {
	BuildContext(ctx context.Context, userID, sessionID string) (memory.ContextBundle, error)
	Store(ctx context.Context, userID, tier string, req memory.StoreRequest) (*memory.Memory, error)
	AppendInteraction(ctx context.Context, sessionID, input, output string) error
}

// QuotaLedger is the slice of the Usage Ledger (C7) the coordinator
// depends on.
type QuotaLedger interface {
	CheckQuota(ctx context.Context, userID, tier string, resource core.ResourceType, requested int64) (bool, string, error)
	Record(ctx context.Context, userID string, resource core.ResourceType, amount int64, metadata map[string]any) error
}

// Publisher enqueues a reflection task's wire payload. engine/infra/nats.Queue
// satisfies this directly.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Metrics mirrors monitoring.ChatMetrics.
type Metrics interface {
	IncMessage(ctx context.Context, status string)
	AddTokens(ctx context.Context, direction string, count int64)
	SessionStarted(ctx context.Context)
	SessionEnded(ctx context.Context)
}

type noopMetrics struct{}

func (noopMetrics) IncMessage(context.Context, string)       {}
func (noopMetrics) AddTokens(context.Context, string, int64) {}
func (noopMetrics) SessionStarted(context.Context)           {}
func (noopMetrics) SessionEnded(context.Context)             {}

// QuotaExceededError reports a 429-class quota rejection. Message is the
// human-readable reason C7 returned.
type QuotaExceededError struct{ Message string }

func (e *QuotaExceededError) Error() string { return e.Message }

// Coordinator is the Chat Coordinator (C11).
type Coordinator struct {
	orchestrator Orchestrator
	memory       MemoryEngine
	counter      *tokens.Counter
	ledger       QuotaLedger
	reflections  Publisher
	cfg          *config.Config
	metrics      Metrics
}

// New builds a Coordinator. reflections may be nil, in which case
// reflection tasks are dropped with a warning rather than enqueued (a
// degraded-but-valid mode for environments without a queue). metrics may
// be nil.
func New(
	orchestrator Orchestrator,
	mem MemoryEngine,
	counter *tokens.Counter,
	ledger QuotaLedger,
	reflections Publisher,
	cfg *config.Config,
	metrics Metrics,
) *Coordinator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Coordinator{
		orchestrator: orchestrator,
		memory:       mem,
		counter:      counter,
		ledger:       ledger,
		reflections:  reflections,
		cfg:          cfg,
		metrics:      metrics,
	}
}

// normalize strips markup and enforces the configured max length.
func (c *Coordinator) normalize(text string) (string, error) {
	clean := html.UnescapeString(tagPattern.ReplaceAllString(text, ""))
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return "", core.NewKindError(fmt.Errorf("empty message"), core.KindInvalidInput, nil)
	}
	r := []rune(clean)
	max := c.cfg.Chat.MaxInputRunes
	if max > 0 && len(r) > max {
		return "", core.NewKindError(
			fmt.Errorf("message exceeds maximum length of %d characters", max),
			core.KindInvalidInput,
			map[string]any{"max_runes": max, "actual_runes": len(r)},
		)
	}
	return clean, nil
}

func (c *Coordinator) buildPrompt(req Request, ctxBundle memory.ContextBundle) string {
	var b strings.Builder
	for _, ltm := range ctxBundle.LTM {
		fmt.Fprintf(&b, "[long-term] %s\n", ltm.OutputResponse)
	}
	for _, itm := range ctxBundle.ITM {
		fmt.Fprintf(&b, "[recent] %s\n", itm.OutputResponse)
	}
	for _, stm := range ctxBundle.STM {
		fmt.Fprintf(&b, "user: %s\nassistant: %s\n", stm.Input, stm.Output)
	}
	fmt.Fprintf(&b, "user: %s", req.Text)
	return b.String()
}

// prepare runs the shared steps 1-6 of spec.md §4.11 common to both
// Send and Stream: normalize, ensure the orchestrator is ready, build
// context, estimate tokens, and check quota.
func (c *Coordinator) prepare(ctx context.Context, req Request) (string, memory.ContextBundle, int, error) {
	if err := structValidator.Struct(req); err != nil {
		return "", memory.ContextBundle{}, 0, core.NewKindError(err, core.KindInvalidInput, nil)
	}

	text, err := c.normalize(req.Text)
	if err != nil {
		return "", memory.ContextBundle{}, 0, err
	}

	if err := c.orchestrator.EnsureReady(ctx); err != nil {
		return "", memory.ContextBundle{}, 0, core.NewKindError(err, core.KindProviderNotReady, nil)
	}

	ctxBundle, err := c.memory.BuildContext(ctx, req.UserID, req.SessionID)
	if err != nil {
		return "", memory.ContextBundle{}, 0, core.NewKindError(err, core.KindTransientInternal, nil)
	}

	prompt := c.buildPrompt(Request{Text: text}, ctxBundle)
	promptTokens := c.counter.Count(prompt)
	expected := promptTokens + c.cfg.Chat.ExpectedCompletionTokens

	if ok, msg, err := c.ledger.CheckQuota(ctx, req.UserID, req.SubscriptionTier, core.ResourceLLMTokens, int64(expected)); err != nil {
		return "", memory.ContextBundle{}, 0, core.NewKindError(err, core.KindTransientInternal, nil)
	} else if !ok {
		return "", memory.ContextBundle{}, 0, &QuotaExceededError{Message: msg}
	}
	if ok, msg, err := c.ledger.CheckQuota(ctx, req.UserID, req.SubscriptionTier, core.ResourceMessages, 1); err != nil {
		return "", memory.ContextBundle{}, 0, core.NewKindError(err, core.KindTransientInternal, nil)
	} else if !ok {
		return "", memory.ContextBundle{}, 0, &QuotaExceededError{Message: msg}
	}

	return prompt, ctxBundle, promptTokens, nil
}

// sendTurn executes one non-streamed chat turn. It follows the teacher's
// use-case shape (engine/auth/uc: construct with the call's input, then
// Execute(ctx)) rather than taking req as a Send parameter directly.
type sendTurn struct {
	c   *Coordinator
	req Request
}

var _ core.Usecase[Response] = (*sendTurn)(nil)

func (u *sendTurn) Execute(ctx context.Context) (Response, error) {
	c, req := u.c, u.req
	c.metrics.SessionStarted(ctx)
	defer c.metrics.SessionEnded(ctx)

	prompt, _, promptTokens, err := c.prepare(ctx, req)
	if err != nil {
		c.metrics.IncMessage(ctx, outcomeStatus(err))
		return Response{}, err
	}

	result, err := c.orchestrator.Generate(ctx, provider.Request{Prompt: prompt})
	if err != nil {
		c.metrics.IncMessage(ctx, "provider_error")
		return Response{}, core.NewKindError(err, core.KindTransientInternal, nil)
	}

	completionTokens := c.counter.Count(result.Content)
	c.finishTurn(ctx, req, req.Text, result.Content, promptTokens, completionTokens)
	c.metrics.IncMessage(ctx, "success")
	return Response{
		SessionID:        req.SessionID,
		Text:             result.Content,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}

// Send runs one non-streamed turn to completion.
func (c *Coordinator) Send(ctx context.Context, req Request) (Response, error) {
	return (&sendTurn{c: c, req: req}).Execute(ctx)
}

// Stream runs one turn over onChunk, the SSE path's sink.
func (c *Coordinator) Stream(ctx context.Context, req Request, onChunk func(Chunk) error) error {
	c.metrics.SessionStarted(ctx)
	defer c.metrics.SessionEnded(ctx)

	prompt, _, promptTokens, err := c.prepare(ctx, req)
	if err != nil {
		c.metrics.IncMessage(ctx, outcomeStatus(err))
		return err
	}

	var full strings.Builder
	err = c.orchestrator.Stream(ctx, provider.Request{Prompt: prompt}, func(chunk provider.StreamChunk) error {
		full.WriteString(chunk.Content)
		return onChunk(toChunk(chunk))
	})
	if err != nil {
		c.metrics.IncMessage(ctx, "provider_error")
		return core.NewKindError(err, core.KindTransientInternal, nil)
	}

	completionTokens := c.counter.Count(full.String())
	c.finishTurn(ctx, req, req.Text, full.String(), promptTokens, completionTokens)
	c.metrics.IncMessage(ctx, "success")
	return nil
}

// finishTurn runs step 8-9 of spec.md §4.11: persist the interaction,
// record usage, and enqueue the reflection task. Reflection enqueue
// failures are logged, never returned — they must not fail the
// user-visible response.
func (c *Coordinator) finishTurn(ctx context.Context, req Request, input, output string, promptTokens, completionTokens int) {
	log := logger.FromContext(ctx)

	if _, err := c.memory.Store(ctx, req.UserID, req.SubscriptionTier, memory.StoreRequest{
		SessionID:      req.SessionID,
		Type:           core.MemoryTypeConversation,
		InputContext:   input,
		OutputResponse: output,
		Outcome:        core.OutcomeNeutral,
		Tier:           core.TierSTM,
	}); err != nil {
		log.Warn("chat: failed to persist interaction", "error", err)
	}
	if err := c.memory.AppendInteraction(ctx, req.SessionID, input, output); err != nil {
		log.Warn("chat: failed to append stm interaction", "error", err)
	}

	totalTokens := int64(promptTokens + completionTokens)
	if err := c.ledger.Record(ctx, req.UserID, core.ResourceLLMTokens, totalTokens, map[string]any{"session_id": req.SessionID}); err != nil {
		log.Warn("chat: failed to record llm_tokens usage", "error", err)
	}
	if err := c.ledger.Record(ctx, req.UserID, core.ResourceMessages, 1, map[string]any{"session_id": req.SessionID}); err != nil {
		log.Warn("chat: failed to record messages usage", "error", err)
	}
	c.metrics.AddTokens(ctx, "prompt", int64(promptTokens))
	c.metrics.AddTokens(ctx, "completion", int64(completionTokens))

	c.enqueueReflection(ctx, req, input, output)
}

func (c *Coordinator) enqueueReflection(ctx context.Context, req Request, input, output string) {
	if c.reflections == nil {
		return
	}
	payload, err := json.Marshal(reflection.Task{
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		InputText:        input,
		OutputText:       output,
		SubscriptionTier: req.SubscriptionTier,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("chat: failed to marshal reflection task", "error", err)
		return
	}
	if err := c.reflections.Publish(ctx, payload); err != nil {
		logger.FromContext(ctx).Warn("chat: failed to enqueue reflection task", "error", err)
	}
}

func outcomeStatus(err error) string {
	switch {
	case core.Is(err, core.KindInvalidInput):
		return "invalid_input"
	case core.Is(err, core.KindProviderNotReady):
		return "provider_not_ready"
	default:
		var quotaErr *QuotaExceededError
		if asQuotaExceeded(err, &quotaErr) {
			return "quota_exceeded"
		}
		return "error"
	}
}

func asQuotaExceeded(err error, target **QuotaExceededError) bool {
	qe, ok := err.(*QuotaExceededError)
	if !ok {
		return false
	}
	*target = qe
	return true
}
