package reflection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/engine/memory"
	"github.com/learnloop/cortex/engine/policy"
	"github.com/learnloop/cortex/pkg/logger"
)

const (
	maxAttempts       = 3
	backoffBase       = time.Second
	excerptLen        = 280
	defaultTier       = "free_trial"
	alignmentPassMark = 0.7
)

var reflectionTags = []string{"reflection", "self-assessment", "alignment"}

// Metrics is the subset of instrumentation the worker records against.
type Metrics interface {
	IncValidation(ctx context.Context, result string)
	ObserveAlignment(ctx context.Context, score float64)
}

type noopMetrics struct{}

func (noopMetrics) IncValidation(context.Context, string)    {}
func (noopMetrics) ObserveAlignment(context.Context, float64) {}

// Store is the slice of the Memory Engine (C8) the worker depends on.
type Store interface {
	Store(ctx context.Context, userID, tier string, req memory.StoreRequest) (*memory.Memory, error)
}

// Worker is the Reflection Worker (C9).
type Worker struct {
	validator *policy.Validator
	engine    Store
	metrics   Metrics
}

// New builds a Worker. metrics may be nil.
func New(validator *policy.Validator, engine Store, metrics Metrics) *Worker {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Worker{validator: validator, engine: engine, metrics: metrics}
}

// Process runs one reflection task to completion, retrying the whole
// attempt up to maxAttempts times with 2^attempt-second backoff on
// transient failure. The operation is safe to retry: a retried attempt
// simply stores a second, distinct reflection memory rather than
// corrupting state, per the engine's tolerance for duplicate reflections.
func (w *Worker) Process(ctx context.Context, task Task) error {
	backoff := retry.WithMaxRetries(uint64(maxAttempts), retry.NewExponential(backoffBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.attempt(ctx, task)
		if err != nil && core.Is(err, core.KindTransientInternal) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (w *Worker) attempt(ctx context.Context, task Task) error {
	alignment := w.validator.ValidateAlignment(task.InputText, task.OutputText, "")
	w.metrics.ObserveAlignment(ctx, alignment.AlignmentScore)
	if alignment.Aligned {
		w.metrics.IncValidation(ctx, "passed")
	} else {
		w.metrics.IncValidation(ctx, "warning")
	}

	selfAssessment := composeSelfAssessment(task.InputText, task.OutputText, alignment)

	outcome := core.OutcomeNeutral
	if alignment.AlignmentScore >= alignmentPassMark {
		outcome = core.OutcomeSuccess
	}

	tier := task.SubscriptionTier
	if tier == "" {
		tier = defaultTier
	}

	_, err := w.engine.Store(ctx, task.UserID, tier, memory.StoreRequest{
		SessionID:       task.SessionID,
		Type:            core.MemoryTypeReflection,
		InputContext:    "Reflection on interaction",
		OutputResponse:  selfAssessment,
		Outcome:         outcome,
		ConfidenceScore: alignment.AlignmentScore,
		Tags:            reflectionTags,
		Tier:            core.TierLTM,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("reflection: store failed", "user_id", task.UserID, "error", err)
		return err
	}
	return nil
}

// composeSelfAssessment answers the three fixed questions from the
// interaction excerpts and the alignment result, then appends
// improvement_notes (recommendations concatenated with concerns).
func composeSelfAssessment(input, output string, alignment policy.AlignmentResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Q1: What did I attempt to accomplish?\nA1: %s\n\n", excerpt(input))
	fmt.Fprintf(&b, "Q2: Was my response aligned with my constitutional principles?\nA2: %s\n\n",
		alignmentAnswer(output, alignment))
	fmt.Fprintf(&b, "Q3: How could I improve my response for next time?\nA3: %s\n", improvementNotes(alignment))
	return b.String()
}

func alignmentAnswer(output string, alignment policy.AlignmentResponse) string {
	verdict := "Yes"
	if !alignment.Aligned {
		verdict = "Partially"
	}
	return fmt.Sprintf(
		"%s, with an overall alignment score of %.2f across %d principles. Response excerpt: %s",
		verdict, alignment.AlignmentScore, len(alignment.PrincipleScores), excerpt(output),
	)
}

func improvementNotes(alignment policy.AlignmentResponse) string {
	notes := append(append([]string{}, alignment.Recommendations...), alignment.Concerns...)
	if len(notes) == 0 {
		return "No specific concerns identified; continue current approach."
	}
	return strings.Join(notes, "; ")
}

func excerpt(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= excerptLen {
		return string(r)
	}
	return string(r[:excerptLen]) + "..."
}
