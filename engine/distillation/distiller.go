package distillation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/engine/memory"
	"github.com/learnloop/cortex/pkg/config"
	"github.com/learnloop/cortex/pkg/logger"
)

const (
	reflectionWindowHours = 24
	minGroupSize          = 2
	maxPrincipleSources   = 2
	principleMaxLen       = 500
	minSuccessRate        = 0.5
)

// ReflectionSource is the slice of the Relational Memory Store (C6) the
// distiller reads reflections from and writes ITM-promotion/expiry
// side-effects to.
type ReflectionSource interface {
	RecentReflections(ctx context.Context, sinceHours int) ([]memory.Memory, error)
	PromoteITMToLTM(ctx context.Context, accessThreshold int64) (int64, error)
	ExpireStale(ctx context.Context) (int64, error)
}

// Metrics is the subset of instrumentation the distiller records against.
type Metrics interface {
	IncRun(ctx context.Context, outcome string)
	AddKnowledge(ctx context.Context, count int64)
	ObserveDuration(ctx context.Context, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) IncRun(context.Context, string)          {}
func (noopMetrics) AddKnowledge(context.Context, int64)     {}
func (noopMetrics) ObserveDuration(context.Context, float64) {}

// Distiller is the Nightly Distillation Worker (C10).
type Distiller struct {
	memories ReflectionSource
	know     Repository
	cfg      *config.Config
	metrics  Metrics
}

// New builds a Distiller. metrics may be nil.
func New(memories ReflectionSource, know Repository, cfg *config.Config, metrics Metrics) *Distiller {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Distiller{memories: memories, know: know, cfg: cfg, metrics: metrics}
}

// group accumulates reflections sharing a (user, topic) pair.
type group struct {
	userID  string
	topic   string
	members []memory.Memory
}

// Run executes one distillation pass: grouping recent reflections by
// topic, extracting durable principles from qualifying groups, promoting
// well-exercised ITM memories to LTM, and sweeping expired rows. Per-topic
// failures are recorded in Summary.Errors and do not abort the run.
func (d *Distiller) Run(ctx context.Context) Summary {
	log := logger.FromContext(ctx)
	summary := Summary{StartedAt: time.Now().UTC()}

	reflections, err := d.memories.RecentReflections(ctx, reflectionWindowHours)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("fetch reflections: %v", err))
		summary.FinishedAt = time.Now().UTC()
		d.metrics.IncRun(ctx, "failed")
		return summary
	}
	summary.ReflectionsProcessed = len(reflections)

	for _, g := range groupByUserAndTopic(reflections) {
		if len(g.members) < minGroupSize {
			continue
		}
		k, err := d.distillGroup(g)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("topic %q (user %s): %v", g.topic, g.userID, err))
			log.Warn("distillation: group failed", "topic", g.topic, "user_id", g.userID, "error", err)
			continue
		}
		if k == nil {
			continue
		}
		if err := d.know.Insert(ctx, k); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("insert knowledge (topic %q, user %s): %v", g.topic, g.userID, err))
			continue
		}
		summary.KnowledgeDistilled++
	}
	d.metrics.AddKnowledge(ctx, int64(summary.KnowledgeDistilled))

	promoted, err := d.memories.PromoteITMToLTM(ctx, int64(d.cfg.Memory.PromotionThreshold))
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("promote itm to ltm: %v", err))
	} else {
		summary.MemoriesPromoted = promoted
	}

	expired, err := d.memories.ExpireStale(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("expire stale: %v", err))
	} else {
		summary.MemoriesExpired = expired
	}

	summary.FinishedAt = time.Now().UTC()
	outcome := "success"
	if len(summary.Errors) > 0 {
		outcome = "partial"
	}
	d.metrics.IncRun(ctx, outcome)
	d.metrics.ObserveDuration(ctx, summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	log.Info("distillation: run complete",
		"reflections_processed", summary.ReflectionsProcessed,
		"knowledge_distilled", summary.KnowledgeDistilled,
		"memories_promoted", summary.MemoriesPromoted,
		"memories_expired", summary.MemoriesExpired,
		"errors", len(summary.Errors),
	)
	return summary
}

func groupByUserAndTopic(reflections []memory.Memory) []*group {
	index := map[string]*group{}
	var order []string
	for _, m := range reflections {
		topic := topicOf(m.Tags)
		key := m.UserID + "\x00" + topic
		g, ok := index[key]
		if !ok {
			g = &group{userID: m.UserID, topic: topic}
			index[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, m)
	}
	groups := make([]*group, 0, len(order))
	for _, key := range order {
		groups = append(groups, index[key])
	}
	return groups
}

// distillGroup applies the distillation criterion to g and, if it
// qualifies, extracts a Knowledge row. Returns (nil, nil) for a
// non-qualifying group.
func (d *Distiller) distillGroup(g *group) (*Knowledge, error) {
	var sumWeight, sumConfidence float64
	var successes int
	var sourceIDs []string
	for _, m := range g.members {
		sumWeight += m.EmotionalWeight
		sumConfidence += m.ConfidenceScore
		if m.Outcome == core.OutcomeSuccess {
			successes++
		}
		sourceIDs = append(sourceIDs, m.ID)
	}
	n := float64(len(g.members))
	avgWeight := sumWeight / n
	avgConfidence := sumConfidence / n
	successRate := float64(successes) / n

	qualifies := (absFloat(avgWeight) > d.cfg.Distillation.EmotionalWeightThreshold ||
		avgConfidence > d.cfg.Distillation.ConfidenceThreshold) &&
		successRate >= minSuccessRate
	if !qualifies {
		return nil, nil
	}

	id, err := core.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate knowledge id: %w", err)
	}

	return &Knowledge{
		ID:                id.String(),
		UserID:            g.userID,
		SourceReflections: sourceIDs,
		Topic:             g.topic,
		Principle:         extractPrinciple(g.members),
		Confidence:        avgConfidence,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// extractPrinciple concatenates up to maxPrincipleSources distinct
// self-assessment "A3" answers from the group, truncated to
// principleMaxLen runes.
func extractPrinciple(members []memory.Memory) string {
	seen := map[string]bool{}
	var parts []string
	for _, m := range members {
		answer := q3Answer(m.OutputResponse)
		if answer == "" || seen[answer] {
			continue
		}
		seen[answer] = true
		parts = append(parts, answer)
		if len(parts) == maxPrincipleSources {
			break
		}
	}
	principle := strings.Join(parts, " ")
	r := []rune(principle)
	if len(r) > principleMaxLen {
		return string(r[:principleMaxLen])
	}
	return principle
}

// q3Answer pulls the "A3:" line out of a composed self-assessment.
func q3Answer(selfAssessment string) string {
	const marker = "A3:"
	idx := strings.Index(selfAssessment, marker)
	if idx == -1 {
		return ""
	}
	rest := selfAssessment[idx+len(marker):]
	if end := strings.IndexByte(rest, '\n'); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
