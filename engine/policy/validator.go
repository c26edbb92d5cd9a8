// Package policy implements the constitutional Policy Validator (C1):
// pattern-based content screening and per-principle alignment scoring.
package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/pkg/logger"
)

const alignmentThreshold = 0.7

// Repository persists policies and audit log entries. A nil Repository is
// valid: CreatePolicy/LogAudit become no-ops that still return a value,
// since audit logging must never block the user path.
type Repository interface {
	InsertPolicy(ctx context.Context, p *Policy) error
	InsertAudit(ctx context.Context, a *AuditLog) error
}

// Validator is the Policy Validator. It is stateless except for the
// configured principle list and an optional persistence repository.
type Validator struct {
	principles []string
	repo       Repository
}

// New builds a Validator. principles defaults to DefaultPrinciples when nil.
func New(principles []string, repo Repository) *Validator {
	if len(principles) == 0 {
		principles = DefaultPrinciples
	}
	return &Validator{principles: principles, repo: repo}
}

// ValidateContent screens content against the harmful/unethical pattern
// sets.
func (v *Validator) ValidateContent(content string) ValidationResponse {
	return v.validateContent(content)
}

func (v *Validator) validateContent(content string) ValidationResponse {
	lower := strings.ToLower(content)
	var violations, warnings []string

	for _, p := range HarmfulPatterns {
		if p.MatchString(lower) {
			violations = append(violations, fmt.Sprintf("Content matches harmful pattern: %s", truncatePattern(p.String())))
		}
	}
	for _, p := range UnethicalPatterns {
		if p.MatchString(lower) {
			warnings = append(warnings, fmt.Sprintf("Content may contain unethical elements: %s", truncatePattern(p.String())))
		}
	}

	totalChecks := len(HarmfulPatterns) + len(UnethicalPatterns)
	var weight float64
	if totalChecks > 0 {
		weight = 1.0 / float64(totalChecks)
	}
	score := 1.0 - (float64(len(violations)) * weight * 2) - (float64(len(warnings)) * weight)
	score = clamp01(score)

	var result Result
	passed := true
	switch {
	case len(violations) > 0:
		result = ResultFailed
		passed = false
	case len(warnings) > 0:
		result = ResultWarning
	default:
		result = ResultPassed
	}

	return ValidationResponse{
		Result:            result,
		Score:             score,
		Passed:            passed,
		Violations:        violations,
		Warnings:          warnings,
		PrinciplesChecked: append([]string(nil), v.principles...),
		Timestamp:         time.Now().UTC(),
	}
}

// ValidateAlignment scores alignment of an (input, output) interaction
// against every configured principle. Principle scores are currently a
// uniform function of the input/output content scores; self_assessment,
// when provided, contributes only to recommendations/concerns, not to the
// numeric score, matching the reference behavior.
func (v *Validator) ValidateAlignment(input, output string, selfAssessment string) AlignmentResponse {
	inputVal := v.validateContent(input)
	outputVal := v.validateContent(output)

	principleScores := make(map[string]float64, len(v.principles))
	for _, p := range v.principles {
		principleScores[p] = (inputVal.Score + outputVal.Score) / 2
	}

	var sum float64
	for _, s := range principleScores {
		sum += s
	}
	var overall float64
	if len(principleScores) > 0 {
		overall = sum / float64(len(principleScores))
	}

	var recommendations, concerns []string
	if overall < alignmentThreshold {
		concerns = append(concerns, "Low alignment score - review response for ethical concerns")
	}
	for _, viol := range inputVal.Violations {
		concerns = append(concerns, "Input: "+viol)
	}
	for _, viol := range outputVal.Violations {
		concerns = append(concerns, "Output: "+viol)
	}
	if len(inputVal.Warnings) > 0 {
		recommendations = append(recommendations, "Consider rephrasing input to avoid potential issues")
	}
	if len(outputVal.Warnings) > 0 {
		recommendations = append(recommendations, "Review output for unethical elements")
	}
	if selfAssessment != "" {
		assessmentVal := v.validateContent(selfAssessment)
		if assessmentVal.Passed {
			recommendations = append(recommendations, "Self-assessment shows good reflection")
		} else {
			concerns = append(concerns, "Self-assessment may need improvement")
		}
	}

	aligned := overall >= alignmentThreshold && len(concerns) == 0

	return AlignmentResponse{
		Aligned:         aligned,
		AlignmentScore:  overall,
		PrincipleScores: principleScores,
		Recommendations: recommendations,
		Concerns:        concerns,
		Timestamp:       time.Now().UTC(),
	}
}

// CreatePolicy signs content as SHA-256 of its canonical JSON (sorted
// keys) and persists it as the active policy.
func (v *Validator) CreatePolicy(ctx context.Context, name string, content map[string]any, version string) (*Policy, error) {
	canonical, err := canonicalJSON(content)
	if err != nil {
		return nil, core.NewKindError(err, core.KindInvalidInput, map[string]any{"name": name})
	}
	sum := sha256.Sum256(canonical)
	id, err := core.NewID()
	if err != nil {
		return nil, core.NewKindError(err, core.KindTransientInternal, nil)
	}
	p := &Policy{
		ID:        id.String(),
		Version:   version,
		Name:      name,
		Content:   content,
		IsActive:  true,
		Signature: hex.EncodeToString(sum[:]),
		CreatedAt: time.Now().UTC(),
	}
	if v.repo != nil {
		if err := v.repo.InsertPolicy(ctx, p); err != nil {
			return nil, core.NewKindError(err, core.KindTransientInternal, map[string]any{"policy_name": name})
		}
	}
	return p, nil
}

// LogAudit appends an audit log entry. It is best-effort: a persistence
// failure is logged and swallowed, never propagated to the caller.
func (v *Validator) LogAudit(ctx context.Context, action Action, ctxData map[string]any, policyID, userID *string) {
	if v.repo == nil {
		return
	}
	id, err := core.NewID()
	if err != nil {
		logger.FromContext(ctx).Error("policy: failed to allocate audit id", "error", err)
		return
	}
	entry := &AuditLog{
		ID:        id.String(),
		Action:    action,
		Context:   ctxData,
		PolicyID:  policyID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := v.repo.InsertAudit(ctx, entry); err != nil {
		logger.FromContext(ctx).Error("policy: failed to persist audit log", "error", err, "action", action)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncatePattern(p string) string {
	const max = 30
	if len(p) <= max {
		return p
	}
	return p[:max] + "..."
}

// canonicalJSON marshals v with map keys sorted recursively, matching the
// reference implementation's json.dumps(..., sort_keys=True).
func canonicalJSON(v map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]byte, 0, 256)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		var vb []byte
		switch val := v[k].(type) {
		case map[string]any:
			vb, err = canonicalJSON(val)
		default:
			vb, err = json.Marshal(val)
		}
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, vb...)
	}
	ordered = append(ordered, '}')
	return ordered, nil
}
