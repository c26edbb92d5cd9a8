package policy

import "time"

// Result is the closed set of validate_content outcomes.
type Result string

const (
	ResultPassed  Result = "passed"
	ResultWarning Result = "warning"
	ResultFailed  Result = "failed"
)

// ValidationResponse is the result of validate_content.
type ValidationResponse struct {
	Result            Result    `json:"result"`
	Score             float64   `json:"score"`
	Passed            bool      `json:"passed"`
	Violations        []string  `json:"violations"`
	Warnings          []string  `json:"warnings"`
	PrinciplesChecked []string  `json:"principles_checked"`
	Timestamp         time.Time `json:"timestamp"`
}

// AlignmentResponse is the result of validate_alignment.
type AlignmentResponse struct {
	Aligned          bool               `json:"aligned"`
	AlignmentScore   float64            `json:"alignment_score"`
	PrincipleScores  map[string]float64 `json:"principle_scores"`
	Recommendations  []string           `json:"recommendations"`
	Concerns         []string           `json:"concerns"`
	Timestamp        time.Time          `json:"timestamp"`
}

// Action is the closed set of audit-loggable actions.
type Action string

const (
	ActionValidateContent   Action = "validate_content"
	ActionValidateAlignment Action = "validate_alignment"
	ActionCreatePolicy      Action = "create_policy"
)

// Policy is an immutable, signed constitutional rule set.
type Policy struct {
	ID        string         `json:"id"`
	Version   string         `json:"version"`
	Name      string         `json:"name"`
	Content   map[string]any `json:"content"`
	IsActive  bool           `json:"is_active"`
	Signature string         `json:"signature"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditLog is an append-only record of a policy-relevant action.
type AuditLog struct {
	ID        string         `json:"id"`
	Action    Action         `json:"action"`
	Context   map[string]any `json:"context"`
	PolicyID  *string        `json:"policy_id,omitempty"`
	UserID    *string        `json:"user_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
