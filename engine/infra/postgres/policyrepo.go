package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/learnloop/cortex/engine/policy"
)

// PolicyRepo is the Postgres-backed policy.Repository.
type PolicyRepo struct {
	db *Store
}

// NewPolicyRepo builds a PolicyRepo.
func NewPolicyRepo(db *Store) *PolicyRepo {
	return &PolicyRepo{db: db}
}

var _ policy.Repository = (*PolicyRepo)(nil)

// InsertPolicy persists a new signed Policy row.
func (r *PolicyRepo) InsertPolicy(ctx context.Context, p *policy.Policy) error {
	content, err := ToJSONB(p.Content)
	if err != nil {
		return fmt.Errorf("policy repo: marshal content: %w", err)
	}
	sqlStr, args, err := usageBuilder.
		Insert("policies").
		Columns("id", "version", "policy_name", "policy_content", "is_active", "signature", "created_at").
		Values(p.ID, p.Version, p.Name, content, p.IsActive, p.Signature, p.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("policy repo: build insert: %w", err)
	}
	if _, err := r.db.Pool().Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("policy repo: insert: %w", err)
	}
	return nil
}

// InsertAudit appends an audit log entry.
func (r *PolicyRepo) InsertAudit(ctx context.Context, a *policy.AuditLog) error {
	ctxData, err := ToJSONB(a.Context)
	if err != nil {
		return fmt.Errorf("policy repo: marshal audit context: %w", err)
	}
	sqlStr, args, err := usageBuilder.
		Insert("policy_audit_log").
		Columns("id", "action", "context", "policy_id", "user_id", "created_at").
		Values(a.ID, string(a.Action), ctxData, a.PolicyID, a.UserID, a.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("policy repo: build audit insert: %w", err)
	}
	if _, err := r.db.Pool().Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("policy repo: insert audit: %w", err)
	}
	return nil
}

// ActivePolicy loads the currently active policy, if any is configured.
func (r *PolicyRepo) ActivePolicy(ctx context.Context) (*policy.Policy, error) {
	sqlStr, args, err := usageBuilder.
		Select("id", "version", "policy_name", "policy_content", "is_active", "signature", "created_at").
		From("policies").
		Where(sq.Eq{"is_active": true}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("policy repo: build active query: %w", err)
	}
	row := r.db.Pool().QueryRow(ctx, sqlStr, args...)
	var p policy.Policy
	var content []byte
	if err := row.Scan(&p.ID, &p.Version, &p.Name, &content, &p.IsActive, &p.Signature, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("policy repo: scan active: %w", err)
	}
	var contentPtr *map[string]any
	if err := FromJSONB(content, &contentPtr); err != nil {
		return nil, fmt.Errorf("policy repo: unmarshal content: %w", err)
	}
	if contentPtr != nil {
		p.Content = *contentPtr
	}
	return &p, nil
}
