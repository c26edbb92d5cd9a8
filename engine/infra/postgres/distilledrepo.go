package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/learnloop/cortex/engine/distillation"
)

// DistilledRepo is the Postgres-backed distillation.Repository.
type DistilledRepo struct {
	db *Store
}

// NewDistilledRepo builds a DistilledRepo.
func NewDistilledRepo(db *Store) *DistilledRepo {
	return &DistilledRepo{db: db}
}

var _ distillation.Repository = (*DistilledRepo)(nil)

// Insert writes a new distilled_knowledge row.
func (r *DistilledRepo) Insert(ctx context.Context, k *distillation.Knowledge) error {
	sqlStr, args, err := usageBuilder.
		Insert("distilled_knowledge").
		Columns("id", "user_id", "source_reflections", "topic", "principle", "confidence", "created_at").
		Values(k.ID, k.UserID, k.SourceReflections, k.Topic, k.Principle, k.Confidence, k.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("distilled repo: build insert: %w", err)
	}
	if _, err := r.db.Pool().Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("distilled repo: insert: %w", err)
	}
	return nil
}

// RecentByUser returns a user's most recent distilled principles.
func (r *DistilledRepo) RecentByUser(ctx context.Context, userID string, limit int) ([]distillation.Knowledge, error) {
	sqlStr, args, err := usageBuilder.
		Select("id", "user_id", "source_reflections", "topic", "principle", "confidence", "created_at").
		From("distilled_knowledge").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("distilled repo: build recent query: %w", err)
	}
	rows, err := r.db.Pool().Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("distilled repo: recent query: %w", err)
	}
	defer rows.Close()
	var out []distillation.Knowledge
	for rows.Next() {
		var k distillation.Knowledge
		if err := rows.Scan(&k.ID, &k.UserID, &k.SourceReflections, &k.Topic, &k.Principle, &k.Confidence, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("distilled repo: scan row: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
