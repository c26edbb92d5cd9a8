package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/engine/usage"
)

var usageBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// UsageLedgerRepo is the Postgres-backed usage.Repository.
type UsageLedgerRepo struct {
	db *Store
}

// NewUsageLedgerRepo builds a UsageLedgerRepo.
func NewUsageLedgerRepo(db *Store) *UsageLedgerRepo {
	return &UsageLedgerRepo{db: db}
}

var _ usage.Repository = (*UsageLedgerRepo)(nil)

// Record appends a usage_ledger row.
func (r *UsageLedgerRepo) Record(ctx context.Context, e *usage.Entry) error {
	metadata, err := ToJSONB(e.Metadata)
	if err != nil {
		return fmt.Errorf("usage ledger: marshal metadata: %w", err)
	}
	sql, args, err := usageBuilder.
		Insert("usage_ledger").
		Columns("id", "user_id", "resource_type", "amount", "metadata", "timestamp").
		Values(e.ID, e.UserID, string(e.ResourceType), e.Amount, metadata, e.Timestamp).
		ToSql()
	if err != nil {
		return fmt.Errorf("usage ledger: build insert: %w", err)
	}
	if _, err := r.db.Pool().Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("usage ledger: insert: %w", err)
	}
	return nil
}

// Today sums a resource's entries for the current UTC calendar day.
func (r *UsageLedgerRepo) Today(ctx context.Context, userID string, resource core.ResourceType) (int64, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	sqlStr, args, err := usageBuilder.
		Select("COALESCE(SUM(amount), 0)").
		From("usage_ledger").
		Where(sq.Eq{"user_id": userID, "resource_type": string(resource)}).
		Where(sq.GtOrEq{"\"timestamp\"": start}).
		Where(sq.Lt{"\"timestamp\"": end}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("usage ledger: build today query: %w", err)
	}
	var total int64
	row := r.db.Pool().QueryRow(ctx, sqlStr, args...)
	if err := row.Scan(&total); err != nil && err != pgx.ErrNoRows {
		return 0, fmt.Errorf("usage ledger: scan today: %w", err)
	}
	return total, nil
}

// RangeStats returns per-resource daily amount rollups over the last days days.
func (r *UsageLedgerRepo) RangeStats(ctx context.Context, userID string, days int) (map[core.ResourceType][]usage.DayPoint, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	sqlStr, args, err := usageBuilder.
		Select("resource_type", "date(\"timestamp\") as day", "SUM(amount) as total").
		From("usage_ledger").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.GtOrEq{"\"timestamp\"": since}).
		GroupBy("resource_type", "day").
		OrderBy("day ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("usage ledger: build range query: %w", err)
	}
	rows, err := r.db.Pool().Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("usage ledger: range query: %w", err)
	}
	defer rows.Close()
	out := make(map[core.ResourceType][]usage.DayPoint)
	for rows.Next() {
		var resourceType string
		var day time.Time
		var total int64
		if err := rows.Scan(&resourceType, &day, &total); err != nil {
			return nil, fmt.Errorf("usage ledger: scan range row: %w", err)
		}
		rt := core.ResourceType(resourceType)
		out[rt] = append(out[rt], usage.DayPoint{Date: day, Amount: total})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("usage ledger: range rows: %w", err)
	}
	return out, nil
}
