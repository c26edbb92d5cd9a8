package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnloop/cortex/engine/distillation"
)

// DistillLock is the Postgres-backed distillation.Locker: a non-blocking
// advisory lock scoped to one dedicated connection, mirroring the
// pg_advisory_lock pattern ApplyMigrationsWithLock uses for migrations,
// but with pg_try_advisory_lock so an overlapping fire skips instead of
// blocking.
type DistillLock struct {
	pool *pgxpool.Pool
	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewDistillLock builds a DistillLock.
func NewDistillLock(db *Store) *DistillLock {
	return &DistillLock{pool: db.Pool()}
}

var _ distillation.Locker = (*DistillLock)(nil)

// TryLock attempts to acquire the advisory lock without blocking. A
// dedicated connection is held until Unlock, since Postgres advisory
// locks are session-scoped.
func (l *DistillLock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("distill lock: acquire connection: %w", err)
	}
	var acquired bool
	if err := conn.QueryRow(
		ctx,
		"select pg_try_advisory_lock(hashtext($1), hashtext($2))",
		"cortex", "distillation",
	).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("distill lock: try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Unlock releases the advisory lock and returns the connection to the pool.
func (l *DistillLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.Exec(ctx, "select pg_advisory_unlock(hashtext($1), hashtext($2))", "cortex", "distillation")
	l.conn.Release()
	l.conn = nil
	if err != nil {
		return fmt.Errorf("distill lock: release advisory lock: %w", err)
	}
	return nil
}
