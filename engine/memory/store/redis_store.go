// Package store implements the Redis Tier Store (C5): a per-session STM
// ring buffer and a per-user ITM sorted set of memory references, each on
// its own Redis logical database.
package store

import (
	"context"
	"encoding/json"
	"time"

	rds "github.com/redis/go-redis/v9"

	"github.com/learnloop/cortex/pkg/logger"
)

// Interaction is one STM ring-buffer entry.
type Interaction struct {
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Timestamp time.Time `json:"timestamp"`
}

// ITMEntry is one ITM sorted-set member surfaced to callers.
type ITMEntry struct {
	MemoryID    string
	AccessCount int64
}

// Config tunes ring-buffer size and TTLs.
type Config struct {
	STMMaxSize int
	STMTTL     time.Duration
	ITMMaxSize int
	ITMTTL     time.Duration
}

// RedisStore is the Redis Tier Store (C5) public API. STM and ITM live on
// separate logical databases so a runaway session history can never starve
// the ITM sorted sets (or vice versa).
type RedisStore struct {
	stm *rds.Client
	itm *rds.Client
	cfg Config
}

// New builds a RedisStore over two database-scoped clients.
func New(stmClient, itmClient *rds.Client, cfg Config) *RedisStore {
	if cfg.STMMaxSize <= 0 {
		cfg.STMMaxSize = 20
	}
	if cfg.STMTTL <= 0 {
		cfg.STMTTL = time.Hour
	}
	if cfg.ITMMaxSize <= 0 {
		cfg.ITMMaxSize = 100
	}
	if cfg.ITMTTL <= 0 {
		cfg.ITMTTL = 7 * 24 * time.Hour
	}
	return &RedisStore{stm: stmClient, itm: itmClient, cfg: cfg}
}

func stmKey(sessionID string) string { return "stm:" + sessionID }
func itmKey(userID string) string    { return "itm:" + userID }

// StoreSTM appends interaction to the session's ring buffer, truncates it
// to the configured max size, and resets the TTL to a fresh window — every
// write extends the session's lifetime.
func (s *RedisStore) StoreSTM(ctx context.Context, sessionID string, interaction Interaction) error {
	key := stmKey(sessionID)
	existing, err := s.stm.Get(ctx, key).Result()
	var interactions []Interaction
	if err == nil && existing != "" {
		if uerr := json.Unmarshal([]byte(existing), &interactions); uerr != nil {
			logger.FromContext(ctx).Warn("stm: discarding unparseable buffer", "session_id", sessionID, "error", uerr)
			interactions = nil
		}
	} else if err != nil && err != rds.Nil {
		return err
	}
	interactions = append(interactions, interaction)
	if len(interactions) > s.cfg.STMMaxSize {
		interactions = interactions[len(interactions)-s.cfg.STMMaxSize:]
	}
	data, err := json.Marshal(interactions)
	if err != nil {
		return err
	}
	return s.stm.SetEx(ctx, key, data, s.cfg.STMTTL).Err()
}

// GetSTM returns the session's buffered interactions, oldest first. limit
// <= 0 returns the full buffer; otherwise the most recent limit entries.
func (s *RedisStore) GetSTM(ctx context.Context, sessionID string, limit int) ([]Interaction, error) {
	data, err := s.stm.Get(ctx, stmKey(sessionID)).Result()
	if err == rds.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var interactions []Interaction
	if err := json.Unmarshal([]byte(data), &interactions); err != nil {
		return nil, err
	}
	if limit > 0 && len(interactions) > limit {
		interactions = interactions[len(interactions)-limit:]
	}
	return interactions, nil
}

// ClearSTM deletes a session's buffer.
func (s *RedisStore) ClearSTM(ctx context.Context, sessionID string) error {
	return s.stm.Del(ctx, stmKey(sessionID)).Err()
}

// StoreITM upserts memoryID into the user's ITM sorted set scored by
// accessCount, refreshes the sliding TTL, and evicts the lowest-scored
// members once the set exceeds the configured max size.
func (s *RedisStore) StoreITM(ctx context.Context, userID, memoryID string, accessCount int64) error {
	key := itmKey(userID)
	pipe := s.itm.Pipeline()
	pipe.ZAdd(ctx, key, rds.Z{Score: float64(accessCount), Member: memoryID})
	pipe.Expire(ctx, key, s.cfg.ITMTTL)
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if count := card.Val(); count > int64(s.cfg.ITMMaxSize) {
		if err := s.itm.ZPopMin(ctx, key, count-int64(s.cfg.ITMMaxSize)).Err(); err != nil {
			return err
		}
	}
	return nil
}

// GetITM returns the user's ITM entries ordered by access count, highest
// first. limit <= 0 defaults to the configured max size.
func (s *RedisStore) GetITM(ctx context.Context, userID string, limit int) ([]ITMEntry, error) {
	if limit <= 0 {
		limit = s.cfg.ITMMaxSize
	}
	raw, err := s.itm.ZRevRangeWithScores(ctx, itmKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ITMEntry, 0, len(raw))
	for _, z := range raw {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, ITMEntry{MemoryID: member, AccessCount: int64(z.Score)})
	}
	return out, nil
}

// IncrementITMAccess bumps memoryID's score by 1 and refreshes the TTL.
func (s *RedisStore) IncrementITMAccess(ctx context.Context, userID, memoryID string) error {
	key := itmKey(userID)
	pipe := s.itm.Pipeline()
	pipe.ZIncrBy(ctx, key, 1, memoryID)
	pipe.Expire(ctx, key, s.cfg.ITMTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveFromITM drops memoryID from the user's ITM set, typically once
// it has been promoted to LTM.
func (s *RedisStore) RemoveFromITM(ctx context.Context, userID, memoryID string) error {
	return s.itm.ZRem(ctx, itmKey(userID), memoryID).Err()
}

// ClearITM deletes a user's entire ITM set.
func (s *RedisStore) ClearITM(ctx context.Context, userID string) error {
	return s.itm.Del(ctx, itmKey(userID)).Err()
}

// HealthCheck pings both databases and reports key counts for the
// redis_key_count gauge.
func (s *RedisStore) HealthCheck(ctx context.Context) (stmHealthy, itmHealthy bool, stmKeys, itmKeys int64) {
	stmHealthy = s.stm.Ping(ctx).Err() == nil
	itmHealthy = s.itm.Ping(ctx).Err() == nil
	if stmHealthy {
		stmKeys = countKeys(ctx, s.stm, "stm:*")
	}
	if itmHealthy {
		itmKeys = countKeys(ctx, s.itm, "itm:*")
	}
	return stmHealthy, itmHealthy, stmKeys, itmKeys
}

func countKeys(ctx context.Context, client *rds.Client, pattern string) int64 {
	var count int64
	iter := client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}
