package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rds "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, cfg Config) *RedisStore {
	t.Helper()
	stmMr := miniredis.RunT(t)
	itmMr := miniredis.RunT(t)
	stmClient := rds.NewClient(&rds.Options{Addr: stmMr.Addr()})
	itmClient := rds.NewClient(&rds.Options{Addr: itmMr.Addr()})
	t.Cleanup(func() {
		stmClient.Close()
		itmClient.Close()
	})
	return New(stmClient, itmClient, cfg)
}

func TestStoreSTM_TruncatesToMaxSize(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{STMMaxSize: 3, STMTTL: time.Hour})
	for i := 0; i < 5; i++ {
		err := s.StoreSTM(ctx, "session-1", Interaction{Input: "in", Output: "out", Timestamp: time.Now()})
		require.NoError(t, err)
	}
	got, err := s.GetSTM(ctx, "session-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestGetSTM_MissingSessionReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})
	got, err := s.GetSTM(ctx, "nope", 0)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetSTM_LimitReturnsMostRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{STMMaxSize: 10, STMTTL: time.Hour})
	for i := 0; i < 4; i++ {
		require.NoError(t, s.StoreSTM(ctx, "s", Interaction{Input: string(rune('a' + i))}))
	}
	got, err := s.GetSTM(ctx, "s", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].Input)
	require.Equal(t, "d", got[1].Input)
}

func TestClearSTM(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})
	require.NoError(t, s.StoreSTM(ctx, "s", Interaction{Input: "x"}))
	require.NoError(t, s.ClearSTM(ctx, "s"))
	got, err := s.GetSTM(ctx, "s", 0)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreITM_EvictsLowestScoreOverCap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{ITMMaxSize: 2, ITMTTL: time.Hour})
	require.NoError(t, s.StoreITM(ctx, "user-1", "mem-low", 1))
	require.NoError(t, s.StoreITM(ctx, "user-1", "mem-mid", 5))
	require.NoError(t, s.StoreITM(ctx, "user-1", "mem-high", 10))

	entries, err := s.GetITM(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	ids := []string{entries[0].MemoryID, entries[1].MemoryID}
	require.ElementsMatch(t, []string{"mem-mid", "mem-high"}, ids)
}

func TestGetITM_OrderedDescendingByScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{ITMMaxSize: 10, ITMTTL: time.Hour})
	require.NoError(t, s.StoreITM(ctx, "u", "a", 2))
	require.NoError(t, s.StoreITM(ctx, "u", "b", 9))
	require.NoError(t, s.StoreITM(ctx, "u", "c", 5))

	entries, err := s.GetITM(ctx, "u", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c", "a"}, []string{entries[0].MemoryID, entries[1].MemoryID, entries[2].MemoryID})
}

func TestIncrementITMAccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{ITMMaxSize: 10, ITMTTL: time.Hour})
	require.NoError(t, s.StoreITM(ctx, "u", "a", 1))
	require.NoError(t, s.IncrementITMAccess(ctx, "u", "a"))
	require.NoError(t, s.IncrementITMAccess(ctx, "u", "a"))

	entries, err := s.GetITM(ctx, "u", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(3), entries[0].AccessCount)
}

func TestRemoveFromITM(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{ITMMaxSize: 10, ITMTTL: time.Hour})
	require.NoError(t, s.StoreITM(ctx, "u", "a", 1))
	require.NoError(t, s.RemoveFromITM(ctx, "u", "a"))

	entries, err := s.GetITM(ctx, "u", 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{ITMMaxSize: 10, ITMTTL: time.Hour, STMMaxSize: 10, STMTTL: time.Hour})
	require.NoError(t, s.StoreSTM(ctx, "s1", Interaction{Input: "x"}))
	require.NoError(t, s.StoreITM(ctx, "u1", "m1", 1))

	stmHealthy, itmHealthy, stmKeys, itmKeys := s.HealthCheck(ctx)
	require.True(t, stmHealthy)
	require.True(t, itmHealthy)
	require.Equal(t, int64(1), stmKeys)
	require.Equal(t, int64(1), itmKeys)
}
