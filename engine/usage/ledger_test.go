package usage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/pkg/config"
)

type fakeRepo struct {
	recorded    []*Entry
	recordErr   error
	todayAmount int64
	todayErr    error
	rangeStats  map[core.ResourceType][]DayPoint
	rangeErr    error
}

func (r *fakeRepo) Record(_ context.Context, e *Entry) error {
	if r.recordErr != nil {
		return r.recordErr
	}
	r.recorded = append(r.recorded, e)
	return nil
}

func (r *fakeRepo) Today(_ context.Context, _ string, _ core.ResourceType) (int64, error) {
	return r.todayAmount, r.todayErr
}

func (r *fakeRepo) RangeStats(_ context.Context, _ string, _ int) (map[core.ResourceType][]DayPoint, error) {
	return r.rangeStats, r.rangeErr
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.TierLimits = map[string]config.TierLimits{
		"free_trial": {LLMTokensPerDay: 1000, MessagesPerDay: 100, StorageBytes: 1 << 20},
		"pro":        {LLMTokensPerDay: -1, MessagesPerDay: -1, StorageBytes: -1},
	}
	return cfg
}

func TestRecord_AppendsEntryWithGeneratedID(t *testing.T) {
	repo := &fakeRepo{}
	l := New(repo, testConfig())
	err := l.Record(context.Background(), "user-1", core.ResourceLLMTokens, 42, map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.recorded) != 1 {
		t.Fatalf("expected 1 recorded entry, got %d", len(repo.recorded))
	}
	e := repo.recorded[0]
	if e.ID == "" || e.UserID != "user-1" || e.Amount != 42 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestRecord_RepositoryFailurePropagates(t *testing.T) {
	repo := &fakeRepo{recordErr: errors.New("db down")}
	l := New(repo, testConfig())
	err := l.Record(context.Background(), "user-1", core.ResourceLLMTokens, 1, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCheckQuota_UnlimitedTierAlwaysOK(t *testing.T) {
	repo := &fakeRepo{todayAmount: 1_000_000}
	l := New(repo, testConfig())
	ok, msg, err := l.CheckQuota(context.Background(), "user-1", "pro", core.ResourceLLMTokens, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || msg != "unlimited" {
		t.Fatalf("expected unlimited ok result, got ok=%v msg=%q", ok, msg)
	}
}

func TestCheckQuota_WithinLimitReturnsOK(t *testing.T) {
	repo := &fakeRepo{todayAmount: 100}
	l := New(repo, testConfig())
	ok, _, err := l.CheckQuota(context.Background(), "user-1", "free_trial", core.ResourceLLMTokens, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected quota check to pass")
	}
}

func TestCheckQuota_OverLimitReturnsNotOK(t *testing.T) {
	// today=950, requested=100, limit=1000: the message must report
	// today's pre-request usage (950/1000), not the post-request total.
	repo := &fakeRepo{todayAmount: 950}
	l := New(repo, testConfig())
	ok, msg, err := l.CheckQuota(context.Background(), "user-1", "free_trial", core.ResourceLLMTokens, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected quota check to fail when over limit")
	}
	if !strings.Contains(msg, "950/1000") {
		t.Fatalf("expected message to report pre-request usage 950/1000, got %q", msg)
	}
}

func TestCheckQuota_NearLimitStillOKButWarns(t *testing.T) {
	repo := &fakeRepo{todayAmount: 750}
	l := New(repo, testConfig())
	ok, msg, err := l.CheckQuota(context.Background(), "user-1", "free_trial", core.ResourceLLMTokens, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected quota check to still pass at 85%")
	}
	if msg == "" {
		t.Fatal("expected a descriptive warning message")
	}
}

func TestCheckQuota_RepositoryFailurePropagates(t *testing.T) {
	repo := &fakeRepo{todayErr: errors.New("db down")}
	l := New(repo, testConfig())
	_, _, err := l.CheckQuota(context.Background(), "user-1", "free_trial", core.ResourceLLMTokens, 1)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCheckQuota_UnrecognizedTierFallsBackToFreeTrial(t *testing.T) {
	repo := &fakeRepo{todayAmount: 990}
	l := New(repo, testConfig())
	ok, _, err := l.CheckQuota(context.Background(), "user-1", "nonexistent-tier", core.ResourceLLMTokens, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected fallback to free_trial limits to reject the request")
	}
}

func TestTotalStorageBytes_SumsAcrossRange(t *testing.T) {
	repo := &fakeRepo{
		rangeStats: map[core.ResourceType][]DayPoint{
			core.ResourceMemoryStorage: {{Amount: 100}, {Amount: 200}, {Amount: 50}},
		},
	}
	l := New(repo, testConfig())
	total, err := l.TotalStorageBytes(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 350 {
		t.Fatalf("expected 350, got %d", total)
	}
}

func TestTotalStorageBytes_RepositoryFailurePropagates(t *testing.T) {
	repo := &fakeRepo{rangeErr: errors.New("db down")}
	l := New(repo, testConfig())
	_, err := l.TotalStorageBytes(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEstimateMemorySize_AccountsForAllComponents(t *testing.T) {
	size := EstimateMemorySize("input text", "output text", []string{"tag1", "tag2"}, []byte(`{"a":1}`), 384)
	expected := int64(len("input text")+len("output text")) +
		(4 + int64(len("tag1"))) + (4 + int64(len("tag2"))) +
		int64(len(`{"a":1}`)) +
		int64(384)*4 +
		fixedRowOverheadBytes
	if size != expected {
		t.Fatalf("expected %d, got %d", expected, size)
	}
}

func TestEstimateMemorySize_EmptyInputsStillCountsFixedOverhead(t *testing.T) {
	size := EstimateMemorySize("", "", nil, nil, 0)
	if size != fixedRowOverheadBytes {
		t.Fatalf("expected fixed overhead only (%d), got %d", fixedRowOverheadBytes, size)
	}
}
