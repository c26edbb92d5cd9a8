package reflection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/engine/memory"
	"github.com/learnloop/cortex/engine/policy"
)

type fakeStore struct {
	calls []memory.StoreRequest
	err   error
	fails int // number of leading calls to fail before succeeding
}

func (f *fakeStore) Store(_ context.Context, _, _ string, req memory.StoreRequest) (*memory.Memory, error) {
	f.calls = append(f.calls, req)
	if len(f.calls) <= f.fails {
		return nil, core.NewKindError(errors.New("store unavailable"), core.KindTransientInternal, nil)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &memory.Memory{ID: "mem_1"}, nil
}

func newValidator() *policy.Validator {
	return policy.New(nil, nil)
}

func TestProcess_StoresReflectionWithExpectedShape(t *testing.T) {
	store := &fakeStore{}
	w := New(newValidator(), store, nil)

	task := Task{
		UserID:           "user_1",
		SessionID:        "sess_1",
		InputText:        "Help me plan a study schedule for my exam next week.",
		OutputText:       "Sure, here is a five day study plan broken down by subject.",
		SubscriptionTier: "basic",
	}

	err := w.Process(context.Background(), task)
	require.NoError(t, err)
	require.Len(t, store.calls, 1)

	req := store.calls[0]
	assert.Equal(t, core.MemoryTypeReflection, req.Type)
	assert.Equal(t, core.TierLTM, req.Tier)
	assert.Equal(t, "sess_1", req.SessionID)
	assert.Equal(t, "Reflection on interaction", req.InputContext)
	assert.Contains(t, req.OutputResponse, "Q1: What did I attempt to accomplish?")
	assert.Contains(t, req.OutputResponse, "Q2: Was my response aligned with my constitutional principles?")
	assert.Contains(t, req.OutputResponse, "Q3: How could I improve my response for next time?")
	assert.ElementsMatch(t, []string{"reflection", "self-assessment", "alignment"}, req.Tags)
	assert.Equal(t, req.ConfidenceScore >= 0.7, req.Outcome == core.OutcomeSuccess)
}

func TestProcess_DefaultsSubscriptionTierWhenMissing(t *testing.T) {
	store := &fakeStore{}
	w := New(newValidator(), store, nil)

	err := w.Process(context.Background(), Task{
		UserID:     "user_2",
		SessionID:  "sess_2",
		InputText:  "What is the capital of France?",
		OutputText: "The capital of France is Paris.",
	})
	require.NoError(t, err)
	require.Len(t, store.calls, 1)
}

func TestProcess_RetriesTransientStoreFailure(t *testing.T) {
	store := &fakeStore{fails: 2}
	w := New(newValidator(), store, nil)

	err := w.Process(context.Background(), Task{
		UserID:     "user_3",
		SessionID:  "sess_3",
		InputText:  "Explain photosynthesis simply.",
		OutputText: "Photosynthesis is how plants convert light into energy.",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, len(store.calls))
}

func TestProcess_NonTransientStoreErrorIsNotRetried(t *testing.T) {
	store := &fakeStore{err: errors.New("permanently broken")}
	w := New(newValidator(), store, nil)

	err := w.Process(context.Background(), Task{
		UserID:     "user_4",
		SessionID:  "sess_4",
		InputText:  "hi",
		OutputText: "hello",
	})
	require.Error(t, err)
	assert.Len(t, store.calls, 1)
}

func TestComposeSelfAssessment_IncludesImprovementNotes(t *testing.T) {
	alignment := policy.AlignmentResponse{
		Aligned:         false,
		AlignmentScore:  0.4,
		PrincipleScores: map[string]float64{"honesty": 0.4},
		Recommendations: []string{"Be more specific"},
		Concerns:        []string{"Tone was dismissive"},
	}
	out := composeSelfAssessment("input text", "output text", alignment)
	assert.Contains(t, out, "Be more specific")
	assert.Contains(t, out, "Tone was dismissive")
	assert.Contains(t, out, "Partially")
}

func TestExcerpt_TruncatesLongText(t *testing.T) {
	long := ""
	for i := 0; i < 400; i++ {
		long += "a"
	}
	got := excerpt(long)
	assert.True(t, len(got) < len(long))
	assert.Contains(t, got, "...")
}
