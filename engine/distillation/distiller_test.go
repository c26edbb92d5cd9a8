package distillation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/engine/memory"
	"github.com/learnloop/cortex/pkg/config"
)

type fakeSource struct {
	reflections    []memory.Memory
	reflectionsErr error
	promoted       int64
	promoteErr     error
	expired        int64
	expireErr      error
}

func (f *fakeSource) RecentReflections(context.Context, int) ([]memory.Memory, error) {
	return f.reflections, f.reflectionsErr
}

func (f *fakeSource) PromoteITMToLTM(context.Context, int64) (int64, error) {
	return f.promoted, f.promoteErr
}

func (f *fakeSource) ExpireStale(context.Context) (int64, error) {
	return f.expired, f.expireErr
}

type fakeKnowledgeRepo struct {
	inserted  []*Knowledge
	insertErr error
}

func (f *fakeKnowledgeRepo) Insert(_ context.Context, k *Knowledge) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, k)
	return nil
}

func (f *fakeKnowledgeRepo) RecentByUser(context.Context, string, int) ([]Knowledge, error) {
	return nil, nil
}

func reflection(userID, topic string, weight, confidence float64, outcome core.Outcome, a3 string) memory.Memory {
	tags := []string{"reflection", "self-assessment", "alignment"}
	if topic != "" {
		tags = append(tags, topic)
	}
	return memory.Memory{
		ID:              "mem_" + topic + "_" + userID,
		UserID:          userID,
		Tags:            tags,
		EmotionalWeight: weight,
		ConfidenceScore: confidence,
		Outcome:         outcome,
		OutputResponse:  "Q3: How could I improve my response for next time?\nA3: " + a3 + "\n",
		CreatedAt:       time.Now().UTC(),
	}
}

func TestRun_DistillsQualifyingGroup(t *testing.T) {
	source := &fakeSource{reflections: []memory.Memory{
		reflection("u1", "scheduling", 0.1, 0.9, core.OutcomeSuccess, "Ask clarifying questions earlier."),
		reflection("u1", "scheduling", 0.1, 0.85, core.OutcomeSuccess, "Ask clarifying questions earlier."),
	}}
	repo := &fakeKnowledgeRepo{}
	d := New(source, repo, config.Default(), nil)

	summary := d.Run(context.Background())
	require.Empty(t, summary.Errors)
	assert.Equal(t, 2, summary.ReflectionsProcessed)
	assert.Equal(t, 1, summary.KnowledgeDistilled)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "scheduling", repo.inserted[0].Topic)
	assert.Equal(t, "u1", repo.inserted[0].UserID)
	assert.Contains(t, repo.inserted[0].Principle, "Ask clarifying questions earlier.")
}

func TestRun_SkipsGroupBelowMinimumSize(t *testing.T) {
	source := &fakeSource{reflections: []memory.Memory{
		reflection("u1", "scheduling", 0.9, 0.9, core.OutcomeSuccess, "x"),
	}}
	d := New(source, &fakeKnowledgeRepo{}, config.Default(), nil)

	summary := d.Run(context.Background())
	assert.Equal(t, 0, summary.KnowledgeDistilled)
}

func TestRun_SkipsGroupFailingCriterion(t *testing.T) {
	source := &fakeSource{reflections: []memory.Memory{
		reflection("u1", "scheduling", 0.01, 0.2, core.OutcomeNeutral, "x"),
		reflection("u1", "scheduling", 0.01, 0.2, core.OutcomeNeutral, "y"),
	}}
	d := New(source, &fakeKnowledgeRepo{}, config.Default(), nil)

	summary := d.Run(context.Background())
	assert.Equal(t, 0, summary.KnowledgeDistilled)
}

func TestRun_UsesGeneralTopicWhenNoCustomTag(t *testing.T) {
	source := &fakeSource{reflections: []memory.Memory{
		reflection("u1", "", 0.9, 0.9, core.OutcomeSuccess, "a"),
		reflection("u1", "", 0.9, 0.9, core.OutcomeSuccess, "b"),
	}}
	repo := &fakeKnowledgeRepo{}
	d := New(source, repo, config.Default(), nil)

	d.Run(context.Background())
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, fallbackTopic, repo.inserted[0].Topic)
}

func TestRun_IsolatesPerTopicInsertFailures(t *testing.T) {
	source := &fakeSource{reflections: []memory.Memory{
		reflection("u1", "a", 0.9, 0.9, core.OutcomeSuccess, "x"),
		reflection("u1", "a", 0.9, 0.9, core.OutcomeSuccess, "x"),
		reflection("u1", "b", 0.9, 0.9, core.OutcomeSuccess, "y"),
		reflection("u1", "b", 0.9, 0.9, core.OutcomeSuccess, "y"),
	}}
	repo := &fakeKnowledgeRepo{insertErr: errors.New("insert failed")}
	d := New(source, repo, config.Default(), nil)

	summary := d.Run(context.Background())
	assert.Equal(t, 0, summary.KnowledgeDistilled)
	assert.Len(t, summary.Errors, 2)
}

func TestRun_PromotesAndExpiresEvenWithNoReflections(t *testing.T) {
	source := &fakeSource{promoted: 4, expired: 7}
	d := New(source, &fakeKnowledgeRepo{}, config.Default(), nil)

	summary := d.Run(context.Background())
	assert.Equal(t, int64(4), summary.MemoriesPromoted)
	assert.Equal(t, int64(7), summary.MemoriesExpired)
}

func TestRun_RecordsFetchErrorWithoutPanicking(t *testing.T) {
	source := &fakeSource{reflectionsErr: errors.New("db down")}
	d := New(source, &fakeKnowledgeRepo{}, config.Default(), nil)

	summary := d.Run(context.Background())
	assert.Len(t, summary.Errors, 1)
	assert.Equal(t, 0, summary.ReflectionsProcessed)
}

func TestTopicOf_FallsBackToGeneral(t *testing.T) {
	assert.Equal(t, fallbackTopic, topicOf([]string{"reflection", "self-assessment", "alignment"}))
	assert.Equal(t, "custom", topicOf([]string{"reflection", "custom"}))
}
