package distillation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnloop/cortex/pkg/config"
)

type fakeLocker struct {
	locked      bool
	tryErr      error
	unlockErr   error
	tryCalls    int
	unlockCalls int
}

func (f *fakeLocker) TryLock(context.Context) (bool, error) {
	f.tryCalls++
	if f.tryErr != nil {
		return false, f.tryErr
	}
	if f.locked {
		return false, nil
	}
	f.locked = true
	return true, nil
}

func (f *fakeLocker) Unlock(context.Context) error {
	f.unlockCalls++
	f.locked = false
	return f.unlockErr
}

func TestFire_RunsDistillerWhenLockAcquired(t *testing.T) {
	source := &fakeSource{}
	d := New(source, &fakeKnowledgeRepo{}, config.Default(), nil)
	locker := &fakeLocker{}
	s := NewScheduler(d, 2, locker)

	s.fire(context.Background())
	assert.Equal(t, 1, locker.tryCalls)
	assert.Equal(t, 1, locker.unlockCalls)
}

func TestFire_SkipsWhenLockUnavailable(t *testing.T) {
	source := &fakeSource{}
	d := New(source, &fakeKnowledgeRepo{}, config.Default(), nil)
	locker := &fakeLocker{locked: true}
	s := NewScheduler(d, 2, locker)

	s.fire(context.Background())
	assert.Equal(t, 1, locker.tryCalls)
	assert.Equal(t, 0, locker.unlockCalls)
}

func TestNewScheduler_DefaultsToNoopLocker(t *testing.T) {
	source := &fakeSource{}
	d := New(source, &fakeKnowledgeRepo{}, config.Default(), nil)
	s := NewScheduler(d, 2, nil)
	require.NotNil(t, s.locker)

	s.fire(context.Background())
}
