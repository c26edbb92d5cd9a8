package distillation

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/learnloop/cortex/pkg/logger"
)

// Locker guards against two distillation runs overlapping. A fire is
// skipped, not queued, when TryLock reports false: the run-on-startup call
// and the nightly cron fire can race on process restart, and the spec
// requires the later one to back off rather than double-run.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// noopLocker never contends; used when no Locker is configured (e.g. a
// single-process deployment where overlap cannot occur).
type noopLocker struct{}

func (noopLocker) TryLock(context.Context) (bool, error) { return true, nil }
func (noopLocker) Unlock(context.Context) error          { return nil }

// Scheduler drives a Distiller on a daily UTC schedule plus one run at
// startup, per spec.md §4.10.
type Scheduler struct {
	distiller    *Distiller
	locker       Locker
	cron         *cron.Cron
	scheduleHour int
}

// NewScheduler builds a Scheduler. locker may be nil (single-instance
// guard becomes a no-op).
func NewScheduler(distiller *Distiller, scheduleHour int, locker Locker) *Scheduler {
	if locker == nil {
		locker = noopLocker{}
	}
	return &Scheduler{
		distiller:    distiller,
		locker:       locker,
		scheduleHour: scheduleHour,
		cron:         cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start registers the daily job and runs one pass immediately for the
// startup run the spec requires, then starts the cron driver. It does not
// block; call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("0 %d * * *", s.scheduleHour)
	if _, err := s.cron.AddFunc(spec, func() { s.fire(ctx) }); err != nil {
		return fmt.Errorf("distillation scheduler: register cron job: %w", err)
	}
	s.cron.Start()
	go s.fire(ctx)
	return nil
}

// Stop halts the cron driver, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) fire(ctx context.Context) {
	log := logger.FromContext(ctx)
	acquired, err := s.locker.TryLock(ctx)
	if err != nil {
		log.Error("distillation: lock attempt failed", "error", err)
		return
	}
	if !acquired {
		log.Info("distillation: skipping fire, prior run still active")
		return
	}
	defer func() {
		if err := s.locker.Unlock(ctx); err != nil {
			log.Warn("distillation: failed to release lock", "error", err)
		}
	}()
	s.distiller.Run(ctx)
}
