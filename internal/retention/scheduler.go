package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	redisstore "github.com/gosuda/wardline/internal/store/redis"
)

// DefaultSchedule runs the sweep hourly.
const DefaultSchedule = "@every 1h"

// ErrSkipped is returned by RunOnce when another replica holds the sweep lock.
var ErrSkipped = errors.New("retention: sweep held by another replica")

// Locker hands out the cross-replica sweep lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (*redisstore.Lock, error)
}

// Scheduler runs the sweeper on a cron schedule. Each tick first takes the
// redis sweep lock so only one replica sweeps at a time. Ticks that find the
// previous sweep still running are skipped.
type Scheduler struct {
	sweeper *Sweeper
	locker  Locker
	lockTTL time.Duration
	cron    *cron.Cron

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler parses spec (robfig/cron syntax, including descriptors such as
// "@every 1h"). A nil locker sweeps without coordination.
func NewScheduler(sweeper *Sweeper, locker Locker, spec string, lockTTL time.Duration) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}

	s := &Scheduler{
		sweeper: sweeper,
		locker:  locker,
		lockTTL: lockTTL,
	}

	logger := cronLogger{}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("retention.NewScheduler: invalid schedule %q: %w", spec, err)
	}

	return s, nil
}

// Start begins scheduling. Sweeps run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	log.Info().Msg("retention.Scheduler: started")
}

// Stop cancels any running sweep and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	log.Info().Msg("retention.Scheduler: stopped")
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	_, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrSkipped):
		log.Debug().Msg("retention.Scheduler: sweep held elsewhere, skipping")
	case err != nil:
		log.Error().Err(err).Msg("retention.Scheduler: sweep failed")
	}
}

// RunOnce takes the sweep lock and runs a single sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	if s.locker == nil {
		return s.sweeper.Sweep(ctx)
	}

	lock, err := s.locker.TryLock(ctx, redisstore.RetentionLockKey, s.lockTTL)
	if errors.Is(err, redisstore.ErrLockHeld) {
		return nil, ErrSkipped
	}
	if err != nil {
		return nil, fmt.Errorf("retention.Scheduler.RunOnce: %w", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("retention.Scheduler.RunOnce: release lock")
		}
	}()

	return s.sweeper.Sweep(ctx)
}

// cronLogger routes cron's internal logging through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
