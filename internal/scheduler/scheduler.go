package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/kmanager/internal/clock"
	"github.com/smallbiznis/kmanager/internal/config"
	contractdomain "github.com/smallbiznis/kmanager/internal/contract/domain"
	"github.com/smallbiznis/kmanager/internal/lock"
	obsmetrics "github.com/smallbiznis/kmanager/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobContractBilling = "contract_billing"

	batchLockKey = "kmanager:scheduler:contract_billing"
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	// ErrLockHeld is returned when another replica owns the batch lock.
	ErrLockHeld = errors.New("batch_lock_held")
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Billing    *config.BillingConfigHolder
	BillingSvc contractdomain.BillingService

	Locker  lock.Locker                  `optional:"true"`
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

// Scheduler triggers the contract billing batch on the configured cron
// schedule. Reloading billing.yml reschedules it in place.
type Scheduler struct {
	log        *zap.Logger
	clock      clock.Clock
	billing    *config.BillingConfigHolder
	billingSvc contractdomain.BillingService
	locker     lock.Locker
	metrics    *obsmetrics.SchedulerMetrics

	mu       sync.Mutex
	cron     *cron.Cron
	schedule string
	location string
	running  bool
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Billing == nil || p.BillingSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		clock:      p.Clock,
		billing:    p.Billing,
		billingSvc: p.BillingSvc,
		locker:     p.Locker,
		metrics:    p.Metrics,
	}, nil
}

// Start schedules the billing job and begins ticking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := s.scheduleLocked(s.billing.Get()); err != nil {
		return err
	}
	s.running = true
	s.billing.OnChange(s.reschedule)
	return nil
}

// Stop halts the cron and returns a context that is done once the
// in-flight billing job, if any, has returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := s.cron.Stop()
	s.cron = nil
	return ctx
}

func (s *Scheduler) reschedule(cfg config.BillingConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	if cfg.Schedule == s.schedule && cfg.Timezone == s.location {
		return
	}
	if err := s.scheduleLocked(cfg); err != nil {
		s.log.Error("scheduler.reschedule.failed", zap.String("schedule", cfg.Schedule), zap.Error(err))
		return
	}
	s.log.Info("scheduler.rescheduled",
		zap.String("schedule", cfg.Schedule),
		zap.String("timezone", cfg.Timezone),
	)
}

func (s *Scheduler) scheduleLocked(cfg config.BillingConfig) error {
	next := cron.New(cron.WithLocation(cfg.Location()))
	if _, err := next.AddFunc(strings.TrimSpace(cfg.Schedule), s.tick); err != nil {
		return fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, cfg.Schedule, err)
	}

	if s.cron != nil {
		s.cron.Stop()
	}
	s.cron = next
	s.schedule = cfg.Schedule
	s.location = cfg.Timezone
	next.Start()
	return nil
}

func (s *Scheduler) tick() {
	_, err := s.RunBilling(context.Background())
	if err != nil && !errors.Is(err, ErrLockHeld) {
		s.log.Error("scheduler.tick.failed",
			zap.String("job", JobContractBilling),
			zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
			zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
			zap.Error(err),
		)
	}
}

// RunBilling executes one billing batch for every company under the batch
// lock and the configured timeout.
func (s *Scheduler) RunBilling(parent context.Context) (contractdomain.BatchResult, error) {
	cfg := s.billing.Get()

	release, err := s.acquire(parent, cfg.LockTTL)
	if err != nil {
		return contractdomain.BatchResult{}, err
	}
	defer release()

	var result contractdomain.BatchResult
	err = s.runJob(parent, JobContractBilling, cfg.BatchTimeout, func(ctx context.Context, run *jobRun) error {
		var runErr error
		result, runErr = s.billingSvc.GenerateDue(ctx, contractdomain.GenerateDueRequest{
			Today:   cfg.Today(s.clock.Now()),
			BatchID: run.runID,
		})
		run.AddProcessed(len(result.Runs))
		for i := 0; i < result.Failed; i++ {
			run.IncError()
		}
		s.metrics.AddBatchProcessed(JobContractBilling, "contracts", len(result.Runs))
		return runErr
	})
	return result, err
}

func (s *Scheduler) acquire(ctx context.Context, ttl time.Duration) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	token, ok, err := s.locker.TryLock(ctx, batchLockKey, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}
	if !ok {
		s.metrics.IncBatchDeferred(JobContractBilling, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.log.Info("scheduler.batch.deferred",
			zap.String("job", JobContractBilling),
			zap.String("reason", obsmetrics.SchedulerBatchDeferredReasonLockHeld),
		)
		return nil, ErrLockHeld
	}

	return func() {
		if err := s.locker.Release(context.Background(), batchLockKey, token); err != nil {
			s.log.Warn("scheduler.batch.lock_release_failed", zap.Error(err))
		}
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	err := fn(ctx, run)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// A timeout leaves the remaining contracts due for the next tick.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.String("run_id", run.runID),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func newRunID() string {
	return ulid.Make().String()
}
