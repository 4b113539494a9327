package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/kmanager/internal/clock"
	"github.com/smallbiznis/kmanager/internal/config"
	contractdomain "github.com/smallbiznis/kmanager/internal/contract/domain"
	obsmetrics "github.com/smallbiznis/kmanager/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type billingMock struct {
	mock.Mock
}

func (m *billingMock) GenerateDue(ctx context.Context, req contractdomain.GenerateDueRequest) (contractdomain.BatchResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(contractdomain.BatchResult), args.Error(1)
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	released []string
	err      error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if ttl <= 0 {
		return "", false, errors.New("ttl")
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.held[key] = "token-" + key
	return l.held[key], true, nil
}

func (l *fakeLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.released = append(l.released, key)
	}
	return nil
}

type fixture struct {
	sched    *Scheduler
	billing  *billingMock
	locker   *fakeLocker
	holder   *config.BillingConfigHolder
	clock    *clock.FakeClock
	registry *prometheus.Registry
}

func newFixture(t *testing.T, withLocker bool) *fixture {
	t.Helper()

	holder, err := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	f := &fixture{
		billing:  &billingMock{},
		holder:   holder,
		clock:    clock.NewFakeClock(time.Date(2026, time.January, 1, 1, 0, 0, 0, time.UTC)),
		registry: registry,
	}

	p := Params{
		Log:        zap.NewNop(),
		Clock:      f.clock,
		Billing:    holder,
		BillingSvc: f.billing,
		Metrics:    obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{ServiceName: "kmanager", Environment: "test"}),
	}
	if withLocker {
		f.locker = newFakeLocker()
		p.Locker = f.locker
	}

	f.sched, err = New(p)
	require.NoError(t, err)
	return f
}

func metricValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)

	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
		}
	}
	return total
}

func hasLabels(m *dto.Metric, labels map[string]string) bool {
	for key, want := range labels {
		found := false
		for _, pair := range m.GetLabel() {
			if pair.GetName() == key && pair.GetValue() == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunBillingUsesBillingDate(t *testing.T) {
	f := newFixture(t, true)

	// 01:00 UTC on Jan 1 is 02:00 in Berlin, still Jan 1.
	want := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	f.billing.On("GenerateDue", mock.Anything, mock.MatchedBy(func(req contractdomain.GenerateDueRequest) bool {
		return req.Today.Equal(want) && len(req.BatchID) == 26 && req.OrgID == 0 && !req.DryRun
	})).Return(contractdomain.BatchResult{
		Runs:      make([]contractdomain.ContractRun, 3),
		Succeeded: 2,
		Failed:    1,
	}, nil).Once()

	result, err := f.sched.RunBilling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	f.billing.AssertExpectations(t)

	assert.Equal(t, float64(1), metricValue(t, f.registry, "kmanager_scheduler_job_runs_total", map[string]string{"job": JobContractBilling}))
	assert.Equal(t, float64(3), metricValue(t, f.registry, "kmanager_scheduler_batch_processed_total", map[string]string{"resource": "contracts"}))
	assert.Equal(t, []string{batchLockKey}, f.locker.released)
}

func TestRunBillingSkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t, true)
	f.locker.held[batchLockKey] = "other-replica"

	_, err := f.sched.RunBilling(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld)
	f.billing.AssertNotCalled(t, "GenerateDue", mock.Anything, mock.Anything)

	assert.Equal(t, float64(1), metricValue(t, f.registry, "kmanager_scheduler_batch_deferred_total", map[string]string{
		"job":    JobContractBilling,
		"reason": obsmetrics.SchedulerBatchDeferredReasonLockHeld,
	}))
	assert.Equal(t, "other-replica", f.locker.held[batchLockKey])
}

func TestRunBillingLockErrorStopsBatch(t *testing.T) {
	f := newFixture(t, true)
	f.locker.err = errors.New("redis down")

	_, err := f.sched.RunBilling(context.Background())
	assert.ErrorContains(t, err, "acquire batch lock")
	f.billing.AssertNotCalled(t, "GenerateDue", mock.Anything, mock.Anything)
}

func TestRunBillingWithoutLocker(t *testing.T) {
	f := newFixture(t, false)
	f.billing.On("GenerateDue", mock.Anything, mock.Anything).Return(contractdomain.BatchResult{}, nil).Once()

	_, err := f.sched.RunBilling(context.Background())
	require.NoError(t, err)
	f.billing.AssertExpectations(t)
}

func TestRunBillingTimeoutIsSoft(t *testing.T) {
	f := newFixture(t, true)
	f.billing.On("GenerateDue", mock.Anything, mock.Anything).
		Return(contractdomain.BatchResult{Runs: make([]contractdomain.ContractRun, 1), Succeeded: 1}, context.DeadlineExceeded).Once()

	result, err := f.sched.RunBilling(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	assert.Equal(t, float64(1), metricValue(t, f.registry, "kmanager_scheduler_job_timeouts_total", nil))
	assert.Equal(t, float64(1), metricValue(t, f.registry, "kmanager_scheduler_job_errors_total", map[string]string{
		"reason": obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}))
	assert.Equal(t, []string{batchLockKey}, f.locker.released)
}

func TestRunBillingBatchErrorIsReturned(t *testing.T) {
	f := newFixture(t, false)
	f.billing.On("GenerateDue", mock.Anything, mock.Anything).
		Return(contractdomain.BatchResult{}, errors.New("list due contracts: connection refused")).Once()

	_, err := f.sched.RunBilling(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobContractBilling)
	assert.Equal(t, float64(1), metricValue(t, f.registry, "kmanager_scheduler_job_errors_total", nil))
}

func TestRunBillingAppliesTimeout(t *testing.T) {
	f := newFixture(t, false)

	cfg := config.DefaultBillingConfig()
	cfg.BatchTimeout = time.Minute
	cfg.LockTTL = time.Minute
	require.NoError(t, f.holder.Update(cfg))

	f.billing.On("GenerateDue", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= time.Minute
	}), mock.Anything).Return(contractdomain.BatchResult{}, nil).Once()

	_, err := f.sched.RunBilling(context.Background())
	require.NoError(t, err)
	f.billing.AssertExpectations(t)
}

func TestStartReschedulesOnConfigChange(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.sched.Start())
	t.Cleanup(func() { <-f.sched.Stop().Done() })

	f.sched.mu.Lock()
	first := f.sched.cron
	assert.Equal(t, "0 2 * * *", f.sched.schedule)
	f.sched.mu.Unlock()

	cfg := config.DefaultBillingConfig()
	cfg.Schedule = "30 3 * * *"
	require.NoError(t, f.holder.Update(cfg))

	f.sched.mu.Lock()
	defer f.sched.mu.Unlock()
	assert.Equal(t, "30 3 * * *", f.sched.schedule)
	assert.NotSame(t, first, f.sched.cron)
	assert.Len(t, f.sched.cron.Entries(), 1)
}

func TestStopWithoutStart(t *testing.T) {
	f := newFixture(t, false)

	select {
	case <-f.sched.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
}
