package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAddIntervalClampsDayOfMonth(t *testing.T) {
	tests := []struct {
		interval Interval
		from     string
		want     string
	}{
		{IntervalMonthly, "2026-01-01", "2026-02-01"},
		{IntervalMonthly, "2026-01-31", "2026-02-28"},
		{IntervalMonthly, "2028-01-31", "2028-02-29"},
		{IntervalMonthly, "2026-12-15", "2027-01-15"},
		{IntervalQuarterly, "2026-11-30", "2027-02-28"},
		{IntervalSemiAnnual, "2026-08-31", "2027-02-28"},
		{IntervalAnnual, "2028-02-29", "2029-02-28"},
	}
	for _, tt := range tests {
		t.Run(string(tt.interval)+" "+tt.from, func(t *testing.T) {
			got := tt.interval.AddInterval(date(tt.from))
			assert.Equal(t, tt.want, got.Format(time.DateOnly))
		})
	}
}

func TestAddIntervalDoesNotDriftBack(t *testing.T) {
	// Feb 28 is the new anchor after clamping.
	next := IntervalMonthly.AddInterval(date("2026-01-31"))
	next = IntervalMonthly.AddInterval(next)
	assert.Equal(t, "2026-03-28", next.Format(time.DateOnly))
}

func TestIsCurrentlyActive(t *testing.T) {
	end := date("2026-01-31")
	c := Contract{IsActive: true, EndDate: &end, NextRunDate: date("2026-01-01")}

	assert.True(t, c.IsCurrentlyActive(date("2026-01-31")))
	assert.False(t, c.IsCurrentlyActive(date("2026-02-01")))
	assert.True(t, c.IsDue(date("2026-01-01")))
	assert.False(t, c.IsDue(date("2025-12-31")))

	c.IsActive = false
	assert.False(t, c.IsCurrentlyActive(date("2026-01-15")))
	assert.False(t, c.IsDue(date("2026-01-15")))

	open := Contract{IsActive: true, NextRunDate: date("2026-01-01")}
	assert.True(t, open.IsDue(date("2030-01-01")))
}

func TestContractValidate(t *testing.T) {
	base := Contract{
		Interval:     IntervalMonthly,
		DocumentType: "INVOICE",
		StartDate:    date("2026-01-01"),
		NextRunDate:  date("2026-01-01"),
	}
	assert.NoError(t, base.Validate())

	bad := base
	bad.Interval = "WEEKLY"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInterval)

	bad = base
	end := date("2025-12-31")
	bad.EndDate = &end
	assert.ErrorIs(t, bad.Validate(), ErrEndBeforeStart)

	bad = base
	bad.NextRunDate = date("2025-12-01")
	assert.ErrorIs(t, bad.Validate(), ErrNextRunBeforeStart)
}

func TestBatchResultAdd(t *testing.T) {
	var result BatchResult
	result.Add(ContractRun{Status: RunStatusSuccess})
	result.Add(ContractRun{Status: RunStatusFailed})
	result.Add(ContractRun{Status: RunStatusSkipped})
	result.Add(ContractRun{Status: RunStatusSkipped})

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Skipped)
	assert.Len(t, result.Runs, 4)
}
