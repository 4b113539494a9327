package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestViper(t *testing.T, content string) *viper.Viper {
	t.Helper()
	dir := t.TempDir()
	if content != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), []byte(content), 0o600))
	}
	v := viper.New()
	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath(dir)
	return v
}

func TestBillingConfigDefaultsWhenFileMissing(t *testing.T) {
	holder, err := newBillingConfigHolder(newTestViper(t, ""), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, DefaultBillingConfig(), holder.Get())
}

func TestBillingConfigFromFile(t *testing.T) {
	holder, err := newBillingConfigHolder(newTestViper(t, `
billing:
  schedule: "30 1 * * *"
  timezone: "UTC"
  batchTimeout: 10m
  lockTTL: 15m
  defaultCurrency: chf
`), zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, "30 1 * * *", cfg.Schedule)
	assert.Equal(t, 10*time.Minute, cfg.BatchTimeout)
	assert.Equal(t, 15*time.Minute, cfg.LockTTL)
	assert.Equal(t, "CHF", cfg.DefaultCurrency)
}

func TestBillingConfigRejectsInvalidSchedule(t *testing.T) {
	_, err := newBillingConfigHolder(newTestViper(t, `
billing:
  schedule: "every day"
`), zap.NewNop())
	assert.Error(t, err)
}

func TestBillingConfigListenersReceiveStoredConfig(t *testing.T) {
	holder, err := newBillingConfigHolder(newTestViper(t, ""), zap.NewNop())
	require.NoError(t, err)

	var got BillingConfig
	holder.OnChange(func(cfg BillingConfig) { got = cfg })

	updated := DefaultBillingConfig()
	updated.Schedule = "0 4 * * *"
	holder.store(updated)

	assert.Equal(t, "0 4 * * *", got.Schedule)
	assert.Equal(t, "0 4 * * *", holder.Get().Schedule)
}

func TestBillingConfigToday(t *testing.T) {
	cfg := DefaultBillingConfig()
	// 23:30 UTC on Jan 31 is already Feb 1 in Berlin.
	now := time.Date(2026, time.January, 31, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), cfg.Today(now))
}

func TestBillingConfigUpdateRejectsInvalid(t *testing.T) {
	holder, err := NewStaticBillingConfigHolder(DefaultBillingConfig())
	require.NoError(t, err)

	bad := DefaultBillingConfig()
	bad.LockTTL = time.Minute
	assert.Error(t, holder.Update(bad))
	assert.Equal(t, DefaultBillingConfig().LockTTL, holder.Get().LockTTL)
}
