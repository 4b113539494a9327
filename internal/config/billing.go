package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig drives the recurring contract billing batch.
type BillingConfig struct {
	Schedule        string        `mapstructure:"schedule"`
	Timezone        string        `mapstructure:"timezone"`
	BatchTimeout    time.Duration `mapstructure:"batchTimeout"`
	LockTTL         time.Duration `mapstructure:"lockTTL"`
	DefaultCurrency string        `mapstructure:"defaultCurrency"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Schedule:        "0 2 * * *",
		Timezone:        "Europe/Berlin",
		BatchTimeout:    30 * time.Minute,
		LockTTL:         45 * time.Minute,
		DefaultCurrency: "EUR",
	}
}

// Location resolves the configured billing time zone, falling back to UTC.
func (c BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// Today returns the billing date for now in the configured time zone,
// expressed as UTC midnight.
func (c BillingConfig) Today(now time.Time) time.Time {
	local := now.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig

	mu        sync.Mutex
	listeners []func(BillingConfig)
}

// NewBillingConfigHolder loads billing.yml from the usual config paths and
// watches it for changes. A missing file yields the defaults.
func NewBillingConfigHolder(cfg Config, log *zap.Logger) (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	if cfg.BillingConfigDir != "" {
		v.AddConfigPath(cfg.BillingConfigDir)
	}
	v.AddConfigPath("/etc/kmanager")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KMANAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return newBillingConfigHolder(v, log)
}

func newBillingConfigHolder(v *viper.Viper, log *zap.Logger) (*BillingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("billing.config")

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.schedule", defaults.Schedule)
	v.SetDefault("billing.timezone", defaults.Timezone)
	v.SetDefault("billing.batchTimeout", defaults.BatchTimeout)
	v.SetDefault("billing.lockTTL", defaults.LockTTL)
	v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeBillingConfig(v)
			if err != nil {
				log.Warn("invalid billing config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.store(updated)
			log.Info("billing config reloaded", zap.String("file", e.Name), zap.String("schedule", updated.Schedule))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config without file watching.
func NewStaticBillingConfigHolder(cfg BillingConfig) (*BillingConfigHolder, error) {
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

// Update validates cfg and publishes it to the registered listeners.
func (h *BillingConfigHolder) Update(cfg BillingConfig) error {
	if err := validateBillingConfig(cfg); err != nil {
		return err
	}
	h.store(cfg)
	return nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

// OnChange registers fn to be called after every accepted reload.
func (h *BillingConfigHolder) OnChange(fn func(BillingConfig)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *BillingConfigHolder) store(cfg BillingConfig) {
	h.current.Store(cfg)

	h.mu.Lock()
	listeners := append([]func(BillingConfig){}, h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}
	cfg.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.Schedule) == "" {
		return errors.New("billing.schedule cannot be empty")
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return fmt.Errorf("billing.schedule: %w", err)
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone)); err != nil {
		return fmt.Errorf("billing.timezone: %w", err)
	}
	if cfg.BatchTimeout <= 0 {
		return errors.New("billing.batchTimeout must be positive")
	}
	if cfg.LockTTL < cfg.BatchTimeout {
		return errors.New("billing.lockTTL must cover billing.batchTimeout")
	}
	if len(cfg.DefaultCurrency) != 3 {
		return errors.New("billing.defaultCurrency must be an ISO 4217 code")
	}
	return nil
}
