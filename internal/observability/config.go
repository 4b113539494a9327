package observability

import (
	"strings"

	"github.com/smallbiznis/kmanager/internal/config"
)

// Config is the observability slice of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OTLPEnabled      bool
	OTLPEndpoint     string
	OTLPProtocol     string
	OTLPSamplingRate float64
}

func NewConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "kmanager"
	}
	return Config{
		ServiceName:      name,
		Environment:      strings.TrimSpace(cfg.Environment),
		Version:          strings.TrimSpace(cfg.AppVersion),
		LogLevel:         cfg.LogLevel,
		LogFormat:        cfg.LogFormat,
		OTLPEnabled:      cfg.OTLPEnabled,
		OTLPEndpoint:     strings.TrimSpace(cfg.OTLPEndpoint),
		OTLPProtocol:     cfg.OTLPProtocol,
		OTLPSamplingRate: cfg.OTLPSamplingRate,
	}
}

// Debug is true for debug logging or any non-production environment name
// used on developer machines.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
