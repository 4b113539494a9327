package observability

import (
	"github.com/smallbiznis/kmanager/internal/observability/logger"
	"github.com/smallbiznis/kmanager/internal/observability/metrics"
	"github.com/smallbiznis/kmanager/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the zap logger, the OTLP trace and meter providers and the
// prometheus collectors used by the HTTP layer and the billing scheduler.
var Module = fx.Module("observability",
	fx.Provide(NewConfig),
	fx.Provide(
		func(c Config) logger.Config {
			return logger.Config{
				ServiceName:         c.ServiceName,
				Environment:         c.Environment,
				Version:             c.Version,
				Level:               c.LogLevel,
				Format:              c.LogFormat,
				IncludeCaller:       true,
				IncludeStackOnError: c.Debug(),
			}
		},
		logger.New,
	),
	fx.Provide(
		func(c Config) tracing.Config {
			return tracing.Config{
				Enabled:          c.OTLPEnabled,
				ServiceName:      c.ServiceName,
				ServiceVersion:   c.Version,
				Environment:      c.Environment,
				ExporterEndpoint: c.OTLPEndpoint,
				ExporterProtocol: c.OTLPProtocol,
				SamplingRatio:    c.OTLPSamplingRate,
			}
		},
		tracing.NewProvider,
	),
	fx.Provide(
		func(c Config) metrics.Config {
			return metrics.Config{
				Enabled:          c.OTLPEnabled,
				ExporterEndpoint: c.OTLPEndpoint,
				ExporterProtocol: c.OTLPProtocol,
				ServiceName:      c.ServiceName,
				Environment:      c.Environment,
			}
		},
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.SchedulerWithConfig,
	),
	// The trace provider registers itself globally on construction.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
