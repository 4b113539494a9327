package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the billing instruments exported over OTLP.
type Metrics struct {
	documentsGenerated metric.Int64Counter
	recalculations     metric.Int64Counter
	calculationLatency metric.Float64Histogram
	contractRuns       metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the billing instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "kmanager"
	}
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(name)

	documentsGenerated, err := meter.Int64Counter("kmanager_documents_generated_total",
		metric.WithDescription("Draft documents generated from contracts."))
	if err != nil {
		return nil, err
	}
	recalculations, err := meter.Int64Counter("kmanager_document_recalculations_total",
		metric.WithDescription("Document total recalculations."))
	if err != nil {
		return nil, err
	}
	calculationLatency, err := meter.Float64Histogram("kmanager_document_calculation_seconds",
		metric.WithDescription("Latency of document total calculation."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	contractRuns, err := meter.Int64Counter("kmanager_contract_runs_total",
		metric.WithDescription("Contract billing runs by status."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		documentsGenerated: documentsGenerated,
		recalculations:     recalculations,
		calculationLatency: calculationLatency,
		contractRuns:       contractRuns,
	}, nil
}

// RecordDocumentGenerated counts a document produced by a contract run.
func (m *Metrics) RecordDocumentGenerated(ctx context.Context, orgID int64, documentType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.Int64("org_id", orgID),
		attribute.String("document_type", strings.TrimSpace(documentType)),
	)
	m.documentsGenerated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRecalculation counts a recalculation and its latency.
func (m *Metrics) RecordRecalculation(ctx context.Context, persisted bool, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.Bool("persist", persisted))
	m.recalculations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.calculationLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordContractRun counts one contract run outcome.
func (m *Metrics) RecordContractRun(ctx context.Context, status string, dryRun bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", strings.TrimSpace(status)),
		attribute.Bool("dry_run", dryRun),
	)
	m.contractRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_id":        {},
	"document_type": {},
	"status":        {},
	"dry_run":       {},
	"persist":       {},
	"reason":        {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
