package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.Int64("org_id", 123),
		attribute.String("customer_id", "456"),
		attribute.String("document_type", "INVOICE"),
	)
	require.Len(t, attrs, 2)

	keys := []attribute.Key{attrs[0].Key, attrs[1].Key}
	assert.Contains(t, keys, attribute.Key("org_id"))
	assert.Contains(t, keys, attribute.Key("document_type"))
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDocumentGenerated(ctx, 1, "INVOICE")
	m.RecordRecalculation(ctx, true, time.Millisecond)
	m.RecordContractRun(ctx, "SUCCESS", false)

	var nilMetrics *Metrics
	nilMetrics.RecordContractRun(ctx, "FAILED", false)
}
