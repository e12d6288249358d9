package oteladapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/parkdalelib/circulation-go/circulation/oteladapters"
)

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")

	collector := oteladapters.NewMetricsCollector(meter)

	testDuration := 150 * time.Millisecond
	labels := map[string]string{
		"operation": "borrow_item",
		"status":    "success",
	}

	collector.RecordDuration("circulation_operation_duration_seconds", testDuration, labels)

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "Failed to collect metrics")

	histogram := findHistogramMetric(t, resourceMetrics, "circulation_operation_duration_seconds")
	require.Len(t, histogram.DataPoints, 1, "Expected exactly one data point")

	dataPoint := histogram.DataPoints[0]

	// 150 ms recorded as 0.15 seconds
	assert.Equal(t, uint64(1), dataPoint.Count, "Histogram count should be 1")
	assert.InDelta(t, 0.15, dataPoint.Sum, 0.001, "Histogram sum should be 0.15 seconds")

	assertDataPointHasAttribute(t, dataPoint.Attributes, "operation", "borrow_item")
	assertDataPointHasAttribute(t, dataPoint.Attributes, "status", "success")
}

func Test_MetricsCollector_IncrementCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")

	collector := oteladapters.NewMetricsCollector(meter)

	labels := map[string]string{
		"operation": "borrow_item",
		"rejection": "item_unavailable",
	}

	collector.IncrementCounter("circulation_operation_rejected_total", labels)
	collector.IncrementCounter("circulation_operation_rejected_total", labels)

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "Failed to collect metrics")

	counter := findCounterMetric(t, resourceMetrics, "circulation_operation_rejected_total")
	require.Len(t, counter.DataPoints, 1, "Expected exactly one data point")

	dataPoint := counter.DataPoints[0]
	assert.Equal(t, int64(2), dataPoint.Value, "Counter should have been incremented twice")
	assertDataPointHasAttribute(t, dataPoint.Attributes, "rejection", "item_unavailable")
}

func Test_MetricsCollector_RecordValue(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")

	collector := oteladapters.NewMetricsCollector(meter)

	collector.RecordValue("circulation_open_loans", 42.0, map[string]string{"source": "demo"})

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "Failed to collect metrics")

	gauge := findGaugeMetric(t, resourceMetrics, "circulation_open_loans")
	require.Len(t, gauge.DataPoints, 1, "Expected exactly one data point")

	dataPoint := gauge.DataPoints[0]
	assert.InDelta(t, 42.0, dataPoint.Value, 0.001, "Gauge value should match")
}

func Test_MetricsCollector_ContextMethods(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")

	collector := oteladapters.NewMetricsCollector(meter)
	ctx := context.Background()

	collector.RecordDurationContext(ctx, "circulation_sql_duration_seconds", 10*time.Millisecond, nil)
	collector.IncrementCounterContext(ctx, "circulation_operation_errors_total", nil)
	collector.RecordValueContext(ctx, "circulation_pool_size", 5.0, nil)

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "Failed to collect metrics")

	findHistogramMetric(t, resourceMetrics, "circulation_sql_duration_seconds")
	findCounterMetric(t, resourceMetrics, "circulation_operation_errors_total")
	findGaugeMetric(t, resourceMetrics, "circulation_pool_size")
}

func Test_MetricsCollector_ReusesInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")

	collector := oteladapters.NewMetricsCollector(meter)

	// Recording the same metric twice must aggregate into one instrument
	collector.RecordDuration("circulation_operation_duration_seconds", 100*time.Millisecond, nil)
	collector.RecordDuration("circulation_operation_duration_seconds", 200*time.Millisecond, nil)

	var resourceMetrics metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &resourceMetrics)
	require.NoError(t, err, "Failed to collect metrics")

	histogram := findHistogramMetric(t, resourceMetrics, "circulation_operation_duration_seconds")
	require.Len(t, histogram.DataPoints, 1, "Expected one aggregated data point")
	assert.Equal(t, uint64(2), histogram.DataPoints[0].Count, "Both recordings should aggregate")
}

func findHistogramMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Histogram[float64] {
	t.Helper()
	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				histogram, ok := m.Data.(metricdata.Histogram[float64])
				require.True(t, ok, "Metric %s should be a float64 histogram", name)
				return histogram
			}
		}
	}
	t.Fatalf("Histogram metric %s not found", name)
	return metricdata.Histogram[float64]{}
}

func findCounterMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok, "Metric %s should be an int64 sum", name)
				return sum
			}
		}
	}
	t.Fatalf("Counter metric %s not found", name)
	return metricdata.Sum[int64]{}
}

func findGaugeMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Gauge[float64] {
	t.Helper()
	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				gauge, ok := m.Data.(metricdata.Gauge[float64])
				require.True(t, ok, "Metric %s should be a float64 gauge", name)
				return gauge
			}
		}
	}
	t.Fatalf("Gauge metric %s not found", name)
	return metricdata.Gauge[float64]{}
}

func assertDataPointHasAttribute(t *testing.T, set attribute.Set, key, expectedValue string) {
	t.Helper()
	value, ok := set.Value(attribute.Key(key))
	assert.True(t, ok, "Data point should have attribute %s", key)
	assert.Equal(t, expectedValue, value.AsString(), "Attribute %s should have expected value", key)
}
