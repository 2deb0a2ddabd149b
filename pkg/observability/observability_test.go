package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "assetrisk", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// Should not fail even when disabled
	require.NotNil(t, p.Tracer())

	ctx, finish := p.TrackOperation(context.Background(), "formula.calculate")
	require.NotNil(t, ctx)
	finish(errors.New("boom"))

	p.RecordCalculation(ctx, attribute.String("k", "v"))
	p.RecordError(ctx, errors.New("test"))
	p.RecordDuration(ctx, time.Millisecond)
	p.RecordRiskLevel(ctx, "High")
	require.NoError(t, p.Shutdown(context.Background()))
}

func newTestProvider(t *testing.T) (*Provider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	p, err := NewWithReader(DefaultConfig(), reader)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, agg metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := agg.(metricdata.Sum[int64])
	require.True(t, ok, "unexpected aggregation %T", agg)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestTrackOperationRecordsRED(t *testing.T) {
	p, reader := newTestProvider(t)
	attrs := FormulaOperation("cui_damage", "dfcui_basic")

	_, finish := p.TrackOperation(context.Background(), "formula.calculate", attrs...)
	finish(nil)
	_, finish = p.TrackOperation(context.Background(), "formula.calculate", attrs...)
	finish(&formula.Error{Code: formula.CodeMissingInput, Message: "missing", Input: "age"})

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, metrics[MetricCalculations]))
	assert.Equal(t, int64(1), sumOf(t, metrics[MetricErrors]))
	assert.Equal(t, int64(0), sumOf(t, metrics[MetricActive]))

	hist, ok := metrics[MetricDuration].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestErrorsAreLabelledByCode(t *testing.T) {
	p, reader := newTestProvider(t)
	p.RecordError(context.Background(), &formula.Error{Code: formula.CodeInvalidInput})
	p.RecordError(context.Background(), errors.New("plain"))

	sum, ok := collect(t, reader)[MetricErrors].(metricdata.Sum[int64])
	require.True(t, ok)
	codes := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(AttrErrorCode)
		codes[v.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"INVALID_INPUT": 1, "*errors.errorString": 1}, codes)
}

func TestActiveGaugeWhileInFlight(t *testing.T) {
	p, reader := newTestProvider(t)
	_, finish := p.TrackOperation(context.Background(), "formula.calculate")
	assert.Equal(t, int64(1), sumOf(t, collect(t, reader)[MetricActive]))
	finish(nil)
	assert.Equal(t, int64(0), sumOf(t, collect(t, reader)[MetricActive]))
}

func TestFormulaOperation(t *testing.T) {
	attrs := FormulaOperation("risk_matrix", "risk_matrix_5x5")
	require.Len(t, attrs, 2)
	require.Equal(t, "assetrisk.formula.type", string(attrs[0].Key))
	require.Equal(t, "risk_matrix_5x5", attrs[1].Value.AsString())
}

func TestAddSpanEvent(t *testing.T) {
	// Should not panic without a span
	AddSpanEvent(context.Background(), "formula.classified", AttrRiskLevel.String("High"))

	p, _ := newTestProvider(t)
	ctx, span := p.StartSpan(context.Background(), "test.span")
	AddSpanEvent(ctx, "formula.classified", AttrRiskLevel.String("High"))
	span.End()
}

func TestRiskLevelsAreCounted(t *testing.T) {
	p, reader := newTestProvider(t)
	attrs := FormulaOperation("cui_damage", "dfcui_basic")
	p.RecordRiskLevel(context.Background(), "High", attrs...)
	p.RecordRiskLevel(context.Background(), "High", attrs...)
	p.RecordRiskLevel(context.Background(), "Low", attrs...)

	sum, ok := collect(t, reader)[MetricClassifications].(metricdata.Sum[int64])
	require.True(t, ok)
	levels := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(AttrRiskLevel)
		levels[v.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"High": 2, "Low": 1}, levels)
	assert.Len(t, attrs, 2, "caller attributes must not be extended in place")
}

func TestResourceMergesWithSDKDefaults(t *testing.T) {
	config := DefaultConfig()
	config.ServiceVersion = "1.2.0"
	res, err := newProvider(config).resource()
	require.NoError(t, err)

	assert.Equal(t, resource.Default().SchemaURL(), res.SchemaURL())
	name, ok := res.Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "assetrisk", name.AsString())
	env, ok := res.Set().Value(attribute.Key("deployment.environment.name"))
	require.True(t, ok)
	assert.Equal(t, "development", env.AsString())

	_, err = NewWithReader(config, sdkmetric.NewManualReader())
	require.NoError(t, err)
}
