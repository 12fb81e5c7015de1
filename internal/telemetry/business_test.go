package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*BusinessTracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewBusinessTracerWithProvider(tp), recorder
}

func attrMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestNewBusinessTracer(t *testing.T) {
	bt := NewBusinessTracer()
	require.NotNil(t, bt)
	require.NotNil(t, bt.tracer)
}

func TestBusinessTracer_TraceComputation(t *testing.T) {
	bt, recorder := newRecordingTracer(t)

	ctx, span := bt.TraceComputation(context.Background(), "risk", "bitcoin", 30)
	require.NotNil(t, ctx)
	bt.RecordOutcome(span, "ok", nil)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "analytics.risk", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "risk", attrs["analytics.kind"].AsString())
	assert.Equal(t, "bitcoin", attrs["coin.id"].AsString())
	assert.Equal(t, int64(30), attrs["analytics.days"].AsInt64())
	assert.Equal(t, "ok", attrs["analytics.outcome"].AsString())
}

func TestBusinessTracer_RecordOutcomeError(t *testing.T) {
	bt, recorder := newRecordingTracer(t)

	_, span := bt.TraceComputation(context.Background(), "forecast", "ethereum", 90)
	bt.RecordOutcome(span, "insufficient_data", errors.New("need more points"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "insufficient_data", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestBusinessTracer_TraceForecast(t *testing.T) {
	bt, recorder := newRecordingTracer(t)

	_, span := bt.TraceComputation(context.Background(), "forecast", "bitcoin", 365)
	bt.TraceForecast(span, "arima(2,1,2)", 30, 0.95)
	span.End()

	attrs := attrMap(recorder.Ended()[0].Attributes())
	assert.Equal(t, "arima(2,1,2)", attrs["forecast.model"].AsString())
	assert.Equal(t, int64(30), attrs["forecast.horizon"].AsInt64())
	assert.Equal(t, 0.95, attrs["forecast.confidence"].AsFloat64())
}
