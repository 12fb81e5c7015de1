package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessTracer provides utilities for tracing analytics operations.
// It wraps span creation so every computation carries the same attributes.
type BusinessTracer struct {
	tracer trace.Tracer
}

// NewBusinessTracer creates a new instance of BusinessTracer using the global provider.
//
// Returns:
//   - A pointer to an initialized BusinessTracer.
func NewBusinessTracer() *BusinessTracer {
	return NewBusinessTracerWithProvider(otel.GetTracerProvider())
}

// NewBusinessTracerWithProvider creates a BusinessTracer bound to tp.
func NewBusinessTracerWithProvider(tp trace.TracerProvider) *BusinessTracer {
	return &BusinessTracer{tracer: tp.Tracer(ServiceName + "/analytics")}
}

// TraceComputation starts a span for one analytics computation.
//
// Parameters:
//   - ctx: The context to attach the span to.
//   - kind: The computation kind (indicators, risk, forecast, ...).
//   - coinID: The coin being analysed.
//   - days: The lookback in days.
//
// Returns:
//   - A context containing the new span.
//   - The created span.
func (bt *BusinessTracer) TraceComputation(ctx context.Context, kind, coinID string, days int) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "analytics."+kind, trace.WithAttributes(
		attribute.String("analytics.kind", kind),
		attribute.String("coin.id", coinID),
		attribute.Int("analytics.days", days),
	))
}

// RecordOutcome annotates span with the computation outcome and error, if any.
//
// Parameters:
//   - span: The span to update.
//   - outcome: The outcome label.
//   - err: The error returned by the computation, or nil.
func (bt *BusinessTracer) RecordOutcome(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("analytics.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return
	}
	span.SetStatus(codes.Ok, outcome)
}

// TraceForecast adds model details to a forecast span.
func (bt *BusinessTracer) TraceForecast(span trace.Span, model string, horizon int, confidence float64) {
	span.SetAttributes(
		attribute.String("forecast.model", model),
		attribute.Int("forecast.horizon", horizon),
		attribute.Float64("forecast.confidence", confidence),
	)
}
