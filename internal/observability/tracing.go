package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/pocketledger/syncengine/observability"

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartDBSpan starts a span for a local database operation
func StartDBSpan(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("DB %s %s", operation, table),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("db.operation", operation),
			attribute.String("db.sql.table", table),
		),
	)
}

// StartHTTPClientSpan starts a span for an outbound backend call
func StartHTTPClientSpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.target", path),
		),
	)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Cycle outcomes recorded by SyncMetrics
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// SyncMetrics holds sync engine instruments
type SyncMetrics struct {
	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
	pushed        metric.Int64Counter
	pulled        metric.Int64Counter
	coalesced     metric.Int64Counter
}

// NewSyncMetrics creates sync metrics instruments on the global meter provider
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	cycles, err := meter.Int64Counter(
		"sync.cycles",
		metric.WithDescription("Completed sync cycles by outcome"),
		metric.WithUnit("{cycles}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"sync.cycle.duration",
		metric.WithDescription("Sync cycle duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	pushed, err := meter.Int64Counter(
		"sync.records.pushed",
		metric.WithDescription("Records sent to the backend"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	pulled, err := meter.Int64Counter(
		"sync.records.pulled",
		metric.WithDescription("Records applied from the backend"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	coalesced, err := meter.Int64Counter(
		"sync.triggers.coalesced",
		metric.WithDescription("Triggers folded into a queued cycle while one was running"),
		metric.WithUnit("{triggers}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		cycles:        cycles,
		cycleDuration: cycleDuration,
		pushed:        pushed,
		pulled:        pulled,
		coalesced:     coalesced,
	}, nil
}

// RecordCycle records the outcome of one sync cycle. Safe on a nil receiver.
func (m *SyncMetrics) RecordCycle(ctx context.Context, outcome string, duration time.Duration, pushed, pulled int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.cycles.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if pushed > 0 {
		m.pushed.Add(ctx, int64(pushed))
	}
	if pulled > 0 {
		m.pulled.Add(ctx, int64(pulled))
	}
}

// RecordCoalesced records a trigger that was folded into a pending cycle
func (m *SyncMetrics) RecordCoalesced(ctx context.Context) {
	if m == nil {
		return
	}
	m.coalesced.Add(ctx, 1)
}
