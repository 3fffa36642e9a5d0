// Package telemetry records OpenTelemetry spans and metrics for exchanges,
// model calls and tool calls. It only depends on the otel API; providers are
// injected or taken from the otel globals.
package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ScopeName identifies the instrumentation scope.
const ScopeName = "github.com/hupe1980/weathermesh"

// Span names.
const (
	SpanExchange  = "weathermesh.exchange"
	SpanModelCall = "weathermesh.model.call"
	SpanToolCall  = "weathermesh.tool.call"
)

// Metric names.
const (
	MetricExchanges    = "weathermesh.exchanges"
	MetricModelCalls   = "weathermesh.model.calls"
	MetricToolCalls    = "weathermesh.tool.calls"
	MetricToolFailures = "weathermesh.tool.failures"
	MetricToolDuration = "weathermesh.tool.duration"
)

// Options selects the providers. Nil fields fall back to the otel globals.
type Options struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Telemetry holds the tracer and the instruments.
type Telemetry struct {
	tracer trace.Tracer

	exchanges    metric.Int64Counter
	modelCalls   metric.Int64Counter
	toolCalls    metric.Int64Counter
	toolFailures metric.Int64Counter
	toolDuration metric.Float64Histogram
}

// New creates the tracer and instruments.
func New(optFns ...func(o *Options)) (*Telemetry, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}

	meter := opts.MeterProvider.Meter(ScopeName)
	t := &Telemetry{tracer: opts.TracerProvider.Tracer(ScopeName)}

	var err, e error
	t.exchanges, e = meter.Int64Counter(MetricExchanges, metric.WithDescription("Completed exchanges by outcome"))
	err = errors.Join(err, e)
	t.modelCalls, e = meter.Int64Counter(MetricModelCalls, metric.WithDescription("Model invocations by outcome"))
	err = errors.Join(err, e)
	t.toolCalls, e = meter.Int64Counter(MetricToolCalls, metric.WithDescription("Tool invocations"))
	err = errors.Join(err, e)
	t.toolFailures, e = meter.Int64Counter(MetricToolFailures, metric.WithDescription("Tool invocations that produced an error result"))
	err = errors.Join(err, e)
	t.toolDuration, e = meter.Float64Histogram(MetricToolDuration, metric.WithUnit("ms"), metric.WithDescription("Tool invocation latency"))
	err = errors.Join(err, e)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// Noop returns a Telemetry that records nothing.
func Noop() *Telemetry {
	t, err := New(func(o *Options) {
		o.TracerProvider = tracenoop.NewTracerProvider()
		o.MeterProvider = metricnoop.NewMeterProvider()
	})
	if err != nil {
		panic(err) // noop instruments never fail
	}
	return t
}

// StartExchange opens the span covering one user exchange.
func (t *Telemetry) StartExchange(ctx context.Context, agent, exchangeID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanExchange, trace.WithAttributes(
		attribute.String("weathermesh.agent", agent),
		attribute.String("weathermesh.exchange.id", exchangeID),
	))
}

// EndExchange closes the exchange span and counts it.
func (t *Telemetry) EndExchange(ctx context.Context, span trace.Span, iterations int, err error) {
	span.SetAttributes(attribute.Int("weathermesh.exchange.iterations", iterations))
	t.exchanges.Add(ctx, 1, metric.WithAttributes(outcome(err)))
	end(span, err)
}

// StartModelCall opens the span of one model invocation.
func (t *Telemetry) StartModelCall(ctx context.Context, model string, iteration int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanModelCall, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("weathermesh.model", model),
		attribute.Int("weathermesh.iteration", iteration),
	))
}

// EndModelCall closes a model call span and counts it.
func (t *Telemetry) EndModelCall(ctx context.Context, span trace.Span, model string, err error) {
	t.modelCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("weathermesh.model", model), outcome(err)))
	end(span, err)
}

// StartToolCall opens the span of one tool invocation.
func (t *Telemetry) StartToolCall(ctx context.Context, tool, callID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanToolCall, trace.WithAttributes(
		attribute.String("weathermesh.tool", tool),
		attribute.String("weathermesh.tool.call_id", callID),
	))
}

// EndToolCall closes a tool span and records its latency. A non-nil err is
// counted as a failure under code.
func (t *Telemetry) EndToolCall(ctx context.Context, span trace.Span, tool string, dur time.Duration, code string, err error) {
	toolAttr := attribute.String("weathermesh.tool", tool)
	t.toolCalls.Add(ctx, 1, metric.WithAttributes(toolAttr))
	t.toolDuration.Record(ctx, float64(dur.Microseconds())/1000, metric.WithAttributes(toolAttr))
	if err != nil {
		span.SetAttributes(attribute.String("weathermesh.tool.error_code", code))
		t.toolFailures.Add(ctx, 1, metric.WithAttributes(toolAttr, attribute.String("weathermesh.tool.error_code", code)))
	}
	end(span, err)
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("weathermesh.outcome", "error")
	}
	return attribute.String("weathermesh.outcome", "ok")
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
