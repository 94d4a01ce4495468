// Package otel records dispatcher activity as OpenTelemetry metrics and spans
// and bootstraps the process-wide tracer provider.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/petalmcp/tool"
)

// Instrument names.
const (
	MetricToolCalls   = "petalmcp.tool.calls"
	MetricToolLatency = "petalmcp.tool.latency"
	SpanToolCall      = "tool.call"
)

// CallObserver records tools/call dispatches into OpenTelemetry.
type CallObserver struct {
	tracer trace.Tracer

	calls   metric.Int64Counter
	latency metric.Float64Histogram
}

// NewCallObserver creates a call observer bound to the provided meter/tracer.
// A nil tracer disables spans.
func NewCallObserver(meter metric.Meter, tracer trace.Tracer) (*CallObserver, error) {
	calls, err := meter.Int64Counter(
		MetricToolCalls,
		metric.WithDescription("Number of tools/call dispatches"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		MetricToolLatency,
		metric.WithDescription("Tool call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &CallObserver{
		tracer:  tracer,
		calls:   calls,
		latency: latency,
	}, nil
}

// ObserveCall records one dispatch.
func (o *CallObserver) ObserveCall(observation tool.CallObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.String("transport", observation.Transport),
		attribute.String("outcome", string(observation.Outcome)),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	duration := time.Duration(observation.DurationMS) * time.Millisecond
	o.calls.Add(ctx, 1, options)
	o.latency.Record(ctx, duration.Seconds(), options)

	if o.tracer == nil {
		return
	}
	end := time.Now()
	spanAttrs := append(attrs,
		attribute.String("session_id", observation.SessionID),
		attribute.Int("content_blocks", observation.Blocks),
	)
	if observation.StatusCode != 0 {
		spanAttrs = append(spanAttrs, attribute.Int("upstream_status", observation.StatusCode))
	}
	_, span := o.tracer.Start(ctx, SpanToolCall,
		trace.WithAttributes(spanAttrs...),
		trace.WithTimestamp(end.Add(-duration)),
	)
	if observation.Outcome != tool.OutcomeOK {
		span.SetStatus(codes.Error, string(observation.Outcome))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

var _ tool.Observer = (*CallObserver)(nil)
