package otel_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	petalotel "github.com/petal-labs/petalmcp/otel"
	"github.com/petal-labs/petalmcp/tool"
)

// newTestMeter returns a meter backed by a manual reader for collecting metrics in tests.
func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

// collectMetrics reads all metrics from the reader.
func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

// findMetric searches for a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func TestCallObserverRecordsMetrics(t *testing.T) {
	reader, mp := newTestMeter()
	observer, err := petalotel.NewCallObserver(mp.Meter("test-call-observer"), nil)
	if err != nil {
		t.Fatalf("NewCallObserver() error = %v", err)
	}

	observer.ObserveCall(tool.CallObservation{ToolName: "mood", Transport: "stdio", DurationMS: 3, Outcome: tool.OutcomeOK, Blocks: 1})
	observer.ObserveCall(tool.CallObservation{ToolName: "mood", Transport: "stdio", DurationMS: 5, Outcome: tool.OutcomeOK, Blocks: 1})
	observer.ObserveCall(tool.CallObservation{ToolName: "mcp_fetch", Transport: "sse", DurationMS: 120, Outcome: tool.OutcomeToolError, Blocks: 1})

	rm := collectMetrics(t, reader)

	calls := findMetric(rm, petalotel.MetricToolCalls)
	if calls == nil {
		t.Fatalf("%s metric not found", petalotel.MetricToolCalls)
	}
	sum, ok := calls.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s type = %T, want Sum[int64]", petalotel.MetricToolCalls, calls.Data)
	}
	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		name, _ := dp.Attributes.Value(attribute.Key("tool_name"))
		counts[name.AsString()] += dp.Value
	}
	if counts["mood"] != 2 || counts["mcp_fetch"] != 1 {
		t.Fatalf("call counts = %v", counts)
	}

	latency := findMetric(rm, petalotel.MetricToolLatency)
	if latency == nil {
		t.Fatalf("%s metric not found", petalotel.MetricToolLatency)
	}
	if _, ok := latency.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatalf("%s type = %T, want Histogram[float64]", petalotel.MetricToolLatency, latency.Data)
	}
}

func TestCallObserverEmitsSpans(t *testing.T) {
	_, mp := newTestMeter()
	exporter, tp := newTestTracer()
	observer, err := petalotel.NewCallObserver(mp.Meter("test"), tp.Tracer("test"))
	if err != nil {
		t.Fatalf("NewCallObserver() error = %v", err)
	}

	observer.ObserveCall(tool.CallObservation{ToolName: "mood", SessionID: "abc", Transport: "sse", DurationMS: 10, Outcome: tool.OutcomeOK, Blocks: 1})
	observer.ObserveCall(tool.CallObservation{ToolName: "nope", Transport: "sse", Outcome: tool.OutcomeUnknownTool, Blocks: 1})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	for _, s := range spans {
		if s.Name != petalotel.SpanToolCall {
			t.Fatalf("span name = %q", s.Name)
		}
	}
	if spans[0].Status.Code != codes.Ok {
		t.Fatalf("ok span status = %v", spans[0].Status)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != string(tool.OutcomeUnknownTool) {
		t.Fatalf("error span status = %v", spans[1].Status)
	}
	if got := spans[0].EndTime.Sub(spans[0].StartTime); got.Milliseconds() != 10 {
		t.Fatalf("span duration = %v, want 10ms", got)
	}

	var session string
	for _, kv := range spans[0].Attributes {
		if kv.Key == "session_id" {
			session = kv.Value.AsString()
		}
	}
	if session != "abc" {
		t.Fatalf("session_id attribute = %q", session)
	}
}

func TestCallObserverAsDispatcherObserver(t *testing.T) {
	reader, mp := newTestMeter()
	observer, err := petalotel.NewCallObserver(mp.Meter("test"), nil)
	if err != nil {
		t.Fatalf("NewCallObserver() error = %v", err)
	}
	tool.SetObserver(observer)
	defer tool.SetObserver(nil)

	reg, err := tool.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	tool.NewDispatcher(reg, nil).Call(context.Background(), "missing", nil)

	calls := findMetric(collectMetrics(t, reader), petalotel.MetricToolCalls)
	if calls == nil {
		t.Fatal("dispatcher call was not recorded")
	}
}

func TestSetupTracingWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := petalotel.SetupTracing(context.Background(), petalotel.TracingConfig{})
	if err != nil {
		t.Fatalf("SetupTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}

func TestNewTracerProviderSetsServiceName(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := petalotel.NewTracerProvider(petalotel.TracingConfig{ServiceName: "svc", ServiceVersion: "1.0"}, sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("t").Start(context.Background(), "x")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans", len(spans))
	}
	name, ok := spans[0].Resource.Set().Value(attribute.Key("service.name"))
	if !ok || name.AsString() != "svc" {
		t.Fatalf("service.name = %v", name)
	}
}
