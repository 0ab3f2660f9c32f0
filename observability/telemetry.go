package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/predictive-scheduler/pkg/config"
)

// TelemetryProvider provides observability features for the dispatcher
// and its supporting components. The task-submission gateway and the
// Prometheus/columnar-store sinks consume these signals externally; this
// package only emits them.
type TelemetryProvider struct {
	config        *config.TelemetryConfig
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider

	// Metrics
	tasksDispatched  metric.Int64Counter
	tasksFailed      metric.Int64Counter
	predictionsMade  metric.Int64Counter
	dispatchDuration metric.Float64Histogram
	streamDepth      metric.Int64UpDownCounter
	breakerTrips     metric.Int64Counter
}

// NewTelemetryProvider creates a new telemetry provider
func NewTelemetryProvider(cfg *config.TelemetryConfig) (*TelemetryProvider, error) {
	if cfg == nil {
		cfg = &config.TelemetryConfig{
			ServiceName:    "predictive-scheduler",
			ServiceVersion: "0.1.0",
			Environment:    "development",
			OTLPEndpoint:   "http://localhost:4318",
			TracingEnabled: true,
			MetricsEnabled: true,
			SampleRate:     1.0,
			Enabled:        false,
		}
	}

	tp := &TelemetryProvider{
		config: cfg,
	}

	if !cfg.Enabled {
		// Return no-op provider
		tp.tracer = otel.Tracer("predictive-scheduler")
		tp.meter = otel.Meter("predictive-scheduler")
		return tp, nil
	}

	if cfg.TracingEnabled {
		if err := tp.initTracing(); err != nil {
			return nil, fmt.Errorf("init tracing: %v", err)
		}
	}

	if cfg.MetricsEnabled {
		if err := tp.initMetrics(); err != nil {
			return nil, fmt.Errorf("init metrics: %v", err)
		}
	}

	return tp, nil
}

// initTracing initializes OpenTelemetry tracing
func (tp *TelemetryProvider) initTracing() error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(tp.config.ServiceName),
			semconv.ServiceVersion(tp.config.ServiceVersion),
			semconv.DeploymentEnvironment(tp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("create resource: %v", err)
	}

	exporter, err := otlptrace.New(context.Background(),
		otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(tp.config.OTLPEndpoint),
			otlptracehttp.WithHeaders(tp.config.OTLPHeaders),
		),
	)
	if err != nil {
		return fmt.Errorf("create exporter: %v", err)
	}

	tp.traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(tp.config.SampleRate)),
	)

	otel.SetTracerProvider(tp.traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	tp.tracer = otel.Tracer("predictive-scheduler",
		trace.WithInstrumentationVersion("0.1.0"),
		trace.WithSchemaURL(semconv.SchemaURL),
	)

	return nil
}

// initMetrics initializes OpenTelemetry metrics
func (tp *TelemetryProvider) initMetrics() error {
	tp.meter = otel.Meter("predictive-scheduler",
		metric.WithInstrumentationVersion("0.1.0"),
		metric.WithSchemaURL(semconv.SchemaURL),
	)

	var err error

	tp.tasksDispatched, err = tp.meter.Int64Counter(
		"scheduler_tasks_dispatched_total",
		metric.WithDescription("Total number of tasks assigned to a worker"),
	)
	if err != nil {
		return fmt.Errorf("create tasks_dispatched counter: %v", err)
	}

	tp.tasksFailed, err = tp.meter.Int64Counter(
		"scheduler_tasks_failed_total",
		metric.WithDescription("Total number of dispatch attempts that produced no decision"),
	)
	if err != nil {
		return fmt.Errorf("create tasks_failed counter: %v", err)
	}

	tp.predictionsMade, err = tp.meter.Int64Counter(
		"scheduler_predictions_total",
		metric.WithDescription("Total number of predictor invocations, by whether a recommendation was used"),
	)
	if err != nil {
		return fmt.Errorf("create predictions_made counter: %v", err)
	}

	tp.dispatchDuration, err = tp.meter.Float64Histogram(
		"scheduler_dispatch_duration_seconds",
		metric.WithDescription("Duration of a single consume-predict-score-publish-ack cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create dispatch_duration histogram: %v", err)
	}

	tp.streamDepth, err = tp.meter.Int64UpDownCounter(
		"scheduler_stream_depth",
		metric.WithDescription("Length of the task ingress stream"),
	)
	if err != nil {
		return fmt.Errorf("create stream_depth counter: %v", err)
	}

	tp.breakerTrips, err = tp.meter.Int64Counter(
		"scheduler_circuit_breaker_trips_total",
		metric.WithDescription("Total number of times the predictor circuit breaker opened"),
	)
	if err != nil {
		return fmt.Errorf("create breaker_trips counter: %v", err)
	}

	return nil
}

// TraceOperation creates a new span for an operation
func (tp *TelemetryProvider) TraceOperation(ctx context.Context, operationName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	if tp.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return tp.tracer.Start(ctx, operationName,
		trace.WithAttributes(attributes...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// TraceDispatch creates a span for one dispatchTask invocation.
func (tp *TelemetryProvider) TraceDispatch(ctx context.Context, taskID, taskType string) (context.Context, trace.Span) {
	attributes := []attribute.KeyValue{
		attribute.String("scheduler.task.id", taskID),
		attribute.String("scheduler.task.type", taskType),
		attribute.String("scheduler.operation", "dispatch"),
	}

	return tp.TraceOperation(ctx, "scheduler.dispatch", attributes...)
}

// TracePredict creates a span for a predictor invocation.
func (tp *TelemetryProvider) TracePredict(ctx context.Context, taskID, taskType string) (context.Context, trace.Span) {
	attributes := []attribute.KeyValue{
		attribute.String("scheduler.task.id", taskID),
		attribute.String("scheduler.task.type", taskType),
		attribute.String("scheduler.operation", "predict"),
	}

	return tp.TraceOperation(ctx, "scheduler.predict", attributes...)
}

// RecordDispatched records a successful dispatch decision.
func (tp *TelemetryProvider) RecordDispatched(ctx context.Context, reason string, duration time.Duration) {
	if tp.tasksDispatched != nil {
		tp.tasksDispatched.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", reason),
		))
	}
	if tp.dispatchDuration != nil {
		tp.dispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("reason", reason),
			attribute.String("status", "success"),
		))
	}
}

// RecordDispatchFailed records a dispatch attempt that produced no decision.
func (tp *TelemetryProvider) RecordDispatchFailed(ctx context.Context, duration time.Duration, errorType string) {
	if tp.tasksFailed != nil {
		tp.tasksFailed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("error_type", errorType),
		))
	}
	if tp.dispatchDuration != nil {
		tp.dispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("status", "error"),
		))
	}
}

// RecordPrediction records one predictor invocation and whether its
// recommendation was ultimately used.
func (tp *TelemetryProvider) RecordPrediction(ctx context.Context, taskType string, used bool) {
	if tp.predictionsMade != nil {
		tp.predictionsMade.Add(ctx, 1, metric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.Bool("used", used),
		))
	}
}

// RecordBreakerTrip records the circuit breaker transitioning to open.
func (tp *TelemetryProvider) RecordBreakerTrip(ctx context.Context) {
	if tp.breakerTrips != nil {
		tp.breakerTrips.Add(ctx, 1)
	}
}

// UpdateStreamDepth adjusts the tracked task-stream backlog gauge.
func (tp *TelemetryProvider) UpdateStreamDepth(ctx context.Context, delta int64) {
	if tp.streamDepth != nil {
		tp.streamDepth.Add(ctx, delta)
	}
}

// SetSpanError sets an error on the current span
func (tp *TelemetryProvider) SetSpanError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks the span as successful
func (tp *TelemetryProvider) SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// Shutdown gracefully shuts down the telemetry provider
func (tp *TelemetryProvider) Shutdown(ctx context.Context) error {
	if tp.traceProvider != nil {
		return tp.traceProvider.Shutdown(ctx)
	}
	return nil
}

// GetTracer returns the tracer instance
func (tp *TelemetryProvider) GetTracer() trace.Tracer {
	return tp.tracer
}

// GetMeter returns the meter instance
func (tp *TelemetryProvider) GetMeter() metric.Meter {
	return tp.meter
}
