// Package tracing wires OpenTelemetry distributed tracing into the saga
// orchestrator.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"sagaorchestrator/internal/saga"
	"sagaorchestrator/internal/store"
)

// TracerProvider wraps an OpenTelemetry tracer provider configured for this
// service.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes distributed tracing and registers it as the
// process-wide global provider.
func InitTracing(serviceName, environment, endpoint string) (*TracerProvider, error) {
	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(), // use TLS in production
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()), // adjust sampling in production
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &TracerProvider{
		provider: tp,
		tracer:   tp.Tracer(serviceName),
	}, nil
}

// Shutdown gracefully flushes and shuts down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// StartSpan starts a new span on this provider's tracer.
func (tp *TracerProvider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, name, opts...)
}

// TraceStore wraps a SagaStore so every call produces a span recording the
// saga ID and any error, without the caller needing to know about tracing.
func TraceStore(inner store.SagaStore, tracer trace.Tracer) store.SagaStore {
	return &tracedStore{inner: inner, tracer: tracer}
}

type tracedStore struct {
	inner  store.SagaStore
	tracer trace.Tracer
}

func (s *tracedStore) Save(ctx context.Context, sg *saga.Saga) error {
	ctx, span := s.tracer.Start(ctx, "store.Save",
		trace.WithAttributes(
			attribute.String("saga.id", sg.SagaID),
			attribute.Int64("saga.version", sg.Version),
			attribute.String("saga.status", string(sg.Status)),
		),
	)
	defer span.End()

	err := s.inner.Save(ctx, sg)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *tracedStore) Get(ctx context.Context, sagaID string) (*saga.Saga, error) {
	ctx, span := s.tracer.Start(ctx, "store.Get",
		trace.WithAttributes(attribute.String("saga.id", sagaID)),
	)
	defer span.End()

	sg, err := s.inner.Get(ctx, sagaID)
	if err != nil {
		span.RecordError(err)
	}
	return sg, err
}

func (s *tracedStore) Delete(ctx context.Context, sagaID string) error {
	ctx, span := s.tracer.Start(ctx, "store.Delete",
		trace.WithAttributes(attribute.String("saga.id", sagaID)),
	)
	defer span.End()

	err := s.inner.Delete(ctx, sagaID)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *tracedStore) ListPending(ctx context.Context, limit int) ([]*saga.Saga, error) {
	ctx, span := s.tracer.Start(ctx, "store.ListPending",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	sagas, err := s.inner.ListPending(ctx, limit)
	if err != nil {
		span.RecordError(err)
	}
	return sagas, err
}

func (s *tracedStore) ListByStatus(ctx context.Context, status saga.Status, limit int) ([]*saga.Saga, error) {
	ctx, span := s.tracer.Start(ctx, "store.ListByStatus",
		trace.WithAttributes(
			attribute.String("status", string(status)),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	sagas, err := s.inner.ListByStatus(ctx, status, limit)
	if err != nil {
		span.RecordError(err)
	}
	return sagas, err
}

func (s *tracedStore) ListByCorrelation(ctx context.Context, correlationID string, limit int) ([]*saga.Saga, error) {
	ctx, span := s.tracer.Start(ctx, "store.ListByCorrelation",
		trace.WithAttributes(
			attribute.String("correlation_id", correlationID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	sagas, err := s.inner.ListByCorrelation(ctx, correlationID, limit)
	if err != nil {
		span.RecordError(err)
	}
	return sagas, err
}
