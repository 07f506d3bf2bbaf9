// Package otel wires OpenTelemetry tracing to the event bus: executor
// operations and remote calls become spans, correlated through the operation
// ID carried in context.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/weftml/weft/internal/eventbus"
	"github.com/weftml/weft/internal/events"
	"github.com/weftml/weft/internal/opid"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("weft")}
	sub.register()

	return tp.Shutdown, nil
}

type subscriber struct {
	tracer    trace.Tracer
	opSpans   sync.Map // op id -> trace.Span
	grpcSpans sync.Map // op id -> trace.Span
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.ExecutorOpStart) {
		id, _ := opid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "executor."+e.Op)
		if e.Device != "" {
			span.SetAttributes(attribute.String("executor.device", e.Device))
		}
		s.opSpans.Store(id, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.ExecutorOpFinish) {
		id, _ := opid.FromContext(ctx)
		v, ok := s.opSpans.LoadAndDelete(id)
		if !ok {
			return
		}
		span := v.(trace.Span)
		if e.Type != "" {
			span.SetAttributes(attribute.String("executor.value_type", e.Type))
		}
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientStart) {
		id, _ := opid.FromContext(ctx)
		parent := ctx
		if v, ok := s.opSpans.Load(id); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "grpc.client")
		span.SetAttributes(
			semconv.RPCServiceKey.String(e.Service),
			semconv.RPCMethodKey.String(e.Method),
			attribute.String("net.peer.name", e.Target),
		)
		s.grpcSpans.Store(id, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
		id, _ := opid.FromContext(ctx)
		v, ok := s.grpcSpans.LoadAndDelete(id)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.String("grpc.code", e.Code.String()))
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	})
}
