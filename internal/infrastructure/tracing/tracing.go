package tracing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hilthontt/chorus/internal/infrastructure/configs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "chorus"

// NodeIDKey tags spans with the snowflake node that produced them.
var NodeIDKey = attribute.Key("chorus.node.id")

type ShutdownFunc = func(context.Context) error

// Noop is returned when tracing is disabled. The global provider stays the
// otel no-op provider.
func Noop(context.Context) error { return nil }

// Setup exports this node's spans over OTLP/HTTP. The endpoint scheme picks
// TLS: http:// endpoints are sent in the clear.
func Setup(ctx context.Context, cfg configs.TracingConfig, node configs.NodeConfig) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return Noop, nil
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceInstanceID(node.Name),
			semconv.DeploymentEnvironment(cfg.Environment),
			NodeIDKey.String(strconv.FormatInt(node.ID, 10)),
		),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	install(tp)
	return tp.Shutdown, nil
}

func install(tp trace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

func GetTracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}

// Inject returns the trace context of ctx as relay headers, or nil when ctx
// carries nothing to propagate.
func Inject(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	return carrier
}

// Extract continues the trace a peer node injected into headers.
func Extract(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
