package tracer

import (
	"context"
	"log"

	"care-connect-be/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// InitTracer installs an OTLP HTTP tracer provider for the request spans that
// otelfiber records. With tracing disabled, or when the exporter cannot be
// built, the global no-op provider stays in place and the returned shutdown
// does nothing.
func InitTracer(cfg config.OtelConfig, environment string) ShutdownFunc {
	if !cfg.Enabled {
		log.Println("Tracing disabled (OTEL_ENABLED=false)")
		return noop
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Printf("[WARN] tracing disabled, OTLP exporter for %s failed: %v", cfg.Endpoint, err)
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.DeploymentEnvironmentKey.String(environment),
		)),
	)
	otel.SetTracerProvider(tp)
	log.Printf("✅ Tracing %s to %s (sample ratio %.2f)", cfg.ServiceName, cfg.Endpoint, cfg.SampleRatio)

	return tp.Shutdown
}
