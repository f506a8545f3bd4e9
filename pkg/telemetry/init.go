package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/zoff-tech/go-pubsub-publisher/pkg/config"
)

// Init installs a global tracer provider exporting over OTLP/HTTP and a
// W3C trace-context propagator, so published messages carry their trace in
// attributes. The returned function flushes and stops the provider.
func Init(cfg config.Observability, logger zerolog.Logger) (func(), error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("service name cannot be empty")
	}
	if cfg.TracingURL == "" {
		return nil, errors.New("tracing URL cannot be empty")
	}

	traceExporter, err := otlptrace.New(context.Background(), newClient(cfg.TracingURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("error shutting down tracer provider")
		}
	}, nil
}

// newClient accepts either host:port, exported without TLS, or a full URL.
func newClient(tracingURL string) otlptrace.Client {
	if strings.Contains(tracingURL, "://") {
		return otlptracehttp.NewClient(otlptracehttp.WithEndpointURL(tracingURL))
	}
	return otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(tracingURL),
		otlptracehttp.WithInsecure(),
	)
}
