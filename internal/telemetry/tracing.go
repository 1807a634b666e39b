package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used for application spans.
const TracerName = "github.com/volunteer-hub/volunteer-hub"

// SetupTracing installs a global tracer provider that exports spans with the
// stdout exporter, either to os.Stdout or to the file at output. The returned
// function flushes and shuts the provider down.
func SetupTracing(serviceName, serviceVersion, output string) (func(context.Context) error, error) {
	var w io.Writer = os.Stdout
	var file *os.File
	if output != "" {
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace output: %w", err)
		}
		file = f
		w = f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	return installTracerProvider(serviceName, serviceVersion, exporter, file)
}

func installTracerProvider(serviceName, serviceVersion string, exporter sdktrace.SpanExporter, file *os.File) (func(context.Context) error, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if file != nil {
			_ = file.Close()
		}
		return err
	}, nil
}

// Tracer returns the application tracer from the global provider. Without
// SetupTracing the global provider is a no-op and spans cost nothing.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
