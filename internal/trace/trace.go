package trace

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "don-futures"

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	exportFile     io.Closer
	enabled        bool
)

// Option adds resource attributes to every exported span.
type Option func(*[]attribute.KeyValue)

// WithRun tags spans with the run mode, instrument and strategy so spans from
// a backtest and a live session on the same host can be told apart.
func WithRun(mode, symbol, strategy string) Option {
	return func(attrs *[]attribute.KeyValue) {
		*attrs = append(*attrs,
			attribute.String("don.mode", mode),
			attribute.String("don.symbol", symbol),
			attribute.String("don.strategy", strategy),
		)
	}
}

// Init installs a span exporter when LOG_TRACING_ENABLED is not "false".
//
// TRACE_EXPORTER picks the output: "pretty" (default) and "compact" write to
// stdout, "file" appends compact JSON to TRACE_FILE. Backtests usually turn
// tracing off or send it to a file; the pretty printer is noisy next to the
// summary on stdout.
func Init(opts ...Option) error {
	enabled = getEnv("LOG_TRACING_ENABLED", "true") == "true"
	if !enabled {
		return nil
	}

	exporterOpts, closer, err := exporterOptions(getEnv("TRACE_EXPORTER", "pretty"), os.Getenv("TRACE_FILE"))
	if err != nil {
		enabled = false
		return err
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		enabled = false
		return err
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion("1.0.0"),
	}
	for _, opt := range opts {
		opt(&attrs)
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		enabled = false
		return err
	}

	exportFile = closer
	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = otel.Tracer(serviceName)
	return nil
}

func exporterOptions(kind, path string) ([]stdouttrace.Option, io.Closer, error) {
	switch strings.ToLower(kind) {
	case "pretty", "":
		return []stdouttrace.Option{stdouttrace.WithPrettyPrint()}, nil, nil
	case "compact":
		return nil, nil, nil
	case "file":
		if path == "" {
			return nil, nil, fmt.Errorf("TRACE_EXPORTER=file needs TRACE_FILE")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace file: %w", err)
		}
		return []stdouttrace.Option{stdouttrace.WithWriter(f)}, f, nil
	default:
		return nil, nil, fmt.Errorf("unknown TRACE_EXPORTER %q", kind)
	}
}

// Shutdown flushes pending spans and closes the trace file, if any.
func Shutdown(ctx context.Context) error {
	var err error
	if tracerProvider != nil {
		err = tracerProvider.Shutdown(ctx)
		tracerProvider = nil
	}
	if exportFile != nil {
		if cerr := exportFile.Close(); err == nil {
			err = cerr
		}
		exportFile = nil
	}
	tracer = nil
	enabled = false
	return err
}

func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName, opts...)
}

func Enabled() bool {
	return enabled && tracer != nil
}

func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return "", "", false
	}
	return span.SpanContext().TraceID().String(),
		span.SpanContext().SpanID().String(),
		true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
