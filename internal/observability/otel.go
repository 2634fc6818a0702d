// Package observability sets up OpenTelemetry tracing for the chat board.
// HTTP spans come from otelgin, storage spans from the gorm plugin, and the
// chat and moderation services add their own.
package observability

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-chatboard/internal/config"
)

// BuildInfo describes the running process on every exported span.
type BuildInfo struct {
	Version     string
	Environment string // gin mode: debug, test or release
	DBDriver    string
	Classifier  bool // remote moderation classifier configured
}

// Shutdown flushes pending spans and stops the provider.
type Shutdown func(context.Context) error

// Seams for tests.
var (
	newExporter = func(ctx context.Context, opts ...otlptracegrpc.Option) (sdktrace.SpanExporter, error) {
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	}
	newResource = boardResource
)

// boardResource merges the SDK defaults with the board's identity.
func boardResource(ctx context.Context, service string, b BuildInfo) (*resource.Resource, error) {
	env := "development"
	if strings.EqualFold(b.Environment, "release") {
		env = "production"
	}
	return resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(b.Version),
			semconv.DeploymentEnvironment(env),
			attribute.String("chatboard.db.driver", b.DBDriver),
			attribute.Bool("chatboard.moderation.classifier", b.Classifier),
		),
	)
}

// exporterOptions picks plaintext or TLS towards the collector.
func exporterOptions(cfg config.OTELConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}

// SetupOTel installs the global tracer provider and W3C propagators. When
// tracing is disabled it leaves the globals alone and returns a no-op
// Shutdown. On error nothing global has been changed.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, b BuildInfo) (Shutdown, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, cfg.ServiceName, b)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}
