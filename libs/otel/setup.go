package otelx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/clinicdash/clinicsched/libs/config"
)

// Config controls trace export for one service. Export is off unless an OTLP
// endpoint is set.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // host:port of an OTLP gRPC collector
	Insecure       bool
	SampleRatio    float64
	ExportTimeout  time.Duration
	// Attributes are added to the resource, e.g. the clinic timezone.
	Attributes map[string]string
}

func (c Config) Enabled() bool { return c.Endpoint != "" }

// ConfigFromEnv reads the OTEL_* variables. OTEL_ENABLED=false turns export
// off even with an endpoint configured.
func ConfigFromEnv(serviceName string) (Config, error) {
	cfg := Config{
		ServiceName:    serviceName,
		ServiceVersion: config.String("SERVICE_VERSION", "dev"),
		Environment:    config.String("DEPLOYMENT_ENV", "local"),
		Endpoint:       config.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	enabled, err := config.Bool("OTEL_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	if !enabled {
		cfg.Endpoint = ""
	}
	if cfg.Insecure, err = config.Bool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return Config{}, err
	}
	if cfg.ExportTimeout, err = config.Duration("OTEL_EXPORTER_OTLP_TIMEOUT", 3*time.Second); err != nil {
		return Config{}, err
	}

	cfg.SampleRatio = 1
	if raw := config.String("OTEL_SAMPLING_RATIO", ""); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 || f > 1 {
			return Config{}, fmt.Errorf("OTEL_SAMPLING_RATIO must be between 0 and 1 (got %q)", raw)
		}
		cfg.SampleRatio = f
	}
	return cfg, nil
}

func (c Config) resource(ctx context.Context) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(c.ServiceName),
		semconv.ServiceVersion(c.ServiceVersion),
		semconv.DeploymentEnvironment(c.Environment),
	}
	for k, v := range c.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

// Setup installs the W3C propagators and, when export is enabled, a batching
// tracer provider. The returned func flushes pending spans.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := cfg.resource(ctx)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
