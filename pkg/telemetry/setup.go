package telemetry

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// setupTracing returns a tracer and the function that flushes and stops it. A disabled config gets a
// noop tracer.
func setupTracing(ctx context.Context, opts Options) (trace.Tracer, func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }
	if !opts.Enabled {
		return noop.NewTracerProvider().Tracer(opts.ServiceName), noopShutdown, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", opts.ServiceName),
	))
	if err != nil {
		return noop.NewTracerProvider().Tracer(opts.ServiceName), noopShutdown,
			eris.Wrap(err, "failed to create resource")
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracerProvider, err := newTracerProvider(ctx, res, opts)
	if err != nil {
		return noop.NewTracerProvider().Tracer(opts.ServiceName), noopShutdown, err
	}
	otel.SetTracerProvider(tracerProvider)

	return tracerProvider.Tracer(opts.ServiceName), tracerProvider.Shutdown, nil
}

func newTracerProvider(
	ctx context.Context, res *resource.Resource, opts Options,
) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create OTLP trace exporter")
	}

	var sampler sdktrace.Sampler
	switch opts.TraceSampleRate {
	case 1.0:
		sampler = sdktrace.AlwaysSample()
	case 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.TraceSampleRate))
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	), nil
}

// newStatsd returns a DogStatsD client, or a noop client when no address is configured.
func newStatsd(opts Options) (statsd.ClientInterface, error) {
	if opts.StatsdAddress == "" {
		return &statsd.NoOpClient{}, nil
	}

	clientOpts := []statsd.Option{statsd.WithNamespace(opts.ServiceName + ".")}
	if len(opts.StatsdTags) > 0 {
		clientOpts = append(clientOpts, statsd.WithTags(opts.StatsdTags))
	}
	client, err := statsd.New(opts.StatsdAddress, clientOpts...)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create statsd client for %s", opts.StatsdAddress)
	}
	return client, nil
}

// newLogger creates a logger with the specified format and level.
func newLogger(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var writer io.Writer = out
	if opts.LogFormat == LogFormatPretty {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
}

// joinShutdown runs every shutdown function and joins their errors.
func joinShutdown(fns ...func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs error
		for _, fn := range fns {
			errs = errors.Join(errs, fn(ctx))
		}
		return errs
	}
}
