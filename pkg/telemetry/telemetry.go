package telemetry

import (
	"context"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the process logger, the tracer and the metrics client.
type Telemetry struct {
	Logger      zerolog.Logger
	Tracer      trace.Tracer
	Statsd      statsd.ClientInterface
	serviceName string

	shutdown func(context.Context) error
}

// New builds the telemetry stack from ECSTORE_TELEMETRY_* variables overridden by opts.
func New(ctx context.Context, opts Options) (Telemetry, error) {
	config, err := loadConfig()
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to load telemetry config")
	}

	options := newDefaultOptions()
	config.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return Telemetry{}, eris.Wrap(err, "invalid telemetry options")
	}

	logger := newLogger(options)

	tracer, stopTracing, err := setupTracing(ctx, options)
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to setup tracing")
	}

	client, err := newStatsd(options)
	if err != nil {
		_ = stopTracing(ctx)
		return Telemetry{}, eris.Wrap(err, "failed to setup statsd")
	}

	return Telemetry{
		Logger:      logger,
		Tracer:      tracer,
		Statsd:      client,
		serviceName: options.ServiceName,
		shutdown: joinShutdown(stopTracing, func(context.Context) error {
			return client.Close()
		}),
	}, nil
}

// Shutdown flushes pending spans and metrics.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}

// GetLogger returns a component-specific logger.
func (t *Telemetry) GetLogger(component string) zerolog.Logger {
	return t.Logger.With().Str("component", t.serviceName+"."+component).Logger()
}

// GetLoggerWithTrace returns a component-specific logger enriched with trace context.
func (t *Telemetry) GetLoggerWithTrace(ctx context.Context, component string) zerolog.Logger {
	span := trace.SpanFromContext(ctx)

	logger := t.Logger.With().Str("component", t.serviceName+"."+component)

	if span.IsRecording() {
		spanCtx := span.SpanContext()
		logger = logger.
			Str("trace_id", spanCtx.TraceID().String()).
			Str("span_id", spanCtx.SpanID().String())
	}

	return logger.Logger()
}
