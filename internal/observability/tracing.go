package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with helpers for the spans the
// bridge emits: one server span per Slack turn and a client span around
// each CLI run.
//
// Usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "claudebridge",
//	    Endpoint:    "localhost:4317",
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.StartTurn(ctx, "app_mention", channel, threadTS)
//	defer span.End()
type Tracer struct {
	tracer trace.Tracer
	config TraceConfig
}

// TraceConfig selects the exporter and resource attributes. An empty
// Endpoint disables export and leaves the global provider alone.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Endpoint is an OTLP/gRPC collector address such as "localhost:4317".
	Endpoint string

	// SamplingRate is the root sampling ratio in [0, 1]. Zero is treated as 1
	// when an endpoint is set.
	SamplingRate float64

	// Attributes are added to the resource of every span.
	Attributes map[string]string

	// Insecure disables TLS for the OTLP connection
	Insecure bool
}

// DefaultServiceName is used when TraceConfig.ServiceName is empty.
const DefaultServiceName = "claudebridge"

// propagator is used for child process propagation regardless of the
// global setting, so the CLI always sees W3C headers.
var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// NewTracer creates a tracer with the given configuration and installs it as
// the global provider. Returns the tracer and a shutdown function that must
// be called on exit.
//
// If config.Endpoint is empty, the global provider is left untouched and
// spans are not exported.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	noop := func(context.Context) error { return nil }

	if config.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(config.ServiceName), config: config}, noop
	}
	if config.SamplingRate == 0 {
		config.SamplingRate = 1.0
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(opts...),
	)
	if err != nil {
		// Fall back to the no-op tracer; tracing must never block startup.
		return &Tracer{tracer: otel.Tracer(config.ServiceName), config: config}, noop
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}
	for k, v := range config.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(config.SamplingRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagator)

	return NewTracerFromProvider(provider, config), provider.Shutdown
}

// NewTracerFromProvider builds a Tracer on an existing provider without
// touching global state.
func NewTracerFromProvider(tp trace.TracerProvider, config TraceConfig) *Tracer {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	return &Tracer{tracer: tp.Tracer(config.ServiceName), config: config}
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Start creates a span and returns a context containing it.
func (t *Tracer) Start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// StartTurn opens the server span covering one Slack event.
func (t *Tracer) StartTurn(ctx context.Context, event, channel, threadTS string) (context.Context, trace.Span) {
	return t.Start(ctx, "slack.turn", trace.SpanKindServer,
		attribute.String("slack.event", event),
		attribute.String("slack.channel", channel),
		attribute.String("slack.thread_ts", threadTS),
	)
}

// RecordError records err on span and marks it failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets alternating key/value pairs on span, in the style of
// slog arguments. Pairs with a non-string key and a trailing odd value are
// dropped.
func SetAttributes(span trace.Span, keyvals ...any) {
	var attrs []attribute.KeyValue
	for len(keyvals) >= 2 {
		if key, ok := keyvals[0].(string); ok {
			attrs = append(attrs, attributeFromValue(key, keyvals[1]))
		}
		keyvals = keyvals[2:]
	}
	span.SetAttributes(attrs...)
}

// TraceEnv renders the trace context in ctx as environment assignments
// (TRACEPARENT=..., TRACESTATE=..., BAGGAGE=...) for a child process.
// Returns nil when ctx carries no valid span.
func TraceEnv(ctx context.Context) []string {
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return nil
	}
	carrier := propagation.MapCarrier{}
	propagator.Inject(ctx, carrier)

	env := make([]string, 0, len(carrier))
	for _, key := range []string{"traceparent", "tracestate", "baggage"} {
		if v := carrier.Get(key); v != "" {
			env = append(env, strings.ToUpper(key)+"="+v)
		}
	}
	return env
}

// GetTraceID returns the hex trace ID in ctx, or "" outside a span.
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

func attributeFromValue(key string, val any) attribute.KeyValue {
	switch v := val.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Milliseconds())
	case error:
		return attribute.String(key, v.Error())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
