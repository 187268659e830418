package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/reactor/pkg/reactive"
)

// Default tracer name for reactor runtimes.
const defaultTracerName = "github.com/vango-dev/reactor"

// Span and event names.
const (
	SpanFlush    = "reactor.flush"
	SpanError    = "reactor.error"
	SpanWarning  = "reactor.warning"
	EventReflush = "reactor.reflush"
	EventError   = "reactor.error"
	EventWarning = "reactor.warning"
	AttrPasses   = "reactor.passes"
	AttrJobs     = "reactor.jobs"
	AttrPostCbs  = "reactor.post_callbacks"
	AttrDropped  = "reactor.dropped"
	AttrEffects  = "reactor.effect_runs"
	AttrDepth    = "reactor.depth"
	AttrLabel    = "reactor.label"
	AttrCode     = "reactor.code"
)

// TracingConfig configures the OpenTelemetry observer.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "github.com/vango-dev/reactor").
	TracerName string

	// Provider is the tracer provider. If nil, the global provider is used.
	Provider trace.TracerProvider

	// Context is the parent context of flush spans (default: context.Background()).
	Context context.Context

	// Attributes are added to every span.
	Attributes []attribute.KeyValue
}

// TracingOption configures the OpenTelemetry observer.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) {
		c.Provider = tp
	}
}

// WithParentContext sets the context flush spans are started from.
func WithParentContext(ctx context.Context) TracingOption {
	return func(c *TracingConfig) {
		c.Context = ctx
	}
}

// WithAttributes adds attributes to every span.
func WithAttributes(attrs ...attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) {
		c.Attributes = append(c.Attributes, attrs...)
	}
}

// Tracer is a reactive.Observer that records each flush as a span. Errors
// and warnings raised during a flush become span events; outside a flush
// they get a span of their own.
//
// The tracer uses the global OpenTelemetry tracer provider unless one is
// given. Configure it in main() before creating runtimes:
//
//	otel.SetTracerProvider(tp)
//	rt := reactive.New(reactive.WithObserver(telemetry.NewTracer()))
//
// A Tracer follows its runtime's thread and must not be shared between
// runtimes.
type Tracer struct {
	tracer trace.Tracer
	ctx    context.Context
	attrs  []attribute.KeyValue

	span       trace.Span
	effectRuns int
}

// NewTracer creates a tracing observer.
func NewTracer(opts ...TracingOption) *Tracer {
	config := TracingConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Provider == nil {
		config.Provider = otel.GetTracerProvider()
	}
	if config.Context == nil {
		config.Context = context.Background()
	}
	return &Tracer{
		tracer: config.Provider.Tracer(config.TracerName),
		ctx:    config.Context,
		attrs:  config.Attributes,
	}
}

// FlushStarted implements reactive.Observer.
func (t *Tracer) FlushStarted(depth int) {
	if depth > 0 && t.span != nil {
		t.span.AddEvent(EventReflush, trace.WithAttributes(attribute.Int(AttrDepth, depth)))
		return
	}
	_, t.span = t.tracer.Start(t.ctx, SpanFlush,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(t.attrs...),
		trace.WithTimestamp(time.Now()),
	)
	t.effectRuns = 0
}

// FlushCompleted implements reactive.Observer.
func (t *Tracer) FlushCompleted(stats reactive.FlushStats) {
	if t.span == nil {
		return
	}
	t.span.SetAttributes(
		attribute.Int(AttrPasses, stats.Passes),
		attribute.Int(AttrJobs, stats.Jobs),
		attribute.Int(AttrPostCbs, stats.PostCallbacks),
		attribute.Int(AttrDropped, stats.Dropped),
		attribute.Int(AttrEffects, t.effectRuns),
	)
	t.span.End()
	t.span = nil
}

// EffectRun implements reactive.Observer.
func (t *Tracer) EffectRun(reactive.EffectKind) {
	if t.span != nil {
		t.effectRuns++
	}
}

// ErrorReported implements reactive.Observer.
func (t *Tracer) ErrorReported(label reactive.ErrorLabel) {
	attr := attribute.String(AttrLabel, string(label))
	if t.span != nil {
		t.span.AddEvent(EventError, trace.WithAttributes(attr))
		t.span.SetStatus(codes.Error, string(label)+" failed")
		return
	}
	_, span := t.tracer.Start(t.ctx, SpanError, trace.WithAttributes(t.with(attr)...))
	span.SetStatus(codes.Error, string(label)+" failed")
	span.End()
}

// Warned implements reactive.Observer.
func (t *Tracer) Warned(code string) {
	attr := attribute.String(AttrCode, code)
	if t.span != nil {
		t.span.AddEvent(EventWarning, trace.WithAttributes(attr))
		return
	}
	_, span := t.tracer.Start(t.ctx, SpanWarning, trace.WithAttributes(t.with(attr)...))
	span.End()
}

func (t *Tracer) with(attr attribute.KeyValue) []attribute.KeyValue {
	return append(t.attrs[:len(t.attrs):len(t.attrs)], attr)
}
