package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides a unified telemetry interface combining logging,
// tracing, metrics, and build-event publishing for one process.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}

	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}

	// The metrics server is not explicitly shut down here; it may need to
	// keep serving /metrics until the very end of the process lifecycle.

	return nil
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// Context helpers for common instrumentation patterns.

// InstrumentedContext creates a context with telemetry, logger fields, and a trace span.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithField("operation", operation)

	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// buildSpanKey is the context key for the top-level build span.
type buildSpanKey struct{}

// buildTimerKey is the context key for the top-level build timer.
type buildTimerKey struct{}

// WithBuildContext creates a context enriched with build-level telemetry:
// a root span, a build-scoped logger, and the active-builds gauge.
func WithBuildContext(ctx context.Context, buildID, user string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartBuildSpan(ctx, buildID)

	logger := tel.Logger.WithBuildID(buildID).WithField("user", user)
	spanCtx = logger.WithContext(spanCtx)

	tel.Metrics.RecordBuildStarted(user)

	_ = tel.Events.PublishBuildStarted(buildID, user)

	spanCtx = context.WithValue(spanCtx, buildSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, buildTimerKey{}, NewTimer())

	return spanCtx
}

// EndBuildContext completes the build context, recording metrics and events.
func EndBuildContext(ctx context.Context, buildID, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(buildSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	var duration time.Duration
	if timer, ok := ctx.Value(buildTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	tel.Metrics.RecordBuildCompleted(status, duration)

	if err != nil {
		_ = tel.Events.PublishBuildFailed(buildID, err.Error())
	} else {
		_ = tel.Events.PublishBuildCompleted(buildID, status, duration)
	}
}

// nodeSpanKey is the context key for node-evaluation spans.
type nodeSpanKey struct{}

// nodeTimerKey is the context key for node-evaluation timers.
type nodeTimerKey struct{}

// WithNodeContext creates a context enriched with telemetry for the
// evaluation of a single graph node.
func WithNodeContext(ctx context.Context, buildID, key, keyType string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartEvaluateSpan(ctx, key, keyType)

	logger := tel.Logger.
		WithBuildID(buildID).
		WithKey(key, keyType)
	spanCtx = logger.WithContext(spanCtx)

	_ = tel.Events.PublishNodeEvaluating(buildID, key, keyType)

	spanCtx = context.WithValue(spanCtx, nodeSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, nodeTimerKey{}, NewTimer())

	return spanCtx
}

// EndNodeContext completes the node-evaluation context, recording metrics
// and events.
func EndNodeContext(ctx context.Context, buildID, key, keyType string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(nodeSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	var duration time.Duration
	if timer, ok := ctx.Value(nodeTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	tel.Metrics.RecordNodeEvaluation(keyType, status, duration)

	if err != nil {
		_ = tel.Events.PublishNodeFailed(buildID, key, err.Error())
	} else {
		_ = tel.Events.PublishNodeEvaluated(buildID, key, duration)
	}
}

// WithRunnerContext creates a context enriched with spawn-runner-specific
// telemetry (local subprocess, SSH, or WASM sandbox).
func WithRunnerContext(ctx context.Context, kind, name string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	logger := tel.Logger.WithRunner(kind, name)
	return logger.WithContext(ctx)
}

// RecordActionExecution records a spawned action with metrics and tracing,
// running fn and classifying the result.
func RecordActionExecution(ctx context.Context, actionKey, mnemonic, runner string, fn func() error) error {
	tel := FromTelemetryContext(ctx)

	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartExecuteActionSpan(ctx, actionKey, mnemonic, runner)
		defer span.End()
	}

	timer := NewTimer()

	err := fn()

	if tel != nil {
		duration := timer.Duration()
		status := "ok"
		if err != nil {
			status = "error"
			tel.Metrics.RecordSpawnError(mnemonic, runner)
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		tel.Metrics.RecordActionExecution(mnemonic, runner, status, duration)
	}

	return err
}
