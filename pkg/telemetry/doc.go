// Package telemetry provides observability instrumentation for the build
// engine: structured logging (zerolog), distributed tracing (OpenTelemetry),
// metrics (Prometheus), and build-event publishing, combined into a single
// injectable Telemetry value.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insight
//  4. Event Publishing - async event system for the CLI's progress renderer
//
// # Usage
//
// Initialize telemetry at process startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "buildtool"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx = tel.WithContext(context.Background())
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("evaluator")
//	logger = logger.WithBuildID("build-123").WithKey("//pkg:target", "ConfiguredTargetKey")
//	logger.Info("starting evaluation")
//	logger.WithError(err).Error("evaluation failed")
//
// Log levels: trace, debug, info, warn, error, fatal.
//
// # Distributed Tracing
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//	span.SetAttributes(attribute.String("key", key))
//	span.AddEvent("dependency.resolved")
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// WithNodeContext, WithBuildContext and RecordActionExecution start their
// spans through StartEvaluateSpan / StartBuildSpan / StartExecuteActionSpan
// respectively; the evaluator calls WithNodeContext for every node it runs.
// Supported exporters: otlp (production), stdout (development), none (tests).
//
// # Metrics
//
//	tel.Metrics.RecordBuildStarted("alice")
//	tel.Metrics.RecordNodeEvaluation("FileKey", "ok", duration)
//	tel.Metrics.RecordActionCacheLookup("hit")
//	tel.Metrics.RecordActionExecution("CompileGo", "local", "ok", duration)
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics).
//
// # Event Publishing
//
//	tel.Events.PublishBuildStarted(buildID, user)
//	tel.Events.PublishNodeEvaluated(buildID, key, duration)
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("%s: %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
//
// # Context Helpers
//
//	ctx = telemetry.WithBuildContext(ctx, buildID, user)
//	defer telemetry.EndBuildContext(ctx, buildID, status, err)
//
//	ctx = telemetry.WithNodeContext(ctx, buildID, key, keyType)
//	defer telemetry.EndNodeContext(ctx, buildID, key, keyType, err)
//
//	err := telemetry.RecordActionExecution(ctx, actionKey, mnemonic, runner, func() error {
//	    return runner.Spawn(ctx, spec)
//	})
//
// # Configuration
//
//	cfg := telemetry.DevelopmentConfig() // verbose logging, stdout traces
//	cfg := telemetry.CIConfig()          // JSON logs, OTLP traces, 10% sampling
//
// # Graceful Shutdown
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("telemetry shutdown error: %v", err)
//	}
package telemetry
