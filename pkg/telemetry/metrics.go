package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the build engine: evaluator
// throughput, action-cache hit ratio, and action-executor spawn latency.
type Metrics struct {
	config MetricsConfig

	// Evaluator (build) metrics.
	buildsStarted   *prometheus.CounterVec
	buildsCompleted *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec

	// Node-evaluation metrics.
	nodesEvaluated *prometheus.CounterVec
	nodeEvalDuration *prometheus.HistogramVec

	// Action-cache metrics.
	actionCacheLookups *prometheus.CounterVec
	cacheEntries       *prometheus.GaugeVec

	// Action-executor (spawn runner) metrics.
	actionsExecuted *prometheus.CounterVec
	spawnDuration   *prometheus.HistogramVec
	spawnErrors     *prometheus.CounterVec

	// Error metrics.
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Remote execution metrics.
	remoteFetches *prometheus.CounterVec

	// System metrics.
	activeBuilds  prometheus.Gauge
	queuedNodes   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		buildsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_started_total",
				Help:      "Total number of build invocations started",
			},
			[]string{"user"},
		),
		buildsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_completed_total",
				Help:      "Total number of build invocations completed",
			},
			[]string{"status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of a full build invocation in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		nodesEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_evaluated_total",
				Help:      "Total number of graph nodes evaluated",
			},
			[]string{"key_type", "status"},
		),
		nodeEvalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "node_eval_duration_seconds",
				Help:      "Duration of a single node evaluation in seconds",
				Buckets:   buckets,
			},
			[]string{"key_type"},
		),

		actionCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_cache_lookups_total",
				Help:      "Total number of action cache lookups by outcome (hit, miss, remote_hit)",
			},
			[]string{"outcome"},
		),
		cacheEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "action_cache_entries",
				Help:      "Current number of entries in the local action cache index",
			},
			[]string{"store"},
		),

		actionsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_executed_total",
				Help:      "Total number of actions spawned",
			},
			[]string{"mnemonic", "runner", "status"},
		),
		spawnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_spawn_duration_seconds",
				Help:      "Duration of action spawn execution in seconds",
				Buckets:   buckets,
			},
			[]string{"mnemonic", "runner"},
		),
		spawnErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_spawn_errors_total",
				Help:      "Total number of action spawn failures",
			},
			[]string{"mnemonic", "runner"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		remoteFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_fetches_total",
				Help:      "Total number of remote cache/CAS blob fetches by outcome",
			},
			[]string{"outcome"},
		),

		activeBuilds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_builds",
				Help:      "Current number of in-flight build invocations",
			},
		),
		queuedNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_nodes",
				Help:      "Current number of nodes queued for evaluation",
			},
		),
	}

	registry.MustRegister(
		m.buildsStarted,
		m.buildsCompleted,
		m.buildDuration,
		m.nodesEvaluated,
		m.nodeEvalDuration,
		m.actionCacheLookups,
		m.cacheEntries,
		m.actionsExecuted,
		m.spawnDuration,
		m.spawnErrors,
		m.errorsByClass,
		m.errorsByCode,
		m.remoteFetches,
		m.activeBuilds,
		m.queuedNodes,
	)

	return m, nil
}

// Build metrics.

// RecordBuildStarted increments the counter for started builds.
func (m *Metrics) RecordBuildStarted(user string) {
	if m.buildsStarted == nil {
		return
	}
	m.buildsStarted.WithLabelValues(user).Inc()
	m.activeBuilds.Inc()
}

// RecordBuildCompleted records a completed build with its status and duration.
func (m *Metrics) RecordBuildCompleted(status string, duration time.Duration) {
	if m.buildsCompleted == nil {
		return
	}
	m.buildsCompleted.WithLabelValues(status).Inc()
	m.buildDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeBuilds.Dec()
}

// Node-evaluation metrics.

// RecordNodeEvaluation records the evaluation of a single graph node.
func (m *Metrics) RecordNodeEvaluation(keyType, status string, duration time.Duration) {
	if m.nodesEvaluated == nil {
		return
	}
	m.nodesEvaluated.WithLabelValues(keyType, status).Inc()
	m.nodeEvalDuration.WithLabelValues(keyType).Observe(duration.Seconds())
}

// SetQueuedNodes sets the current number of nodes queued for evaluation.
func (m *Metrics) SetQueuedNodes(count float64) {
	if m.queuedNodes == nil {
		return
	}
	m.queuedNodes.Set(count)
}

// Action-cache metrics.

// RecordActionCacheLookup records the outcome of an action cache lookup.
func (m *Metrics) RecordActionCacheLookup(outcome string) {
	if m.actionCacheLookups == nil {
		return
	}
	m.actionCacheLookups.WithLabelValues(outcome).Inc()
}

// SetCacheEntryCount sets the current entry count for a named cache store.
func (m *Metrics) SetCacheEntryCount(store string, count float64) {
	if m.cacheEntries == nil {
		return
	}
	m.cacheEntries.WithLabelValues(store).Set(count)
}

// Action-executor metrics.

// RecordActionExecution records the outcome and duration of a spawned action.
func (m *Metrics) RecordActionExecution(mnemonic, runner, status string, duration time.Duration) {
	if m.actionsExecuted == nil {
		return
	}
	m.actionsExecuted.WithLabelValues(mnemonic, runner, status).Inc()
	m.spawnDuration.WithLabelValues(mnemonic, runner).Observe(duration.Seconds())
}

// RecordSpawnError records an action spawn failure.
func (m *Metrics) RecordSpawnError(mnemonic, runner string) {
	if m.spawnErrors == nil {
		return
	}
	m.spawnErrors.WithLabelValues(mnemonic, runner).Inc()
}

// Error metrics.

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Remote execution metrics.

// RecordRemoteFetch records the outcome of a remote cache/CAS fetch.
func (m *Metrics) RecordRemoteFetch(outcome string) {
	if m.remoteFetches == nil {
		return
	}
	m.remoteFetches.WithLabelValues(outcome).Inc()
}

// System metrics.

// SetActiveBuilds sets the current number of active build invocations.
func (m *Metrics) SetActiveBuilds(count float64) {
	if m.activeBuilds == nil {
		return
	}
	m.activeBuilds.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
