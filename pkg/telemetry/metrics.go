package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/reactor/pkg/reactive"
)

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "reactor").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for flush duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus observer.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the flush duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "reactor",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is a reactive.Observer that exports runtime activity as
// Prometheus metrics.
//
// Metrics collected:
//   - reactor_flushes_total: Counter of completed flushes
//   - reactor_flush_passes: Histogram of passes per flush
//   - reactor_flush_duration_seconds: Histogram of flush duration
//   - reactor_jobs_total: Counter of main-queue jobs run
//   - reactor_post_callbacks_total: Counter of post-flush callbacks run
//   - reactor_jobs_dropped_total: Counter of jobs skipped by the flush budget
//   - reactor_effect_runs_total: Counter of effect bodies run, by kind
//   - reactor_errors_total: Counter of reported failures, by label
//   - reactor_warnings_total: Counter of misuse warnings, by code
//
// Example:
//
//	m := telemetry.NewMetrics(telemetry.WithNamespace("myapp"))
//	rt := reactive.New(reactive.WithObserver(m))
//	http.Handle("/metrics", promhttp.Handler())
type Metrics struct {
	flushes       prometheus.Counter
	flushPasses   prometheus.Histogram
	flushDuration prometheus.Histogram
	jobs          prometheus.Counter
	postCallbacks prometheus.Counter
	dropped       prometheus.Counter
	effectRuns    *prometheus.CounterVec
	errors        *prometheus.CounterVec
	warnings      *prometheus.CounterVec
}

// NewMetrics registers the runtime metrics and returns an observer that
// updates them. Registering twice on the same registry panics, as with any
// promauto metric.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		flushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushes_total",
			Help:        "Total number of completed scheduler flushes",
			ConstLabels: config.ConstLabels,
		}),

		flushPasses: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_passes",
			Help:        "Passes taken by each flush, re-flushes included",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{1, 2, 3, 5, 10, 25, 100},
		}),

		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_duration_seconds",
			Help:        "Flush duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		jobs: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "jobs_total",
			Help:        "Total number of main-queue jobs run",
			ConstLabels: config.ConstLabels,
		}),

		postCallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "post_callbacks_total",
			Help:        "Total number of post-flush callbacks run",
			ConstLabels: config.ConstLabels,
		}),

		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "jobs_dropped_total",
			Help:        "Total number of jobs skipped by the flush budget",
			ConstLabels: config.ConstLabels,
		}),

		effectRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "effect_runs_total",
			Help:        "Total number of effect bodies run",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of user callback failures",
			ConstLabels: config.ConstLabels,
		}, []string{"label"}),

		warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "warnings_total",
			Help:        "Total number of misuse warnings",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),
	}
}

// FlushStarted implements reactive.Observer.
func (m *Metrics) FlushStarted(int) {}

// FlushCompleted implements reactive.Observer.
func (m *Metrics) FlushCompleted(stats reactive.FlushStats) {
	m.flushes.Inc()
	m.flushPasses.Observe(float64(stats.Passes))
	m.flushDuration.Observe(stats.Duration.Seconds())
	m.jobs.Add(float64(stats.Jobs))
	m.postCallbacks.Add(float64(stats.PostCallbacks))
	m.dropped.Add(float64(stats.Dropped))
}

// EffectRun implements reactive.Observer.
func (m *Metrics) EffectRun(kind reactive.EffectKind) {
	m.effectRuns.WithLabelValues(string(kind)).Inc()
}

// ErrorReported implements reactive.Observer.
func (m *Metrics) ErrorReported(label reactive.ErrorLabel) {
	m.errors.WithLabelValues(string(label)).Inc()
}

// Warned implements reactive.Observer.
func (m *Metrics) Warned(code string) {
	m.warnings.WithLabelValues(code).Inc()
}
