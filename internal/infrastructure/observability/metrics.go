package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/waqasmani/attendance-scheduler/internal/shared/errors"
)

// MetricsConfig holds configuration for metrics initialization
type MetricsConfig struct {
	Namespace string
	Subsystem string
	Registry  prometheus.Registerer
	Gatherer  prometheus.Gatherer
}

// DefaultMetricsConfig returns a config using the default Prometheus registry
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "attendance",
		Subsystem: "",
		Registry:  prometheus.DefaultRegisterer,
		Gatherer:  prometheus.DefaultGatherer,
	}
}

// Metrics holds all Prometheus metrics collectors
type Metrics struct {
	HttpRequestsTotal        *prometheus.CounterVec
	HttpRequestDuration      *prometheus.HistogramVec
	HttpRequestSize          *prometheus.HistogramVec
	HttpResponseSize         *prometheus.HistogramVec
	DatabaseQueryDuration    *prometheus.HistogramVec
	DatabaseQuerySuccess     *prometheus.CounterVec
	DatabaseQueryErrors      *prometheus.CounterVec
	DatabaseConnections      *prometheus.GaugeVec
	DatabaseRetryAttempts    *prometheus.CounterVec
	DatabaseRetrySkipped     *prometheus.CounterVec
	DatabaseRetryMaxAttempts *prometheus.CounterVec
	AuthenticationFailures   *prometheus.CounterVec
	RateLimitRejections      *prometheus.CounterVec
	BackgroundJobDuration    *prometheus.HistogramVec
	BackgroundJobErrors      *prometheus.CounterVec
	ErrorCount               *prometheus.CounterVec
	ClientErrorCount         *prometheus.CounterVec
	ServerErrorCount         *prometheus.CounterVec
	NetworkErrorCount        *prometheus.CounterVec
	CircuitBreakerState      *prometheus.GaugeVec
	CircuitBreakerEvents     *prometheus.CounterVec
	CircuitBreakerDuration   *prometheus.SummaryVec
	CheckInsTotal            *prometheus.CounterVec
	CheckOutsTotal           *prometheus.CounterVec
	CorrectionsTotal         *prometheus.CounterVec
	WorkingHours             prometheus.Histogram
	SchedulerTimers          prometheus.Gauge
	SchedulerFires           *prometheus.CounterVec
	AbsenteeNotifications    prometheus.Counter
	SweepEntries             *prometheus.CounterVec
	NotificationsTotal       *prometheus.CounterVec
	registry                 prometheus.Registerer
	gatherer                 prometheus.Gatherer
	owned                    []prometheus.Collector
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// NewMetrics creates a new Metrics instance with the provided configuration
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetricsWithConfig(DefaultMetricsConfig())
	})
	return metrics
}

// collectors builds every metric under one namespace/subsystem pair and
// remembers what it registered.
type collectors struct {
	factory   promauto.Factory
	namespace string
	subsystem string
	made      []prometheus.Collector
}

func keep[T prometheus.Collector](c *collectors, col T) T {
	c.made = append(c.made, col)
	return col
}

func (c *collectors) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: c.namespace, Subsystem: c.subsystem, Name: name, Help: help}
}

func (c *collectors) counter(name, help string) prometheus.Counter {
	return keep(c, c.factory.NewCounter(c.counterOpts(name, help)))
}

func (c *collectors) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return keep(c, c.factory.NewCounterVec(c.counterOpts(name, help), labels))
}

func (c *collectors) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: c.namespace, Subsystem: c.subsystem, Name: name, Help: help}
}

func (c *collectors) gauge(name, help string) prometheus.Gauge {
	return keep(c, c.factory.NewGauge(c.gaugeOpts(name, help)))
}

func (c *collectors) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return keep(c, c.factory.NewGaugeVec(c.gaugeOpts(name, help), labels))
}

func (c *collectors) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: c.namespace, Subsystem: c.subsystem, Name: name, Help: help, Buckets: buckets}
}

func (c *collectors) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return keep(c, c.factory.NewHistogram(c.histogramOpts(name, help, buckets)))
}

func (c *collectors) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return keep(c, c.factory.NewHistogramVec(c.histogramOpts(name, help, buckets), labels))
}

func (c *collectors) summaryVec(name, help string, objectives map[float64]float64, labels ...string) *prometheus.SummaryVec {
	return keep(c, c.factory.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: c.namespace, Subsystem: c.subsystem, Name: name, Help: help, Objectives: objectives,
	}, labels))
}

var (
	latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	queryBuckets   = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1}
	jobBuckets     = []float64{.1, .5, 1, 5, 10, 30, 60, 300}
	hoursBuckets   = []float64{1, 2, 4, 6, 8, 9, 10, 12, 16, 24}
	sizeBuckets    = prometheus.ExponentialBuckets(100, 10, 8)
)

// NewMetricsWithConfig creates a new Metrics instance with custom configuration.
// When Gatherer is nil the Registry is used if it can also gather.
func NewMetricsWithConfig(cfg MetricsConfig) *Metrics {
	m := &Metrics{
		registry: cfg.Registry,
		gatherer: cfg.Gatherer,
	}
	if m.gatherer == nil {
		if g, ok := cfg.Registry.(prometheus.Gatherer); ok {
			m.gatherer = g
		}
	}
	c := &collectors{factory: promauto.With(cfg.Registry), namespace: cfg.Namespace, subsystem: cfg.Subsystem}

	// HTTP
	m.HttpRequestsTotal = c.counterVec("http_requests_total", "Total number of HTTP requests", "method", "path", "status")
	m.HttpRequestDuration = c.histogramVec("http_request_duration_seconds", "Duration of HTTP requests in seconds", latencyBuckets, "method", "path")
	m.HttpRequestSize = c.histogramVec("http_request_size_bytes", "Size of HTTP requests in bytes", sizeBuckets, "method", "path")
	m.HttpResponseSize = c.histogramVec("http_response_size_bytes", "Size of HTTP responses in bytes", sizeBuckets, "method", "path")
	m.AuthenticationFailures = c.counterVec("authentication_failures_total", "Total number of rejected bearer tokens", "reason")
	m.RateLimitRejections = c.counterVec("rate_limit_rejections_total", "Requests rejected by the per-principal rate limiter", "scope")

	// Database
	m.DatabaseQueryDuration = c.histogramVec("database_query_duration_seconds", "Duration of database queries in seconds", queryBuckets, "query_type", "table")
	m.DatabaseQuerySuccess = c.counterVec("database_query_success_total", "Total number of successful database queries", "query_type", "table")
	m.DatabaseQueryErrors = c.counterVec("database_query_errors_total", "Total number of database query errors", "query_type", "table", "error_type")
	m.DatabaseConnections = c.gaugeVec("database_connections", "Number of database connections by pool state", "state")
	m.DatabaseRetryAttempts = c.counterVec("database_retry_attempts_total", "Total number of database operation retry attempts", "operation", "error_type")
	m.DatabaseRetrySkipped = c.counterVec("database_retry_skipped_total", "Database operations not retried because the error was permanent", "operation", "error_type")
	m.DatabaseRetryMaxAttempts = c.counterVec("database_retry_max_attempts_total", "Database operations that exhausted their retries", "operation")

	// Circuit breaker
	m.CircuitBreakerState = c.gaugeVec("circuit_breaker_state", "Current state of circuit breakers (0=closed, 0.5=half_open, 1=open)", "name", "state")
	m.CircuitBreakerEvents = c.counterVec("circuit_breaker_events_total", "Total number of circuit breaker events", "name", "event_type", "reason")
	m.CircuitBreakerDuration = c.summaryVec("circuit_breaker_duration_seconds", "Duration of operations protected by circuit breakers",
		map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}, "name", "status")

	// Errors
	m.ErrorCount = c.counterVec("error_total", "Total number of errors by type", "error_type", "method", "path")
	m.ClientErrorCount = c.counterVec("client_error_total", "Total number of client errors", "error_code", "method", "path")
	m.ServerErrorCount = c.counterVec("server_error_total", "Total number of server errors", "error_code", "method", "path")
	m.NetworkErrorCount = c.counterVec("network_error_total", "Total number of network errors", "error_code", "method", "path")

	// Ledger
	m.CheckInsTotal = c.counterVec("check_ins_total", "Total number of check-ins by resulting status", "status")
	m.CheckOutsTotal = c.counterVec("check_outs_total", "Total number of check-outs by source", "source")
	m.CorrectionsTotal = c.counterVec("corrections_total", "Total number of correction requests by type and status", "request_type", "status")
	m.WorkingHours = c.histogram("working_hours", "Distribution of worked hours per closed ledger entry", hoursBuckets)

	// Scheduler and sweep
	m.SchedulerTimers = c.gauge("scheduler_pending_timers", "Number of tenants with a pending absentee-check timer")
	m.SchedulerFires = c.counterVec("scheduler_fires_total", "Total number of timer fires by outcome", "outcome")
	m.AbsenteeNotifications = c.counter("absentee_notifications_total", "Total number of check-in reminders sent by the absentee check")
	m.SweepEntries = c.counterVec("sweep_entries_total", "Total number of open entries handled by the nightly sweep", "pass", "outcome")
	m.BackgroundJobDuration = c.histogramVec("background_job_duration_seconds", "Duration of background jobs in seconds", jobBuckets, "job_name")
	m.BackgroundJobErrors = c.counterVec("background_job_errors_total", "Total number of background job errors", "job_name", "error_type")

	m.NotificationsTotal = c.counterVec("notifications_total", "Total number of notification deliveries by channel and status", "channel", "status")

	m.owned = c.made
	return m
}

// RecordDatabaseStats records database connection pool statistics
func (m *Metrics) RecordDatabaseStats(openConns, inUse, idle int) {
	m.DatabaseConnections.WithLabelValues("open").Set(float64(openConns))
	m.DatabaseConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DatabaseConnections.WithLabelValues("idle").Set(float64(idle))
}

// RecordBackgroundJob records metrics for background job execution
func (m *Metrics) RecordBackgroundJob(jobName string, duration time.Duration, err error) {
	m.BackgroundJobDuration.WithLabelValues(jobName).Observe(duration.Seconds())
	if err != nil {
		m.BackgroundJobErrors.WithLabelValues(jobName, "error").Inc()
	}
}

// RecordError counts a rendered API error under its type and its code.
func (m *Metrics) RecordError(errorType errors.ErrorType, code errors.ErrorCode, method, path string) {
	m.ErrorCount.WithLabelValues(string(errorType), method, path).Inc()

	byCode := map[errors.ErrorType]*prometheus.CounterVec{
		errors.ErrorTypeClient:  m.ClientErrorCount,
		errors.ErrorTypeServer:  m.ServerErrorCount,
		errors.ErrorTypeNetwork: m.NetworkErrorCount,
	}[errorType]
	if byCode != nil {
		byCode.WithLabelValues(string(code), method, path).Inc()
	}
}

// RecordNotification counts one delivery attempt on a notifier channel.
func (m *Metrics) RecordNotification(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.NotificationsTotal.WithLabelValues(channel, status).Inc()
}

// Registry returns the Prometheus registry used by this Metrics instance
func (m *Metrics) Registry() prometheus.Registerer {
	return m.registry
}

// Gatherer returns the Prometheus gatherer used by this Metrics instance
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// Unregister removes every collector this instance registered, so tests can
// rebuild Metrics on the same registry.
func (m *Metrics) Unregister() {
	if m.registry == nil {
		return
	}
	for _, col := range m.owned {
		m.registry.Unregister(col)
	}
}
