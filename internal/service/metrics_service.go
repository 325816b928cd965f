package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/portal-reports/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface and the report pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	deliveries      *prometheus.CounterVec
	retries         prometheus.Counter
	dueSchedules    prometheus.Gauge
	queueDepth      prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_runs_total",
		Help: "Report pipeline runs by report type and outcome",
	}, []string{"report_type", "outcome"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "report_run_duration_seconds",
		Help:    "Duration of report generation and delivery",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"report_type"})

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_deliveries_total",
		Help: "Per-recipient delivery outcomes",
	}, []string{"outcome"})

	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "report_retries_scheduled_total",
		Help: "Retries scheduled after generation failures",
	})

	dueSchedules := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schedules_due",
		Help: "Schedules found due on the last scheduler tick",
	})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "report_queue_depth",
		Help: "Queued plus running report triggers",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, runsTotal, runDuration, deliveries, retries, dueSchedules, queueDepth, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		deliveries:      deliveries,
		retries:         retries,
		dueSchedules:    dueSchedules,
		queueDepth:      queueDepth,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordRun records one pipeline run.
func (m *MetricsService) RecordRun(reportType models.ReportType, outcome models.RunOutcome, duration time.Duration) {
	if m == nil {
		return
	}
	label := string(reportType)
	if !reportType.Valid() {
		label = "unknown"
	}
	m.runsTotal.WithLabelValues(label, string(outcome)).Inc()
	m.runDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordDelivery adds count per-recipient outcomes.
func (m *MetricsService) RecordDelivery(outcome models.DeliveryStatus, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.deliveries.WithLabelValues(string(outcome)).Add(float64(count))
}

// RecordRetryScheduled counts a retry enqueued after a failure.
func (m *MetricsService) RecordRetryScheduled() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// SetDueSchedules reports the schedules found due on a tick.
func (m *MetricsService) SetDueSchedules(n int) {
	if m == nil {
		return
	}
	m.dueSchedules.Set(float64(n))
}

// SetQueueDepth reports pending triggers.
func (m *MetricsService) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
