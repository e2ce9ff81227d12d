// Package observability collects Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus registry and application counters.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	entriesPosted      prometheus.Counter
	entriesReversed    prometheus.Counter
	documentsSettled   *prometheus.CounterVec
	reconciliationRuns prometheus.Counter
	integrityDrift     prometheus.Gauge
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	posted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_journal_entries_posted_total",
		Help: "Journal entries posted.",
	})
	reversed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_journal_entries_reversed_total",
		Help: "Journal entries reversed.",
	})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_cashflow_documents_settled_total",
		Help: "Cashflow documents settled, by direction.",
	}, []string{"direction"})
	recon := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_bank_reconciliation_runs_total",
		Help: "Bank statement reconciliation runs.",
	})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meridian_ledger_unbalanced_entries",
		Help: "Posted entries whose debits and credits drift beyond tolerance, from the last integrity scan.",
	})
	registry.MustRegister(requests, duration, posted, reversed, settled, recon, drift)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		entriesPosted:      posted,
		entriesReversed:    reversed,
		documentsSettled:   settled,
		reconciliationRuns: recon,
		integrityDrift:     drift,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// EntryPosted increments the posted-entry counter.
func (m *Metrics) EntryPosted() {
	if m != nil {
		m.entriesPosted.Inc()
	}
}

// EntryReversed increments the reversed-entry counter.
func (m *Metrics) EntryReversed() {
	if m != nil {
		m.entriesReversed.Inc()
	}
}

// DocumentSettled increments the settled-document counter for a direction.
func (m *Metrics) DocumentSettled(direction string) {
	if m != nil {
		m.documentsSettled.WithLabelValues(direction).Inc()
	}
}

// ReconciliationRun increments the reconciliation-run counter.
func (m *Metrics) ReconciliationRun() {
	if m != nil {
		m.reconciliationRuns.Inc()
	}
}

// SetIntegrityDrift records the latest unbalanced-entry count.
func (m *Metrics) SetIntegrityDrift(count int) {
	if m != nil {
		m.integrityDrift.Set(float64(count))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
