/*
Package metrics exposes Prometheus collectors for the HTTP surface and the
money-moving operations.

COLLECTORS:
  http_in_flight_requests                  gauge
  http_requests_total{method,route,status} counter
  http_request_duration_seconds{...}       histogram
  ledger_payments_total{outcome}           counter, outcome = "ok" or error code
  ledger_deposits_total{outcome}           counter

  Routes are labelled with the chi route pattern (/jobs/{job_id}/pay), never
  the raw path, so label cardinality stays bounded.
*/
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/contract-ledger/ledger"
)

// Metrics holds every collector. Create one per registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	inFlight        prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	payments        *prometheus.CounterVec
	deposits        *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: g,
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_payments_total",
			Help: "Job payment attempts by outcome.",
		}, []string{"outcome"}),
		deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_deposits_total",
			Help: "Deposit attempts by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.inFlight, m.requestsTotal, m.requestDuration, m.payments, m.deposits)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument records in-flight, count and latency per route.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := strconv.Itoa(sw.code)
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

// ObservePayment counts a payment attempt.
func (m *Metrics) ObservePayment(err error) {
	m.payments.WithLabelValues(outcome(err)).Inc()
}

// ObserveDeposit counts a deposit attempt.
func (m *Metrics) ObserveDeposit(err error) {
	m.deposits.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var e *ledger.Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return string(ledger.CodeStorageFailure)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
