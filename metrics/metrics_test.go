package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/contract-ledger/ledger"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestInstrument_LabelsByRoutePattern(t *testing.T) {
	m := newTestMetrics()

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Post("/jobs/{job_id}/pay", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	for _, path := range []string{"/jobs/1/pay", "/jobs/2/pay"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		require.Equal(t, http.StatusConflict, rec.Code)
	}

	body := scrape(t, m)
	assert.Contains(t, body, `http_requests_total{method="POST",route="/jobs/{job_id}/pay",status="409"} 2`)
	assert.Contains(t, body, "http_in_flight_requests 0")
	assert.NotContains(t, body, `route="/jobs/1/pay"`)
}

func TestObserveOutcomes(t *testing.T) {
	m := newTestMetrics()

	m.ObservePayment(nil)
	m.ObservePayment(ledger.ErrAlreadyPaid)
	m.ObservePayment(ledger.ErrAlreadyPaid)
	m.ObserveDeposit(ledger.ErrLimitExceeded)

	body := scrape(t, m)
	assert.Contains(t, body, `ledger_payments_total{outcome="ok"} 1`)
	assert.Contains(t, body, `ledger_payments_total{outcome="already_paid"} 2`)
	assert.Contains(t, body, `ledger_deposits_total{outcome="deposit_limit_exceeded"} 1`)
}

func TestNew_IncludesRuntimeCollectors(t *testing.T) {
	assert.Contains(t, scrape(t, New()), "go_goroutines")
}
