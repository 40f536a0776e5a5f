/*
handlers_test.go - HTTP tests for the API

Runs the full router against an in-memory SQLite store seeded with the demo
dataset:
- Caller resolution (profile_id header)
- Contract and job reads
- Job payment and deposits, including error codes
- Admin reports and spreadsheet export
- Probes, metrics, CORS and rate limiting
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/contract-ledger/ids"
	"github.com/warp/contract-ledger/ledger"
	"github.com/warp/contract-ledger/metrics"
	"github.com/warp/contract-ledger/report"
	"github.com/warp/contract-ledger/store/sqldb"
)

type testServer struct {
	handler *Handler
	store   *sqldb.Store
	router  http.Handler
}

func newTestServer(t *testing.T, opts RouterOptions) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := sqldb.Open(ctx, sqldb.Options{Driver: sqldb.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Seed(ctx, sqldb.DemoDataset()))

	h := NewHandler(ledger.NewService(store, ids.New), metrics.New(), zerolog.Nop())
	h.Ready = store.Ping
	if opts.AllowedOrigins == nil {
		opts.AllowedOrigins = []string{"http://localhost:3000"}
	}
	return &testServer{handler: h, store: store, router: NewRouter(h, opts)}
}

func (s *testServer) do(t *testing.T, method, path, profileID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if profileID != "" {
		req.Header.Set(profileHeader, profileID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func (s *testServer) balance(t *testing.T, id int64) string {
	t.Helper()
	p, err := s.store.GetProfile(context.Background(), id)
	require.NoError(t, err)
	return p.Balance.StringFixed(2)
}

// =============================================================================
// CALLER RESOLUTION
// =============================================================================

func TestRequireProfile(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	tests := []struct {
		name      string
		profileID string
	}{
		{"missing header", ""},
		{"not a number", "abc"},
		{"unknown profile", "999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, "/contracts", tt.profileID, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, string(ledger.CodeUnauthenticated), decodeError(t, rec).Code)
		})
	}
}

// =============================================================================
// CONTRACTS & JOBS
// =============================================================================

func TestGetContract(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	t.Run("party sees contract", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/contracts/1", "1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var got ContractDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, ContractDTO{ID: 1, Terms: "First Sample terms", Status: "in_progress", ClientID: 1, ContractorID: 2}, got)
	})

	t.Run("contractor side sees contract", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/contracts/1", "2", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non party gets not found", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/contracts/1", "4", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, string(ledger.CodeNotFound), decodeError(t, rec).Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/contracts/abc", "1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Id must be a number", decodeError(t, rec).Error)
	})
}

func TestListContracts_ExcludesTerminated(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodGet, "/contracts", "1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []ContractDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	for _, c := range got {
		assert.NotEqual(t, "terminated", c.Status)
	}
}

func TestListUnpaidJobs(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodGet, "/jobs/unpaid", "1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	for _, j := range got {
		assert.Equal(t, false, j["paid"])
		assert.Nil(t, j["paymentDate"])
		assert.Equal(t, 50.0, j["price"])
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestPayJob_Success(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodPost, "/jobs/1/pay", "1", `{"amount": 50}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Body.String())

	assert.Equal(t, "50.00", srv.balance(t, 1))
	assert.Equal(t, "150.00", srv.balance(t, 2))

	// Second attempt is rejected and moves nothing.
	rec = srv.do(t, http.MethodPost, "/jobs/1/pay", "1", `{"amount": 50}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(ledger.CodeAlreadyPaid), decodeError(t, rec).Code)
	assert.Equal(t, "50.00", srv.balance(t, 1))
}

func TestPayJob_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		profileID  string
		body       string
		wantStatus int
		wantCode   ledger.Code
	}{
		{"missing amount", "/jobs/1/pay", "1", "", http.StatusBadRequest, ledger.CodeInvalidRequest},
		{"non numeric amount", "/jobs/1/pay", "1", `{"amount": "abc"}`, http.StatusBadRequest, ledger.CodeInvalidRequest},
		{"zero amount", "/jobs/1/pay", "1", `{"amount": 0}`, http.StatusBadRequest, ledger.CodeInvalidAmount},
		{"sub cent amount", "/jobs/1/pay", "1", `{"amount": 0.001}`, http.StatusBadRequest, ledger.CodeInvalidAmount},
		{"malformed body", "/jobs/1/pay", "1", `{"amount":`, http.StatusBadRequest, ledger.CodeInvalidRequest},
		{"malformed job id", "/jobs/abc/pay", "1", `{"amount": 50}`, http.StatusBadRequest, ledger.CodeInvalidRequest},
		{"contractor caller", "/jobs/1/pay", "2", `{"amount": 50}`, http.StatusForbidden, ledger.CodeForbidden},
		{"another client's job", "/jobs/5/pay", "1", `{"amount": 50}`, http.StatusNotFound, ledger.CodeJobNotFound},
		{"unknown job", "/jobs/999/pay", "1", `{"amount": 50}`, http.StatusNotFound, ledger.CodeJobNotFound},
		{"insufficient balance", "/jobs/1/pay", "1", `{"amount": 500}`, http.StatusForbidden, ledger.CodeInsufficientBalance},
		{"paid job", "/jobs/3/pay", "1", `{"amount": 50}`, http.StatusConflict, ledger.CodeAlreadyPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, RouterOptions{})

			rec := srv.do(t, http.MethodPost, tt.path, tt.profileID, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, string(tt.wantCode), decodeError(t, rec).Code)

			assert.Equal(t, "100.00", srv.balance(t, 1))
			assert.Equal(t, "100.00", srv.balance(t, 2))
		})
	}
}

// =============================================================================
// DEPOSITS
// =============================================================================

func TestDeposit(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		srv := newTestServer(t, RouterOptions{})

		rec := srv.do(t, http.MethodPost, "/balances/deposit/1", "1", `{"amount": 25}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "125.00", srv.balance(t, 1))
	})

	t.Run("over limit", func(t *testing.T) {
		srv := newTestServer(t, RouterOptions{})

		rec := srv.do(t, http.MethodPost, "/balances/deposit/1", "1", `{"amount": 30}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, string(ledger.CodeLimitExceeded), resp.Code)
		assert.Equal(t, "Limit exceeded, You can only deposit up to $25", resp.Error)
		assert.Equal(t, "100.00", srv.balance(t, 1))
	})

	t.Run("someone else's account", func(t *testing.T) {
		srv := newTestServer(t, RouterOptions{})

		rec := srv.do(t, http.MethodPost, "/balances/deposit/3", "1", `{"amount": 5}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "You can only deposit funds to your own account", decodeError(t, rec).Error)
	})

	t.Run("contractor", func(t *testing.T) {
		srv := newTestServer(t, RouterOptions{})

		rec := srv.do(t, http.MethodPost, "/balances/deposit/2", "2", `{"amount": 5}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Only clients can deposit funds", decodeError(t, rec).Error)
	})
}

// =============================================================================
// ADMIN
// =============================================================================

func TestBestProfession(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodGet, "/admin/best-profession?start=2024-01-01&end=2024-12-31", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Software Engineer", got)

	// March only: Designer 200 beats Software Engineer 50.
	rec = srv.do(t, http.MethodGet, "/admin/best-profession?start=2024-03-01&end=2024-03-31", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Designer", got)
}

func TestBestProfession_Rejections(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   ledger.Code
	}{
		{"missing bounds", "", http.StatusBadRequest, ledger.CodeInvalidRequest},
		{"bad date", "?start=yesterday&end=2024-12-31", http.StatusBadRequest, ledger.CodeInvalidRequest},
		{"reversed", "?start=2024-12-31&end=2024-01-01", http.StatusBadRequest, ledger.CodeInvalidRequest},
		{"equal", "?start=2024-01-01&end=2024-01-01", http.StatusBadRequest, ledger.CodeInvalidRequest},
		{"no paid jobs", "?start=2020-01-01&end=2020-12-31", http.StatusNotFound, ledger.CodeNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, "/admin/best-profession"+tt.query, "", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, string(tt.wantCode), decodeError(t, rec).Code)
		})
	}
}

func TestBestClients(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	t.Run("default limit", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/admin/best-clients?start=2024-01-01&end=2024-12-31", "", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `[
			{"id": 5, "fullName": "Bola Ige", "totalPaid": 300.00},
			{"id": 3, "fullName": "Ada Okafor", "totalPaid": 200.00}
		]`, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"totalPaid":300.00`)
	})

	t.Run("explicit limit", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/admin/best-clients?start=2024-01-01&end=2024-12-31&limit=3", "", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var got []ClientTotalDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 3)
		assert.Equal(t, int64(1), got[2].ID)
		assert.Equal(t, "50.00", got[2].TotalPaid.String())
	})

	t.Run("limit out of bounds", func(t *testing.T) {
		for _, limit := range []string{"0", "-1", "101", "two"} {
			rec := srv.do(t, http.MethodGet, "/admin/best-clients?start=2024-01-01&end=2024-12-31&limit="+limit, "", "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
		}
	})
}

func TestExportBestClients(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodGet, "/admin/best-clients/export?start=2024-01-01&end=2024-12-31&limit=3", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, report.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "best-clients-20240101-20241231.xlsx")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "xlsx is a zip archive")
}

// =============================================================================
// PROBES & MIDDLEWARE
// =============================================================================

func TestProbes(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	rec := srv.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.handler.Ready = func(context.Context) error { return errors.New("database is gone") }
	rec = srv.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	srv.do(t, http.MethodPost, "/jobs/1/pay", "1", `{"amount": 50}`)
	srv.do(t, http.MethodPost, "/jobs/1/pay", "1", `{"amount": 50}`)

	rec := srv.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ledger_payments_total{outcome="ok"} 1`)
	assert.Contains(t, body, `ledger_payments_total{outcome="already_paid"} 1`)
	assert.Contains(t, body, `route="/jobs/{job_id}/pay"`)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, RouterOptions{})

	req := httptest.NewRequest(http.MethodOptions, "/jobs/1/pay", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, RouterOptions{RateLimitRPS: 1, RateLimitBurst: 1})

	rec := srv.do(t, http.MethodGet, "/contracts", "1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/contracts", "1", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeError(t, rec).Code)

	// Probes are not limited.
	rec = srv.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
