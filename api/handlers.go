/*
handlers.go - HTTP API handlers for the contract ledger

PURPOSE:
  Exposes the ledger engines via REST. Handles HTTP request/response and
  JSON serialization, and delegates every rule to package ledger.

ENDPOINTS:
  Caller scoped (profile_id header required):
    GET    /contracts/{id}              Contract if the caller is a party
    GET    /contracts                   Caller's non-terminated contracts
    GET    /jobs/unpaid                 Unpaid jobs on active contracts
    POST   /jobs/{job_id}/pay           Pay a job        {"amount": 50}
    POST   /balances/deposit/{userId}   Deposit funds    {"amount": 25}

  Admin:
    GET    /admin/best-profession?start=&end=
    GET    /admin/best-clients?start=&end=&limit=
    GET    /admin/best-clients/export?start=&end=&limit=   (xlsx)

REQUEST FLOW:
  1. Resolve caller (middleware)
  2. Parse path, query and body with the ledger validators
  3. Call the engine
  4. Serialize response, or map the error kind to a status

ERROR HANDLING:
  Errors are returned as {"error": message, "code": code}. The status comes
  from ledger.Kind; message text is never inspected. Storage failures are
  logged with the request id and answered with a generic message.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/warp/contract-ledger/ledger"
	"github.com/warp/contract-ledger/metrics"
	"github.com/warp/contract-ledger/report"
)

// maxBodyBytes bounds pay and deposit request bodies.
const maxBodyBytes = 1 << 16

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *ledger.Service
	Metrics *metrics.Metrics
	Log     zerolog.Logger

	// Ready reports whether the store is reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewHandler creates a handler over svc.
func NewHandler(svc *ledger.Service, m *metrics.Metrics, log zerolog.Logger) *Handler {
	return &Handler{Service: svc, Metrics: m, Log: log}
}

// =============================================================================
// CONTRACT ENDPOINTS
// =============================================================================

// GetContract returns one of the caller's contracts.
// GET /contracts/{id}
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := callerFrom(ctx)

	id, err := ledger.ParseID(chi.URLParam(r, "id"), "Id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	contract, err := h.Service.Contracts.Get(ctx, caller, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(*contract))
}

// ListContracts returns the caller's non-terminated contracts.
// GET /contracts
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	contracts, err := h.Service.Contracts.ListActive(ctx, callerFrom(ctx))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTOs(contracts))
}

// ListUnpaidJobs returns unpaid jobs on the caller's active contracts.
// GET /jobs/unpaid
func (h *Handler) ListUnpaidJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.Service.Contracts.UnpaidJobs(ctx, callerFrom(ctx))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobDTOs(jobs))
}

// =============================================================================
// MONEY ENDPOINTS
// =============================================================================

// PayJob pays a job on behalf of the caller.
// POST /jobs/{job_id}/pay
func (h *Handler) PayJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := callerFrom(ctx)

	jobID, err := ledger.ParseID(chi.URLParam(r, "job_id"), "job Id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req AmountRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	transfer, err := h.Service.Payments.PayJob(ctx, caller, jobID, amount)
	h.Metrics.ObservePayment(err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.Log.Info().
		Str("request_id", middleware.GetReqID(ctx)).
		Str("transfer_id", transfer.ID).
		Int64("job_id", transfer.JobID).
		Int64("client_id", transfer.ClientID).
		Int64("contractor_id", transfer.ContractorID).
		Str("amount", transfer.Amount.StringFixed(2)).
		Msg("job paid")
	w.WriteHeader(http.StatusOK)
}

// Deposit adds funds to the caller's own balance.
// POST /balances/deposit/{userId}
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := callerFrom(ctx)

	var req AmountRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.Service.Deposits.Deposit(ctx, caller, chi.URLParam(r, "userId"), req.Amount)
	h.Metrics.ObserveDeposit(err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.Log.Info().
		Str("request_id", middleware.GetReqID(ctx)).
		Int64("profile_id", updated.ID).
		Str("balance", updated.Balance.StringFixed(2)).
		Msg("deposit applied")
	w.WriteHeader(http.StatusOK)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// BestProfession returns the profession that earned the most in the range.
// GET /admin/best-profession?start=2024-01-01&end=2024-12-31
func (h *Handler) BestProfession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := ledger.ParseDateRange(q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	best, err := h.Service.Reports.BestProfession(r.Context(), rng)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, best.Profession)
}

// BestClients returns the clients that paid the most in the range.
// GET /admin/best-clients?start=2024-01-01&end=2024-12-31&limit=2
func (h *Handler) BestClients(w http.ResponseWriter, r *http.Request) {
	_, totals, err := h.bestClients(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientTotalDTOs(totals))
}

// ExportBestClients returns the best clients report as a spreadsheet.
// GET /admin/best-clients/export?start=2024-01-01&end=2024-12-31&limit=10
func (h *Handler) ExportBestClients(w http.ResponseWriter, r *http.Request) {
	rng, totals, err := h.bestClients(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data, err := report.BestClients(rng, totals)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("best-clients-%s-%s.xlsx", rng.Start.Format("20060102"), rng.End.Format("20060102"))
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) bestClients(r *http.Request) (ledger.DateRange, []ledger.ClientTotal, error) {
	q := r.URL.Query()
	rng, err := ledger.ParseDateRange(q.Get("start"), q.Get("end"))
	if err != nil {
		return ledger.DateRange{}, nil, err
	}
	limit, err := ledger.ParseLimit(q.Get("limit"))
	if err != nil {
		return ledger.DateRange{}, nil, err
	}
	totals, err := h.Service.Reports.BestClients(r.Context(), rng, limit)
	return rng, totals, err
}

// =============================================================================
// PROBES
// =============================================================================

// Healthz reports the process is up.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports whether the store is reachable.
// GET /readyz
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			h.Log.Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err to a status through its ledger kind. Anything that is
// not a *ledger.Error is treated as a storage failure.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *ledger.Error
	if !errors.As(err, &e) {
		e = &ledger.Error{
			Kind:    ledger.KindStorageFailure,
			Code:    ledger.CodeStorageFailure,
			Message: ledger.ErrStorageFailure.Message,
			Err:     err,
		}
	}

	if e.Kind == ledger.KindStorageFailure {
		h.Log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}

	writeJSON(w, e.Status(), ErrorResponse{Error: e.Message, Code: string(e.Code)})
}

// decodeBody reads an optional JSON body into dst. An empty body leaves dst
// untouched so that missing fields surface as "is required".
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &ledger.Error{Kind: ledger.KindInvalidRequest, Code: ledger.CodeInvalidRequest, Message: "request body too large"}
		}
		return &ledger.Error{Kind: ledger.KindInvalidRequest, Code: ledger.CodeInvalidRequest, Message: "failed to read request body", Err: err}
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &ledger.Error{Kind: ledger.KindInvalidRequest, Code: ledger.CodeInvalidRequest, Message: "request body must be a JSON object", Err: err}
	}
	return nil
}
