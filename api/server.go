/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:   Unique ID per request for tracing
  2. RealIP:      Client address for rate limiting and logs
  3. Logger:      One zerolog line per request
  4. Recoverer:   Panic recovery (500 instead of crash)
  5. Instrument:  Prometheus counters and latency per route pattern
  6. CORS:        Cross-origin requests for frontends
  7. RateLimit:   Token bucket per client IP (skipped for probes)

ROUTE GROUPS:
  /contracts, /jobs, /balances   caller scoped, profile_id header required
  /admin/*                       reports, no caller
  /healthz, /readyz, /metrics    probes

SECURITY NOTE:
  The profile_id header is trusted as is. Authentication belongs to the
  gateway in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Caller resolution, logging, rate limiting
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes the outer middleware.
type RouterOptions struct {
	AllowedOrigins []string
	RateLimitRPS   float64 // 0 disables rate limiting
	RateLimitBurst int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", profileHeader},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           600,
	}))

	// Probes
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Handle("/metrics", h.Metrics.Handler())

	r.Group(func(r chi.Router) {
		if opts.RateLimitRPS > 0 {
			r.Use(newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst).Middleware)
		}

		// Caller scoped routes
		r.Group(func(r chi.Router) {
			r.Use(h.RequireProfile)

			r.Get("/contracts", h.ListContracts)
			r.Get("/contracts/{id}", h.GetContract)
			r.Get("/jobs/unpaid", h.ListUnpaidJobs)
			r.Post("/jobs/{job_id}/pay", h.PayJob)
			r.Post("/balances/deposit/{userId}", h.Deposit)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/best-profession", h.BestProfession)
			r.Get("/best-clients", h.BestClients)
			r.Get("/best-clients/export", h.ExportBestClients)
		})
	})

	return r
}
