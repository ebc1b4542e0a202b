/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the office frontend

ROUTE GROUPS:
  /api/pupils/*          Pupils, their records, assignment and duplicates
  /api/records/*         Coverage, receipts, release, history
  /api/catalog           Requirement items
  /api/academic-years    Calendar
  /api/scenarios/*       Demo scenarios
  /api/health            Liveness and database ping

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultOrigins are allowed when no origins are configured.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultOrigins
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", SessionHeader},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Pupil routes
		r.Route("/pupils", func(r chi.Router) {
			r.Get("/", h.ListPupils)
			r.Post("/", h.CreatePupil)
			r.Get("/{id}", h.GetPupil)
			r.Get("/{id}/records", h.GetPupilRecords)
			r.Post("/{id}/records", h.CreateBundleRecord)
			r.Post("/{id}/assign", h.AutoAssign)
			r.Post("/{id}/refresh", h.Refresh)
			r.Get("/{id}/eligibility", h.GetEligibility)
			r.Get("/{id}/duplicates", h.GetDuplicates)
			r.Post("/{id}/duplicates/cleanup", h.CleanupDuplicates)
		})

		// Record routes
		r.Route("/records", func(r chi.Router) {
			r.Get("/{id}", h.GetRecord)
			r.Get("/{id}/history", h.GetRecordHistory)
			r.Post("/{id}/coverage", h.ApplyCoverage)
			r.Post("/{id}/receipts", h.RecordReceipt)
			r.Post("/{id}/release", h.ReleaseRecord)
		})

		// Catalog and calendar
		r.Get("/catalog", h.ListCatalog)
		r.Post("/catalog", h.CreateCatalogItem)
		r.Get("/academic-years", h.ListAcademicYears)
		r.Post("/academic-years", h.CreateAcademicYear)
		r.Post("/assign/sweep", h.Sweep)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found", nil)
	})

	return r
}
