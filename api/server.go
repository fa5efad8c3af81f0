/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/projects/*       Project metrics
  /api/persons/*        Person writes and person-year metrics
  /api/assignments      Work assignments
  /api/bookings         Booked hours
  /api/budget-items     Budget items and transfers
  /api/estimates        Third-party estimates
  /api/payables         Payables
  /api/invoices         Invoices
  /api/buckets/*        Time-bucket reads
  /api/admin/*          Maintenance operations

SECURITY NOTE:
  No authentication middleware. This service is meant to run behind the
  main application, not exposed directly.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/projects", func(r chi.Router) {
			r.Post("/", h.SaveProject)
			r.Get("/{id}/metrics", h.GetProjectMetrics)
		})

		r.Route("/persons", func(r chi.Router) {
			r.Post("/", h.SavePerson)
			r.Post("/{id}/rates", h.SaveRates)
			r.Get("/{id}/years/{year}/metrics", h.GetPersonYearMetrics)
			r.Get("/{id}/years/{year}/target", h.GetYearTarget)
		})

		r.Post("/assignments", h.SaveAssignment)
		r.Post("/bookings", h.SaveBooking)
		r.Post("/budget-items", h.SaveBudgetItem)
		r.Post("/estimates", h.SaveEstimate)
		r.Post("/payables", h.SavePayable)
		r.Post("/invoices", h.SaveInvoice)

		r.Route("/buckets", func(r chi.Router) {
			r.Get("/current", h.GetCurrentBucket)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/buckets", h.GenerateBuckets)
		})

		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
