/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the spreadsheet frontend

ROUTE GROUPS:
  /api/datasets/*       Dataset uploads
  /api/range            Active date window
  /api/contracts/*      Filtered contract views
  /api/fleet/*          Fleet views
  /api/charges/*        Charge listing, buckets, manual edits
  /api/session/*        Session stats and settings
  /api/audit            Audit log
  /api/scenarios/*      Demo scenarios
  /                     JSON index of the main endpoints

Unknown paths get a JSON 404 in the same shape as handler errors. The
spreadsheet frontend is served separately and talks to /api over CORS.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. An empty
// allowedOrigins keeps the local development origins.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Dataset uploads
		r.Route("/datasets", func(r chi.Router) {
			r.Post("/contracts", h.UploadContracts)
			r.Post("/fleet", h.UploadFleet)
			r.Post("/bookings", h.UploadBookings)
			r.Post("/charges", h.UploadCharges)
		})

		r.Get("/range", h.GetRange)
		r.Put("/range", h.SetRange)

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/active", h.GetActiveContracts)
			r.Get("/repeated", h.GetRepeatedRentals)
		})

		r.Get("/fleet/unrented", h.GetUnrentedPlates)

		// Charge routes
		r.Route("/charges", func(r chi.Router) {
			r.Get("/", h.ListCharges)
			r.Get("/buckets", h.GetBuckets)
			r.Get("/{id}", h.GetCharge)
			r.Post("/{id}/match", h.MatchCharge)
			r.Post("/{id}/ignore", h.IgnoreCharge)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Put("/settings", h.UpdateSettings)
		})

		r.Get("/audit", h.ListAudit)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetSession)
		})
	})

	r.Get("/", h.Index)
	r.NotFound(h.NotFound)

	return r
}
