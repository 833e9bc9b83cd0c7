/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Account-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Post("/register", h.Register)
			r.Get("/{id}", h.GetAccount)
			r.Delete("/{id}", h.DeleteAccount)
			r.Post("/{id}/approve", h.ApproveAccount)
			r.Get("/{id}/lessons", h.ListAccountLessons)
		})

		// Invitation routes
		r.Route("/invitations", func(r chi.Router) {
			r.Post("/", h.IssueInvitation)
			r.Post("/{token}/redeem", h.RedeemInvitation)
		})

		r.Delete("/approved-emails/{email}", h.RevokeApprovedEmail)

		// Rate settings
		r.Route("/settings/rates", func(r chi.Router) {
			r.Get("/", h.GetRateSettings)
			r.Put("/", h.UpdateRateSettings)
		})

		// Batch lesson submission
		r.Post("/teachers/{id}/submissions", h.SubmitLessons)

		// Lesson scheduling and lifecycle
		r.Route("/lessons", func(r chi.Router) {
			r.Post("/", h.ScheduleLesson)
			r.Get("/{id}", h.GetLesson)
			r.Post("/{id}/confirm", h.ConfirmLesson)
			r.Post("/{id}/complete", h.CompleteLesson)
			r.Post("/{id}/cancel", h.CancelLesson)
		})

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.CreateInvoice)
			r.Get("/{id}", h.GetInvoice)
			r.Post("/{id}/submit", h.SubmitInvoice)
			r.Post("/{id}/approve", h.ApproveInvoice)
			r.Post("/{id}/reject", h.RejectInvoice)
			r.Post("/{id}/pay", h.PayInvoice)
			r.Post("/{id}/recalculate", h.RecalculateInvoice)
			r.Post("/{id}/regenerate", h.RegenerateInvoice)
			r.Post("/{id}/lessons", h.AttachLessons)
			r.Delete("/{id}/lessons/{lessonID}", h.DetachLesson)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/overdue-sweep", h.RunOverdueSweep)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
