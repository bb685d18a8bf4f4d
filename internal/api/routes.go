package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultAllowedOrigins are the dashboard origins used when none are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "mailpro-dashboard")
			next.ServeHTTP(w, req)
		})
	})

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (no auth required)
	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}

	r.Route("/api", func(r chi.Router) {
		// Scheduled triggers: bearer secret checked before any work
		r.Route("/cron", func(r chi.Router) {
			r.Use(h.RequireCronSecret)
			r.Get("/hourly-sync", h.HourlySync)
			r.Get("/daily-report", h.DailyReport)
		})

		// Manual trigger used by the dashboard
		r.Get("/sync", h.ManualSync)

		// Dashboard reads over the mirrored collections
		r.Get("/campaigns", h.GetCampaigns)
		r.Get("/stats", h.GetStats)
		r.Get("/reports", h.GetReports)
		r.Get("/lists", h.GetLists)
		r.Get("/unsubscribers", h.GetUnsubscribers)
		r.Get("/job-status", h.GetJobStatuses)
		r.Get("/job-status/{job}", h.GetJobStatus)
	})

	return r
}
