package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"certtrack-backend/internal/handlers"
	"certtrack-backend/internal/metrics"
	"certtrack-backend/internal/middleware"
	"certtrack-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	limiter *middleware.RateLimiter,
	attemptHandler *handlers.AttemptHandler,
	dashboardHandler *handlers.DashboardHandler,
	adminHandler *handlers.AdminHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	allowedOrigins []string,
	log *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The socket authenticates with a query token, not the bearer header.
		r.Get("/ws", wsHub.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Use(jwtAuth.Middleware)

			// ──── Quiz Attempts ────
			r.Route("/attempts", func(r chi.Router) {
				r.Post("/", attemptHandler.Start)
				r.Get("/current", attemptHandler.Current)
				r.Delete("/{id}", attemptHandler.Discard)
				r.Post("/{id}/select", attemptHandler.Select)
				r.Post("/{id}/advance", attemptHandler.Advance)
				r.Post("/{id}/exit", attemptHandler.RequestExit)
				r.Post("/{id}/exit/confirm", attemptHandler.ConfirmExit)
				r.Post("/{id}/exit/cancel", attemptHandler.CancelExit)
			})

			// ──── Learner Views ────
			r.Get("/dashboard", dashboardHandler.Dashboard)
			r.Get("/status", dashboardHandler.Status)

			// ──── Administration ────
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/matrix", adminHandler.Matrix)
				r.Get("/usage", adminHandler.Usage)
				r.Get("/users/{id}", adminHandler.UserDetail)
				r.Put("/users/{id}/progress/{courseId}", adminHandler.OverrideProgress)
				r.Delete("/users/{id}/progress/{courseId}", adminHandler.DeleteProgress)
				r.Post("/courses/{id}/questions/generate", adminHandler.GenerateQuestions)
				r.Post("/reminders/{userId}", adminHandler.Remind)
				r.Get("/jobs/{id}", jobHandler.GetJob)
			})
		})
	})

	return r
}
