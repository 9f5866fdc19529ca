/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestLogger: Structured zap logging per request
  4. CORS:       Cross-origin requests for frontend clients

SECURITY NOTE:
  No authentication middleware; auth is out of scope for this engine and
  belongs in front of it.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, log *zap.Logger, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.EnrollUser)
			r.Get("/{id}", h.GetUser)
			r.Post("/{id}/tier", h.UpgradeTier)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/rewards", h.ListRewards)
			r.Get("/{id}/quote", h.Quote)
			r.Get("/{id}/transactions", h.ListTransactions)
			r.Post("/{id}/transactions", h.RecordTransaction)
			r.Get("/{id}/redemptions", h.ListRedemptions)
			r.Post("/{id}/redemptions", h.Redeem)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/{id}/confirm", h.ConfirmTransaction)
			r.Post("/{id}/cancel", h.CancelTransaction)
			r.Post("/{id}/refund", h.RefundTransaction)
		})

		r.Get("/rules", h.ListRules)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.Sweep)
		})
	})

	return r
}

// RequestLogger logs each request with method, path, status, and duration.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
