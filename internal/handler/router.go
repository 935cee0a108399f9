package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tableserve/tableserve-auth/internal/metrics"
	"github.com/tableserve/tableserve-auth/internal/middleware"
)

// Routes bundles what NewRouter mounts.
type Routes struct {
	Auth    *AuthHandler
	User    *UserHandler
	Gate    func(http.Handler) http.Handler
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewRouter builds the HTTP router. Every /api request passes the gate
// before reaching its handler.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(rt.Logger, rt.Metrics))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(rt.Gate)

		r.Post("/auth/register", rt.Auth.HandleRegister)
		r.Post("/auth/login", rt.Auth.HandleLogin)
		r.Get("/user/me", rt.User.HandleMe)
	})

	return r
}
