package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/http/handlers"
	"github.com/capiorg/backend-auth/internal/middleware"
)

// Deps collects what the router wires into routes
type Deps struct {
	Auth    *handlers.AuthHandler
	Users   *handlers.UsersHandler
	Health  http.Handler
	Gate    middleware.Resolver
	Limiter *middleware.RateLimiter
	Logger  *zap.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Observe(d.Logger))
	r.Use(chimw.Recoverer)

	r.Method(http.MethodGet, "/health", d.Health)
	r.Method(http.MethodGet, "/__metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Public endpoints share a per-IP budget
			r.Group(func(r chi.Router) {
				if d.Limiter != nil {
					r.Use(middleware.RateLimit(d.Limiter, middleware.IPKey))
				}
				r.Post("/register", d.Auth.HandleRegister)
				r.Post("/login", d.Auth.HandleLogin)
				r.Post("/sessions/{uuid}/verify", d.Auth.HandleVerify)
				r.Post("/refresh", d.Auth.HandleRefresh)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(d.Gate, d.Logger))
				r.Post("/logout", d.Auth.HandleLogout)
				r.Get("/me", d.Auth.HandleMe)
				r.Patch("/me", d.Auth.HandleUpdateMe)
				r.Patch("/me/activity", d.Auth.HandleActivity)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.Authenticate(d.Gate, d.Logger))
			r.Get("/", d.Users.HandleList)
			r.Get("/{uuid}", d.Users.HandleGet)
		})
	})

	return r
}
