package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/khayashi/engawa/internal/auth"
	"github.com/khayashi/engawa/internal/config"
	"github.com/khayashi/engawa/internal/handlers"
	"github.com/khayashi/engawa/internal/middleware"
	"github.com/khayashi/engawa/internal/services"
	pkghttp "github.com/khayashi/engawa/pkg/http"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	cfg *config.Config,
	limiter *services.RateLimitService,
	tokenManager *auth.ServiceTokenManager,
	securityHandler *handlers.SecurityHandler,
	teaTimeHandler *handlers.TeaTimeHandler,
	healthHandler http.HandlerFunc,
) {
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	router.Get("/health", healthHandler)

	// Identity glue endpoints. The auth policy keys on client IP in front of
	// the per-email lockout buckets the handlers maintain.
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireServiceToken(tokenManager, auth.ScopeInternal))

		r.With(middleware.RateLimit(limiter, cfg.RateLimit.Auth, ipConfig)).
			Post("/internal/auth/attempts/failed", securityHandler.RecordFailedLogin)
		r.With(middleware.RateLimit(limiter, cfg.RateLimit.Auth, ipConfig)).
			Post("/internal/auth/attempts/succeeded", securityHandler.RecordSuccessfulLogin)
		r.Get("/internal/auth/lockout", securityHandler.CheckLockout)

		r.With(middleware.RateLimit(limiter, cfg.RateLimit.API, ipConfig)).
			Post("/internal/security/password-check", securityHandler.CheckPassword)
	})

	// Cron endpoints
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireServiceToken(tokenManager, auth.ScopeCron))

		r.Post("/cron/tea-time/match", teaTimeHandler.RunMatching)
	})
}
