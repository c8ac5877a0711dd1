package wire

import (
	"net/http"

	"edupersona/internal/adaptor"
	"edupersona/pkg/middleware"
	"edupersona/pkg/ratelimit"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireAuth(
	r chi.Router,
	authHandler *adaptor.AuthHandler,
	gateway *middleware.AuthGateway,
	ipLimiter *ratelimit.Limiter,
	log *zap.Logger,
) {
	// ==================== PUBLIC ROUTES ====================
	gateway.SetPolicy(http.MethodPost, "/api/auth/login", middleware.PolicyPublic)
	r.With(middleware.RateLimit(ipLimiter, log)).Post("/api/auth/login", authHandler.Login)

	// ==================== OPTIONAL AUTH ====================
	// Logout never fails, even with a stale or missing credential.
	gateway.SetPolicy(http.MethodPost, "/api/auth/logout", middleware.PolicyOptional)
	r.Post("/api/auth/logout", authHandler.Logout)

	// ==================== PROTECTED ROUTES ====================
	r.Get("/api/auth/verify", authHandler.Verify)
}
