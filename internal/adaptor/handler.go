package adaptor

import (
	"errors"
	"net/http"

	"edupersona/internal/usecase"
	"edupersona/pkg/utils"

	"go.uber.org/zap"
)

type Handler struct {
	Auth     *AuthHandler
	Presence *PresenceHandler
	Persona  *PersonaHandler
}

func NewHandler(service *usecase.Service, config *utils.Config, log *zap.Logger) *Handler {
	return &Handler{
		Auth:     NewAuthHandler(service.Auth, config.Cookie, log),
		Presence: NewPresenceHandler(service.Presence, service.Sessions, config.Presence, log),
		Persona:  NewPersonaHandler(service.Persona, log),
	}
}

// handleServiceError maps typed service errors to HTTP responses
func handleServiceError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	var retry *usecase.RetryAfterError

	switch {
	case errors.As(err, &retry):
		log.Warn(operation+" throttled", zap.Duration("retry_after", retry.RetryAfter))
		utils.ResponseTooManyRequests(w, retry.RetryAfter)

	case errors.Is(err, usecase.ErrRateLimited):
		log.Warn(operation+" throttled")
		utils.ResponseTooManyRequests(w, 0)

	case errors.Is(err, usecase.ErrValidation):
		log.Warn(operation+" validation failed", zap.Error(err))
		utils.ResponseBadRequest(w, "Validation failed", err.Error())

	case errors.Is(err, usecase.ErrInvalidCredentials):
		log.Warn(operation+" failed - invalid credentials")
		utils.ResponseUnauthorized(w, "Invalid credentials")

	case errors.Is(err, usecase.ErrSessionRevoked):
		log.Warn(operation+" failed - session revoked")
		utils.ResponseUnauthorizedReason(w, "revoked")

	case errors.Is(err, usecase.ErrForbidden):
		log.Warn(operation+" forbidden", zap.Error(err))
		utils.ResponseForbidden(w, "Forbidden")

	case errors.Is(err, usecase.ErrSessionNotFound):
		log.Warn(operation+" failed - not found", zap.Error(err))
		utils.ResponseNotFound(w, "Session not found")

	case errors.Is(err, usecase.ErrCapacityExceeded):
		log.Warn(operation+" failed - capacity", zap.Error(err))
		utils.ResponseConflict(w, "Persona limit reached for this account")

	case errors.Is(err, usecase.ErrDuplicateSession):
		log.Warn(operation+" failed - duplicate", zap.Error(err))
		utils.ResponseConflict(w, "Session id already taken")

	default:
		log.Error("Failed to "+operation, zap.Error(err), zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}

// requireIdentity returns the caller identity or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (utils.Identity, bool) {
	identity, ok := utils.CurrentIdentity(r.Context())
	if !ok {
		utils.ResponseUnauthorizedReason(w, "missing")
	}
	return identity, ok
}
