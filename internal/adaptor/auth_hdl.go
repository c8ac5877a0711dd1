package adaptor

import (
	"encoding/json"
	"net/http"

	"edupersona/internal/dto/request"
	"edupersona/internal/usecase"
	"edupersona/pkg/utils"

	"go.uber.org/zap"
)

type AuthHandler struct {
	service usecase.AuthService
	cookie  utils.CookieConfig
	log     *zap.Logger
}

func NewAuthHandler(service usecase.AuthService, cookie utils.CookieConfig, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookie:  cookie,
		log:     log,
	}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	response, err := h.service.Login(r.Context(), &req)
	if err != nil {
		handleServiceError(w, h.log, err, "login")
		return
	}

	utils.SetSessionCookie(w, h.cookie, response.Token, response.ExpiresAt)
	utils.ResponseSuccess(w, "Login successful", response)
}

// Verify handles GET /api/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Profile(r.Context(), identity.SessionID)
	if err != nil {
		handleServiceError(w, h.log, err, "verify")
		return
	}

	utils.ResponseSuccess(w, "Authenticated", profile)
}

// Logout handles POST /api/auth/logout. It always succeeds: a caller without
// a valid credential only gets its cookie cleared.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if identity, ok := utils.CurrentIdentity(r.Context()); ok {
		if err := h.service.Logout(r.Context(), identity.SessionID); err != nil {
			h.log.Warn("Logout presence update failed", zap.Error(err))
		}
	}

	utils.ClearSessionCookie(w, h.cookie)
	utils.ResponseSuccess(w, "Logout successful", nil)
}
