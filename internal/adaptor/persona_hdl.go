package adaptor

import (
	"encoding/json"
	"net/http"

	"edupersona/internal/dto/request"
	"edupersona/internal/usecase"
	"edupersona/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PersonaHandler struct {
	service usecase.PersonaService
	log     *zap.Logger
}

func NewPersonaHandler(service usecase.PersonaService, log *zap.Logger) *PersonaHandler {
	return &PersonaHandler{
		service: service,
		log:     log,
	}
}

// List handles GET /api/personas
func (h *PersonaHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	personas, err := h.service.List(r.Context(), identity)
	if err != nil {
		handleServiceError(w, h.log, err, "list personas")
		return
	}

	utils.ResponseSuccess(w, "Personas retrieved", personas)
}

// Create handles POST /api/personas
func (h *PersonaHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req request.CreatePersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	persona, err := h.service.Create(r.Context(), identity, &req)
	if err != nil {
		handleServiceError(w, h.log, err, "create persona")
		return
	}

	utils.ResponseCreated(w, "Persona created", persona)
}

// Deactivate handles DELETE /api/personas/{sessionId}
func (h *PersonaHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.Deactivate(r.Context(), identity, chi.URLParam(r, "sessionId")); err != nil {
		handleServiceError(w, h.log, err, "deactivate persona")
		return
	}

	utils.ResponseSuccess(w, "Persona deactivated", nil)
}
