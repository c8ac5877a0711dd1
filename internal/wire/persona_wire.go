package wire

import (
	"edupersona/internal/adaptor"
	"edupersona/internal/data/entity"
	"edupersona/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wirePersona(r chi.Router, personaHandler *adaptor.PersonaHandler, log *zap.Logger) {
	r.Get("/api/personas", personaHandler.List)

	// ==================== PARENT ONLY ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequirePersona(log, entity.PersonaParent))

		r.Post("/api/personas", personaHandler.Create)
		r.Delete("/api/personas/{sessionId}", personaHandler.Deactivate)
	})
}
