package middleware

import (
	"net/http"

	"edupersona/internal/data/entity"
	"edupersona/pkg/utils"

	"go.uber.org/zap"
)

// RequirePersona lets the request through only when the authenticated
// persona is one of the given types. It must run after the auth gateway.
func RequirePersona(logger *zap.Logger, allowed ...entity.PersonaType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := utils.CurrentIdentity(r.Context())
			if !ok {
				utils.ResponseUnauthorizedReason(w, ReasonMissing)
				return
			}

			for _, t := range allowed {
				if identity.PersonaType == t {
					next.ServeHTTP(w, r)
					return
				}
			}

			logger.Warn("Persona type not allowed",
				zap.String("session_id", identity.SessionID),
				zap.String("persona_type", string(identity.PersonaType)),
				zap.String("path", r.URL.Path),
			)
			utils.ResponseForbidden(w, "This persona cannot access this resource")
		})
	}
}
