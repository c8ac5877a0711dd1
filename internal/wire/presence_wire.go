package wire

import (
	"net/http"

	"edupersona/internal/adaptor"
	"edupersona/pkg/middleware"

	"github.com/go-chi/chi/v5"
)

func wirePresence(r chi.Router, presenceHandler *adaptor.PresenceHandler, gateway *middleware.AuthGateway) {
	// The heartbeat writes presence itself; an implicit online write from
	// the gateway could race with a disconnect carried by the same request.
	gateway.SetPolicy(http.MethodPost, "/api/presence/heartbeat", middleware.PolicyPassive)
	r.Post("/api/presence/heartbeat", presenceHandler.Heartbeat)

	r.Get("/api/presence/{sessionId}", presenceHandler.Status)
}
