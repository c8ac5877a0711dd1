package adaptor

import (
	"encoding/json"
	"net/http"
	"time"

	"edupersona/internal/data/entity"
	"edupersona/internal/dto/request"
	"edupersona/internal/dto/response"
	"edupersona/internal/usecase"
	"edupersona/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PresenceHandler struct {
	tracker  usecase.PresenceTracker
	sessions usecase.SessionStore
	config   utils.PresenceConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewPresenceHandler(
	tracker usecase.PresenceTracker,
	sessions usecase.SessionStore,
	config utils.PresenceConfig,
	log *zap.Logger,
) *PresenceHandler {
	return &PresenceHandler{
		tracker:  tracker,
		sessions: sessions,
		config:   config,
		log:      log,
		now:      time.Now,
	}
}

// Heartbeat handles POST /api/presence/heartbeat. is_online=false is the
// page-unload signal. Presence failures are logged and acknowledged as not
// applied; they never fail the request.
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req request.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	if req.SessionID != identity.SessionID {
		h.log.Warn("Heartbeat for another session",
			zap.String("session_id", identity.SessionID),
			zap.String("claimed", req.SessionID),
		)
		utils.ResponseForbidden(w, "Session mismatch")
		return
	}

	event := entity.PresenceEvent{
		SessionID: identity.SessionID,
		Kind:      entity.PresenceHeartbeat,
	}
	if !*req.IsOnline {
		event.Kind = entity.PresenceDisconnect
	}
	if req.Timestamp != nil {
		event.At = *req.Timestamp
	}

	applied, err := h.tracker.Apply(r.Context(), event)
	if err != nil {
		h.log.Warn("Heartbeat not recorded", zap.Error(err), zap.String("session_id", identity.SessionID))
	}

	utils.ResponseSuccess(w, "Heartbeat received", response.HeartbeatResponse{Applied: applied})
}

// Status handles GET /api/presence/{sessionId} for personas of the caller's
// account.
func (h *PresenceHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	session, err := h.sessions.FindByPublicID(r.Context(), sessionID)
	if err == nil && session.AccountID != identity.AccountID {
		err = usecase.ErrSessionNotFound
	}
	if err != nil {
		handleServiceError(w, h.log, err, "presence status")
		return
	}

	online := session.OnlineAt(h.now(), h.config.StaleAfter())
	utils.ResponseSuccess(w, "Presence", response.PresenceResponse{
		SessionID:  sessionID,
		IsOnline:   online,
		LastSeenAt: session.LastSeenAt,
	})
}
