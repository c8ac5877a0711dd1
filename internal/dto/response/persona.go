package response

import (
	"time"

	"edupersona/internal/data/entity"
)

// PersonaResponse is the minimal profile handed to clients. It never carries
// the password hash.
type PersonaResponse struct {
	SessionID   string             `json:"session_id"`
	AccountID   string             `json:"account_id"`
	DisplayName string             `json:"display_name"`
	PersonaType entity.PersonaType `json:"persona_type"`
	IsActive    bool               `json:"is_active"`
	IsOnline    bool               `json:"is_online"`
	LastLoginAt *time.Time         `json:"last_login_at,omitempty"`
	LastSeenAt  *time.Time         `json:"last_seen_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// PersonaToResponse converts a session row. online is the effective presence
// computed by the caller, not the cached flag.
func PersonaToResponse(session *entity.Session, online bool) PersonaResponse {
	return PersonaResponse{
		SessionID:   session.PublicID,
		AccountID:   session.AccountID.String(),
		DisplayName: session.DisplayName,
		PersonaType: session.PersonaType,
		IsActive:    session.IsActive,
		IsOnline:    online,
		LastLoginAt: session.LastLoginAt,
		LastSeenAt:  session.LastSeenAt,
		CreatedAt:   session.CreatedAt,
	}
}
