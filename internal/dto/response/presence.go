package response

import "time"

type HeartbeatResponse struct {
	Applied bool `json:"applied"`
}

type PresenceResponse struct {
	SessionID  string     `json:"session_id"`
	IsOnline   bool       `json:"is_online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}
