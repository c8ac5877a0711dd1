package request

import "time"

// HeartbeatRequest is sent by every open tab on a timer and by the page
// lifecycle hooks (is_online=false on unload). Timestamp defaults to the time
// the server received the request.
type HeartbeatRequest struct {
	SessionID string     `json:"session_id" validate:"required,max=64"`
	IsOnline  *bool      `json:"is_online" validate:"required"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}
