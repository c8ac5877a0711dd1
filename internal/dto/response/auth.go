package response

import "time"

// LoginResponse carries the credential and the inactivity window after which
// clients log the persona out on their own.
type LoginResponse struct {
	Token              string          `json:"token"`
	ExpiresAt          time.Time       `json:"expires_at"`
	IdleTimeoutSeconds int             `json:"idle_timeout_seconds"`
	Persona            PersonaResponse `json:"persona"`
}
