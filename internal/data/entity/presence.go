package entity

import "time"

type PresenceKind string

const (
	PresenceLogin      PresenceKind = "login"
	PresenceHeartbeat  PresenceKind = "heartbeat"
	PresenceDisconnect PresenceKind = "disconnect"
	PresenceLogout     PresenceKind = "logout"
)

// Online is the presence state an event moves the session to.
func (k PresenceKind) Online() bool {
	return k == PresenceLogin || k == PresenceHeartbeat
}

// PresenceEvent is an ephemeral input to the presence tracker. Only the
// watermark it produces on the session row survives.
type PresenceEvent struct {
	SessionID string
	Kind      PresenceKind
	At        time.Time
}
