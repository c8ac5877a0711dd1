package entity

import (
	"time"

	"github.com/google/uuid"
)

type PersonaType string

const (
	PersonaChild  PersonaType = "CHILD"
	PersonaParent PersonaType = "PARENT"
)

func (p PersonaType) Valid() bool {
	return p == PersonaChild || p == PersonaParent
}

// Session is one persona under an account. PublicID is the identifier the
// persona logs in with and the subject of every credential; it is unique
// across all accounts.
type Session struct {
	Base
	PublicID     string      `db:"public_id"`
	AccountID    uuid.UUID   `db:"account_id"`
	DisplayName  string      `db:"display_name"`
	PersonaType  PersonaType `db:"persona_type"`
	PasswordHash string      `db:"password_hash"`
	IsActive     bool        `db:"is_active"`
	IsOnline     bool        `db:"is_online"`
	LastLoginAt  *time.Time  `db:"last_login_at"`
	LastSeenAt   *time.Time  `db:"last_seen_at"`
}

// OnlineAt reports the effective presence of the session at now. A cached
// online flag whose lease (lastSeen + window) has run out reads as offline,
// whether or not the sweep has caught up yet.
func (s *Session) OnlineAt(now time.Time, window time.Duration) bool {
	if !s.IsActive || !s.IsOnline || s.LastSeenAt == nil {
		return false
	}
	return now.Sub(*s.LastSeenAt) <= window
}
