package entity

import (
	"time"

	"github.com/google/uuid"
)

// Base holds the columns shared by every table owned by this service.
// Rows are never hard-deleted: accounts live forever and sessions are
// soft-deleted through is_active.
type Base struct {
	ID        uuid.UUID `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
