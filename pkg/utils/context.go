package utils

import (
	"context"

	"edupersona/internal/data/entity"

	"github.com/google/uuid"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is what downstream handlers know about the caller. It is the only
// view of authentication that chat, game and notification code gets.
type Identity struct {
	SessionID   string
	PersonaType entity.PersonaType
	AccountID   uuid.UUID
}

func (i Identity) IsParent() bool {
	return i.PersonaType == entity.PersonaParent
}

func SetIdentityContext(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// CurrentIdentity returns the identity attached by the auth gateway, if any.
func CurrentIdentity(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}
