package usecase

import "errors"

var (
	// ErrInvalidCredentials covers both an unknown session id and a wrong
	// password. Callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionRevoked is returned for a credential with a valid signature
	// whose session has been deactivated.
	ErrSessionRevoked = errors.New("session revoked")

	ErrSessionNotFound  = errors.New("session not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrValidation       = errors.New("validation failed")
	ErrInternal         = errors.New("internal error")
	ErrDatabase         = errors.New("database error")
	ErrCapacityExceeded = errors.New("persona capacity exceeded")
	ErrDuplicateSession = errors.New("session id already taken")
	ErrForbidden        = errors.New("forbidden")
)
