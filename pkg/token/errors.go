package token

import "errors"

var (
	// ErrInvalidCredential is returned for malformed, forged or foreign credentials.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrCredentialExpired is returned when a correctly signed credential is past its expiry.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrSecretTooShort is returned by NewService for HMAC secrets under MinSecretBytes.
	ErrSecretTooShort = errors.New("token secret too short")
)
