// Package token issues and verifies the bearer credentials that bind a
// request to one persona session.
//
// Credentials are HS256 JWTs whose subject is the session public id. The
// service is pure: it performs no I/O and keeps no revocation state.
// Revocation is the caller's job, done by checking session liveness after a
// successful Verify.
package token

import (
	"errors"
	"fmt"
	"time"

	"edupersona/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
)

const MinSecretBytes = 32

// Claims is the payload of a credential.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and verifies credentials with a shared secret.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(secret, issuer string, ttl time.Duration, opts ...Option) (*Service, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	s := &Service{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue returns a new credential for sessionID and its expiry. Every call
// gets a fresh jti, so two credentials for the same session never collide.
func (s *Service) Issue(sessionID string) (string, time.Time, error) {
	if sessionID == "" {
		return "", time.Time{}, fmt.Errorf("issue credential: empty session id")
	}

	now := s.now().UTC()
	jti, err := utils.NewULID(now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue credential: %w", err)
	}

	expiresAt := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   sessionID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign credential: %w", err)
	}

	// NumericDate drops sub-second precision; report what the token carries.
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks signature, issuer and expiry and returns the session id the
// credential was issued for. It does not know whether that session is still
// active.
func (s *Service) Verify(credential string) (string, error) {
	if credential == "" {
		return "", ErrInvalidCredential
	}

	parsed, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrCredentialExpired
		}
		return "", ErrInvalidCredential
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidCredential
	}

	return claims.Subject, nil
}
