package usecase

import (
	"context"
	"fmt"
	"time"

	"edupersona/internal/data/entity"
	"edupersona/internal/data/repository"
	"edupersona/pkg/utils"

	"go.uber.org/zap"
)

// SessionStore is the source of truth for whether a persona exists and is
// still active. Every failure it returns is one of the typed errors in
// errors.go, possibly wrapped.
type SessionStore interface {
	FindByPublicID(ctx context.Context, sessionID string) (*entity.Session, error)
	Live(ctx context.Context, sessionID string) (*entity.Session, error)
	Authenticate(ctx context.Context, sessionID, password string) (*entity.Session, error)
	Deactivate(ctx context.Context, sessionID string) error
	TouchLastSeen(ctx context.Context, sessionID string, at time.Time, online bool) (bool, error)
	RecordLogin(ctx context.Context, sessionID string, at time.Time) (bool, error)
	RecordLogout(ctx context.Context, sessionID string, at time.Time) (bool, error)
	ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error)
}

type sessionStore struct {
	repo   repository.SessionRepository
	hasher *utils.PasswordHasher
	log    *zap.Logger
}

func NewSessionStore(repo repository.SessionRepository, hasher *utils.PasswordHasher, log *zap.Logger) SessionStore {
	return &sessionStore{
		repo:   repo,
		hasher: hasher,
		log:    log.With(zap.String("service", "session_store")),
	}
}

func (s *sessionStore) FindByPublicID(ctx context.Context, sessionID string) (*entity.Session, error) {
	session, err := s.repo.FindByPublicID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Live returns the persona only while it is active. A deactivated persona
// yields ErrSessionRevoked, which revokes every credential issued for it.
func (s *sessionStore) Live(ctx context.Context, sessionID string) (*entity.Session, error) {
	session, err := s.FindByPublicID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, ErrSessionRevoked
	}
	return session, nil
}

// Authenticate checks password against the persona's hash. Unknown ids,
// inactive personas, wrong passwords and lookup failures all come back as
// ErrInvalidCredentials after the same amount of bcrypt work.
func (s *sessionStore) Authenticate(ctx context.Context, sessionID, password string) (*entity.Session, error) {
	session, err := s.repo.FindByPublicID(ctx, sessionID)
	if err != nil {
		s.log.Error("Authenticate lookup failed", zap.Error(err), zap.String("session_id", sessionID))
		s.hasher.CompareDummy(password)
		return nil, ErrInvalidCredentials
	}
	if session == nil {
		s.hasher.CompareDummy(password)
		return nil, ErrInvalidCredentials
	}

	matched := s.hasher.Compare(session.PasswordHash, password)
	if !matched || !session.IsActive {
		s.log.Debug("Authenticate rejected",
			zap.String("session_id", sessionID),
			zap.Bool("active", session.IsActive),
		)
		return nil, ErrInvalidCredentials
	}

	return session, nil
}

func (s *sessionStore) Deactivate(ctx context.Context, sessionID string) error {
	found, err := s.repo.Deactivate(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if !found {
		return ErrSessionNotFound
	}

	s.log.Info("Session deactivated", zap.String("session_id", sessionID))
	return nil
}

// TouchLastSeen applies a presence write only when at is newer than the
// stored watermark. The bool reports whether it was applied.
func (s *sessionStore) TouchLastSeen(ctx context.Context, sessionID string, at time.Time, online bool) (bool, error) {
	applied, err := s.repo.TouchLastSeen(ctx, sessionID, at, online)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return applied, nil
}

func (s *sessionStore) RecordLogin(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	applied, err := s.repo.RecordLogin(ctx, sessionID, at)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return applied, nil
}

func (s *sessionStore) RecordLogout(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	applied, err := s.repo.RecordLogout(ctx, sessionID, at)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return applied, nil
}

func (s *sessionStore) ExpireStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	expired, err := s.repo.ExpireStale(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return expired, nil
}
