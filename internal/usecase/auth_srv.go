package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edupersona/internal/data/entity"
	"edupersona/internal/dto/request"
	"edupersona/internal/dto/response"
	"edupersona/pkg/metrics"
	"edupersona/pkg/ratelimit"
	"edupersona/pkg/utils"

	"go.uber.org/zap"
)

// CredentialIssuer signs a credential for one session.
type CredentialIssuer interface {
	Issue(sessionID string) (string, time.Time, error)
}

// RetryAfterError is returned when login attempts for a session id are
// throttled. It matches ErrRateLimited with errors.Is.
type RetryAfterError struct {
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RetryAfterError) Unwrap() error { return ErrRateLimited }

type AuthService interface {
	Login(ctx context.Context, req *request.LoginRequest) (*response.LoginResponse, error)
	Logout(ctx context.Context, sessionID string) error
	Profile(ctx context.Context, sessionID string) (*response.PersonaResponse, error)
}

type authService struct {
	store    SessionStore
	presence PresenceTracker
	issuer   CredentialIssuer
	limiter  *ratelimit.Limiter
	config   *utils.Config
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewAuthService(
	store SessionStore,
	presence PresenceTracker,
	issuer CredentialIssuer,
	limiter *ratelimit.Limiter,
	config *utils.Config,
	m *metrics.Metrics,
	log *zap.Logger,
) AuthService {
	return &authService{
		store:    store,
		presence: presence,
		issuer:   issuer,
		limiter:  limiter,
		config:   config,
		metrics:  m,
		log:      log.With(zap.String("service", "auth")),
		now:      time.Now,
	}
}

func (s *authService) Login(ctx context.Context, req *request.LoginRequest) (*response.LoginResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	if s.limiter != nil {
		if ok, wait := s.limiter.Allow(req.SessionID); !ok {
			s.metrics.Logins.WithLabelValues("rate_limited").Inc()
			s.log.Warn("Login throttled", zap.String("session_id", req.SessionID))
			return nil, &RetryAfterError{RetryAfter: wait}
		}
	}

	session, err := s.store.Authenticate(ctx, req.SessionID, req.Password)
	if err != nil {
		s.metrics.Logins.WithLabelValues("rejected").Inc()
		s.log.Warn("Login rejected", zap.String("session_id", req.SessionID))
		return nil, ErrInvalidCredentials
	}

	credential, expiresAt, err := s.issuer.Issue(session.PublicID)
	if err != nil {
		s.metrics.Logins.WithLabelValues("error").Inc()
		s.log.Error("Failed to issue credential", zap.Error(err), zap.String("session_id", session.PublicID))
		return nil, fmt.Errorf("%w: issue credential", ErrInternal)
	}

	now := s.now().UTC()
	if _, err := s.presence.Apply(ctx, entity.PresenceEvent{
		SessionID: session.PublicID,
		Kind:      entity.PresenceLogin,
		At:        now,
	}); err != nil {
		// The first heartbeat will bring the session online.
		s.log.Warn("Failed to record login presence", zap.Error(err), zap.String("session_id", session.PublicID))
	}

	session.IsOnline = true
	session.LastLoginAt = &now
	if session.LastSeenAt == nil || session.LastSeenAt.Before(now) {
		session.LastSeenAt = &now
	}

	s.metrics.Logins.WithLabelValues("ok").Inc()
	s.log.Info("Persona logged in",
		zap.String("session_id", session.PublicID),
		zap.String("persona_type", string(session.PersonaType)),
		zap.String("account_id", session.AccountID.String()),
	)

	return &response.LoginResponse{
		Token:              credential,
		ExpiresAt:          expiresAt,
		IdleTimeoutSeconds: int(s.config.Presence.IdleTimeout / time.Second),
		Persona:            response.PersonaToResponse(session, true),
	}, nil
}

// Logout flips presence to offline. It does not deactivate the persona and
// succeeds for unknown or already offline sessions, so a second call is a
// no-op.
func (s *authService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	applied, err := s.presence.Apply(ctx, entity.PresenceEvent{
		SessionID: sessionID,
		Kind:      entity.PresenceLogout,
		At:        s.now().UTC(),
	})
	if err != nil {
		s.log.Warn("Failed to record logout presence", zap.Error(err), zap.String("session_id", sessionID))
		return nil
	}

	s.log.Info("Persona logged out", zap.String("session_id", sessionID), zap.Bool("applied", applied))
	return nil
}

func (s *authService) Profile(ctx context.Context, sessionID string) (*response.PersonaResponse, error) {
	session, err := s.store.Live(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionRevoked) {
			s.log.Error("Failed to load profile", zap.Error(err), zap.String("session_id", sessionID))
		}
		return nil, err
	}

	online := session.OnlineAt(s.now(), s.config.Presence.StaleAfter())
	resp := response.PersonaToResponse(session, online)
	return &resp, nil
}
