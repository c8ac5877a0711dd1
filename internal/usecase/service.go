package usecase

import (
	"edupersona/internal/data/repository"
	"edupersona/pkg/metrics"
	"edupersona/pkg/ratelimit"
	"edupersona/pkg/utils"

	"go.uber.org/zap"
)

type Service struct {
	Sessions SessionStore
	Presence PresenceTracker
	Auth     AuthService
	Persona  PersonaService
}

func NewService(
	repo *repository.Repository,
	issuer CredentialIssuer,
	loginLimiter *ratelimit.Limiter,
	config *utils.Config,
	m *metrics.Metrics,
	log *zap.Logger,
) *Service {
	hasher := utils.NewPasswordHasher(config.Security.BcryptCost)
	sessions := NewSessionStore(repo.Session, hasher, log)
	presence := NewPresenceTracker(sessions, config.Presence, m, log)

	return &Service{
		Sessions: sessions,
		Presence: presence,
		Auth:     NewAuthService(sessions, presence, issuer, loginLimiter, config, m, log),
		Persona:  NewPersonaService(repo, sessions, hasher, config, log),
	}
}
