package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"edupersona/internal/data/entity"
	"edupersona/internal/data/repository"
	"edupersona/internal/dto/request"
	"edupersona/internal/dto/response"
	"edupersona/pkg/utils"

	"go.uber.org/zap"
)

// PersonaService lets the PARENT persona manage the personas of its own
// account.
type PersonaService interface {
	List(ctx context.Context, identity utils.Identity) ([]response.PersonaResponse, error)
	Create(ctx context.Context, identity utils.Identity, req *request.CreatePersonaRequest) (*response.PersonaResponse, error)
	Deactivate(ctx context.Context, identity utils.Identity, sessionID string) error
}

type personaService struct {
	repo   *repository.Repository
	store  SessionStore
	hasher *utils.PasswordHasher
	config *utils.Config
	log    *zap.Logger
	now    func() time.Time
}

func NewPersonaService(
	repo *repository.Repository,
	store SessionStore,
	hasher *utils.PasswordHasher,
	config *utils.Config,
	log *zap.Logger,
) PersonaService {
	return &personaService{
		repo:   repo,
		store:  store,
		hasher: hasher,
		config: config,
		log:    log.With(zap.String("service", "persona")),
		now:    time.Now,
	}
}

func (s *personaService) List(ctx context.Context, identity utils.Identity) ([]response.PersonaResponse, error) {
	sessions, err := s.repo.Session.ListByAccount(ctx, identity.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	now := s.now()
	window := s.config.Presence.StaleAfter()

	personas := make([]response.PersonaResponse, 0, len(sessions))
	for _, session := range sessions {
		personas = append(personas, response.PersonaToResponse(session, session.OnlineAt(now, window)))
	}
	return personas, nil
}

// Create adds a persona to the caller's account. Capacity is checked before
// anything is written, and checked again under the account row lock by the
// insert itself.
func (s *personaService) Create(
	ctx context.Context,
	identity utils.Identity,
	req *request.CreatePersonaRequest,
) (*response.PersonaResponse, error) {
	if !identity.IsParent() {
		return nil, ErrForbidden
	}
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, utils.FormatValidationErrors(errs))
	}

	personaType := entity.PersonaType(strings.ToUpper(req.PersonaType))
	if !personaType.Valid() {
		return nil, fmt.Errorf("%w: unknown persona type %q", ErrValidation, req.PersonaType)
	}

	account, err := s.repo.Account.FindByID(ctx, identity.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if account == nil {
		s.log.Error("Caller account missing", zap.String("account_id", identity.AccountID.String()))
		return nil, ErrInternal
	}

	active, err := s.repo.Session.CountActiveByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if active >= account.MaxSessions {
		s.log.Warn("Persona capacity reached",
			zap.String("account_id", account.ID.String()),
			zap.Int("active", active),
			zap.Int("max_sessions", account.MaxSessions),
		)
		return nil, ErrCapacityExceeded
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.log.Error("Failed to hash password", zap.Error(err))
		return nil, fmt.Errorf("%w: hash password", ErrInternal)
	}

	now := s.now().UTC()
	session := &entity.Session{
		Base: entity.Base{
			ID:        utils.GenerateUUID(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PublicID:     req.SessionID,
		AccountID:    account.ID,
		DisplayName:  req.DisplayName,
		PersonaType:  personaType,
		PasswordHash: hash,
		IsActive:     true,
	}

	if err := s.repo.Session.CreateWithinCapacity(ctx, session); err != nil {
		switch {
		case errors.Is(err, repository.ErrCapacityReached):
			return nil, ErrCapacityExceeded
		case errors.Is(err, repository.ErrDuplicatePublicID):
			return nil, ErrDuplicateSession
		case errors.Is(err, repository.ErrAccountNotFound):
			return nil, ErrInternal
		default:
			return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
		}
	}

	s.log.Info("Persona created",
		zap.String("session_id", session.PublicID),
		zap.String("persona_type", string(personaType)),
		zap.String("account_id", account.ID.String()),
	)

	resp := response.PersonaToResponse(session, false)
	return &resp, nil
}

// Deactivate revokes a persona of the caller's account. Outstanding
// credentials for it stop working on their next request. Personas of other
// accounts read as not found.
func (s *personaService) Deactivate(ctx context.Context, identity utils.Identity, sessionID string) error {
	if !identity.IsParent() {
		return ErrForbidden
	}
	if sessionID == identity.SessionID {
		return fmt.Errorf("%w: cannot deactivate the calling persona", ErrForbidden)
	}

	target, err := s.store.FindByPublicID(ctx, sessionID)
	if err != nil {
		return err
	}
	if target.AccountID != identity.AccountID {
		return ErrSessionNotFound
	}

	return s.store.Deactivate(ctx, sessionID)
}
