package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"edupersona/internal/data/entity"
	"edupersona/internal/data/repository"
	"edupersona/pkg/metrics"
	"edupersona/pkg/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memSessionRepo mirrors the conditional SQL of the pgx repository in
// memory.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*entity.Session
	accounts map[uuid.UUID]*entity.Account
	writes   int
	err      error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{
		sessions: make(map[string]*entity.Session),
		accounts: make(map[uuid.UUID]*entity.Account),
	}
}

func (r *memSessionRepo) failWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *memSessionRepo) get(publicID string) entity.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.sessions[publicID]
}

func (r *memSessionRepo) put(s *entity.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.PublicID] = &cp
}

func (r *memSessionRepo) addAccount(a *entity.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.ID] = &cp
}

func (r *memSessionRepo) mutations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *memSessionRepo) CreateWithinCapacity(_ context.Context, s *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}

	account, ok := r.accounts[s.AccountID]
	if !ok {
		return repository.ErrAccountNotFound
	}
	if r.countActive(s.AccountID) >= account.MaxSessions {
		return repository.ErrCapacityReached
	}
	if _, taken := r.sessions[s.PublicID]; taken {
		return repository.ErrDuplicatePublicID
	}

	cp := *s
	r.sessions[s.PublicID] = &cp
	r.writes++
	return nil
}

func (r *memSessionRepo) FindByPublicID(_ context.Context, publicID string) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	s, ok := r.sessions[publicID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Session
	for _, s := range r.sessions {
		if s.AccountID == accountID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSessionRepo) countActive(accountID uuid.UUID) int {
	n := 0
	for _, s := range r.sessions {
		if s.AccountID == accountID && s.IsActive {
			n++
		}
	}
	return n
}

func (r *memSessionRepo) CountActiveByAccount(_ context.Context, accountID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countActive(accountID), nil
}

func (r *memSessionRepo) Deactivate(_ context.Context, publicID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}

	s, ok := r.sessions[publicID]
	if !ok {
		return false, nil
	}
	s.IsActive = false
	s.IsOnline = false
	r.writes++
	return true, nil
}

func (r *memSessionRepo) TouchLastSeen(_ context.Context, publicID string, at time.Time, online bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}

	s, ok := r.sessions[publicID]
	if !ok {
		return false, nil
	}
	if s.LastSeenAt != nil && !s.LastSeenAt.Before(at) {
		return false, nil
	}
	if online && !s.IsActive {
		return false, nil
	}

	seen := at
	s.LastSeenAt = &seen
	s.IsOnline = online
	r.writes++
	return true, nil
}

func (r *memSessionRepo) RecordLogin(_ context.Context, publicID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}

	s, ok := r.sessions[publicID]
	if !ok || !s.IsActive {
		return false, nil
	}

	login := at
	s.LastLoginAt = &login
	if s.LastSeenAt == nil || s.LastSeenAt.Before(at) {
		seen := at
		s.LastSeenAt = &seen
	}
	s.IsOnline = true
	r.writes++
	return true, nil
}

func (r *memSessionRepo) RecordLogout(_ context.Context, publicID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}

	s, ok := r.sessions[publicID]
	if !ok {
		return false, nil
	}
	newer := s.LastSeenAt == nil || s.LastSeenAt.Before(at)
	if !s.IsOnline && !newer {
		return false, nil
	}

	if newer {
		seen := at
		s.LastSeenAt = &seen
	}
	s.IsOnline = false
	r.writes++
	return true, nil
}

func (r *memSessionRepo) ExpireStale(_ context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	var expired []string
	for id, s := range r.sessions {
		if s.IsOnline && s.LastSeenAt != nil && s.LastSeenAt.Before(cutoff) {
			s.IsOnline = false
			expired = append(expired, id)
			r.writes++
		}
	}
	return expired, nil
}

type memAccountRepo struct {
	sessions *memSessionRepo
}

func (r *memAccountRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Account, error) {
	r.sessions.mu.Lock()
	defer r.sessions.mu.Unlock()
	a, ok := r.sessions.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func ts(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

func testPresenceConfig() utils.PresenceConfig {
	return utils.PresenceConfig{
		HeartbeatInterval: 60 * time.Second,
		SweepInterval:     60 * time.Second,
		IdleTimeout:       10 * time.Minute,
		QueueSize:         16,
		Workers:           2,
		WriteTimeout:      time.Second,
		MaxClockSkew:      5 * time.Second,
	}
}

func testConfig() *utils.Config {
	return &utils.Config{
		Presence:  testPresenceConfig(),
		Security:  utils.SecurityConfig{BcryptCost: 4},
		RateLimit: utils.RateLimitConfig{LoginPerMinute: 10, LoginBurst: 5},
	}
}

type fixture struct {
	repo     *memSessionRepo
	repos    *repository.Repository
	hasher   *utils.PasswordHasher
	store    SessionStore
	clock    *fakeClock
	presence PresenceTracker
	metrics  *metrics.Metrics
	account  *entity.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newMemSessionRepo()
	hasher := utils.NewPasswordHasher(4)
	clock := newFakeClock(epoch)
	m := metrics.New()
	log := zap.NewNop()
	store := NewSessionStore(repo, hasher, log)

	f := &fixture{
		repo:     repo,
		repos:    &repository.Repository{Account: &memAccountRepo{sessions: repo}, Session: repo},
		hasher:   hasher,
		store:    store,
		clock:    clock,
		presence: NewPresenceTracker(store, testPresenceConfig(), m, log, WithPresenceClock(clock.Now)),
		metrics:  m,
		account: &entity.Account{
			Base:             entity.Base{ID: uuid.New(), CreatedAt: epoch, UpdatedAt: epoch},
			Email:            "famille@example.com",
			SubscriptionTier: entity.TierFamily,
			MaxSessions:      2,
		},
	}
	repo.addAccount(f.account)
	return f
}

func (f *fixture) addPersona(t *testing.T, publicID string, personaType entity.PersonaType, password string) {
	t.Helper()

	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)

	f.repo.put(&entity.Session{
		Base:         entity.Base{ID: uuid.New(), CreatedAt: epoch, UpdatedAt: epoch},
		PublicID:     publicID,
		AccountID:    f.account.ID,
		DisplayName:  publicID,
		PersonaType:  personaType,
		PasswordHash: hash,
		IsActive:     true,
	})
}
