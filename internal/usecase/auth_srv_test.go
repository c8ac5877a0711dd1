package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"edupersona/internal/data/entity"
	"edupersona/internal/dto/request"
	"edupersona/pkg/ratelimit"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubIssuer struct {
	issued []string
	err    error
}

func (s *stubIssuer) Issue(sessionID string) (string, time.Time, error) {
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	s.issued = append(s.issued, sessionID)
	return "cred-" + sessionID, epoch.Add(7 * 24 * time.Hour), nil
}

func newAuthFixture(t *testing.T, limiter *ratelimit.Limiter) (*fixture, *stubIssuer, AuthService) {
	t.Helper()

	f := newFixture(t)
	issuer := &stubIssuer{}
	svc := NewAuthService(f.store, f.presence, issuer, limiter, testConfig(), f.metrics, zap.NewNop())
	svc.(*authService).now = f.clock.Now
	return f, issuer, svc
}

func TestAuthService_LoginBringsPersonaOnline(t *testing.T) {
	f, issuer, svc := newAuthFixture(t, nil)
	f.addPersona(t, "enfant_01", entity.PersonaChild, "secret")
	f.clock.Set(ts(0))

	resp, err := svc.Login(context.Background(), &request.LoginRequest{SessionID: "enfant_01", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, "cred-enfant_01", resp.Token)
	assert.Equal(t, 600, resp.IdleTimeoutSeconds)
	assert.Equal(t, "enfant_01", resp.Persona.SessionID)
	assert.Equal(t, entity.PersonaChild, resp.Persona.PersonaType)
	assert.True(t, resp.Persona.IsOnline)
	assert.Equal(t, []string{"enfant_01"}, issuer.issued)

	s := f.repo.get("enfant_01")
	assert.True(t, s.IsOnline)
	require.NotNil(t, s.LastLoginAt)
	assert.True(t, s.LastLoginAt.Equal(ts(0)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Logins.WithLabelValues("ok")))
}

func TestAuthService_LoginDoesNotEnumerate(t *testing.T) {
	f, issuer, svc := newAuthFixture(t, nil)
	f.addPersona(t, "enfant_01", entity.PersonaChild, "secret")

	_, errWrong := svc.Login(context.Background(), &request.LoginRequest{SessionID: "enfant_01", Password: "bad"})
	_, errUnknown := svc.Login(context.Background(), &request.LoginRequest{SessionID: "nobody", Password: "bad"})

	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error())
	assert.Empty(t, issuer.issued)
	assert.False(t, f.repo.get("enfant_01").IsOnline)
}

func TestAuthService_LoginValidation(t *testing.T) {
	_, _, svc := newAuthFixture(t, nil)

	_, err := svc.Login(context.Background(), &request.LoginRequest{SessionID: "", Password: "x"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestAuthService_LoginRateLimited(t *testing.T) {
	limiter := ratelimit.New(60, 2)
	f, _, svc := newAuthFixture(t, limiter)
	f.addPersona(t, "enfant_01", entity.PersonaChild, "secret")

	for i := 0; i < 2; i++ {
		_, err := svc.Login(context.Background(), &request.LoginRequest{SessionID: "enfant_01", Password: "bad"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := svc.Login(context.Background(), &request.LoginRequest{SessionID: "enfant_01", Password: "secret"})
	require.ErrorIs(t, err, ErrRateLimited)

	var retry *RetryAfterError
	require.True(t, errors.As(err, &retry))
	assert.Positive(t, retry.RetryAfter)
}

func TestAuthService_LoginIssuerFailure(t *testing.T) {
	f, issuer, svc := newAuthFixture(t, nil)
	f.addPersona(t, "enfant_01", entity.PersonaChild, "secret")
	issuer.err = errors.New("entropy exhausted")

	_, err := svc.Login(context.Background(), &request.LoginRequest{SessionID: "enfant_01", Password: "secret"})
	require.ErrorIs(t, err, ErrInternal)
	assert.False(t, f.repo.get("enfant_01").IsOnline)
}

func TestAuthService_LogoutIsIdempotent(t *testing.T) {
	f, _, svc := newAuthFixture(t, nil)
	f.addPersona(t, "enfant_01", entity.PersonaChild, "secret")
	ctx := context.Background()

	f.clock.Set(ts(0))
	_, err := svc.Login(ctx, &request.LoginRequest{SessionID: "enfant_01", Password: "secret"})
	require.NoError(t, err)

	f.clock.Set(ts(5))
	require.NoError(t, svc.Logout(ctx, "enfant_01"))
	assert.False(t, f.repo.get("enfant_01").IsOnline)

	require.NoError(t, svc.Logout(ctx, "enfant_01"))
	require.NoError(t, svc.Logout(ctx, ""))
	require.NoError(t, svc.Logout(ctx, "ghost"))

	s := f.repo.get("enfant_01")
	assert.False(t, s.IsOnline)
	assert.True(t, s.IsActive, "logout only flips presence")
}

func TestAuthService_LogoutAfterHeartbeatAheadOfServerClock(t *testing.T) {
	f, _, svc := newAuthFixture(t, nil)
	f.addPersona(t, "enfant_01", entity.PersonaChild, "secret")
	ctx := context.Background()

	f.clock.Set(ts(0))
	_, err := svc.Login(ctx, &request.LoginRequest{SessionID: "enfant_01", Password: "secret"})
	require.NoError(t, err)

	f.clock.Set(ts(30))
	applied, err := f.presence.Apply(ctx, heartbeat("enfant_01", ts(34)))
	require.NoError(t, err)
	require.True(t, applied)

	f.clock.Set(ts(32))
	require.NoError(t, svc.Logout(ctx, "enfant_01"))

	assert.False(t, f.repo.get("enfant_01").IsOnline)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PresenceEvents.WithLabelValues("logout", "applied")))
}

func TestAuthService_LogoutSwallowsStoreErrors(t *testing.T) {
	f, _, svc := newAuthFixture(t, nil)
	f.repo.failWith(errors.New("read-only transaction"))

	assert.NoError(t, svc.Logout(context.Background(), "enfant_01"))
}

func TestAuthService_Profile(t *testing.T) {
	f, _, svc := newAuthFixture(t, nil)
	f.addPersona(t, "enfant_01", entity.PersonaChild, "secret")
	ctx := context.Background()

	f.clock.Set(ts(0))
	_, err := svc.Login(ctx, &request.LoginRequest{SessionID: "enfant_01", Password: "secret"})
	require.NoError(t, err)

	profile, err := svc.Profile(ctx, "enfant_01")
	require.NoError(t, err)
	assert.True(t, profile.IsOnline)
	assert.Equal(t, f.account.ID.String(), profile.AccountID)

	// lease ran out but the sweep has not run yet
	f.clock.Set(ts(500))
	profile, err = svc.Profile(ctx, "enfant_01")
	require.NoError(t, err)
	assert.False(t, profile.IsOnline)

	_, err = svc.Profile(ctx, "ghost")
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, f.store.Deactivate(ctx, "enfant_01"))
	_, err = svc.Profile(ctx, "enfant_01")
	require.ErrorIs(t, err, ErrSessionRevoked)
}
