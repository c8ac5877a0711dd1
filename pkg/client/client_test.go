package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"edupersona/internal/dto/request"
	"edupersona/internal/dto/response"
	"edupersona/pkg/inactivity"
	"edupersona/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testToken = "signed.test.token"

type fakeServer struct {
	mu          sync.Mutex
	heartbeats  []request.HeartbeatRequest
	logouts     int
	rejectAll   bool
	idleSeconds int
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req request.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			utils.ResponseUnauthorized(w, "Invalid credentials")
			return
		}
		f.mu.Lock()
		idle := f.idleSeconds
		f.mu.Unlock()
		utils.ResponseSuccess(w, "Login successful", response.LoginResponse{
			Token:              testToken,
			ExpiresAt:          time.Now().Add(time.Hour),
			IdleTimeoutSeconds: idle,
			Persona:            response.PersonaResponse{SessionID: req.SessionID, IsOnline: true},
		})
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			reject := f.rejectAll
			f.mu.Unlock()
			if reject || r.Header.Get("Authorization") != "Bearer "+testToken {
				utils.ResponseUnauthorizedReason(w, "revoked")
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("GET /api/auth/verify", authed(func(w http.ResponseWriter, r *http.Request) {
		utils.ResponseSuccess(w, "Authenticated", response.PersonaResponse{SessionID: "enfant_01", IsOnline: true})
	}))

	mux.HandleFunc("POST /api/presence/heartbeat", authed(func(w http.ResponseWriter, r *http.Request) {
		var req request.HeartbeatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.heartbeats = append(f.heartbeats, req)
		f.mu.Unlock()
		utils.ResponseSuccess(w, "Heartbeat received", response.HeartbeatResponse{Applied: true})
	}))

	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts++
		f.mu.Unlock()
		utils.ResponseSuccess(w, "Logout successful", nil)
	})

	return mux
}

func (f *fakeServer) heartbeatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.heartbeats)
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(fs.handler())
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithHTTPClient(srv.Client()), WithLogger(zap.NewNop())), fs
}

func TestClient_LoginVerifyHeartbeat(t *testing.T) {
	c, fs := newTestClient(t)
	ctx := context.Background()

	out, err := c.Login(ctx, "enfant_01", "secret")
	require.NoError(t, err)
	assert.Equal(t, testToken, out.Token)
	assert.Equal(t, testToken, c.Credential())

	profile, err := c.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, "enfant_01", profile.SessionID)

	applied, err := c.Heartbeat(ctx, true)
	require.NoError(t, err)
	assert.True(t, applied)

	require.Equal(t, 1, fs.heartbeatCount())
	hb := fs.heartbeats[0]
	assert.Equal(t, "enfant_01", hb.SessionID)
	require.NotNil(t, hb.IsOnline)
	assert.True(t, *hb.IsOnline)
	assert.NotNil(t, hb.Timestamp)
}

func TestClient_IdleTimeoutFromLogin(t *testing.T) {
	c, fs := newTestClient(t)
	assert.Equal(t, inactivity.DefaultTimeout, c.IdleTimeout())

	fs.idleSeconds = 90
	_, err := c.Login(context.Background(), "enfant_01", "secret")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, c.IdleTimeout())
}

func TestClient_LoginRejected(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Login(context.Background(), "enfant_01", "wrong")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Unauthorized())
	assert.Equal(t, "Invalid credentials", apiErr.Message)
	assert.Empty(t, c.Credential())
}

func TestClient_RequiresLogin(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Verify(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = c.Heartbeat(context.Background(), true)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestClient_RunHeartbeatsStopsOnRevocation(t *testing.T) {
	c, fs := newTestClient(t)
	_, err := c.Login(context.Background(), "enfant_01", "secret")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.RunHeartbeats(context.Background(), 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return fs.heartbeatCount() >= 2 }, time.Second, 5*time.Millisecond)

	fs.mu.Lock()
	fs.rejectAll = true
	fs.mu.Unlock()

	select {
	case err := <-done:
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "revoked", apiErr.Reason)
	case <-time.After(time.Second):
		t.Fatal("heartbeat loop did not stop")
	}
}

func TestClient_RunHeartbeatsStopsOnCancel(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Login(context.Background(), "enfant_01", "secret")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.RunHeartbeats(ctx, time.Hour) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("heartbeat loop did not stop")
	}
}

func TestClient_LogoutFlow(t *testing.T) {
	c, fs := newTestClient(t)
	_, err := c.Login(context.Background(), "enfant_01", "secret")
	require.NoError(t, err)

	var navigated []inactivity.Cause
	flow := c.LogoutFlow(func(cause inactivity.Cause) { navigated = append(navigated, cause) })

	flow(context.Background(), inactivity.CauseIdle)

	require.Equal(t, 1, fs.heartbeatCount())
	assert.False(t, *fs.heartbeats[0].IsOnline)
	assert.Equal(t, 1, fs.logouts)
	assert.Empty(t, c.Credential())
	assert.Equal(t, []inactivity.Cause{inactivity.CauseIdle}, navigated)
}

func TestClient_LogoutFlowSurvivesUnreachableServer(t *testing.T) {
	c := New("http://127.0.0.1:1", WithHTTPClient(&http.Client{Timeout: 200 * time.Millisecond}))
	c.credential = testToken
	c.sessionID = "enfant_01"

	navigated := false
	c.LogoutFlow(func(inactivity.Cause) { navigated = true })(context.Background(), inactivity.CauseSibling)

	assert.Empty(t, c.Credential())
	assert.True(t, navigated)
}

func TestClient_MonitorDrivesLogout(t *testing.T) {
	c, fs := newTestClient(t)
	fs.idleSeconds = 1
	_, err := c.Login(context.Background(), "enfant_01", "secret")
	require.NoError(t, err)
	require.Equal(t, time.Second, c.IdleTimeout())

	var mu sync.Mutex
	var causes []string
	flow := c.LogoutFlow(func(cause inactivity.Cause) {
		mu.Lock()
		causes = append(causes, string(cause))
		mu.Unlock()
	})

	m := inactivity.NewMonitor(inactivity.NewSharedStorage().Tab(), c.IdleTimeout(), flow, zap.NewNop())
	m.Start()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(causes) == 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, "idle", strings.Join(causes, ","))
	assert.Empty(t, c.Credential())
	assert.Equal(t, 1, fs.heartbeatCount())
}
