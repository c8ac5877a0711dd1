// Package client is a Go client for the edupersona API. It keeps the bearer
// credential returned by login, sends heartbeats on a timer and provides the
// logout flow run by the inactivity monitor.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"edupersona/internal/dto/request"
	"edupersona/internal/dto/response"
	"edupersona/pkg/inactivity"

	"go.uber.org/zap"
)

var ErrNotLoggedIn = errors.New("client: not logged in")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
	Reason  string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("api error %d: %s (%s)", e.Status, e.Message, e.Reason)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Unauthorized reports whether the server rejected the credential.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger

	mu          sync.RWMutex
	credential  string
	sessionID   string
	idleTimeout time.Duration
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates the persona and keeps the returned credential.
func (c *Client) Login(ctx context.Context, sessionID, password string) (*response.LoginResponse, error) {
	var out response.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", request.LoginRequest{
		SessionID: sessionID,
		Password:  password,
	}, &out, false)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.credential = out.Token
	c.sessionID = out.Persona.SessionID
	c.idleTimeout = time.Duration(out.IdleTimeoutSeconds) * time.Second
	c.mu.Unlock()

	return &out, nil
}

// Verify returns the profile of the logged-in persona.
func (c *Client) Verify(ctx context.Context) (*response.PersonaResponse, error) {
	var out response.PersonaResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/verify", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Heartbeat sends one presence signal. online=false is the disconnect signal.
func (c *Client) Heartbeat(ctx context.Context, online bool) (bool, error) {
	c.mu.RLock()
	sessionID := c.sessionID
	c.mu.RUnlock()
	if sessionID == "" {
		return false, ErrNotLoggedIn
	}

	now := time.Now().UTC()
	var out response.HeartbeatResponse
	err := c.do(ctx, http.MethodPost, "/api/presence/heartbeat", request.HeartbeatRequest{
		SessionID: sessionID,
		IsOnline:  &online,
		Timestamp: &now,
	}, &out, true)
	if err != nil {
		return false, err
	}
	return out.Applied, nil
}

// Logout tells the server and forgets the credential, whatever the server
// answered.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, false)
	c.ClearCredential()
	return err
}

// RunHeartbeats sends an online heartbeat every interval until ctx is done or
// the server rejects the credential. Transient failures are logged and
// retried on the next tick.
func (c *Client) RunHeartbeats(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.Heartbeat(ctx, true); err != nil {
			var apiErr *APIError
			if errors.Is(err, ErrNotLoggedIn) || (errors.As(err, &apiErr) && apiErr.Unauthorized()) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("Heartbeat failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) Credential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential
}

// IdleTimeout is the inactivity window announced by the server at login,
// or inactivity.DefaultTimeout when none was announced.
func (c *Client) IdleTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.idleTimeout <= 0 {
		return inactivity.DefaultTimeout
	}
	return c.idleTimeout
}

func (c *Client) ClearCredential() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = ""
	c.sessionID = ""
}

// LogoutFlow returns the flow run by the inactivity monitor: a best-effort
// disconnect heartbeat, then the local credential is dropped, then navigate
// is called to return to the entry point.
func (c *Client) LogoutFlow(navigate func(inactivity.Cause)) inactivity.Flow {
	return func(ctx context.Context, cause inactivity.Cause) {
		if c.Credential() != "" {
			if _, err := c.Heartbeat(ctx, false); err != nil {
				c.log.Debug("Disconnect signal not delivered", zap.Error(err))
			}
			if err := c.Logout(ctx); err != nil {
				c.log.Debug("Logout call failed", zap.Error(err))
			}
		}
		c.ClearCredential()

		if navigate != nil {
			navigate(cause)
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, auth bool) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	credential := c.Credential()
	if auth && credential == "" {
		return ErrNotLoggedIn
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Message}
		var reason struct {
			Reason string `json:"reason"`
		}
		if len(env.Errors) > 0 && json.Unmarshal(env.Errors, &reason) == nil {
			apiErr.Reason = reason.Reason
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
