package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"edupersona/internal/data/entity"
	"edupersona/internal/usecase"
	"edupersona/pkg/metrics"
	"edupersona/pkg/token"
	"edupersona/pkg/utils"

	"go.uber.org/zap"
)

// CredentialVerifier resolves a credential to the session id it was issued for.
type CredentialVerifier interface {
	Verify(credential string) (string, error)
}

// SessionChecker returns the persona behind a session id while it is active.
// A deactivated persona must be reported as usecase.ErrSessionRevoked.
type SessionChecker interface {
	Live(ctx context.Context, sessionID string) (*entity.Session, error)
}

// ActivityRecorder accepts presence events without blocking.
type ActivityRecorder interface {
	Observe(event entity.PresenceEvent) bool
}

// Policy decides how the gateway treats a route.
type Policy int

const (
	// PolicyProtected rejects unauthenticated requests and counts the request
	// as activity.
	PolicyProtected Policy = iota
	// PolicyPublic skips authentication entirely.
	PolicyPublic
	// PolicyPassive rejects unauthenticated requests but records no activity.
	// Used by the explicit heartbeat endpoint, which writes presence itself.
	PolicyPassive
	// PolicyOptional attaches the identity when the credential is valid and
	// never rejects.
	PolicyOptional
)

// Rejection reasons reported to clients. They are deliberately coarse.
const (
	ReasonMissing = "missing"
	ReasonInvalid = "invalid"
	ReasonExpired = "expired"
	ReasonRevoked = "revoked"
)

type AuthGateway struct {
	verifier   CredentialVerifier
	sessions   SessionChecker
	activity   ActivityRecorder
	cookieName string
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time

	policies map[string]Policy
}

func NewAuthGateway(
	verifier CredentialVerifier,
	sessions SessionChecker,
	activity ActivityRecorder,
	cookieName string,
	m *metrics.Metrics,
	log *zap.Logger,
) *AuthGateway {
	return &AuthGateway{
		verifier:   verifier,
		sessions:   sessions,
		activity:   activity,
		cookieName: cookieName,
		metrics:    m,
		log:        log.With(zap.String("middleware", "auth")),
		now:        time.Now,
		policies:   make(map[string]Policy),
	}
}

func policyKey(method, path string) string {
	return method + " " + path
}

// SetPolicy overrides the default protected policy for one exact route.
// It must be called before the gateway serves requests.
func (g *AuthGateway) SetPolicy(method, path string, policy Policy) {
	g.policies[policyKey(method, path)] = policy
}

func (g *AuthGateway) policyFor(r *http.Request) Policy {
	if p, ok := g.policies[policyKey(r.Method, r.URL.Path)]; ok {
		return p
	}
	// Preflight requests carry no credentials.
	if r.Method == http.MethodOptions {
		return PolicyPublic
	}
	return PolicyProtected
}

// Middleware authenticates every request according to its route policy.
func (g *AuthGateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policy := g.policyFor(r)
		if policy == PolicyPublic {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := g.authenticate(r)
		if err != nil {
			if policy == PolicyOptional {
				next.ServeHTTP(w, r)
				return
			}

			reason := rejectionReason(err)
			g.metrics.AuthFailures.WithLabelValues(reason).Inc()
			g.log.Warn("Request rejected",
				zap.String("reason", reason),
				zap.Error(err),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			utils.ResponseUnauthorizedReason(w, reason)
			return
		}

		if policy == PolicyProtected {
			g.activity.Observe(entity.PresenceEvent{
				SessionID: identity.SessionID,
				Kind:      entity.PresenceHeartbeat,
				At:        g.now().UTC(),
			})
		}

		next.ServeHTTP(w, r.WithContext(utils.SetIdentityContext(r.Context(), identity)))
	})
}

var (
	errNoCredential  = errors.New("no credential presented")
	errBadAuthHeader = errors.New("malformed authorization header")
)

// rejectionReason maps an authentication failure to the code sent to the
// client. Lookup failures, database errors included, read as invalid.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, errNoCredential):
		return ReasonMissing
	case errors.Is(err, token.ErrCredentialExpired):
		return ReasonExpired
	case errors.Is(err, usecase.ErrSessionRevoked):
		return ReasonRevoked
	default:
		return ReasonInvalid
	}
}

func (g *AuthGateway) authenticate(r *http.Request) (utils.Identity, error) {
	credential, err := g.extract(r)
	if err != nil {
		return utils.Identity{}, err
	}

	sessionID, err := g.verifier.Verify(credential)
	if err != nil {
		return utils.Identity{}, err
	}

	session, err := g.sessions.Live(r.Context(), sessionID)
	if err != nil {
		return utils.Identity{}, err
	}

	return utils.Identity{
		SessionID:   session.PublicID,
		PersonaType: session.PersonaType,
		AccountID:   session.AccountID,
	}, nil
}

// extract reads the bearer header first and falls back to the session cookie.
func (g *AuthGateway) extract(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		value = strings.TrimSpace(value)
		if !ok || !strings.EqualFold(scheme, "Bearer") || value == "" {
			return "", errBadAuthHeader
		}
		return value, nil
	}

	if g.cookieName != "" {
		if cookie, err := r.Cookie(g.cookieName); err == nil && cookie.Value != "" {
			return cookie.Value, nil
		}
	}

	return "", errNoCredential
}
