package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"edupersona/internal/data/entity"
	"edupersona/pkg/metrics"
	"edupersona/pkg/utils"

	"go.uber.org/zap"
)

// PresenceTracker reduces login, heartbeat, disconnect and logout events into
// the persisted (last_seen_at, is_online) pair of each session. Presence is a
// lease: heartbeats renew it, the sweep reclaims it once it has run out.
type PresenceTracker interface {
	// Apply writes one event synchronously and reports whether it changed
	// the session. Stale events return false with a nil error.
	Apply(ctx context.Context, event entity.PresenceEvent) (bool, error)

	// Observe queues an event without blocking. It returns false when the
	// queue is full and the event was dropped.
	Observe(event entity.PresenceEvent) bool

	// Sweep flips every session whose lease has expired to offline.
	Sweep(ctx context.Context) (int, error)

	// IsOnline reports effective presence: the cached flag and an unexpired
	// lease.
	IsOnline(ctx context.Context, sessionID string) (bool, error)

	// Run drains the queue and sweeps periodically until ctx is cancelled.
	Run(ctx context.Context)
}

type PresenceOption func(*presenceTracker)

// WithPresenceClock replaces time.Now.
func WithPresenceClock(now func() time.Time) PresenceOption {
	return func(t *presenceTracker) { t.now = now }
}

type presenceTracker struct {
	store   SessionStore
	config  utils.PresenceConfig
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time

	queue chan entity.PresenceEvent
}

func NewPresenceTracker(
	store SessionStore,
	config utils.PresenceConfig,
	m *metrics.Metrics,
	log *zap.Logger,
	opts ...PresenceOption,
) PresenceTracker {
	size := config.QueueSize
	if size <= 0 {
		size = 1
	}

	t := &presenceTracker{
		store:   store,
		config:  config,
		metrics: m,
		log:     log.With(zap.String("service", "presence")),
		now:     time.Now,
		queue:   make(chan entity.PresenceEvent, size),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// normalize fills in a missing timestamp and pulls timestamps from the
// future back to now, so a client with a fast clock cannot pin a session
// online past its real lease.
func (t *presenceTracker) normalize(at time.Time) time.Time {
	now := t.now().UTC()
	if at.IsZero() || at.After(now.Add(t.config.MaxClockSkew)) {
		return now
	}
	return at.UTC()
}

func (t *presenceTracker) Apply(ctx context.Context, event entity.PresenceEvent) (bool, error) {
	at := t.normalize(event.At)

	var (
		applied bool
		err     error
	)
	switch event.Kind {
	case entity.PresenceLogin:
		applied, err = t.store.RecordLogin(ctx, event.SessionID, at)
	case entity.PresenceHeartbeat, entity.PresenceDisconnect:
		applied, err = t.store.TouchLastSeen(ctx, event.SessionID, at, event.Kind.Online())
	case entity.PresenceLogout:
		// Logout is explicit, so it wins over a heartbeat stamped ahead of
		// the server clock.
		applied, err = t.store.RecordLogout(ctx, event.SessionID, at)
	default:
		return false, ErrValidation
	}

	result := "stale"
	switch {
	case err != nil:
		result = "error"
	case applied:
		result = "applied"
	}
	t.metrics.PresenceEvents.WithLabelValues(string(event.Kind), result).Inc()

	if err != nil {
		return false, err
	}
	return applied, nil
}

func (t *presenceTracker) Observe(event entity.PresenceEvent) bool {
	if event.At.IsZero() {
		event.At = t.now().UTC()
	}

	select {
	case t.queue <- event:
		return true
	default:
		t.metrics.PresenceDropped.Inc()
		return false
	}
}

func (t *presenceTracker) Sweep(ctx context.Context) (int, error) {
	cutoff := t.now().UTC().Add(-t.config.StaleAfter())

	expired, err := t.store.ExpireStale(ctx, cutoff)
	if err != nil {
		t.metrics.SweepRuns.WithLabelValues("error").Inc()
		return 0, err
	}

	t.metrics.SweepRuns.WithLabelValues("ok").Inc()
	if len(expired) > 0 {
		t.metrics.SweepFlipped.Add(float64(len(expired)))
		t.log.Info("Expired stale presence",
			zap.Int("count", len(expired)),
			zap.Strings("session_ids", expired),
			zap.Time("cutoff", cutoff),
		)
	}
	return len(expired), nil
}

func (t *presenceTracker) IsOnline(ctx context.Context, sessionID string) (bool, error) {
	session, err := t.store.FindByPublicID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	return session.OnlineAt(t.now(), t.config.StaleAfter()), nil
}

func (t *presenceTracker) Run(ctx context.Context) {
	workers := t.config.Workers
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.work(ctx)
		}()
	}

	t.log.Info("Presence tracker started",
		zap.Int("workers", workers),
		zap.Duration("heartbeat_interval", t.config.HeartbeatInterval),
		zap.Duration("sweep_interval", t.config.SweepInterval),
	)

	t.sweepOnce()

	ticker := time.NewTicker(t.config.SweepInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			t.sweepOnce()
		}
	}

	wg.Wait()
	t.log.Info("Presence tracker stopped")
}

func (t *presenceTracker) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout())
	defer cancel()

	if _, err := t.Sweep(ctx); err != nil {
		t.log.Warn("Presence sweep failed", zap.Error(err))
	}
}

// work applies queued events until ctx is cancelled, then flushes whatever
// is still buffered. Each write gets its own deadline; the request that
// produced the event is usually gone by now.
func (t *presenceTracker) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			t.flush()
			return
		case event := <-t.queue:
			t.write(event)
		}
	}
}

func (t *presenceTracker) flush() {
	for {
		select {
		case event := <-t.queue:
			t.write(event)
		default:
			return
		}
	}
}

func (t *presenceTracker) write(event entity.PresenceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout())
	defer cancel()

	if _, err := t.Apply(ctx, event); err != nil {
		t.log.Warn("Presence write failed",
			zap.Error(err),
			zap.String("session_id", event.SessionID),
			zap.String("kind", string(event.Kind)),
		)
	}
}

func (t *presenceTracker) writeTimeout() time.Duration {
	if t.config.WriteTimeout > 0 {
		return t.config.WriteTimeout
	}
	return 3 * time.Second
}
