// Package inactivity is the client-side idle timer. After a period without
// user interaction it runs a logout flow, and it makes every other tab of the
// same browser do the same through a marker in shared storage.
//
// The monitor only produces signals. Whether the persona is online is decided
// by the server.
package inactivity

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MarkerKey is the shared storage key written when a tab logs out.
const MarkerKey = "edupersona.logout"

const DefaultTimeout = 10 * time.Minute

type Cause string

const (
	// CauseIdle means the local idle timer expired.
	CauseIdle Cause = "idle"
	// CauseSibling means another tab logged out.
	CauseSibling Cause = "sibling"
	// CauseManual means the user asked to log out.
	CauseManual Cause = "manual"
)

// Flow is the logout flow: best-effort disconnect signal, clear the local
// credential, go back to the entry point.
type Flow func(ctx context.Context, cause Cause)

type Monitor struct {
	tab         *Tab
	timeout     time.Duration
	flow        Flow
	flowTimeout time.Duration
	log         *zap.Logger
	now         func() time.Time

	mu          sync.Mutex
	armed       bool
	generation  uint64
	timer       *time.Timer
	unsubscribe func()
}

func NewMonitor(tab *Tab, timeout time.Duration, flow Flow, log *zap.Logger) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		tab:         tab,
		timeout:     timeout,
		flow:        flow,
		flowTimeout: 5 * time.Second,
		log:         log.With(zap.String("component", "inactivity")),
		now:         time.Now,
	}
}

// Start arms the monitor, typically right after a successful login. Calling
// it on an armed monitor only resets the timer.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unsubscribe == nil {
		m.unsubscribe = m.tab.Subscribe(m.onStorage)
	}
	m.armed = true
	m.resetLocked()
}

// Activity records user interaction and pushes the deadline back.
func (m *Monitor) Activity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.armed {
		return
	}
	m.resetLocked()
}

// Logout ends the session from this tab and tells the siblings.
func (m *Monitor) Logout() {
	m.trigger(CauseManual, 0, false)
}

// Stop disarms the monitor without running the flow.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disarmLocked()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

func (m *Monitor) resetLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.generation++
	gen := m.generation
	m.timer = time.AfterFunc(m.timeout, func() {
		m.trigger(CauseIdle, gen, true)
	})
}

func (m *Monitor) disarmLocked() {
	m.armed = false
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) onStorage(key, _ string) {
	if key != MarkerKey {
		return
	}
	m.trigger(CauseSibling, 0, false)
}

// trigger runs the flow at most once per arming. Timer callbacks pass their
// generation so a timer that fired while being reset is ignored.
func (m *Monitor) trigger(cause Cause, gen uint64, fromTimer bool) {
	m.mu.Lock()
	if !m.armed || (fromTimer && gen != m.generation) {
		m.mu.Unlock()
		return
	}
	m.disarmLocked()
	m.mu.Unlock()

	m.log.Info("Logging out", zap.String("cause", string(cause)))

	if cause != CauseSibling {
		m.tab.Set(MarkerKey, strconv.FormatInt(m.now().UnixNano(), 10)+":"+string(cause))
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.flowTimeout)
	defer cancel()
	m.flow(ctx, cause)
}
