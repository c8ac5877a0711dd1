package inactivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type flowRecorder struct {
	mu     sync.Mutex
	causes []Cause
}

func (r *flowRecorder) flow(_ context.Context, cause Cause) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.causes = append(r.causes, cause)
}

func (r *flowRecorder) snapshot() []Cause {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Cause(nil), r.causes...)
}

func TestMonitor_IdleTimeoutRunsFlowOnce(t *testing.T) {
	rec := &flowRecorder{}
	m := NewMonitor(NewSharedStorage().Tab(), 30*time.Millisecond, rec.flow, zap.NewNop())
	m.Start()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Cause{CauseIdle}, rec.snapshot())
	assert.False(t, m.Armed())

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
}

func TestMonitor_ActivityPostponesDeadline(t *testing.T) {
	rec := &flowRecorder{}
	m := NewMonitor(NewSharedStorage().Tab(), 80*time.Millisecond, rec.flow, zap.NewNop())
	m.Start()

	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		m.Activity()
	}
	assert.Empty(t, rec.snapshot())
	assert.True(t, m.Armed())

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestMonitor_StopDisarmsWithoutFlow(t *testing.T) {
	rec := &flowRecorder{}
	m := NewMonitor(NewSharedStorage().Tab(), 20*time.Millisecond, rec.flow, zap.NewNop())
	m.Start()
	m.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
	assert.False(t, m.Armed())

	m.Activity()
	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestMonitor_LogoutPropagatesToSiblings(t *testing.T) {
	storage := NewSharedStorage()
	first, second, third := &flowRecorder{}, &flowRecorder{}, &flowRecorder{}

	a := NewMonitor(storage.Tab(), time.Minute, first.flow, zap.NewNop())
	b := NewMonitor(storage.Tab(), time.Minute, second.flow, zap.NewNop())
	c := NewMonitor(storage.Tab(), time.Minute, third.flow, zap.NewNop())
	a.Start()
	b.Start()
	c.Start()

	a.Logout()

	assert.Equal(t, []Cause{CauseManual}, first.snapshot())
	require.Eventually(t, func() bool {
		return len(second.snapshot()) == 1 && len(third.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Cause{CauseSibling}, second.snapshot())
	assert.Equal(t, []Cause{CauseSibling}, third.snapshot())

	// siblings do not echo the marker back
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, first.snapshot(), 1)
}

func TestMonitor_IdleInOneTabLogsOutOthers(t *testing.T) {
	storage := NewSharedStorage()
	idle, busy := &flowRecorder{}, &flowRecorder{}

	a := NewMonitor(storage.Tab(), 30*time.Millisecond, idle.flow, zap.NewNop())
	b := NewMonitor(storage.Tab(), time.Minute, busy.flow, zap.NewNop())
	a.Start()
	b.Start()

	require.Eventually(t, func() bool { return len(busy.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Cause{CauseIdle}, idle.snapshot())
	assert.Equal(t, []Cause{CauseSibling}, busy.snapshot())

	_, ok := storage.Tab().Get(MarkerKey)
	assert.True(t, ok)
}

func TestMonitor_UnarmedTabIgnoresSibling(t *testing.T) {
	storage := NewSharedStorage()
	rec := &flowRecorder{}

	m := NewMonitor(storage.Tab(), time.Minute, rec.flow, zap.NewNop())
	m.Start()
	m.Stop()

	storage.Tab().Set(MarkerKey, "x")
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestMonitor_RearmAfterLogout(t *testing.T) {
	rec := &flowRecorder{}
	m := NewMonitor(NewSharedStorage().Tab(), time.Minute, rec.flow, zap.NewNop())

	m.Start()
	m.Logout()
	m.Logout()
	assert.Len(t, rec.snapshot(), 1)

	m.Start()
	assert.True(t, m.Armed())
	m.Logout()
	assert.Len(t, rec.snapshot(), 2)
}

func TestSharedStorage_SetNotifiesOtherTabsOnly(t *testing.T) {
	storage := NewSharedStorage()
	writer, reader := storage.Tab(), storage.Tab()

	var mu sync.Mutex
	var seenByWriter, seenByReader []string
	writer.Subscribe(func(k, v string) { mu.Lock(); seenByWriter = append(seenByWriter, v); mu.Unlock() })
	unsubscribe := reader.Subscribe(func(k, v string) { mu.Lock(); seenByReader = append(seenByReader, v); mu.Unlock() })

	writer.Set("k", "1")
	writer.Set("k", "1")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seenByReader) == 1
	}, time.Second, 5*time.Millisecond)

	v, ok := reader.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	unsubscribe()
	writer.Set("k", "2")
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, seenByWriter)
	assert.Equal(t, []string{"1"}, seenByReader)
}
