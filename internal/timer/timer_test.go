package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopvote/pkg/logger"
)

type recorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *recorder) fire(_ context.Context, agendaID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, agendaID)
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func newTestTimer(t *testing.T) (*SessionTimer, *clockwork.FakeClock, *recorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	st := New(clock, rec.fire, logger.NewNop())
	t.Cleanup(func() { _ = st.Stop(context.Background()) })
	return st, clock, rec
}

func TestSessionTimer_FiresAfterDuration(t *testing.T) {
	st, clock, rec := newTestTimer(t)

	st.Schedule("a1", time.Minute)
	assert.Equal(t, 1, st.Pending())

	due, ok := st.Due("a1")
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(time.Minute), due)

	clock.Advance(59 * time.Second)
	assert.Empty(t, rec.calls())

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return len(rec.calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a1"}, rec.calls())
	assert.Equal(t, 0, st.Pending())
}

func TestSessionTimer_RescheduleReplacesPending(t *testing.T) {
	st, clock, rec := newTestTimer(t)

	st.Schedule("a1", time.Minute)
	st.Schedule("a1", 3*time.Minute)
	assert.Equal(t, 1, st.Pending())

	clock.Advance(2 * time.Minute)
	assert.Never(t, func() bool { return len(rec.calls()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return len(rec.calls()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSessionTimer_Cancel(t *testing.T) {
	st, clock, rec := newTestTimer(t)

	st.Schedule("a1", time.Minute)
	st.Schedule("a2", time.Minute)

	assert.True(t, st.Cancel("a1"))
	assert.False(t, st.Cancel("a1"))
	assert.False(t, st.Cancel("unknown"))

	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return len(rec.calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a2"}, rec.calls())
}

func TestSessionTimer_StopDisarmsAndRejectsNewSchedules(t *testing.T) {
	st, clock, rec := newTestTimer(t)

	st.Schedule("a1", time.Minute)
	require.NoError(t, st.Stop(context.Background()))
	assert.Equal(t, 0, st.Pending())

	st.Schedule("a2", time.Minute)
	assert.Equal(t, 0, st.Pending())

	clock.Advance(2 * time.Minute)
	assert.Never(t, func() bool { return len(rec.calls()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	// second stop is a no-op
	require.NoError(t, st.Stop(context.Background()))
}

func TestSessionTimer_StopWaitsForRunningCallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	started := make(chan struct{})
	release := make(chan struct{})
	var cancelled bool

	st := New(clock, func(ctx context.Context, _ string) {
		close(started)
		select {
		case <-ctx.Done():
			cancelled = true
		case <-release:
		}
	}, logger.NewNop())

	st.Schedule("a1", time.Second)
	clock.Advance(time.Second)
	<-started

	require.NoError(t, st.Stop(context.Background()))
	assert.True(t, cancelled)
}

func TestSessionTimer_StopHonoursDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	started := make(chan struct{})
	block := make(chan struct{})
	defer close(block)

	st := New(clock, func(_ context.Context, _ string) {
		close(started)
		<-block
	}, logger.NewNop())

	st.Schedule("a1", time.Second)
	clock.Advance(time.Second)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, st.Stop(ctx), context.DeadlineExceeded)
}
