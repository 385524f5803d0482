// Package timer schedules session expiry callbacks keyed by agenda id.
//
// Timers live in process memory only. A restarted process loses them, so callers
// must reconcile expired sessions from the store (see service.Reconciler).
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"coopvote/pkg/logger"
	"coopvote/pkg/metrics"
)

// FireFunc is invoked when a session window elapses
type FireFunc func(ctx context.Context, agendaID string)

type entry struct {
	timer clockwork.Timer
	due   time.Time
}

// SessionTimer keeps at most one pending expiry per agenda
type SessionTimer struct {
	clock  clockwork.Clock
	fire   FireFunc
	log    *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*entry
	stopped bool
	wg      sync.WaitGroup
}

// New creates a session timer. fire runs on its own goroutine with a context
// that is cancelled by Stop.
func New(clock clockwork.Clock, fire FireFunc, log *logger.Logger) *SessionTimer {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionTimer{
		clock:   clock,
		fire:    fire,
		log:     log.Named("session_timer"),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*entry),
	}
}

// Schedule arms a timer that fires after d. An existing timer for the same
// agenda is replaced. Non-positive durations fire immediately.
func (t *SessionTimer) Schedule(agendaID string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		t.log.WithAgenda(agendaID).Warn("Timer stopped, schedule ignored")
		return
	}

	t.cancelLocked(agendaID)

	if d < 0 {
		d = 0
	}
	e := &entry{due: t.clock.Now().Add(d)}
	t.wg.Add(1)
	e.timer = t.clock.AfterFunc(d, func() {
		defer t.wg.Done()
		if !t.release(agendaID, e) {
			return
		}
		t.log.WithAgenda(agendaID).Info("Session window elapsed")
		t.fire(t.ctx, agendaID)
	})
	t.pending[agendaID] = e
	metrics.PendingTimers.Set(float64(len(t.pending)))

	t.log.WithAgenda(agendaID).WithField("fires_in", d.String()).Debug("Session timer scheduled")
}

// Cancel disarms the pending timer of an agenda. It reports whether one was pending.
func (t *SessionTimer) Cancel(agendaID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelLocked(agendaID)
}

// Due returns when the pending timer of an agenda fires
func (t *SessionTimer) Due(agendaID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.pending[agendaID]
	if !ok {
		return time.Time{}, false
	}
	return e.due, true
}

// Pending returns the number of armed timers
func (t *SessionTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stop disarms every pending timer and waits for callbacks already running,
// bounded by ctx.
func (t *SessionTimer) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	for id := range t.pending {
		t.cancelLocked(id)
	}
	t.mu.Unlock()

	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.log.Info("Session timer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release removes e from the pending set if it is still the current entry
func (t *SessionTimer) release(agendaID string, e *entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[agendaID] != e {
		return false
	}
	delete(t.pending, agendaID)
	metrics.PendingTimers.Set(float64(len(t.pending)))
	return true
}

func (t *SessionTimer) cancelLocked(agendaID string) bool {
	e, ok := t.pending[agendaID]
	if !ok {
		return false
	}
	delete(t.pending, agendaID)
	metrics.PendingTimers.Set(float64(len(t.pending)))
	if e.timer.Stop() {
		t.wg.Done()
	}
	return true
}
