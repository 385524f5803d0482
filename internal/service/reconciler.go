package service

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"coopvote/internal/domain"
	"coopvote/internal/repository"
	"coopvote/pkg/logger"
	"coopvote/pkg/metrics"
)

// Reconciler finalizes IN_PROGRESS agendas whose session ended while no timer
// was armed, e.g. after a restart. It also re-arms timers on startup.
type Reconciler struct {
	voting   *VotingService
	agendas  repository.AgendaRepository
	clock    clockwork.Clock
	interval time.Duration
	logger   *logger.Logger

	mu        sync.Mutex
	isRunning bool
	stop      chan struct{}
	done      chan struct{}
}

// NewReconciler creates a reconciler sweeping every interval
func NewReconciler(voting *VotingService, interval time.Duration, log *logger.Logger) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		voting:   voting,
		agendas:  voting.agendas,
		clock:    voting.clock,
		interval: interval,
		logger:   log.Named("reconciler"),
	}
}

// Start restores timers for open sessions and begins periodic sweeps
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return nil
	}

	r.logger.Info("Starting session reconciler...")

	if _, _, err := r.RestoreTimers(ctx); err != nil {
		return err
	}

	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	ticker := r.clock.NewTicker(r.interval)
	go r.routine(ticker, r.stop, r.done)

	r.isRunning = true
	r.logger.WithField("interval", r.interval.String()).Info("Session reconciler started")
	return nil
}

// Stop ends periodic sweeps and waits for an in-flight sweep, bounded by ctx
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	r.logger.Info("Stopping session reconciler...")

	select {
	case <-done:
		r.logger.Info("Session reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep finalizes every IN_PROGRESS agenda whose newest session has ended.
// It returns the number of agendas finalized.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	agendas, err := r.agendas.ListByStatus(ctx, domain.StatusInProgress)
	if err != nil {
		return 0, domain.NewInternal("failed to list in-progress agendas", err)
	}

	finalized := 0
	now := r.clock.Now()
	for _, a := range agendas {
		current, err := repository.CurrentSession(ctx, r.agendas, a.ID)
		if err != nil {
			r.logger.WithAgenda(a.ID).WithError(err).Warn("Failed to load session during sweep")
			continue
		}
		// An IN_PROGRESS agenda without a session can never expire on its own.
		if current != nil && !current.Expired(now) {
			continue
		}
		if _, err := r.voting.Finalize(ctx, a.ID, TriggerReconcile); err != nil {
			r.logger.WithAgenda(a.ID).WithError(err).Error("Failed to finalize expired agenda")
			continue
		}
		finalized++
	}

	if finalized > 0 {
		r.logger.WithField("finalized", finalized).Info("Expired sessions reconciled")
	}
	return finalized, nil
}

// RestoreTimers arms a timer for the remaining window of every open session
// and finalizes those that already ended.
func (r *Reconciler) RestoreTimers(ctx context.Context) (restored, finalized int, err error) {
	agendas, err := r.agendas.ListByStatus(ctx, domain.StatusInProgress)
	if err != nil {
		return 0, 0, domain.NewInternal("failed to list in-progress agendas", err)
	}

	now := r.clock.Now()
	for _, a := range agendas {
		current, err := repository.CurrentSession(ctx, r.agendas, a.ID)
		if err != nil {
			r.logger.WithAgenda(a.ID).WithError(err).Warn("Failed to load session during restore")
			continue
		}
		if current != nil && !current.Expired(now) {
			r.voting.timer.Schedule(a.ID, current.EndTime.Sub(now))
			restored++
			continue
		}
		if _, err := r.voting.Finalize(ctx, a.ID, TriggerReconcile); err != nil {
			r.logger.WithAgenda(a.ID).WithError(err).Error("Failed to finalize agenda during restore")
			continue
		}
		finalized++
	}

	r.logger.WithFields(map[string]interface{}{
		"restored":  restored,
		"finalized": finalized,
	}).Info("Session timers restored")
	return restored, finalized, nil
}

func (r *Reconciler) routine(ticker clockwork.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.WithError(err).Error("Reconcile sweep failed")
			}
			cancel()
		case <-stop:
			r.logger.Debug("Reconcile routine stopped")
			return
		}
	}
}
