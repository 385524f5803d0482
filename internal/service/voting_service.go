package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"coopvote/internal/domain"
	"coopvote/internal/repository"
	"coopvote/internal/tally"
	"coopvote/internal/timer"
	"coopvote/pkg/logger"
	"coopvote/pkg/metrics"
	"coopvote/pkg/redis"
)

// FinalizeTrigger names what caused a finalization, for logs and metrics
type FinalizeTrigger string

const (
	TriggerTimer     FinalizeTrigger = "timer"
	TriggerReconcile FinalizeTrigger = "reconcile"
	TriggerRead      FinalizeTrigger = "read"
	TriggerManual    FinalizeTrigger = "manual"
)

const (
	startExplicit  = "explicit"
	startFirstVote = "first_vote"

	maxTitleLength = 255
)

// Options tunes session durations and the start lock
type Options struct {
	DefaultSessionMinutes int
	MaxSessionMinutes     int
	IdempotencyTTL        time.Duration
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		DefaultSessionMinutes: 5,
		MaxSessionMinutes:     1440,
		IdempotencyTTL:        redis.TTLStartLock,
	}
}

// VotingService owns the agenda state machine. Store interfaces stay the
// source of truth; the service holds no agenda state between calls.
type VotingService struct {
	agendas repository.AgendaRepository
	votes   repository.VoteRepository
	cache   *CacheService
	timer   *timer.SessionTimer
	clock   clockwork.Clock
	logger  *logger.Logger
	opts    Options
	locks   *keyedMutex
}

// NewVotingService creates a new voting service and its session timer
func NewVotingService(repos *repository.Repositories, cache *CacheService, clock clockwork.Clock, log *logger.Logger, opts Options) *VotingService {
	if opts.DefaultSessionMinutes <= 0 {
		opts.DefaultSessionMinutes = DefaultOptions().DefaultSessionMinutes
	}
	if opts.MaxSessionMinutes <= 0 {
		opts.MaxSessionMinutes = DefaultOptions().MaxSessionMinutes
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = DefaultOptions().IdempotencyTTL
	}

	s := &VotingService{
		agendas: repos.Agenda,
		votes:   repos.Vote,
		cache:   cache,
		clock:   clock,
		logger:  log.Named("voting"),
		opts:    opts,
		locks:   newKeyedMutex(),
	}
	s.timer = timer.New(clock, s.onSessionElapsed, log)
	return s
}

// Timer exposes the session timer so the server can stop it on shutdown
func (s *VotingService) Timer() *timer.SessionTimer {
	return s.timer
}

// CreateAgenda persists a new agenda in OPEN, or DRAFT when requested
func (s *VotingService) CreateAgenda(ctx context.Context, req *domain.CreateAgendaRequest) (*domain.Agenda, error) {
	if req == nil {
		return nil, domain.NewValidation("request body is required")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, s.reject("create_agenda", domain.NewValidation("title is required"))
	}
	if len(title) > maxTitleLength {
		return nil, s.reject("create_agenda", domain.NewValidation("title must be at most %d characters", maxTitleLength))
	}

	category := domain.CategoryOther
	if req.Category != "" {
		c, ok := domain.ParseAgendaCategory(string(req.Category))
		if !ok {
			return nil, s.reject("create_agenda", domain.NewValidation("unknown category %q", req.Category))
		}
		category = c
	}

	status := domain.StatusOpen
	if req.Draft {
		status = domain.StatusDraft
	}

	agenda := &domain.Agenda{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Category:    category,
		Status:      status,
		Result:      domain.ResultUnvoted,
		IsActive:    true,
	}
	if err := s.agendas.Create(ctx, agenda); err != nil {
		return nil, domain.NewInternal("failed to create agenda", err)
	}

	s.logger.WithAgenda(agenda.ID).WithField("status", agenda.Status).Info("Agenda created")
	return agenda, nil
}

// GetAgenda returns an agenda with the bounds of its newest session
func (s *VotingService) GetAgenda(ctx context.Context, agendaID string) (*domain.AgendaSnapshot, error) {
	agenda, current, err := s.load(ctx, agendaID)
	if err != nil {
		return nil, err
	}
	return domain.NewAgendaSnapshot(agenda, current), nil
}

// ListAgendas returns one page of agendas in status, or of every agenda when status is empty
func (s *VotingService) ListAgendas(ctx context.Context, status domain.AgendaStatus, page domain.Page) ([]*domain.Agenda, int, error) {
	if status != "" {
		parsed, ok := domain.ParseAgendaStatus(string(status))
		if !ok {
			return nil, 0, domain.NewValidation("unknown status %q", status)
		}
		status = parsed
	}
	page, err := page.Normalize()
	if err != nil {
		return nil, 0, err
	}

	agendas, total, err := s.agendas.List(ctx, status, page)
	if err != nil {
		return nil, 0, domain.NewInternal("failed to list agendas", err)
	}
	return agendas, total, nil
}

// ListSessions returns the session history of an agenda, newest first
func (s *VotingService) ListSessions(ctx context.Context, agendaID string) ([]*domain.Session, error) {
	agenda, err := s.agendas.FindByID(ctx, agendaID)
	if err != nil {
		return nil, domain.NewInternal("failed to load agenda", err)
	}
	if agenda == nil {
		return nil, domain.NewNotFound(agendaID)
	}
	sessions, err := s.agendas.ListSessions(ctx, agendaID)
	if err != nil {
		return nil, domain.NewInternal("failed to list sessions", err)
	}
	return sessions, nil
}

// ListVotes returns one page of the votes cast on an agenda, oldest first
func (s *VotingService) ListVotes(ctx context.Context, agendaID string, page domain.Page) ([]*domain.Vote, int, error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, 0, err
	}
	agenda, err := s.agendas.FindByID(ctx, agendaID)
	if err != nil {
		return nil, 0, domain.NewInternal("failed to load agenda", err)
	}
	if agenda == nil {
		return nil, 0, domain.NewNotFound(agendaID)
	}

	votes, total, err := s.votes.ListByAgenda(ctx, agendaID, page)
	if err != nil {
		return nil, 0, domain.NewInternal("failed to list votes", err)
	}
	return votes, total, nil
}

// ListUserVotes returns one page of a member's votes, newest first
func (s *VotingService) ListUserVotes(ctx context.Context, userID string, page domain.Page) ([]*domain.Vote, int, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, 0, domain.NewValidation("userId is required")
	}
	page, err := page.Normalize()
	if err != nil {
		return nil, 0, err
	}

	votes, total, err := s.votes.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, 0, domain.NewInternal("failed to list votes", err)
	}
	return votes, total, nil
}

// StartSession opens a voting window of durationMinutes on an OPEN or DRAFT agenda
func (s *VotingService) StartSession(ctx context.Context, agendaID string, durationMinutes int) (*domain.SessionStart, error) {
	if strings.TrimSpace(agendaID) == "" {
		return nil, s.reject("start_session", domain.NewValidation("agendaId is required"))
	}
	if durationMinutes <= 0 {
		return nil, s.reject("start_session", domain.NewValidation("durationInMinutes must be greater than 0"))
	}
	if durationMinutes > s.opts.MaxSessionMinutes {
		return nil, s.reject("start_session", domain.NewValidation("durationInMinutes must be at most %d", s.opts.MaxSessionMinutes))
	}

	if !s.cache.TryStartLock(ctx, agendaID, s.opts.IdempotencyTTL) {
		return nil, s.reject("start_session", domain.NewInvalidState("a session start for agenda %s is already in progress", agendaID))
	}

	unlock := s.locks.Lock(agendaID)
	defer unlock()

	agenda, err := s.findLocked(ctx, agendaID)
	if err != nil {
		s.cache.ReleaseStartLock(ctx, agendaID)
		return nil, s.reject("start_session", err)
	}

	started, err := s.startLocked(ctx, agenda, durationMinutes, startExplicit)
	if err != nil {
		s.cache.ReleaseStartLock(ctx, agendaID)
		return nil, s.reject("start_session", err)
	}
	return started, nil
}

// CastVote records a vote. A vote on an OPEN agenda first starts a session of
// the default duration.
func (s *VotingService) CastVote(ctx context.Context, agendaID, userID string, choice domain.VoteChoice) (*domain.CastVoteResponse, error) {
	if strings.TrimSpace(agendaID) == "" {
		return nil, s.reject("cast_vote", domain.NewValidation("agendaId is required"))
	}
	if strings.TrimSpace(userID) == "" {
		return nil, s.reject("cast_vote", domain.NewValidation("userId is required"))
	}
	if !choice.Valid() {
		return nil, s.reject("cast_vote", domain.NewValidation("vote must be YES or NO"))
	}

	if s.cache.HasVoted(ctx, agendaID, userID) {
		return nil, s.reject("cast_vote", domain.NewDuplicateVote(userID, agendaID))
	}

	unlock := s.locks.Lock(agendaID)
	defer unlock()

	agenda, err := s.findLocked(ctx, agendaID)
	if err != nil {
		return nil, s.reject("cast_vote", err)
	}
	if !agenda.Status.AcceptsVotes() {
		return nil, s.reject("cast_vote", domain.NewInvalidState("agenda %s is %s and does not accept votes", agendaID, agenda.Status))
	}

	existing, err := s.votes.FindByUserAndAgenda(ctx, userID, agendaID)
	if err != nil {
		return nil, domain.NewInternal("failed to check existing vote", err)
	}
	if existing != nil {
		s.cache.MarkVoted(ctx, agendaID, userID, existing.Choice)
		return nil, s.reject("cast_vote", domain.NewDuplicateVote(userID, agendaID))
	}

	if agenda.Status == domain.StatusOpen {
		if _, err := s.startLocked(ctx, agenda, s.opts.DefaultSessionMinutes, startFirstVote); err != nil {
			return nil, s.reject("cast_vote", err)
		}
	}

	vote, updated, err := s.votes.Record(ctx,
		&domain.Vote{AgendaID: agendaID, UserID: userID, Choice: choice},
		[]domain.AgendaStatus{domain.StatusInProgress})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateVote):
			s.cache.MarkVoted(ctx, agendaID, userID, choice)
			return nil, s.reject("cast_vote", err)
		case errors.Is(err, domain.ErrStatusConflict):
			// Another process finalized between our read and the write.
			s.logger.WithAgenda(agendaID).Warn("Agenda left IN_PROGRESS while recording a vote")
			return nil, s.reject("cast_vote", domain.NewInvalidState("agenda %s stopped accepting votes", agendaID))
		}
		return nil, s.reject("cast_vote", storeErr("failed to record vote", err))
	}

	s.cache.MarkVoted(ctx, agendaID, userID, choice)
	s.cache.InvalidateTally(ctx, agendaID)
	metrics.VotesCast.WithLabelValues(string(choice)).Inc()

	s.logger.WithAgenda(agendaID).WithFields(map[string]interface{}{
		"choice":      choice,
		"total_votes": updated.TotalVotes,
	}).Info("Vote recorded")

	return &domain.CastVoteResponse{Vote: vote, Tally: tally.Project(updated)}, nil
}

// Finalize moves an IN_PROGRESS agenda to FINISHED with its computed result.
// A FINISHED or CANCELLED agenda is returned unchanged.
func (s *VotingService) Finalize(ctx context.Context, agendaID string, trigger FinalizeTrigger) (*domain.Agenda, error) {
	unlock := s.locks.Lock(agendaID)
	defer unlock()

	agenda, err := s.agendas.FindByID(ctx, agendaID)
	if err != nil {
		return nil, domain.NewInternal("failed to load agenda", err)
	}
	if agenda == nil {
		return nil, s.reject("finalize", domain.NewNotFound(agendaID))
	}
	return s.finalizeLocked(ctx, agenda, trigger)
}

// QueryTally returns the counters, percentages and result of an agenda.
// Misses are filled under the agenda lock so a concurrent vote cannot be
// overwritten by an older projection.
func (s *VotingService) QueryTally(ctx context.Context, agendaID string) (*domain.Tally, error) {
	if t, ok := s.cache.GetTally(ctx, agendaID, s.clock.Now()); ok {
		return t, nil
	}

	unlock := s.locks.Lock(agendaID)
	defer unlock()

	agenda, current, err := s.loadLocked(ctx, agendaID)
	if err != nil {
		return nil, err
	}

	t := tally.Project(agenda)
	var endsAt *time.Time
	if agenda.Status == domain.StatusInProgress && current != nil {
		end := current.EndTime
		endsAt = &end
	}
	s.cache.SetTally(ctx, t, endsAt)
	return t, nil
}

// load reads an agenda and its newest session, finalizing it first when the
// session already ended without a timer firing
func (s *VotingService) load(ctx context.Context, agendaID string) (*domain.Agenda, *domain.Session, error) {
	agenda, err := s.agendas.FindByID(ctx, agendaID)
	if err != nil {
		return nil, nil, domain.NewInternal("failed to load agenda", err)
	}
	if agenda == nil {
		return nil, nil, domain.NewNotFound(agendaID)
	}

	current, err := repository.CurrentSession(ctx, s.agendas, agendaID)
	if err != nil {
		return nil, nil, domain.NewInternal("failed to load sessions", err)
	}

	if s.overdue(agenda, current) {
		agenda, err = s.Finalize(ctx, agendaID, TriggerRead)
		if err != nil {
			return nil, nil, err
		}
	}
	return agenda, current, nil
}

// findLocked is load for callers already holding the agenda lock
func (s *VotingService) findLocked(ctx context.Context, agendaID string) (*domain.Agenda, error) {
	agenda, _, err := s.loadLocked(ctx, agendaID)
	return agenda, err
}

// loadLocked reads an agenda and, while IN_PROGRESS, its newest session,
// finalizing it when that session already ended
func (s *VotingService) loadLocked(ctx context.Context, agendaID string) (*domain.Agenda, *domain.Session, error) {
	agenda, err := s.agendas.FindByID(ctx, agendaID)
	if err != nil {
		return nil, nil, domain.NewInternal("failed to load agenda", err)
	}
	if agenda == nil {
		return nil, nil, domain.NewNotFound(agendaID)
	}
	if agenda.Status != domain.StatusInProgress {
		return agenda, nil, nil
	}

	current, err := repository.CurrentSession(ctx, s.agendas, agendaID)
	if err != nil {
		return nil, nil, domain.NewInternal("failed to load sessions", err)
	}
	if s.overdue(agenda, current) {
		finished, err := s.finalizeLocked(ctx, agenda, TriggerRead)
		return finished, current, err
	}
	return agenda, current, nil
}

func (s *VotingService) overdue(agenda *domain.Agenda, current *domain.Session) bool {
	return agenda.Status == domain.StatusInProgress && current != nil && current.Expired(s.clock.Now())
}

func (s *VotingService) startLocked(ctx context.Context, agenda *domain.Agenda, minutes int, trigger string) (*domain.SessionStart, error) {
	if !agenda.Status.CanStartSession() {
		return nil, domain.NewInvalidState("cannot start a session on agenda %s in status %s", agenda.ID, agenda.Status)
	}

	previous := agenda.Status
	inProgress := domain.StatusInProgress
	updated, err := s.agendas.Update(ctx, agenda.ID, domain.AgendaUpdate{
		Status:       &inProgress,
		ExpectStatus: []domain.AgendaStatus{domain.StatusOpen, domain.StatusDraft},
	})
	if err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			return nil, domain.NewInvalidState("agenda %s changed status while starting a session", agenda.ID)
		}
		return nil, storeErr("failed to start session", err)
	}

	duration := time.Duration(minutes) * time.Minute
	now := s.clock.Now()
	session, err := s.agendas.CreateSession(ctx, agenda.ID, now, now.Add(duration))
	if err != nil {
		if _, rbErr := s.agendas.Update(ctx, agenda.ID, domain.AgendaUpdate{
			Status:       &previous,
			ExpectStatus: []domain.AgendaStatus{domain.StatusInProgress},
		}); rbErr != nil {
			s.logger.WithAgenda(agenda.ID).WithError(rbErr).Error("Failed to roll back status after session insert failure")
		}
		return nil, domain.NewInternal("failed to create session", err)
	}

	s.timer.Schedule(agenda.ID, duration)
	s.cache.InvalidateTally(ctx, agenda.ID)
	metrics.SessionsStarted.WithLabelValues(trigger).Inc()

	*agenda = *updated
	s.logger.WithAgenda(agenda.ID).WithFields(map[string]interface{}{
		"trigger":    trigger,
		"minutes":    minutes,
		"session_id": session.ID,
		"ends_at":    session.EndTime,
	}).Info("Voting session started")

	return &domain.SessionStart{
		Agenda:  domain.NewAgendaSnapshot(updated, session),
		Session: session,
	}, nil
}

func (s *VotingService) finalizeLocked(ctx context.Context, agenda *domain.Agenda, trigger FinalizeTrigger) (*domain.Agenda, error) {
	switch agenda.Status {
	case domain.StatusFinished, domain.StatusCancelled:
		return agenda, nil
	case domain.StatusInProgress:
	case domain.StatusDraft, domain.StatusOpen:
		return nil, domain.NewInvalidState("agenda %s is %s and has no session to finalize", agenda.ID, agenda.Status)
	default:
		return nil, domain.NewInvalidState("agenda %s has unknown status %s", agenda.ID, agenda.Status)
	}

	result := tally.Outcome(agenda.YesVotes, agenda.NoVotes, agenda.TotalVotes)
	finished := domain.StatusFinished
	inactive := false
	updated, err := s.agendas.Update(ctx, agenda.ID, domain.AgendaUpdate{
		Status:       &finished,
		Result:       &result,
		IsActive:     &inactive,
		ExpectStatus: []domain.AgendaStatus{domain.StatusInProgress},
	})
	if err != nil {
		if !errors.Is(err, domain.ErrStatusConflict) {
			return nil, storeErr("failed to finalize agenda", err)
		}
		// Finalized elsewhere between read and write; report the stored state.
		current, findErr := s.agendas.FindByID(ctx, agenda.ID)
		if findErr != nil || current == nil {
			return nil, domain.NewInternal("failed to reload agenda after finalize conflict", findErr)
		}
		return current, nil
	}

	if trigger != TriggerTimer {
		s.timer.Cancel(agenda.ID)
	}
	s.cache.InvalidateTally(ctx, agenda.ID)
	metrics.AgendasFinalized.WithLabelValues(string(updated.Result), string(trigger)).Inc()

	s.logger.WithAgenda(agenda.ID).WithFields(map[string]interface{}{
		"trigger":   trigger,
		"result":    updated.Result,
		"yes_votes": updated.YesVotes,
		"no_votes":  updated.NoVotes,
	}).Info("Agenda finalized")

	return updated, nil
}

// onSessionElapsed is the session timer callback
func (s *VotingService) onSessionElapsed(ctx context.Context, agendaID string) {
	if _, err := s.Finalize(ctx, agendaID, TriggerTimer); err != nil {
		log := s.logger.WithAgenda(agendaID).WithError(err)
		if domain.KindOf(err) == domain.KindInternal {
			log.Error("Timed finalization failed, reconciler will retry")
			return
		}
		log.Info("Timed finalization skipped")
	}
}

// reject counts a refused operation and passes err through
func (s *VotingService) reject(operation string, err error) error {
	if err != nil {
		metrics.OperationsRejected.WithLabelValues(operation, string(domain.KindOf(err))).Inc()
	}
	return err
}

// storeErr keeps domain errors from the store intact and wraps everything else
func storeErr(message string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.NewInternal(message, err)
}

// keyedMutex serializes work per agenda id inside one process
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex of key and returns its release func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
