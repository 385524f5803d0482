package repository

import (
	"context"
	"time"

	"coopvote/internal/domain"
)

// AgendaRepository is the store of agenda records and their sessions
type AgendaRepository interface {
	// Create persists a new agenda, assigning an ID when empty
	Create(ctx context.Context, agenda *domain.Agenda) error

	// FindByID returns the agenda or nil when it does not exist
	FindByID(ctx context.Context, id string) (*domain.Agenda, error)

	// Update applies a partial write. With ExpectStatus set, the write is
	// conditional and fails with domain.ErrStatusConflict when the guard does not hold.
	Update(ctx context.Context, id string, update domain.AgendaUpdate) (*domain.Agenda, error)

	// ListByStatus returns agendas in the given status, oldest first
	ListByStatus(ctx context.Context, status domain.AgendaStatus) ([]*domain.Agenda, error)

	// List returns one page of agendas, newest first, and the total matching.
	// An empty status matches every agenda.
	List(ctx context.Context, status domain.AgendaStatus, page domain.Page) ([]*domain.Agenda, int, error)

	// CreateSession appends a voting window to an agenda
	CreateSession(ctx context.Context, agendaID string, start, end time.Time) (*domain.Session, error)

	// ListSessions returns the sessions of an agenda, newest first
	ListSessions(ctx context.Context, agendaID string) ([]*domain.Session, error)
}

// VoteRepository is the store of vote records
type VoteRepository interface {
	// FindByUserAndAgenda returns the user's vote on the agenda or nil
	FindByUserAndAgenda(ctx context.Context, userID, agendaID string) (*domain.Vote, error)

	// Record stores a vote and bumps the agenda counters as one unit: either both
	// writes land or neither does. The agenda status must be one of allowed,
	// otherwise domain.ErrStatusConflict. A second vote for the same (user, agenda)
	// fails with domain.ErrDuplicateVote.
	Record(ctx context.Context, vote *domain.Vote, allowed []domain.AgendaStatus) (*domain.Vote, *domain.Agenda, error)

	// ListByAgenda returns one page of an agenda's votes, oldest first, and the total
	ListByAgenda(ctx context.Context, agendaID string, page domain.Page) ([]*domain.Vote, int, error)

	// ListByUser returns one page of a member's votes, newest first, and the total
	ListByUser(ctx context.Context, userID string, page domain.Page) ([]*domain.Vote, int, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Agenda AgendaRepository
	Vote   VoteRepository
}

// CurrentSession returns the newest session of an agenda, or nil if none was started
func CurrentSession(ctx context.Context, repo AgendaRepository, agendaID string) (*domain.Session, error) {
	sessions, err := repo.ListSessions(ctx, agendaID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}
