package service

import (
	"context"

	"coopvote/internal/domain"
)

// AuthService defines the interface for authentication operations
type AuthService interface {
	// ValidateToken validates a bearer JWT and returns its claims
	ValidateToken(ctx context.Context, token string) (*domain.AuthClaims, error)
}

// Voting defines the agenda lifecycle operations exposed to transports
type Voting interface {
	CreateAgenda(ctx context.Context, req *domain.CreateAgendaRequest) (*domain.Agenda, error)
	GetAgenda(ctx context.Context, agendaID string) (*domain.AgendaSnapshot, error)
	ListSessions(ctx context.Context, agendaID string) ([]*domain.Session, error)

	// ListAgendas returns one page of agendas, newest first, and the total.
	// An empty status lists every agenda.
	ListAgendas(ctx context.Context, status domain.AgendaStatus, page domain.Page) ([]*domain.Agenda, int, error)

	// ListVotes returns one page of the votes cast on an agenda and the total
	ListVotes(ctx context.Context, agendaID string, page domain.Page) ([]*domain.Vote, int, error)

	// ListUserVotes returns one page of a member's votes across agendas and the total
	ListUserVotes(ctx context.Context, userID string, page domain.Page) ([]*domain.Vote, int, error)

	// StartSession opens a timed voting window on an OPEN or DRAFT agenda
	StartSession(ctx context.Context, agendaID string, durationMinutes int) (*domain.SessionStart, error)

	// CastVote records one member's decision and updates the counters
	CastVote(ctx context.Context, agendaID, userID string, choice domain.VoteChoice) (*domain.CastVoteResponse, error)

	// Finalize closes the session and computes the permanent result. Finalizing a
	// FINISHED or CANCELLED agenda is a no-op.
	Finalize(ctx context.Context, agendaID string, trigger FinalizeTrigger) (*domain.Agenda, error)

	// QueryTally returns the current projection of an agenda's counters
	QueryTally(ctx context.Context, agendaID string) (*domain.Tally, error)
}

// Lifecycle is implemented by background components started with the server
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Services aggregates all service interfaces
type Services struct {
	Auth       AuthService
	Voting     Voting
	Reconciler Lifecycle
}
