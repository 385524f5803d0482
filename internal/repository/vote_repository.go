package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"coopvote/internal/domain"
	"coopvote/pkg/database"
)

// PostgresVoteRepository stores votes in Postgres. The (user_id, agenda_id)
// unique constraint is the authoritative double-vote guard.
type PostgresVoteRepository struct {
	db *database.PostgresDB
}

func NewVoteRepository(db *database.PostgresDB) *PostgresVoteRepository {
	return &PostgresVoteRepository{db: db}
}

// Record inserts the vote and bumps the agenda counters in one transaction.
// The counter update runs first so the agenda row stays locked until commit.
func (r *PostgresVoteRepository) Record(ctx context.Context, vote *domain.Vote, allowed []domain.AgendaStatus) (*domain.Vote, *domain.Agenda, error) {
	stored := *vote
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin vote transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	agenda, err := incrementVotes(ctx, tx, stored.AgendaID, stored.Choice, allowed)
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		return nil, nil, missOrConflict(ctx, r.db.Pool, stored.AgendaID)
	}
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to increment votes: %w", err)
	}

	query := `
		INSERT INTO votes (id, agenda_id, user_id, choice)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err = tx.QueryRow(ctx, query, stored.ID, stored.AgendaID, stored.UserID, string(stored.Choice)).
		Scan(&stored.CreatedAt)
	if database.IsUniqueViolation(err, VoteUniqueConstraint) {
		return nil, nil, domain.NewDuplicateVote(stored.UserID, stored.AgendaID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert vote: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit vote: %w", err)
	}
	return &stored, agenda, nil
}

// FindByUserAndAgenda gets a user's vote on an agenda
func (r *PostgresVoteRepository) FindByUserAndAgenda(ctx context.Context, userID, agendaID string) (*domain.Vote, error) {
	query := `
		SELECT id, agenda_id, user_id, choice, created_at
		FROM votes
		WHERE user_id = $1 AND agenda_id = $2`

	vote, err := scanVote(r.db.Pool.QueryRow(ctx, query, userID, agendaID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}
	return vote, nil
}

// ListByAgenda gets one page of the votes cast on an agenda, oldest first
func (r *PostgresVoteRepository) ListByAgenda(ctx context.Context, agendaID string, page domain.Page) ([]*domain.Vote, int, error) {
	return r.list(ctx, "agenda_id", agendaID, "created_at, id", page)
}

// ListByUser gets one page of a member's votes, newest first
func (r *PostgresVoteRepository) ListByUser(ctx context.Context, userID string, page domain.Page) ([]*domain.Vote, int, error) {
	return r.list(ctx, "user_id", userID, "created_at DESC, id", page)
}

// list pages over votes matching column = value. column and order are never user input.
func (r *PostgresVoteRepository) list(ctx context.Context, column, value, order string, page domain.Page) ([]*domain.Vote, int, error) {
	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM votes WHERE %s = $1`, column)
	if err := r.db.Pool.QueryRow(ctx, countQuery, value).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count votes: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, agenda_id, user_id, choice, created_at
		FROM votes
		WHERE %s = $1
		ORDER BY %s
		LIMIT $2 OFFSET $3`, column, order)

	rows, err := r.db.Pool.Query(ctx, query, value, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	votes := make([]*domain.Vote, 0, page.Limit)
	for rows.Next() {
		vote, err := scanVote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate votes: %w", err)
	}
	return votes, total, nil
}

func scanVote(row pgx.Row) (*domain.Vote, error) {
	var (
		v      domain.Vote
		choice string
	)
	if err := row.Scan(&v.ID, &v.AgendaID, &v.UserID, &choice, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Choice = domain.VoteChoice(choice)
	return &v, nil
}
