package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"coopvote/internal/domain"
	"coopvote/pkg/database"
)

const agendaColumns = `id, title, description, category, status, result,
	yes_votes, no_votes, total_votes, is_active, created_at, updated_at`

// PostgresAgendaRepository stores agendas and sessions in Postgres
type PostgresAgendaRepository struct {
	db *database.PostgresDB
}

func NewAgendaRepository(db *database.PostgresDB) *PostgresAgendaRepository {
	return &PostgresAgendaRepository{db: db}
}

// Create inserts a new agenda with zeroed counters
func (r *PostgresAgendaRepository) Create(ctx context.Context, agenda *domain.Agenda) error {
	if agenda.ID == "" {
		agenda.ID = uuid.NewString()
	}
	if agenda.Result == "" {
		agenda.Result = domain.ResultUnvoted
	}

	query := `
		INSERT INTO agendas (id, title, description, category, status, result, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + agendaColumns

	row := r.db.Pool.QueryRow(ctx, query,
		agenda.ID,
		agenda.Title,
		agenda.Description,
		string(agenda.Category),
		string(agenda.Status),
		string(agenda.Result),
		agenda.IsActive,
	)
	created, err := scanAgenda(row)
	if err != nil {
		return fmt.Errorf("failed to create agenda: %w", err)
	}
	*agenda = *created
	return nil
}

// FindByID gets an agenda by ID
func (r *PostgresAgendaRepository) FindByID(ctx context.Context, id string) (*domain.Agenda, error) {
	query := `SELECT ` + agendaColumns + ` FROM agendas WHERE id = $1`

	agenda, err := scanAgenda(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agenda: %w", err)
	}
	return agenda, nil
}

// Update applies the non-nil fields of update, guarded by ExpectStatus when set
func (r *PostgresAgendaRepository) Update(ctx context.Context, id string, update domain.AgendaUpdate) (*domain.Agenda, error) {
	args := []interface{}{id}
	sets := []string{"updated_at = now()"}

	if update.Status != nil {
		args = append(args, string(*update.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if update.Result != nil {
		args = append(args, string(*update.Result))
		sets = append(sets, fmt.Sprintf("result = $%d", len(args)))
	}
	if update.IsActive != nil {
		args = append(args, *update.IsActive)
		sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
	}

	where := "id = $1"
	if len(update.ExpectStatus) > 0 {
		args = append(args, statusStrings(update.ExpectStatus))
		where += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	query := fmt.Sprintf(`UPDATE agendas SET %s WHERE %s RETURNING %s`,
		strings.Join(sets, ", "), where, agendaColumns)

	agenda, err := scanAgenda(r.db.Pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, missOrConflict(ctx, r.db.Pool, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update agenda: %w", err)
	}
	return agenda, nil
}

// ListByStatus gets all agendas in a status
func (r *PostgresAgendaRepository) ListByStatus(ctx context.Context, status domain.AgendaStatus) ([]*domain.Agenda, error) {
	query := `SELECT ` + agendaColumns + ` FROM agendas WHERE status = $1 ORDER BY created_at`

	rows, err := r.db.Pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list agendas: %w", err)
	}
	defer rows.Close()

	agendas := make([]*domain.Agenda, 0)
	for rows.Next() {
		agenda, err := scanAgenda(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agenda: %w", err)
		}
		agendas = append(agendas, agenda)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agendas: %w", err)
	}
	return agendas, nil
}

// List gets one page of agendas, newest first, optionally filtered by status
func (r *PostgresAgendaRepository) List(ctx context.Context, status domain.AgendaStatus, page domain.Page) ([]*domain.Agenda, int, error) {
	where := ""
	args := []interface{}{}
	if status != "" {
		args = append(args, string(status))
		where = "WHERE status = $1"
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM agendas `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count agendas: %w", err)
	}

	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`SELECT %s FROM agendas %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		agendaColumns, where, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list agendas: %w", err)
	}
	defer rows.Close()

	agendas := make([]*domain.Agenda, 0, page.Limit)
	for rows.Next() {
		agenda, err := scanAgenda(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan agenda: %w", err)
		}
		agendas = append(agendas, agenda)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate agendas: %w", err)
	}
	return agendas, total, nil
}

// CreateSession inserts a session row
func (r *PostgresAgendaRepository) CreateSession(ctx context.Context, agendaID string, start, end time.Time) (*domain.Session, error) {
	session := &domain.Session{
		ID:        uuid.NewString(),
		AgendaID:  agendaID,
		StartTime: start,
		EndTime:   end,
	}

	query := `
		INSERT INTO sessions (id, agenda_id, start_time, end_time)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.Pool.QueryRow(ctx, query, session.ID, agendaID, start, end).Scan(&session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ListSessions gets the sessions of an agenda, newest first
func (r *PostgresAgendaRepository) ListSessions(ctx context.Context, agendaID string) ([]*domain.Session, error) {
	query := `
		SELECT id, agenda_id, start_time, end_time, created_at
		FROM sessions
		WHERE agenda_id = $1
		ORDER BY start_time DESC, created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, agendaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*domain.Session, 0)
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.AgendaID, &s.StartTime, &s.EndTime, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// incrementVotes bumps one counter and the total in a single statement.
// A status outside allowed or a missing agenda yields pgx.ErrNoRows.
func incrementVotes(ctx context.Context, q querier, id string, choice domain.VoteChoice, allowed []domain.AgendaStatus) (*domain.Agenda, error) {
	var counter string
	switch choice {
	case domain.ChoiceYes:
		counter = "yes_votes"
	case domain.ChoiceNo:
		counter = "no_votes"
	default:
		return nil, domain.NewValidation("invalid vote choice %q", choice)
	}

	query := fmt.Sprintf(`
		UPDATE agendas
		SET %[1]s = %[1]s + 1, total_votes = total_votes + 1, updated_at = now()
		WHERE id = $1 AND status = ANY($2)
		RETURNING %[2]s`, counter, agendaColumns)

	return scanAgenda(q.QueryRow(ctx, query, id, statusStrings(allowed)))
}

// missOrConflict explains why a guarded write matched no row
func missOrConflict(ctx context.Context, q querier, id string) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM agendas WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check agenda: %w", err)
	}
	if !exists {
		return domain.NewNotFound(id)
	}
	return domain.ErrStatusConflict
}

func scanAgenda(row pgx.Row) (*domain.Agenda, error) {
	var (
		a                        domain.Agenda
		category, status, result string
	)
	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&category,
		&status,
		&result,
		&a.YesVotes,
		&a.NoVotes,
		&a.TotalVotes,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Category = domain.AgendaCategory(category)
	a.Status = domain.AgendaStatus(status)
	a.Result = domain.AgendaResult(result)
	return &a, nil
}

func statusStrings(statuses []domain.AgendaStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
