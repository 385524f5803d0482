package repository

// Schema creates the tables backing the Postgres repositories. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS agendas (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category    TEXT NOT NULL,
		status      TEXT NOT NULL,
		result      TEXT NOT NULL DEFAULT 'UNVOTED',
		yes_votes   INTEGER NOT NULL DEFAULT 0,
		no_votes    INTEGER NOT NULL DEFAULT 0,
		total_votes INTEGER NOT NULL DEFAULT 0,
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT agendas_total_votes_check CHECK (total_votes = yes_votes + no_votes),
		CONSTRAINT agendas_status_check CHECK (status IN ('DRAFT', 'OPEN', 'IN_PROGRESS', 'FINISHED', 'CANCELLED')),
		CONSTRAINT agendas_result_check CHECK (result IN ('UNVOTED', 'APPROVED', 'REJECTED', 'TIE'))
	)`,
	`CREATE INDEX IF NOT EXISTS agendas_status_idx ON agendas (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		agenda_id  TEXT NOT NULL REFERENCES agendas (id) ON DELETE CASCADE,
		start_time TIMESTAMPTZ NOT NULL,
		end_time   TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT sessions_window_check CHECK (end_time > start_time)
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_agenda_start_idx ON sessions (agenda_id, start_time DESC)`,
	`CREATE TABLE IF NOT EXISTS votes (
		id         TEXT PRIMARY KEY,
		agenda_id  TEXT NOT NULL REFERENCES agendas (id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL,
		choice     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT votes_choice_check CHECK (choice IN ('YES', 'NO')),
		CONSTRAINT votes_user_agenda_key UNIQUE (user_id, agenda_id)
	)`,
	`CREATE INDEX IF NOT EXISTS votes_agenda_idx ON votes (agenda_id, created_at)`,
}

// DropSchema removes every table created by Schema
var DropSchema = []string{
	`DROP TABLE IF EXISTS votes CASCADE`,
	`DROP TABLE IF EXISTS sessions CASCADE`,
	`DROP TABLE IF EXISTS agendas CASCADE`,
}

// VoteUniqueConstraint is the authoritative double-vote guard
const VoteUniqueConstraint = "votes_user_agenda_key"
