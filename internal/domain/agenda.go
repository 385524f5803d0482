package domain

import (
	"time"
)

// AgendaStatus is the lifecycle state of an agenda
type AgendaStatus string

const (
	StatusDraft      AgendaStatus = "DRAFT"
	StatusOpen       AgendaStatus = "OPEN"
	StatusInProgress AgendaStatus = "IN_PROGRESS"
	StatusFinished   AgendaStatus = "FINISHED"
	StatusCancelled  AgendaStatus = "CANCELLED"
)

// AllAgendaStatuses lists every status in lifecycle order
func AllAgendaStatuses() []AgendaStatus {
	return []AgendaStatus{StatusDraft, StatusOpen, StatusInProgress, StatusFinished, StatusCancelled}
}

// ParseAgendaStatus converts a raw value into a known status
func ParseAgendaStatus(s string) (AgendaStatus, bool) {
	switch st := AgendaStatus(s); st {
	case StatusDraft, StatusOpen, StatusInProgress, StatusFinished, StatusCancelled:
		return st, true
	}
	return "", false
}

// CanStartSession reports whether a voting session may be opened from this status
func (s AgendaStatus) CanStartSession() bool {
	switch s {
	case StatusDraft, StatusOpen:
		return true
	case StatusInProgress, StatusFinished, StatusCancelled:
		return false
	}
	return false
}

// AcceptsVotes reports whether votes may be cast in this status
func (s AgendaStatus) AcceptsVotes() bool {
	switch s {
	case StatusOpen, StatusInProgress:
		return true
	case StatusDraft, StatusFinished, StatusCancelled:
		return false
	}
	return false
}

// IsTerminal reports whether no transition can leave this status
func (s AgendaStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusCancelled:
		return true
	case StatusDraft, StatusOpen, StatusInProgress:
		return false
	}
	return false
}

// AgendaResult is the outcome of a finished agenda
type AgendaResult string

const (
	ResultUnvoted  AgendaResult = "UNVOTED"
	ResultApproved AgendaResult = "APPROVED"
	ResultRejected AgendaResult = "REJECTED"
	ResultTie      AgendaResult = "TIE"
)

// AgendaCategory tags an agenda for filtering
type AgendaCategory string

const (
	CategoryProjects       AgendaCategory = "PROJECTS"
	CategoryAdministrative AgendaCategory = "ADMINISTRATIVE"
	CategoryElections      AgendaCategory = "ELECTIONS"
	CategoryStatutory      AgendaCategory = "STATUTORY"
	CategoryFinancial      AgendaCategory = "FINANCIAL"
	CategoryOther          AgendaCategory = "OTHER"
)

// ParseAgendaCategory converts a raw value into a known category
func ParseAgendaCategory(s string) (AgendaCategory, bool) {
	switch c := AgendaCategory(s); c {
	case CategoryProjects, CategoryAdministrative, CategoryElections,
		CategoryStatutory, CategoryFinancial, CategoryOther:
		return c, true
	}
	return "", false
}

// Agenda is a proposal subject to a single yes/no vote
type Agenda struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    AgendaCategory `json:"category"`
	Status      AgendaStatus   `json:"status"`
	Result      AgendaResult   `json:"result"`
	YesVotes    int            `json:"yes_votes"`
	NoVotes     int            `json:"no_votes"`
	TotalVotes  int            `json:"total_votes"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AgendaUpdate is a partial agenda write. Nil fields are left untouched.
// When ExpectStatus is non-empty the write only applies if the stored status
// is one of the listed values.
type AgendaUpdate struct {
	Status       *AgendaStatus
	Result       *AgendaResult
	IsActive     *bool
	ExpectStatus []AgendaStatus
}

// Session is one timed voting window of an agenda
type Session struct {
	ID        string    `json:"id"`
	AgendaID  string    `json:"agenda_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the window has closed at the given instant
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.EndTime)
}

// AgendaSnapshot is an agenda together with the bounds of its newest session
type AgendaSnapshot struct {
	*Agenda
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// NewAgendaSnapshot builds a snapshot from an agenda and its newest session (may be nil)
func NewAgendaSnapshot(a *Agenda, current *Session) *AgendaSnapshot {
	snap := &AgendaSnapshot{Agenda: a}
	if current != nil {
		start, end := current.StartTime, current.EndTime
		snap.StartDate = &start
		snap.EndDate = &end
	}
	return snap
}

// SessionStart is returned when a voting session is opened
type SessionStart struct {
	Agenda  *AgendaSnapshot `json:"agenda"`
	Session *Session        `json:"session"`
}

// Tally is the read-only projection of an agenda's vote counts
type Tally struct {
	AgendaID      string       `json:"agenda_id"`
	YesVotes      int          `json:"yes_votes"`
	NoVotes       int          `json:"no_votes"`
	TotalVotes    int          `json:"total_votes"`
	YesPercentage int          `json:"yes_percentage"`
	NoPercentage  int          `json:"no_percentage"`
	Result        AgendaResult `json:"result"`
	Leading       AgendaResult `json:"leading"`
	Status        AgendaStatus `json:"status"`
}

// CreateAgendaRequest is the payload for creating an agenda
type CreateAgendaRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    AgendaCategory `json:"category"`
	Draft       bool           `json:"draft"`
}

// StartSessionRequest is the payload for opening a voting session
type StartSessionRequest struct {
	AgendaID          string `json:"agendaId"`
	DurationInMinutes int    `json:"durationInMinutes"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page bounds a listing. A zero Limit means DefaultPageLimit.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Normalize applies the default limit and rejects out-of-range values
func (p Page) Normalize() (Page, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return Page{}, NewValidation("limit and offset must not be negative")
	}
	if p.Limit == 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		return Page{}, NewValidation("limit must be at most %d", MaxPageLimit)
	}
	return p, nil
}
