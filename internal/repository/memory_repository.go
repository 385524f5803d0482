package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"coopvote/internal/domain"
)

// MemoryStore is an in-process AgendaRepository and VoteRepository used for
// local development and tests. Records are copied in and out so callers never
// share state with the store.
type MemoryStore struct {
	clock clockwork.Clock

	mu       sync.RWMutex
	agendas  map[string]*domain.Agenda
	order    []string
	sessions map[string][]*domain.Session
	votes    map[string]*domain.Vote // key: agendaID + "/" + userID

	voteOrder []string
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock:    clock,
		agendas:  make(map[string]*domain.Agenda),
		sessions: make(map[string][]*domain.Session),
		votes:    make(map[string]*domain.Vote),
	}
}

// Repositories exposes the store through the repository interfaces
func (m *MemoryStore) Repositories() *Repositories {
	return &Repositories{Agenda: m, Vote: m}
}

func (m *MemoryStore) Create(_ context.Context, agenda *domain.Agenda) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if agenda.ID == "" {
		agenda.ID = uuid.NewString()
	}
	if agenda.Result == "" {
		agenda.Result = domain.ResultUnvoted
	}
	now := m.clock.Now()
	agenda.CreatedAt, agenda.UpdatedAt = now, now
	agenda.YesVotes, agenda.NoVotes, agenda.TotalVotes = 0, 0, 0

	stored := *agenda
	m.agendas[stored.ID] = &stored
	m.order = append(m.order, stored.ID)
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*domain.Agenda, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.agendas[id]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, update domain.AgendaUpdate) (*domain.Agenda, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agendas[id]
	if !ok {
		return nil, domain.NewNotFound(id)
	}
	if len(update.ExpectStatus) > 0 && !statusIn(a.Status, update.ExpectStatus) {
		return nil, domain.ErrStatusConflict
	}

	if update.Status != nil {
		a.Status = *update.Status
	}
	if update.Result != nil {
		a.Result = *update.Result
	}
	if update.IsActive != nil {
		a.IsActive = *update.IsActive
	}
	a.UpdatedAt = m.clock.Now()

	out := *a
	return &out, nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, status domain.AgendaStatus) ([]*domain.Agenda, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Agenda, 0)
	for _, id := range m.order {
		if a := m.agendas[id]; a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) List(_ context.Context, status domain.AgendaStatus, page domain.Page) ([]*domain.Agenda, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*domain.Agenda, 0)
	for i := len(m.order) - 1; i >= 0; i-- {
		if a := m.agendas[m.order[i]]; status == "" || a.Status == status {
			cp := *a
			matched = append(matched, &cp)
		}
	}
	return paginate(matched, page), len(matched), nil
}

func (m *MemoryStore) CreateSession(_ context.Context, agendaID string, start, end time.Time) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agendas[agendaID]; !ok {
		return nil, domain.NewNotFound(agendaID)
	}
	if !end.After(start) {
		return nil, domain.NewValidation("session end must be after start")
	}

	s := &domain.Session{
		ID:        uuid.NewString(),
		AgendaID:  agendaID,
		StartTime: start,
		EndTime:   end,
		CreatedAt: m.clock.Now(),
	}
	m.sessions[agendaID] = append(m.sessions[agendaID], s)
	out := *s
	return &out, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, agendaID string) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.sessions[agendaID]
	out := make([]*domain.Session, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		cp := *stored[i]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (m *MemoryStore) FindByUserAndAgenda(_ context.Context, userID, agendaID string) (*domain.Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.votes[voteKey(agendaID, userID)]
	if !ok {
		return nil, nil
	}
	out := *v
	return &out, nil
}

// Record checks the agenda and the uniqueness guard, then writes the vote and the
// counters under one lock
func (m *MemoryStore) Record(_ context.Context, vote *domain.Vote, allowed []domain.AgendaStatus) (*domain.Vote, *domain.Agenda, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agendas[vote.AgendaID]
	if !ok {
		return nil, nil, domain.NewNotFound(vote.AgendaID)
	}
	if !statusIn(a.Status, allowed) {
		return nil, nil, domain.ErrStatusConflict
	}
	if !vote.Choice.Valid() {
		return nil, nil, domain.NewValidation("invalid vote choice %q", vote.Choice)
	}
	key := voteKey(vote.AgendaID, vote.UserID)
	if _, exists := m.votes[key]; exists {
		return nil, nil, domain.NewDuplicateVote(vote.UserID, vote.AgendaID)
	}

	now := m.clock.Now()
	stored := *vote
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.CreatedAt = now
	m.votes[key] = &stored
	m.voteOrder = append(m.voteOrder, key)

	if stored.Choice == domain.ChoiceYes {
		a.YesVotes++
	} else {
		a.NoVotes++
	}
	a.TotalVotes++
	a.UpdatedAt = now

	outVote, outAgenda := stored, *a
	return &outVote, &outAgenda, nil
}

func (m *MemoryStore) ListByAgenda(_ context.Context, agendaID string, page domain.Page) ([]*domain.Vote, int, error) {
	return m.listVotes(page, false, func(v *domain.Vote) bool { return v.AgendaID == agendaID })
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string, page domain.Page) ([]*domain.Vote, int, error) {
	return m.listVotes(page, true, func(v *domain.Vote) bool { return v.UserID == userID })
}

func (m *MemoryStore) listVotes(page domain.Page, newestFirst bool, match func(*domain.Vote) bool) ([]*domain.Vote, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*domain.Vote, 0)
	for _, k := range m.voteOrder {
		if v := m.votes[k]; match(v) {
			cp := *v
			matched = append(matched, &cp)
		}
	}
	if newestFirst {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	return paginate(matched, page), len(matched), nil
}

func voteKey(agendaID, userID string) string {
	return agendaID + "/" + userID
}

func statusIn(s domain.AgendaStatus, set []domain.AgendaStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page domain.Page) []T {
	if page.Offset >= len(items) {
		return items[:0]
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}
