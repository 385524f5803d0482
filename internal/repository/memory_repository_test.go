package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopvote/internal/domain"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := NewMemoryStore(clockwork.NewRealClock())
	repos := store.Repositories()
	runStoreContract(t, repos.Agenda, repos.Vote)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clockwork.NewFakeClock())

	a := &domain.Agenda{Title: "Budget", Category: domain.CategoryFinancial, Status: domain.StatusOpen}
	require.NoError(t, store.Create(ctx, a))

	got, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	got.Status = domain.StatusFinished
	got.YesVotes = 99

	again, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, again.Status)
	assert.Equal(t, 0, again.YesVotes)
}

func TestMemoryStore_CreateResetsCounters(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(clock)

	a := &domain.Agenda{Title: "Statute", Status: domain.StatusDraft, YesVotes: 4, TotalVotes: 4}
	require.NoError(t, store.Create(ctx, a))

	got, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.YesVotes)
	assert.Equal(t, 0, got.TotalVotes)
	assert.Equal(t, clock.Now(), got.CreatedAt)
}

func TestMemoryStore_SessionValidation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clockwork.NewFakeClock())
	now := time.Now()

	_, err := store.CreateSession(ctx, "missing", now, now.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrAgendaNotFound)

	a := &domain.Agenda{Title: "x", Status: domain.StatusOpen}
	require.NoError(t, store.Create(ctx, a))
	_, err = store.CreateSession(ctx, a.ID, now, now)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMemoryStore_RecordRejectsUnknownChoice(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clockwork.NewFakeClock())

	a := &domain.Agenda{Title: "x", Status: domain.StatusInProgress}
	require.NoError(t, store.Create(ctx, a))

	_, _, err := store.Record(ctx, &domain.Vote{AgendaID: a.ID, UserID: "u1", Choice: domain.VoteChoice("ABSTAIN")},
		[]domain.AgendaStatus{domain.StatusInProgress})
	assert.ErrorIs(t, err, domain.ErrValidation)

	found, err := store.FindByUserAndAgenda(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestMemoryStore_ListPagesPastTheEnd(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clockwork.NewFakeClock())

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(ctx, &domain.Agenda{Title: "x", Status: domain.StatusOpen}))
	}

	page, total, err := store.List(ctx, "", domain.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)

	page, total, err = store.List(ctx, domain.StatusDraft, domain.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, page)
}
