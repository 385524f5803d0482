package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopvote/internal/domain"
)

// runStoreContract exercises behaviour every AgendaRepository/VoteRepository pair must share
func runStoreContract(t *testing.T, agendas AgendaRepository, votes VoteRepository) {
	ctx := context.Background()

	newAgenda := func(t *testing.T, status domain.AgendaStatus) *domain.Agenda {
		t.Helper()
		a := &domain.Agenda{
			Title:    "Solar panels for the warehouse",
			Category: domain.CategoryProjects,
			Status:   status,
			IsActive: true,
		}
		require.NoError(t, agendas.Create(ctx, a))
		require.NotEmpty(t, a.ID)
		return a
	}

	t.Run("create and find", func(t *testing.T) {
		a := newAgenda(t, domain.StatusOpen)

		got, err := agendas.FindByID(ctx, a.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.StatusOpen, got.Status)
		assert.Equal(t, domain.ResultUnvoted, got.Result)
		assert.Equal(t, 0, got.TotalVotes)

		missing, err := agendas.FindByID(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("conditional update", func(t *testing.T) {
		a := newAgenda(t, domain.StatusOpen)
		inProgress := domain.StatusInProgress

		updated, err := agendas.Update(ctx, a.ID, domain.AgendaUpdate{
			Status:       &inProgress,
			ExpectStatus: []domain.AgendaStatus{domain.StatusOpen, domain.StatusDraft},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusInProgress, updated.Status)

		_, err = agendas.Update(ctx, a.ID, domain.AgendaUpdate{
			Status:       &inProgress,
			ExpectStatus: []domain.AgendaStatus{domain.StatusOpen},
		})
		assert.ErrorIs(t, err, domain.ErrStatusConflict)

		_, err = agendas.Update(ctx, "does-not-exist", domain.AgendaUpdate{Status: &inProgress})
		assert.ErrorIs(t, err, domain.ErrAgendaNotFound)
	})

	t.Run("record keeps counters and rows together", func(t *testing.T) {
		a := newAgenda(t, domain.StatusInProgress)
		allowed := []domain.AgendaStatus{domain.StatusInProgress}

		for i, c := range []domain.VoteChoice{domain.ChoiceYes, domain.ChoiceYes, domain.ChoiceNo} {
			vote, got, err := votes.Record(ctx, &domain.Vote{AgendaID: a.ID, UserID: fmt.Sprintf("m%d", i), Choice: c}, allowed)
			require.NoError(t, err)
			assert.NotEmpty(t, vote.ID)
			assert.False(t, vote.CreatedAt.IsZero())
			assert.Equal(t, got.YesVotes+got.NoVotes, got.TotalVotes)
		}

		got, err := agendas.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.YesVotes)
		assert.Equal(t, 1, got.NoVotes)
		assert.Equal(t, 3, got.TotalVotes)
	})

	t.Run("record outside allowed status writes nothing", func(t *testing.T) {
		a := newAgenda(t, domain.StatusOpen)

		_, _, err := votes.Record(ctx, &domain.Vote{AgendaID: a.ID, UserID: "late", Choice: domain.ChoiceYes},
			[]domain.AgendaStatus{domain.StatusInProgress})
		assert.ErrorIs(t, err, domain.ErrStatusConflict)

		found, err := votes.FindByUserAndAgenda(ctx, "late", a.ID)
		require.NoError(t, err)
		assert.Nil(t, found)

		got, err := agendas.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.TotalVotes)

		_, _, err = votes.Record(ctx, &domain.Vote{AgendaID: "does-not-exist", UserID: "late", Choice: domain.ChoiceYes},
			[]domain.AgendaStatus{domain.StatusInProgress})
		assert.ErrorIs(t, err, domain.ErrAgendaNotFound)
	})

	t.Run("concurrent records are not lost", func(t *testing.T) {
		a := newAgenda(t, domain.StatusInProgress)
		allowed := []domain.AgendaStatus{domain.StatusInProgress}

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				choice := domain.ChoiceYes
				if i%2 == 0 {
					choice = domain.ChoiceNo
				}
				_, _, err := votes.Record(ctx, &domain.Vote{AgendaID: a.ID, UserID: fmt.Sprintf("member-%d", i), Choice: choice}, allowed)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := agendas.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, got.YesVotes)
		assert.Equal(t, 10, got.NoVotes)
		assert.Equal(t, 20, got.TotalVotes)

		_, total, err := votes.ListByAgenda(ctx, a.ID, domain.Page{Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, 20, total)
	})

	t.Run("sessions newest first", func(t *testing.T) {
		a := newAgenda(t, domain.StatusOpen)
		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		first, err := agendas.CreateSession(ctx, a.ID, base, base.Add(time.Minute))
		require.NoError(t, err)
		second, err := agendas.CreateSession(ctx, a.ID, base.Add(time.Hour), base.Add(2*time.Hour))
		require.NoError(t, err)

		sessions, err := agendas.ListSessions(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, second.ID, sessions[0].ID)
		assert.Equal(t, first.ID, sessions[1].ID)

		current, err := CurrentSession(ctx, agendas, a.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, current.ID)

		none, err := CurrentSession(ctx, agendas, newAgenda(t, domain.StatusOpen).ID)
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("list by status", func(t *testing.T) {
		a := newAgenda(t, domain.StatusCancelled)

		listed, err := agendas.ListByStatus(ctx, domain.StatusCancelled)
		require.NoError(t, err)
		ids := make([]string, 0, len(listed))
		for _, l := range listed {
			assert.Equal(t, domain.StatusCancelled, l.Status)
			ids = append(ids, l.ID)
		}
		assert.Contains(t, ids, a.ID)
	})

	t.Run("list pages newest first", func(t *testing.T) {
		first := newAgenda(t, domain.StatusFinished)
		second := newAgenda(t, domain.StatusFinished)

		page, total, err := agendas.List(ctx, domain.StatusFinished, domain.Page{Limit: 1})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, total, 2)
		require.Len(t, page, 1)
		assert.Equal(t, second.ID, page[0].ID)

		next, _, err := agendas.List(ctx, domain.StatusFinished, domain.Page{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, next, 1)
		assert.Equal(t, first.ID, next[0].ID)

		all, allTotal, err := agendas.List(ctx, "", domain.Page{Limit: domain.MaxPageLimit})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, allTotal, total)
		assert.NotEmpty(t, all)

		beyond, _, err := agendas.List(ctx, domain.StatusFinished, domain.Page{Limit: 10, Offset: 10000})
		require.NoError(t, err)
		assert.Empty(t, beyond)
	})

	t.Run("votes are unique per user and agenda", func(t *testing.T) {
		a := newAgenda(t, domain.StatusInProgress)
		allowed := []domain.AgendaStatus{domain.StatusInProgress}

		_, _, err := votes.Record(ctx, &domain.Vote{AgendaID: a.ID, UserID: "u1", Choice: domain.ChoiceYes}, allowed)
		require.NoError(t, err)

		_, _, err = votes.Record(ctx, &domain.Vote{AgendaID: a.ID, UserID: "u1", Choice: domain.ChoiceNo}, allowed)
		assert.ErrorIs(t, err, domain.ErrDuplicateVote)

		got, err := agendas.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.TotalVotes, "a rejected duplicate must not move the counters")

		found, err := votes.FindByUserAndAgenda(ctx, "u1", a.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, domain.ChoiceYes, found.Choice)

		missing, err := votes.FindByUserAndAgenda(ctx, "u2", a.ID)
		require.NoError(t, err)
		assert.Nil(t, missing)

		_, _, err = votes.Record(ctx, &domain.Vote{AgendaID: a.ID, UserID: "u2", Choice: domain.ChoiceNo}, allowed)
		require.NoError(t, err)

		listed, total, err := votes.ListByAgenda(ctx, a.ID, domain.Page{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, listed, 2)
		assert.Equal(t, "u1", listed[0].UserID)

		other := newAgenda(t, domain.StatusInProgress)
		_, _, err = votes.Record(ctx, &domain.Vote{AgendaID: other.ID, UserID: "u1", Choice: domain.ChoiceNo}, allowed)
		require.NoError(t, err)

		mine, mineTotal, err := votes.ListByUser(ctx, "u1", domain.Page{Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, mineTotal)
		require.Len(t, mine, 1)
		assert.Equal(t, other.ID, mine[0].AgendaID)
	})

	t.Run("concurrent duplicate inserts admit one", func(t *testing.T) {
		a := newAgenda(t, domain.StatusInProgress)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			dupes     int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := votes.Record(ctx, &domain.Vote{AgendaID: a.ID, UserID: "racer", Choice: domain.ChoiceYes},
					[]domain.AgendaStatus{domain.StatusInProgress})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
				} else if assert.ErrorIs(t, err, domain.ErrDuplicateVote) {
					dupes++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, 9, dupes)

		got, err := agendas.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.TotalVotes)
	})
}
