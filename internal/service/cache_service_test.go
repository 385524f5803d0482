package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopvote/internal/domain"
	"coopvote/pkg/logger"
)

func TestCacheService_NilRedisIsNoop(t *testing.T) {
	c := NewCacheService(nil, logger.NewNop())
	ctx := context.Background()

	assert.False(t, c.Enabled())
	assert.True(t, c.TryStartLock(ctx, "a1", time.Minute))
	assert.False(t, c.HasVoted(ctx, "a1", "u1"))
	c.MarkVoted(ctx, "a1", "u1", domain.ChoiceYes)
	c.SetTally(ctx, &domain.Tally{AgendaID: "a1"}, nil)
	_, ok := c.GetTally(ctx, "a1", time.Now())
	assert.False(t, ok)
	c.InvalidateTally(ctx, "a1")
	c.ReleaseStartLock(ctx, "a1")
}

func TestCacheService_StartLock(t *testing.T) {
	f := newFixture(t, true)
	c := f.svc.cache
	ctx := context.Background()

	assert.True(t, c.TryStartLock(ctx, "a1", time.Minute))
	assert.False(t, c.TryStartLock(ctx, "a1", time.Minute))

	c.ReleaseStartLock(ctx, "a1")
	assert.True(t, c.TryStartLock(ctx, "a1", time.Minute))

	f.mr.FastForward(2 * time.Minute)
	assert.True(t, c.TryStartLock(ctx, "a1", time.Minute))
}

func TestCacheService_TallyRespectsWindowEnd(t *testing.T) {
	f := newFixture(t, true)
	c := f.svc.cache
	ctx := context.Background()
	now := f.clock.Now()
	end := now.Add(time.Minute)

	c.SetTally(ctx, &domain.Tally{AgendaID: "a1", YesVotes: 2, TotalVotes: 2, Status: domain.StatusInProgress}, &end)

	got, ok := c.GetTally(ctx, "a1", now)
	require.True(t, ok)
	assert.Equal(t, 2, got.YesVotes)

	_, ok = c.GetTally(ctx, "a1", end)
	assert.False(t, ok)
}

func TestCacheService_FinishedTallyLivesLonger(t *testing.T) {
	f := newFixture(t, true)
	c := f.svc.cache
	ctx := context.Background()

	c.SetTally(ctx, &domain.Tally{AgendaID: "a1", Status: domain.StatusFinished, Result: domain.ResultTie}, nil)
	key := f.rdb.KeyBuilder.KeyTally("a1")
	assert.Greater(t, f.mr.TTL(key), time.Hour)

	c.SetTally(ctx, &domain.Tally{AgendaID: "a2", Status: domain.StatusInProgress}, nil)
	assert.LessOrEqual(t, f.mr.TTL(f.rdb.KeyBuilder.KeyTally("a2")), time.Minute)
}

func TestCacheService_CorruptEntryIsMiss(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.mr.Set(f.rdb.KeyBuilder.KeyTally("a1"), "{not json"))

	_, ok := f.svc.cache.GetTally(context.Background(), "a1", f.clock.Now())
	assert.False(t, ok)
}

func TestCacheService_RedisDownFailsOpen(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a := f.createAgenda(t, false)

	f.mr.Close()

	_, err := f.svc.CastVote(ctx, a.ID, "member-1", domain.ChoiceYes)
	require.NoError(t, err)

	tally, err := f.svc.QueryTally(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.TotalVotes)
}

func TestVotingService_WithRedis(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a := f.createAgenda(t, false)

	t.Run("vote writes marker and invalidates tally", func(t *testing.T) {
		_, err := f.svc.QueryTally(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, f.mr.Exists(f.rdb.KeyBuilder.KeyTally(a.ID)))

		_, err = f.svc.CastVote(ctx, a.ID, "member-1", domain.ChoiceYes)
		require.NoError(t, err)
		assert.False(t, f.mr.Exists(f.rdb.KeyBuilder.KeyTally(a.ID)))
		assert.True(t, f.mr.Exists(f.rdb.KeyBuilder.KeyVoted(a.ID, "member-1")))

		got, err := f.svc.QueryTally(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.TotalVotes)
	})

	t.Run("marker short-circuits duplicates", func(t *testing.T) {
		require.NoError(t, f.mr.Set(f.rdb.KeyBuilder.KeyVoted(a.ID, "member-9"), "YES"))

		_, err := f.svc.CastVote(ctx, a.ID, "member-9", domain.ChoiceNo)
		assert.ErrorIs(t, err, domain.ErrDuplicateVote)
		assert.Equal(t, 1, f.agenda(t, a.ID).TotalVotes)
	})

	t.Run("finalize drops cached live tally", func(t *testing.T) {
		_, err := f.svc.QueryTally(ctx, a.ID)
		require.NoError(t, err)

		_, err = f.svc.Finalize(ctx, a.ID, TriggerManual)
		require.NoError(t, err)

		got, err := f.svc.QueryTally(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFinished, got.Status)
		assert.Equal(t, domain.ResultApproved, got.Result)
	})
}

func TestStartSession_HeldLockRejectsConcurrentStart(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	a := f.createAgenda(t, false)

	require.NoError(t, f.mr.Set(f.rdb.KeyBuilder.KeyStartLock(a.ID), "1"))

	_, err := f.svc.StartSession(ctx, a.ID, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Empty(t, f.sessions(t, a.ID))
}

func TestStartSession_FailedStartReleasesLock(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, "missing", 5)
	assert.ErrorIs(t, err, domain.ErrAgendaNotFound)
	assert.False(t, f.mr.Exists(f.rdb.KeyBuilder.KeyStartLock("missing")))
}
