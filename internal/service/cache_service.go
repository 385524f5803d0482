package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"coopvote/internal/domain"
	"coopvote/pkg/logger"
	"coopvote/pkg/redis"
)

// CacheService wraps the Redis fast paths of the voting flow. Every method is
// safe on a nil Redis client and fails open: a cache error never blocks a
// vote, it only costs a trip to the store.
type CacheService struct {
	redis  *redis.Client
	logger *logger.Logger
}

// cachedTally carries the session end so a hit can be discarded once the window closed
type cachedTally struct {
	Tally  *domain.Tally `json:"tally"`
	EndsAt *time.Time    `json:"ends_at,omitempty"`
}

// NewCacheService creates a new cache service. redisClient may be nil.
func NewCacheService(redisClient *redis.Client, log *logger.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		logger: log.Named("cache"),
	}
}

// Enabled reports whether a Redis client is configured
func (c *CacheService) Enabled() bool {
	return c != nil && c.redis != nil
}

// TryStartLock acquires the session-start idempotency lock of an agenda.
// It returns false when another start for the same agenda holds the lock.
func (c *CacheService) TryStartLock(ctx context.Context, agendaID string, ttl time.Duration) bool {
	if !c.Enabled() {
		return true
	}
	ok, err := c.redis.SetNX(ctx, c.redis.KeyBuilder.KeyStartLock(agendaID), "1", ttl)
	if err != nil {
		c.logger.Warn("Start lock unavailable, continuing without it",
			zap.String("agenda_id", agendaID),
			zap.Error(err))
		return true
	}
	return ok
}

// ReleaseStartLock drops the start lock so a failed start can be retried
func (c *CacheService) ReleaseStartLock(ctx context.Context, agendaID string) {
	if !c.Enabled() {
		return
	}
	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyStartLock(agendaID)); err != nil {
		c.logger.Warn("Failed to release start lock",
			zap.String("agenda_id", agendaID),
			zap.Error(err))
	}
}

// HasVoted checks the per-user vote marker. A miss is not proof of absence.
func (c *CacheService) HasVoted(ctx context.Context, agendaID, userID string) bool {
	if !c.Enabled() {
		return false
	}
	n, err := c.redis.Exists(ctx, c.redis.KeyBuilder.KeyVoted(agendaID, userID))
	if err != nil {
		c.logger.Warn("Vote marker lookup failed, falling back to store",
			zap.String("agenda_id", agendaID),
			zap.Error(err))
		return false
	}
	return n > 0
}

// MarkVoted writes the per-user vote marker after a successful vote
func (c *CacheService) MarkVoted(ctx context.Context, agendaID, userID string, choice domain.VoteChoice) {
	if !c.Enabled() {
		return
	}
	if err := c.redis.Set(ctx, c.redis.KeyBuilder.KeyVoted(agendaID, userID), string(choice), redis.TTLVoted); err != nil {
		c.logger.Warn("Failed to write vote marker",
			zap.String("agenda_id", agendaID),
			zap.Error(err))
	}
}

// GetTally returns a cached tally projection. Entries whose session window
// has closed by now are treated as a miss.
func (c *CacheService) GetTally(ctx context.Context, agendaID string, now time.Time) (*domain.Tally, bool) {
	if !c.Enabled() {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, c.redis.KeyBuilder.KeyTally(agendaID))
	if err != nil {
		if !errors.Is(err, redis.ErrNil) {
			c.logger.Warn("Tally cache error, falling back to store",
				zap.String("agenda_id", agendaID),
				zap.Error(err))
		}
		return nil, false
	}

	var entry cachedTally
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Tally == nil {
		c.logger.Warn("Tally cache corrupted, falling back to store",
			zap.String("agenda_id", agendaID),
			zap.Error(err))
		return nil, false
	}
	if entry.EndsAt != nil && !now.Before(*entry.EndsAt) {
		return nil, false
	}
	return entry.Tally, true
}

// SetTally caches a projection. Finished tallies are immutable and kept longer.
func (c *CacheService) SetTally(ctx context.Context, t *domain.Tally, endsAt *time.Time) {
	if !c.Enabled() || t == nil {
		return
	}
	ttl := redis.TTLTally
	if t.Status == domain.StatusFinished {
		ttl = redis.TTLFinishedTally
		endsAt = nil
	}
	data, err := json.Marshal(cachedTally{Tally: t, EndsAt: endsAt})
	if err != nil {
		c.logger.Error("Failed to marshal tally", zap.String("agenda_id", t.AgendaID), zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, c.redis.KeyBuilder.KeyTally(t.AgendaID), data, ttl); err != nil {
		c.logger.Warn("Failed to cache tally",
			zap.String("agenda_id", t.AgendaID),
			zap.Error(err))
	}
}

// InvalidateTally drops the cached projection of an agenda
func (c *CacheService) InvalidateTally(ctx context.Context, agendaID string) {
	if !c.Enabled() {
		return
	}
	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyTally(agendaID)); err != nil {
		c.logger.Warn("Failed to invalidate tally cache",
			zap.String("agenda_id", agendaID),
			zap.Error(err))
	}
}
