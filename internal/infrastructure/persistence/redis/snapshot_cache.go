package redis

import (
	"context"
	"errors"

	"github.com/alem-hub/studygroup-stats/internal/domain/stats"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
)

// SnapshotCache puts Redis in front of a stats.SnapshotRepository.
// Reads go to Redis first and fall back to the inner repository, filling the
// cache on the way out. Saves go to the inner repository first, then Redis.
// Any Redis failure is logged and ignored; the inner repository stays the
// source of truth. A failed cache write evicts the key so an older snapshot
// cannot outlive a newer save.
type SnapshotCache struct {
	cache *Cache
	inner stats.SnapshotRepository
	log   *logger.Logger
}

// NewSnapshotCache creates the decorator.
func NewSnapshotCache(cache *Cache, inner stats.SnapshotRepository, log *logger.Logger) *SnapshotCache {
	if log == nil {
		log = logger.Nop()
	}
	return &SnapshotCache{
		cache: cache,
		inner: inner,
		log:   log.With(logger.Component("snapshot_cache")),
	}
}

// Get returns the cached snapshot or loads it from the inner repository.
func (c *SnapshotCache) Get(ctx context.Context, key stats.Key) (*stats.Snapshot, error) {
	redisKey := SnapshotKey(key.GroupID, string(key.Period))

	var snap stats.Snapshot
	err := c.cache.Get(ctx, redisKey, &snap)
	switch {
	case err == nil:
		return &snap, nil
	case errors.Is(err, ErrCacheMiss):
	default:
		c.log.Warn("snapshot cache read failed",
			logger.GroupID(key.GroupID), logger.Period(string(key.Period)), logger.Err(err))
	}

	loaded, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.put(ctx, redisKey, loaded)
	return loaded, nil
}

// Save writes through to the inner repository and then refreshes Redis.
func (c *SnapshotCache) Save(ctx context.Context, snapshot *stats.Snapshot) error {
	if err := c.inner.Save(ctx, snapshot); err != nil {
		redisKey := SnapshotKey(snapshot.GroupID, string(snapshot.Period))
		if delErr := c.cache.Delete(ctx, redisKey); delErr != nil {
			c.log.Warn("snapshot cache invalidate failed",
				logger.GroupID(snapshot.GroupID), logger.Err(delErr))
		}
		return err
	}
	c.put(ctx, SnapshotKey(snapshot.GroupID, string(snapshot.Period)), snapshot)
	return nil
}

func (c *SnapshotCache) put(ctx context.Context, redisKey string, snap *stats.Snapshot) {
	err := c.cache.Set(ctx, redisKey, snap, TTLSnapshotCache)
	if err == nil {
		return
	}
	c.log.Warn("snapshot cache write failed",
		logger.GroupID(snap.GroupID), logger.Period(string(snap.Period)), logger.Err(err))
	if delErr := c.cache.Delete(ctx, redisKey); delErr != nil {
		c.log.Warn("snapshot cache invalidate failed",
			logger.GroupID(snap.GroupID), logger.Err(delErr))
	}
}
