package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// snapshotCacheKey is the single Redis key caching the latest snapshot
// document. There is only ever one document, so no per-entity key
// scheme is needed the way the teacher's marketKey/positionsKey are.
const snapshotCacheKey = "contracts:snapshot:latest"

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache, the same write-through-then-invalidate shape as
// the teacher's CachedStore: SaveSnapshot writes to the primary then
// refreshes the cache; LoadSnapshot checks Redis first and falls back to
// the primary on a miss.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

func (s *CachedStore) SaveSnapshot(ctx context.Context, doc Document) error {
	if err := s.primary.SaveSnapshot(ctx, doc); err != nil {
		return err
	}
	if data, err := json.Marshal(doc); err == nil {
		s.rdb.Set(ctx, snapshotCacheKey, data, s.ttl)
	}
	return nil
}

func (s *CachedStore) LoadSnapshot(ctx context.Context) (Document, bool, error) {
	data, err := s.rdb.Get(ctx, snapshotCacheKey).Bytes()
	if err == nil {
		var doc Document
		if json.Unmarshal(data, &doc) == nil {
			return doc, true, nil
		}
	}

	doc, ok, err := s.primary.LoadSnapshot(ctx)
	if err != nil || !ok {
		return doc, ok, err
	}

	if data, err := json.Marshal(doc); err == nil {
		s.rdb.Set(ctx, snapshotCacheKey, data, s.ttl)
	}
	return doc, true, nil
}
