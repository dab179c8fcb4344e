package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/nftx/trade-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the recent-events feeds. Writes go to the primary store and
// invalidate the affected feeds; reads check Redis first then fall back to
// the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary journal.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) InsertEvent(ctx context.Context, ev *model.TradeEvent) error {
	if err := s.primary.InsertEvent(ctx, ev); err != nil {
		return err
	}
	// Invalidate the feeds this event would appear in; next read re-populates.
	s.rdb.Del(ctx, feedKey(), collectionFeedKey(ev.Collection))
	return nil
}

func (s *CachedStore) ListEvents(ctx context.Context, limit int) ([]model.TradeEvent, error) {
	return s.readThrough(ctx, feedKey(), limit, func() ([]model.TradeEvent, error) {
		return s.primary.ListEvents(ctx, limit)
	})
}

func (s *CachedStore) ListEventsByCollection(ctx context.Context, collection common.Address, limit int) ([]model.TradeEvent, error) {
	return s.readThrough(ctx, collectionFeedKey(collection), limit, func() ([]model.TradeEvent, error) {
		return s.primary.ListEventsByCollection(ctx, collection, limit)
	})
}

// readThrough serves a feed from cache when the cached copy covers the
// requested limit, otherwise reads the primary and re-populates.
func (s *CachedStore) readThrough(ctx context.Context, key string, limit int,
	load func() ([]model.TradeEvent, error)) ([]model.TradeEvent, error) {

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var events []model.TradeEvent
		if json.Unmarshal(data, &events) == nil && len(events) >= limit {
			return events[:limit], nil
		}
	}

	events, err := load()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(events); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return events, nil
}

func feedKey() string                               { return "events:recent" }
func collectionFeedKey(c common.Address) string     { return fmt.Sprintf("events:collection:%s", c.Hex()) }
