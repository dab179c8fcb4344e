package store

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftx/trade-engine/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	events []model.TradeEvent
}

// NewMemoryStore creates a new in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertEvent(_ context.Context, ev *model.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *ev)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, limit int) ([]model.TradeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return collectNewest(s.events, limit, func(model.TradeEvent) bool { return true }), nil
}

func (s *MemoryStore) ListEventsByCollection(_ context.Context, collection common.Address, limit int) ([]model.TradeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return collectNewest(s.events, limit, func(ev model.TradeEvent) bool {
		return ev.Collection == collection
	}), nil
}

// collectNewest walks the append-only journal backwards and keeps up to
// limit matching records, newest first.
func collectNewest(events []model.TradeEvent, limit int, match func(model.TradeEvent) bool) []model.TradeEvent {
	var result []model.TradeEvent
	for i := len(events) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		if match(events[i]) {
			result = append(result, events[i])
		}
	}
	return result
}
