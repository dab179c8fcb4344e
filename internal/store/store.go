// Package store defines the event-journal persistence interface for the
// trade engine. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftx/trade-engine/internal/model"
)

// Store is the journal persistence interface. Records are append-only;
// PostgreSQL is the source of truth and Redis provides a read-through
// cache for the recent-events feed.
type Store interface {
	// InsertEvent appends an immutable journal record.
	InsertEvent(ctx context.Context, ev *model.TradeEvent) error

	// ListEvents returns the most recent events, newest first.
	ListEvents(ctx context.Context, limit int) ([]model.TradeEvent, error)

	// ListEventsByCollection returns the most recent events for one
	// collection, newest first.
	ListEventsByCollection(ctx context.Context, collection common.Address, limit int) ([]model.TradeEvent, error)
}
