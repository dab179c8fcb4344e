package store

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nftx/trade-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Addresses are stored as lowercase hex TEXT; payloads as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed journal.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertEvent(ctx context.Context, ev *model.TradeEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trade_events (id, kind, collection, entity_id, payload, timestamp)
		 VALUES ($1, $2, $3, $4, $5::JSONB, $6)`,
		ev.ID, ev.Kind, ev.Collection.Hex(), ev.EntityID, string(ev.Payload), ev.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListEvents(ctx context.Context, limit int) ([]model.TradeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, collection, entity_id, payload::TEXT, timestamp
		 FROM trade_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) ListEventsByCollection(ctx context.Context, collection common.Address, limit int) ([]model.TradeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, collection, entity_id, payload::TEXT, timestamp
		 FROM trade_events WHERE collection = $1
		 ORDER BY timestamp DESC LIMIT $2`, collection.Hex(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents reads pgx rows into TradeEvent slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvents(rows pgxRows) ([]model.TradeEvent, error) {
	var events []model.TradeEvent
	for rows.Next() {
		var ev model.TradeEvent
		var collectionS, payloadS string

		if err := rows.Scan(&ev.ID, &ev.Kind, &collectionS, &ev.EntityID,
			&payloadS, &ev.Timestamp); err != nil {
			return nil, err
		}

		if !common.IsHexAddress(collectionS) {
			return nil, fmt.Errorf("malformed collection address %q in event %s", collectionS, ev.ID)
		}
		ev.Collection = common.HexToAddress(collectionS)
		ev.Payload = []byte(payloadS)

		events = append(events, ev)
	}
	return events, rows.Err()
}
