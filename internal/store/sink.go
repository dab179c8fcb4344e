package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/nftx/trade-engine/internal/event"
	"github.com/nftx/trade-engine/internal/model"
)

// Sink journals every emitted event into a Store. A journal write failure
// is logged and dropped; the trade it describes has already settled.
type Sink struct {
	store Store
}

// NewSink creates a journaling event sink.
func NewSink(store Store) *Sink {
	return &Sink{store: store}
}

func (s *Sink) Emit(e event.Event) {
	collection, entityID, ts := locate(e)

	payload, err := json.Marshal(e)
	if err != nil {
		slog.Error("journal: marshal event", "kind", e.Kind(), "error", err)
		return
	}

	rec := &model.TradeEvent{
		ID:         uuid.New().String(),
		Kind:       e.Kind(),
		Collection: collection,
		EntityID:   entityID,
		Payload:    payload,
		Timestamp:  ts,
	}
	if err := s.store.InsertEvent(context.Background(), rec); err != nil {
		slog.Error("journal: insert event", "kind", e.Kind(), "error", err)
	}
}

// locate extracts the journal index columns from each event type.
func locate(e event.Event) (common.Address, uint64, time.Time) {
	switch ev := e.(type) {
	case event.NewOrder:
		return ev.Collection, ev.OrderID, ev.Timestamp
	case event.UpdateOrderPrice:
		return ev.Collection, ev.OrderID, ev.Timestamp
	case event.CancelOrder:
		return ev.Collection, ev.OrderID, ev.Timestamp
	case event.Purchase:
		return ev.Collection, ev.OrderID, ev.Timestamp
	case event.NewOffer:
		return ev.Collection, ev.OfferID, ev.Timestamp
	case event.TakeOffer:
		return ev.Collection, ev.OfferID, ev.Timestamp
	case event.CancelOffer:
		return ev.Collection, ev.OfferID, ev.Timestamp
	case event.NewAuction:
		return ev.Collection, ev.AuctionID, ev.Timestamp
	case event.NewBid:
		return ev.Collection, ev.AuctionID, ev.Timestamp
	case event.SettleAuction:
		return ev.Collection, ev.AuctionID, ev.Timestamp
	case event.CancelAuction:
		return ev.Collection, ev.AuctionID, ev.Timestamp
	case event.SetRoyalty:
		return ev.Collection, 0, time.Now()
	default:
		return common.Address{}, 0, time.Now()
	}
}
