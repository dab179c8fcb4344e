package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftx/trade-engine/internal/event"
	"github.com/nftx/trade-engine/internal/model"
	"github.com/nftx/trade-engine/internal/store"
)

var (
	collectionA = common.HexToAddress("0xaa00000000000000000000000000000000000001")
	collectionB = common.HexToAddress("0xbb00000000000000000000000000000000000001")
)

func seedEvents(t *testing.T, ms *store.MemoryStore, n int, collection common.Address) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev := &model.TradeEvent{
			ID:         fmt.Sprintf("%s-%d", collection.Hex()[:8], i),
			Kind:       "NewOrder",
			Collection: collection,
			EntityID:   uint64(i),
			Payload:    []byte(`{}`),
			Timestamp:  time.Unix(int64(1_700_000_000+i), 0),
		}
		if err := ms.InsertEvent(context.Background(), ev); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ms := store.NewMemoryStore()
	seedEvents(t, ms, 5, collectionA)

	events, err := ms.ListEvents(context.Background(), 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].EntityID != 4 || events[2].EntityID != 2 {
		t.Errorf("order = %d, %d, %d; want 4, 3, 2",
			events[0].EntityID, events[1].EntityID, events[2].EntityID)
	}
}

func TestMemoryStore_FilterByCollection(t *testing.T) {
	ms := store.NewMemoryStore()
	seedEvents(t, ms, 3, collectionA)
	seedEvents(t, ms, 2, collectionB)

	events, err := ms.ListEventsByCollection(context.Background(), collectionA, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for _, ev := range events {
		if ev.Collection != collectionA {
			t.Errorf("leaked event from %s", ev.Collection.Hex())
		}
	}
}

func TestSink_JournalsEmittedEvents(t *testing.T) {
	ms := store.NewMemoryStore()
	sink := store.NewSink(ms)

	sink.Emit(event.Purchase{
		Collection: collectionA,
		OrderID:    7,
		TokenID:    42,
		Timestamp:  time.Unix(1_700_000_000, 0),
	})

	events, err := ms.ListEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != "Purchase" || ev.Collection != collectionA || ev.EntityID != 7 {
		t.Errorf("event = %+v", ev)
	}
	if ev.ID == "" {
		t.Error("expected a generated event id")
	}

	var payload struct {
		TokenID uint64 `json:"tokenId"`
	}
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.TokenID != 42 {
		t.Errorf("payload tokenId = %d, want 42", payload.TokenID)
	}
}
