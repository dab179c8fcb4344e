package market_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nftx/trade-engine/internal/event"
	"github.com/nftx/trade-engine/internal/market"
	"github.com/nftx/trade-engine/internal/model"
)

func TestCreateListing(t *testing.T) {
	e := newEnv(t)
	e.world.MintAsset(collection, 1, alice)

	id, err := e.engine.CreateListing(context.Background(), call(alice), e.listing())
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if id != 0 {
		t.Errorf("first id = %d, want 0", id)
	}

	o, err := e.engine.Order(id)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != model.StatusOpen || o.Maker != alice {
		t.Errorf("order = %+v", o)
	}

	ev, ok := e.sink.last().(event.NewOrder)
	if !ok {
		t.Fatalf("last event = %T, want NewOrder", e.sink.last())
	}
	if ev.OrderID != id || !ev.BasePrice.Equal(d(1000)) {
		t.Errorf("event = %+v", ev)
	}
}

func TestCreateListing_Validation(t *testing.T) {
	e := newEnv(t)
	e.world.MintAsset(collection, 1, alice)

	cases := []struct {
		name   string
		mutate func(*market.ListingParams)
	}{
		{"zero base price", func(p *market.ListingParams) { p.BasePrice = d(0) }},
		{"negative base price", func(p *market.ListingParams) { p.BasePrice = d(-5) }},
		{"ending above base", func(p *market.ListingParams) {
			p.Type = model.TypeDutchAuction
			p.EndingPrice = d(2000)
		}},
		{"inverted window", func(p *market.ListingParams) { p.ExpirationTime = p.ListingTime }},
		{"unknown type", func(p *market.ListingParams) { p.Type = model.TypeNone }},
		{"unsupported token", func(p *market.ListingParams) {
			p.PaymentToken = bob // not on the allowlist
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := e.listing()
			c.mutate(&p)
			if _, err := e.engine.CreateListing(context.Background(), call(alice), p); !errors.Is(err, market.ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}

	// Non-owner cannot list.
	if _, err := e.engine.CreateListing(context.Background(), call(bob), e.listing()); !errors.Is(err, market.ErrUnauthorized) {
		t.Errorf("non-owner: got %v, want ErrUnauthorized", err)
	}
}

func TestListingExclusivity(t *testing.T) {
	e := newEnv(t)
	id := e.seedListing(t)

	// A second listing for the same item and owner is rejected while the
	// first is live.
	if _, err := e.engine.CreateListing(context.Background(), call(alice), e.listing()); !errors.Is(err, market.ErrSpotTaken) {
		t.Errorf("duplicate listing: got %v, want ErrSpotTaken", err)
	}

	// Cancelling frees the spot.
	if err := e.engine.CancelOrder(context.Background(), call(alice), id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := e.engine.CreateListing(context.Background(), call(alice), e.listing()); err != nil {
		t.Errorf("relist after cancel: %v", err)
	}
}

func TestListingExclusivity_ExpiryFreesSpot(t *testing.T) {
	e := newEnv(t)
	e.seedListing(t)

	// The spot is keyed by owner too: after the item changes hands the new
	// owner lists independently.
	e.world.MintAsset(collection, 1, bob)
	p := e.listing()
	if _, err := e.engine.CreateListing(context.Background(), call(bob), p); err != nil {
		t.Errorf("new owner listing: %v", err)
	}

	// And a listing past its window no longer holds its spot.
	e.world.MintAsset(collection, 1, alice)
	e.advance(2 * time.Hour)
	p = e.listing()
	p.ListingTime = e.now
	p.ExpirationTime = e.now.Add(time.Hour)
	if _, err := e.engine.CreateListing(context.Background(), call(alice), p); err != nil {
		t.Errorf("relist after expiry: %v", err)
	}
}

func TestReprice(t *testing.T) {
	e := newEnv(t)
	id := e.seedListing(t)

	if err := e.engine.Reprice(context.Background(), call(bob), id, d(900)); !errors.Is(err, market.ErrUnauthorized) {
		t.Errorf("non-maker: got %v, want ErrUnauthorized", err)
	}
	if err := e.engine.Reprice(context.Background(), call(alice), id, d(0)); !errors.Is(err, market.ErrValidation) {
		t.Errorf("zero price: got %v, want ErrValidation", err)
	}
	if err := e.engine.Reprice(context.Background(), call(alice), id, d(900)); err != nil {
		t.Fatalf("reprice: %v", err)
	}

	o, _ := e.engine.Order(id)
	if !o.BasePrice.Equal(d(900)) {
		t.Errorf("base price = %s, want 900", o.BasePrice)
	}
	ev, ok := e.sink.last().(event.UpdateOrderPrice)
	if !ok {
		t.Fatalf("last event = %T, want UpdateOrderPrice", e.sink.last())
	}
	if !ev.OldPrice.Equal(d(1000)) || !ev.NewPrice.Equal(d(900)) {
		t.Errorf("event = %+v", ev)
	}
}

func TestReprice_DutchRejected(t *testing.T) {
	e := newEnv(t)
	e.world.MintAsset(collection, 1, alice)
	p := e.listing()
	p.Type = model.TypeDutchAuction
	p.EndingPrice = d(500)
	id, err := e.engine.CreateListing(context.Background(), call(alice), p)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}

	if err := e.engine.Reprice(context.Background(), call(alice), id, d(900)); !errors.Is(err, market.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestCancelOrder_OutsideWindow(t *testing.T) {
	e := newEnv(t)
	id := e.seedListing(t)
	e.advance(2 * time.Hour)

	// An expired listing is inert; it cannot even be cancelled.
	if err := e.engine.CancelOrder(context.Background(), call(alice), id); !errors.Is(err, market.ErrBadState) {
		t.Errorf("got %v, want ErrBadState", err)
	}
}

func TestExecuteBuy_Native(t *testing.T) {
	e := newEnv(t)
	id := e.seedListing(t)
	e.world.SetRoyaltyTerm(collection, carol, 1000)
	e.world.FundNative(bob, d(1200))

	// Overpayment: the excess 200 comes straight back.
	breakdown, err := e.engine.ExecuteBuy(context.Background(), callV(bob, d(1200)), id)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	if !breakdown.Fee.Equal(d(25)) || !breakdown.Royalty.Equal(d(100)) || !breakdown.SellerShare.Equal(d(875)) {
		t.Errorf("breakdown = %+v", breakdown)
	}
	if got := e.world.NativeBalance(bob); !got.Equal(d(200)) {
		t.Errorf("buyer balance = %s, want 200", got)
	}
	if got := e.world.NativeBalance(alice); !got.Equal(d(875)) {
		t.Errorf("seller balance = %s, want 875", got)
	}
	if owner := e.world.AssetOwner(collection, 1); owner != bob {
		t.Errorf("asset owner = %s, want bob", owner.Hex())
	}

	o, _ := e.engine.Order(id)
	if o.Status != model.StatusExecuted {
		t.Errorf("status = %s, want executed", o.Status)
	}
	if _, ok := e.sink.last().(event.Purchase); !ok {
		t.Errorf("last event = %T, want Purchase", e.sink.last())
	}

	// A settled order cannot be bought again.
	e.world.FundNative(carol, d(1000))
	if _, err := e.engine.ExecuteBuy(context.Background(), callV(carol, d(1000)), id); !errors.Is(err, market.ErrBadState) {
		t.Errorf("double buy: got %v, want ErrBadState", err)
	}
}

func TestExecuteBuy_InsufficientValue(t *testing.T) {
	e := newEnv(t)
	id := e.seedListing(t)
	e.world.FundNative(bob, d(999))

	if _, err := e.engine.ExecuteBuy(context.Background(), callV(bob, d(999)), id); !errors.Is(err, market.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
	// The short payment was returned with the revert.
	if got := e.world.NativeBalance(bob); !got.Equal(d(999)) {
		t.Errorf("buyer balance = %s, want 999", got)
	}
}

func TestExecuteBuy_TakerRestriction(t *testing.T) {
	e := newEnv(t)
	e.world.MintAsset(collection, 1, alice)
	p := e.listing()
	p.Taker = carol
	id, err := e.engine.CreateListing(context.Background(), call(alice), p)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}

	e.world.FundNative(bob, d(1000))
	e.world.FundNative(carol, d(1000))

	if _, err := e.engine.ExecuteBuy(context.Background(), callV(bob, d(1000)), id); !errors.Is(err, market.ErrUnauthorized) {
		t.Errorf("wrong taker: got %v, want ErrUnauthorized", err)
	}
	if _, err := e.engine.ExecuteBuy(context.Background(), callV(carol, d(1000)), id); err != nil {
		t.Errorf("designated taker: %v", err)
	}
}

func TestExecuteBuy_OwnershipChanged(t *testing.T) {
	e := newEnv(t)
	id := e.seedListing(t)

	// The maker moved the item out-of-band after listing.
	e.world.MintAsset(collection, 1, carol)

	e.world.FundNative(bob, d(1000))
	if _, err := e.engine.ExecuteBuy(context.Background(), callV(bob, d(1000)), id); !errors.Is(err, market.ErrBadState) {
		t.Errorf("got %v, want ErrBadState", err)
	}
}

func TestExecuteBuy_Token(t *testing.T) {
	e := newEnv(t)
	e.world.MintAsset(collection, 1, alice)
	p := e.listing()
	p.PaymentToken = tokenAddr
	id, err := e.engine.CreateListing(context.Background(), call(alice), p)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}

	e.world.FundToken(tokenAddr, bob, d(1000))
	e.world.Approve(tokenAddr, bob, d(1000))

	// Token settlement must not attach native value.
	if _, err := e.engine.ExecuteBuy(context.Background(), callV(bob, d(1)), id); !errors.Is(err, market.ErrValidation) {
		t.Errorf("attached value: got %v, want ErrValidation", err)
	}

	if _, err := e.engine.ExecuteBuy(context.Background(), call(bob), id); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if got := e.world.TokenBalance(tokenAddr, alice); !got.Equal(d(975)) {
		t.Errorf("seller token balance = %s, want 975", got)
	}
	if got := e.world.TokenBalance(tokenAddr, platform); !got.Equal(d(25)) {
		t.Errorf("platform token balance = %s, want 25", got)
	}
}

func TestExecuteBuy_DutchDecay(t *testing.T) {
	e := newEnv(t)
	e.world.MintAsset(collection, 1, alice)
	p := e.listing()
	p.Type = model.TypeDutchAuction
	p.BasePrice = d(1000)
	p.EndingPrice = d(500)
	p.ExpirationTime = e.now.Add(1000 * time.Second)
	id, err := e.engine.CreateListing(context.Background(), call(alice), p)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}

	e.advance(500 * time.Second)
	e.world.FundNative(bob, d(1000))

	// Due price is 750; attaching 1000 refunds the 250 difference.
	if _, err := e.engine.ExecuteBuy(context.Background(), callV(bob, d(1000)), id); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if got := e.world.NativeBalance(bob); !got.Equal(d(250)) {
		t.Errorf("buyer balance = %s, want 250", got)
	}
	// fee = floor(750 * 250 / 10000) = 18, seller takes the remainder.
	if got := e.world.NativeBalance(platform); !got.Equal(d(18)) {
		t.Errorf("platform balance = %s, want 18", got)
	}
	if got := e.world.NativeBalance(alice); !got.Equal(d(732)) {
		t.Errorf("seller balance = %s, want 732", got)
	}
}
