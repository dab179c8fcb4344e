package market_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/nftx/trade-engine/internal/chain"
	"github.com/nftx/trade-engine/internal/config"
	"github.com/nftx/trade-engine/internal/event"
	"github.com/nftx/trade-engine/internal/market"
	"github.com/nftx/trade-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var (
	engineAddr = common.HexToAddress("0xe000000000000000000000000000000000000001")
	platform   = common.HexToAddress("0xfee0000000000000000000000000000000000001")
	operator   = common.HexToAddress("0x0b00000000000000000000000000000000000001")
	alice      = common.HexToAddress("0xa000000000000000000000000000000000000001")
	bob        = common.HexToAddress("0xb000000000000000000000000000000000000001")
	carol      = common.HexToAddress("0xcc00000000000000000000000000000000000001")
	collection = common.HexToAddress("0xc011ec7000000000000000000000000000000001")
	tokenAddr  = common.HexToAddress("0x7000000000000000000000000000000000000001")
)

// recorder captures emitted events for assertions.
type recorder struct {
	events []event.Event
}

func (r *recorder) Emit(e event.Event) {
	r.events = append(r.events, e)
}

func (r *recorder) last() event.Event {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// env is one engine over a seeded in-memory world with a controllable clock.
type env struct {
	cfg    *config.Settings
	world  *chain.Memory
	engine *market.Engine
	sink   *recorder
	now    time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.New()
	cfg.SetFeeBeneficiary(platform)
	cfg.SetOperator(operator)
	cfg.AllowToken(tokenAddr)

	e := &env{
		cfg:   cfg,
		world: chain.NewMemory(engineAddr),
		sink:  &recorder{},
		now:   time.Unix(1_700_000_000, 0),
	}
	e.engine = market.New(cfg, market.Deps{
		Assets:    e.world.Assets(),
		Tokens:    e.world.Tokens(),
		Native:    e.world.Native(),
		Royalties: e.world.Royalties(),
		World:     e.world,
		Sink:      e.sink,
		Self:      engineAddr,
		Clock:     func() time.Time { return e.now },
	})
	return e
}

func (e *env) advance(by time.Duration) {
	e.now = e.now.Add(by)
}

func call(sender common.Address) chain.Call {
	return chain.Call{Sender: sender, Origin: sender}
}

func callV(sender common.Address, value decimal.Decimal) chain.Call {
	return chain.Call{Sender: sender, Origin: sender, Value: value}
}

// listing returns valid fixed-price listing params for alice's item.
func (e *env) listing() market.ListingParams {
	return market.ListingParams{
		Collection:     collection,
		PaymentToken:   model.Native,
		TokenID:        1,
		Type:           model.TypeFixedPrice,
		BasePrice:      d(1000),
		ListingTime:    e.now,
		ExpirationTime: e.now.Add(time.Hour),
	}
}

// seedListing mints item 1 to alice and lists it at 1000 native.
func (e *env) seedListing(t *testing.T) uint64 {
	t.Helper()
	e.world.MintAsset(collection, 1, alice)
	id, err := e.engine.CreateListing(context.Background(), call(alice), e.listing())
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return id
}

func TestPauseBlocksTrading(t *testing.T) {
	e := newEnv(t)
	id := e.seedListing(t)
	e.cfg.SetPaused(true)

	e.world.FundNative(bob, d(1000))
	if _, err := e.engine.ExecuteBuy(context.Background(), callV(bob, d(1000)), id); !errors.Is(err, market.ErrPaused) {
		t.Errorf("buy while paused: got %v, want ErrPaused", err)
	}
	if err := e.engine.CancelOrder(context.Background(), call(alice), id); !errors.Is(err, market.ErrPaused) {
		t.Errorf("cancel while paused: got %v, want ErrPaused", err)
	}

	// Views stay available.
	if _, err := e.engine.Order(id); err != nil {
		t.Errorf("view while paused: %v", err)
	}

	// Unpause restores everything.
	e.cfg.SetPaused(false)
	if err := e.engine.CancelOrder(context.Background(), call(alice), id); err != nil {
		t.Errorf("cancel after unpause: %v", err)
	}
}

func TestReentrantCallRejected(t *testing.T) {
	e := newEnv(t)
	id := e.seedListing(t)
	e.world.FundNative(bob, d(1000))

	// The asset-transfer hook stands in for hostile receiver code trying to
	// re-enter the engine mid-settlement.
	var inner error
	e.world.TransferHook = func() {
		inner = e.engine.CancelOrder(context.Background(), call(alice), id)
	}

	if _, err := e.engine.ExecuteBuy(context.Background(), callV(bob, d(1000)), id); err != nil {
		t.Fatalf("outer buy failed: %v", err)
	}
	if !errors.Is(inner, market.ErrReentered) {
		t.Errorf("inner call: got %v, want ErrReentered", inner)
	}

	// The outer operation committed despite the rejected re-entry.
	o, _ := e.engine.Order(id)
	if o.Status != model.StatusExecuted {
		t.Errorf("order status = %s, want executed", o.Status)
	}
}

func TestFailedSettlementLeavesNoTrace(t *testing.T) {
	e := newEnv(t)
	id := e.seedListing(t)
	e.world.FundNative(bob, d(1500))
	e.world.FailSendsTo(alice, true) // seller payout will fail

	_, err := e.engine.ExecuteBuy(context.Background(), callV(bob, d(1500)), id)
	if err == nil {
		t.Fatal("expected settlement failure")
	}

	// Everything the operation touched must be rolled back: the collected
	// value, the excess refund, and the asset.
	if got := e.world.NativeBalance(bob); !got.Equal(d(1500)) {
		t.Errorf("buyer balance = %s, want 1500", got)
	}
	if got := e.world.NativeBalance(engineAddr); !got.IsZero() {
		t.Errorf("engine balance = %s, want 0", got)
	}
	if owner := e.world.AssetOwner(collection, 1); owner != alice {
		t.Errorf("asset owner = %s, want alice", owner.Hex())
	}
	o, _ := e.engine.Order(id)
	if o.Status != model.StatusOpen {
		t.Errorf("order status = %s, want open", o.Status)
	}

	// The listing is still buyable once the obstacle clears.
	e.world.FailSendsTo(alice, false)
	if _, err := e.engine.ExecuteBuy(context.Background(), callV(bob, d(1000)), id); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestSetRoyalty(t *testing.T) {
	e := newEnv(t)
	creator := common.HexToAddress("0xc000000000000000000000000000000000000001")

	if err := e.engine.SetRoyalty(context.Background(), call(alice), collection, creator, 500); !errors.Is(err, market.ErrUnauthorized) {
		t.Errorf("non-operator: got %v, want ErrUnauthorized", err)
	}
	if err := e.engine.SetRoyalty(context.Background(), call(operator), collection, creator, 500); err != nil {
		t.Fatalf("operator set royalty: %v", err)
	}

	ev, ok := e.sink.last().(event.SetRoyalty)
	if !ok {
		t.Fatalf("last event = %T, want SetRoyalty", e.sink.last())
	}
	if ev.Beneficiary != creator || ev.Ratio != 500 {
		t.Errorf("event = %+v", ev)
	}

	// Royalty administration works while trading is paused.
	e.cfg.SetPaused(true)
	if err := e.engine.SetRoyalty(context.Background(), call(operator), collection, creator, 250); err != nil {
		t.Errorf("set royalty while paused: %v", err)
	}
}

func TestQuote(t *testing.T) {
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
	price, err := e.engine.Quote(id)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !price.Equal(d(750)) {
		t.Errorf("quote = %s, want 750", price)
	}

	if _, err := e.engine.Quote(99); !errors.Is(err, market.ErrNotFound) {
		t.Errorf("unknown order: got %v, want ErrNotFound", err)
	}
}
