// Package market implements the trading-and-settlement engine: the order,
// offer, and auction lifecycle state machines, the exclusivity-spot
// invariant, and the coupling of payment distribution with asset transfer.
//
// Every mutating entry point is all-or-nothing: the engine snapshots the
// collaborator world on entry and reverts it on any failure, and its own
// entity maps are only written after every external step has succeeded.
// A non-blocking guard rejects reentrant calls from collaborator callbacks.
//
// All monetary values use shopspring/decimal — never float64 for money.
package market

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/nftx/trade-engine/internal/chain"
	"github.com/nftx/trade-engine/internal/config"
	"github.com/nftx/trade-engine/internal/event"
	"github.com/nftx/trade-engine/internal/model"
	"github.com/nftx/trade-engine/internal/pricing"
	"github.com/nftx/trade-engine/internal/revenue"
)

// Deps bundles the engine's collaborators.
type Deps struct {
	Assets    chain.AssetRegistry
	Tokens    chain.TokenLedger
	Native    chain.NativeLedger
	Royalties chain.RoyaltyRegistry // optional
	World     chain.World
	Sink      event.Sink // optional
	Self      common.Address

	// Clock overrides the engine's time source; nil means time.Now.
	Clock func() time.Time
}

// Engine owns the entity maps and identifier allocators, and settles
// trades against the chain collaborators.
type Engine struct {
	cfg      *config.Settings
	assets   chain.AssetRegistry
	tokens   chain.TokenLedger
	native   chain.NativeLedger
	world    chain.World
	splitter *revenue.Splitter
	sink     event.Sink
	self     common.Address
	clock    func() time.Time

	// guard is the reentrancy flag: set for the whole duration of a
	// mutating entry point, cleared on every exit path.
	guard atomic.Bool

	mu          sync.RWMutex
	orders      map[uint64]*model.Order
	offers      map[uint64]*model.Offer
	auctions    map[uint64]*model.Auction
	spots       map[model.SpotKey]model.Spot
	nextOrder   uint64
	nextOffer   uint64
	nextAuction uint64
	bidSeq      uint64
}

// New creates an engine reading admin settings from cfg.
func New(cfg *config.Settings, d Deps) *Engine {
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	sink := d.Sink
	if sink == nil {
		sink = event.MultiSink(nil)
	}
	resolver := revenue.NewResolver(cfg, d.Royalties)
	return &Engine{
		cfg:      cfg,
		assets:   d.Assets,
		tokens:   d.Tokens,
		native:   d.Native,
		world:    d.World,
		splitter: revenue.NewSplitter(cfg, resolver, d.Native, d.Tokens, d.Self),
		sink:     sink,
		self:     d.Self,
		clock:    clock,
		orders:   make(map[uint64]*model.Order),
		offers:   make(map[uint64]*model.Offer),
		auctions: make(map[uint64]*model.Auction),
		spots:    make(map[model.SpotKey]model.Spot),
	}
}

// enter gates a mutating entry point: it fails while paused and rejects
// nested re-entry immediately instead of blocking.
func (e *Engine) enter() error {
	if e.cfg.Paused() {
		return ErrPaused
	}
	if !e.guard.CompareAndSwap(false, true) {
		return ErrReentered
	}
	return nil
}

func (e *Engine) exit() {
	e.guard.Store(false)
}

// run wraps one mutating entry point with the guard and the world
// snapshot/revert discipline.
func (e *Engine) run(op func() error) (err error) {
	if err = e.enter(); err != nil {
		return err
	}
	defer e.exit()

	snap := e.world.Snapshot()
	defer func() {
		if err != nil {
			e.world.RevertTo(snap)
		} else {
			e.world.Release(snap)
		}
	}()
	return op()
}

// collect moves attached native value into engine custody. The surrounding
// snapshot returns it if the operation later fails.
func (e *Engine) collect(ctx context.Context, call chain.Call) error {
	if call.Value.IsPositive() {
		if err := e.native.Collect(ctx, call.Sender, call.Value); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	return nil
}

// checkPaymentToken validates a listing's payment token choice.
func (e *Engine) checkPaymentToken(token common.Address) error {
	if !model.IsNative(token) && !e.cfg.TokenAllowed(token) {
		return fmt.Errorf("%w: payment token %s is not supported", ErrValidation, token.Hex())
	}
	return nil
}

// spotFree reports whether the exclusivity spot for key is claimable: it is
// free when empty or when the referenced entity is terminal or outside its
// time window.
func (e *Engine) spotFree(key model.SpotKey, now time.Time) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	spot, ok := e.spots[key]
	if !ok {
		return true
	}
	switch spot.Kind {
	case model.SpotOrder:
		o, ok := e.orders[spot.ID]
		return !ok || o.Status != model.StatusOpen || !o.WithinWindow(now)
	case model.SpotAuction:
		a, ok := e.auctions[spot.ID]
		return !ok || a.Status != model.StatusOpen || !a.WithinWindow(now)
	default:
		return true
	}
}

func (e *Engine) emit(ev event.Event) {
	e.sink.Emit(ev)
}

// --- Views ---

// Order returns a copy of a listing.
func (e *Engine) Order(id uint64) (model.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	return *o, nil
}

// Offer returns a copy of an offer.
func (e *Engine) Offer(id uint64) (model.Offer, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.offers[id]
	if !ok {
		return model.Offer{}, fmt.Errorf("%w: offer %d", ErrNotFound, id)
	}
	return *o, nil
}

// Auction returns a copy of an auction.
func (e *Engine) Auction(id uint64) (model.Auction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.auctions[id]
	if !ok {
		return model.Auction{}, fmt.Errorf("%w: auction %d", ErrNotFound, id)
	}
	return *a, nil
}

// Orders returns copies of all listings.
func (e *Engine) Orders() []model.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	return out
}

// Offers returns copies of all offers.
func (e *Engine) Offers() []model.Offer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Offer, 0, len(e.offers))
	for _, o := range e.offers {
		out = append(out, *o)
	}
	return out
}

// Auctions returns copies of all auctions.
func (e *Engine) Auctions() []model.Auction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Auction, 0, len(e.auctions))
	for _, a := range e.auctions {
		out = append(out, *a)
	}
	return out
}

// Quote returns the amount currently due to buy an open listing.
func (e *Engine) Quote(id uint64) (decimal.Decimal, error) {
	o, err := e.Order(id)
	if err != nil {
		return decimal.Zero, err
	}
	if o.Status != model.StatusOpen {
		return decimal.Zero, fmt.Errorf("%w: order %d is %s", ErrBadState, id, o.Status)
	}
	price, err := pricing.CurrentPrice(o.Type, o.BasePrice, o.EndingPrice,
		o.ListingTime, o.ExpirationTime, e.clock())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return price, nil
}

// SetRoyalty declares a self-declared royalty term for a collection.
// Operator only. Not gated by the pause switch: it is configuration, not
// trading, and touches no collaborator.
func (e *Engine) SetRoyalty(_ context.Context, call chain.Call, collection,
	beneficiary common.Address, ratioBps int64) error {
	if !e.cfg.IsOperator(call.Sender) {
		return fmt.Errorf("%w: only the platform operator may set royalties", ErrUnauthorized)
	}
	if err := e.cfg.SetRoyaltyOverride(collection, beneficiary, ratioBps); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	e.emit(event.SetRoyalty{Collection: collection, Beneficiary: beneficiary, Ratio: ratioBps})
	return nil
}
