package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/nftx/trade-engine/internal/chain"
	"github.com/nftx/trade-engine/internal/event"
	"github.com/nftx/trade-engine/internal/model"
	"github.com/nftx/trade-engine/internal/pricing"
	"github.com/nftx/trade-engine/internal/revenue"
)

// ListingParams describes a new fixed-price or Dutch listing.
type ListingParams struct {
	Collection     common.Address
	PaymentToken   common.Address
	TokenID        uint64
	Type           model.OrderType
	BasePrice      decimal.Decimal
	EndingPrice    decimal.Decimal
	Taker          common.Address // zero = anyone
	ListingTime    time.Time
	ExpirationTime time.Time
}

// CreateListing lists an item for sale. The caller must own the item and
// hold no other active listing or auction for it.
func (e *Engine) CreateListing(ctx context.Context, call chain.Call, p ListingParams) (uint64, error) {
	var id uint64
	err := e.run(func() error {
		if call.Value.IsPositive() {
			return fmt.Errorf("%w: listing creation takes no attached value", ErrValidation)
		}
		if p.Type != model.TypeFixedPrice && p.Type != model.TypeDutchAuction {
			return fmt.Errorf("%w: unknown order type", ErrValidation)
		}
		if !p.BasePrice.IsPositive() {
			return fmt.Errorf("%w: base price must be positive", ErrValidation)
		}
		if p.EndingPrice.GreaterThan(p.BasePrice) {
			return fmt.Errorf("%w: ending price must not exceed base price", ErrValidation)
		}
		if !p.ExpirationTime.After(p.ListingTime) {
			return fmt.Errorf("%w: expiration must follow listing time", ErrValidation)
		}
		if err := e.checkPaymentToken(p.PaymentToken); err != nil {
			return err
		}

		owner, err := e.assets.OwnerOf(ctx, p.Collection, p.TokenID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if owner != call.Sender {
			return fmt.Errorf("%w: caller does not own the item", ErrUnauthorized)
		}

		now := e.clock()
		key := model.SpotKey{Collection: p.Collection, TokenID: p.TokenID, Owner: call.Sender}
		if !e.spotFree(key, now) {
			return ErrSpotTaken
		}

		e.mu.Lock()
		id = e.nextOrder
		e.nextOrder++
		e.orders[id] = &model.Order{
			ID:             id,
			Type:           p.Type,
			Status:         model.StatusOpen,
			Collection:     p.Collection,
			PaymentToken:   p.PaymentToken,
			Maker:          call.Sender,
			Taker:          p.Taker,
			TokenID:        p.TokenID,
			BasePrice:      p.BasePrice,
			EndingPrice:    p.EndingPrice,
			ListingTime:    p.ListingTime,
			ExpirationTime: p.ExpirationTime,
		}
		e.spots[key] = model.Spot{Kind: model.SpotOrder, ID: id}
		e.mu.Unlock()

		slog.Info("listing created",
			"order_id", id,
			"collection", p.Collection.Hex(),
			"token_id", p.TokenID,
			"type", p.Type.String(),
			"maker", call.Sender.Hex(),
			"base_price", p.BasePrice.String(),
		)
		e.emit(event.NewOrder{
			Collection:     p.Collection,
			OrderID:        id,
			TokenID:        p.TokenID,
			PaymentToken:   p.PaymentToken,
			OrderType:      p.Type,
			Maker:          call.Sender,
			Taker:          p.Taker,
			BasePrice:      p.BasePrice,
			EndingPrice:    p.EndingPrice,
			ListingTime:    p.ListingTime,
			ExpirationTime: p.ExpirationTime,
			Timestamp:      now,
		})
		return nil
	})
	return id, err
}

// Reprice changes the price of an open fixed-price listing. Maker only,
// within the listing's time window.
func (e *Engine) Reprice(_ context.Context, call chain.Call, orderID uint64, newBasePrice decimal.Decimal) error {
	return e.run(func() error {
		now := e.clock()

		e.mu.Lock()
		defer e.mu.Unlock()

		o, ok := e.orders[orderID]
		if !ok {
			return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		if o.Type != model.TypeFixedPrice {
			return fmt.Errorf("%w: only fixed-price listings can be repriced", ErrValidation)
		}
		if o.Status != model.StatusOpen {
			return fmt.Errorf("%w: order %d is %s", ErrBadState, orderID, o.Status)
		}
		if !o.WithinWindow(now) {
			return fmt.Errorf("%w: order %d is outside its time window", ErrBadState, orderID)
		}
		if o.Maker != call.Sender {
			return fmt.Errorf("%w: only the maker may reprice", ErrUnauthorized)
		}
		if !newBasePrice.IsPositive() {
			return fmt.Errorf("%w: base price must be positive", ErrValidation)
		}

		old := o.BasePrice
		o.BasePrice = newBasePrice

		e.emit(event.UpdateOrderPrice{
			Collection: o.Collection,
			OrderID:    orderID,
			OldPrice:   old,
			NewPrice:   newBasePrice,
			Timestamp:  now,
		})
		return nil
	})
}

// CancelOrder cancels an open listing. Maker only, within the time window.
func (e *Engine) CancelOrder(_ context.Context, call chain.Call, orderID uint64) error {
	return e.run(func() error {
		now := e.clock()

		e.mu.Lock()
		defer e.mu.Unlock()

		o, ok := e.orders[orderID]
		if !ok {
			return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		if o.Status != model.StatusOpen {
			return fmt.Errorf("%w: order %d is %s", ErrBadState, orderID, o.Status)
		}
		if !o.WithinWindow(now) {
			return fmt.Errorf("%w: order %d is outside its time window", ErrBadState, orderID)
		}
		if o.Maker != call.Sender {
			return fmt.Errorf("%w: only the maker may cancel", ErrUnauthorized)
		}

		o.Status = model.StatusCancelled

		slog.Info("listing cancelled", "order_id", orderID, "maker", call.Sender.Hex())
		e.emit(event.CancelOrder{Collection: o.Collection, OrderID: orderID, Timestamp: now})
		return nil
	})
}

// ExecuteBuy settles an open listing at its current price: it splits the
// revenue, transfers the item maker→caller, and marks the order executed.
// Native settlement refunds any excess attached value to the caller.
func (e *Engine) ExecuteBuy(ctx context.Context, call chain.Call, orderID uint64) (revenue.Breakdown, error) {
	var breakdown revenue.Breakdown
	var price decimal.Decimal
	err := e.run(func() error {
		if err := e.collect(ctx, call); err != nil {
			return err
		}

		o, err := e.Order(orderID)
		if err != nil {
			return err
		}
		now := e.clock()
		if o.Status != model.StatusOpen {
			return fmt.Errorf("%w: order %d is %s", ErrBadState, orderID, o.Status)
		}
		if !o.WithinWindow(now) {
			return fmt.Errorf("%w: order %d is outside its time window", ErrBadState, orderID)
		}
		if o.Taker != model.None && call.Sender != o.Taker {
			return fmt.Errorf("%w: listing is restricted to a designated taker", ErrUnauthorized)
		}

		// The maker may have moved the item out-of-band since listing.
		owner, err := e.assets.OwnerOf(ctx, o.Collection, o.TokenID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadState, err)
		}
		if owner != o.Maker {
			return fmt.Errorf("%w: ownership changed since listing", ErrBadState)
		}

		price, err = pricing.CurrentPrice(o.Type, o.BasePrice, o.EndingPrice,
			o.ListingTime, o.ExpirationTime, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}

		fromCustody := false
		if model.IsNative(o.PaymentToken) {
			if call.Value.LessThan(price) {
				return fmt.Errorf("%w: attached value %s below due price %s", ErrValidation, call.Value, price)
			}
			if excess := call.Value.Sub(price); excess.IsPositive() {
				if !e.native.Send(ctx, call.Sender, excess) {
					return fmt.Errorf("%w: excess refund to %s", ErrTransferFailed, call.Sender.Hex())
				}
			}
			fromCustody = true
		} else if call.Value.IsPositive() {
			return fmt.Errorf("%w: token settlement takes no attached value", ErrValidation)
		}

		breakdown, err = e.splitter.Split(ctx, revenue.Sale{
			Collection:   o.Collection,
			TokenID:      o.TokenID,
			PaymentToken: o.PaymentToken,
			Price:        price,
			Seller:       o.Maker,
			Payer:        call.Sender,
			FromCustody:  fromCustody,
		})
		if err != nil {
			return err
		}

		if err := e.assets.TransferFrom(ctx, o.Collection, o.Maker, call.Sender, o.TokenID); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}

		e.mu.Lock()
		e.orders[orderID].Status = model.StatusExecuted
		e.mu.Unlock()

		slog.Info("purchase executed",
			"order_id", orderID,
			"buyer", call.Sender.Hex(),
			"seller", o.Maker.Hex(),
			"price", price.String(),
			"fee", breakdown.Fee.String(),
			"royalty", breakdown.Royalty.String(),
		)
		e.emit(event.Purchase{
			Collection: o.Collection,
			OrderID:    orderID,
			TokenID:    o.TokenID,
			Seller:     o.Maker,
			Buyer:      call.Sender,
			Price:      price,
			Timestamp:  now,
		})
		return nil
	})
	return breakdown, err
}
