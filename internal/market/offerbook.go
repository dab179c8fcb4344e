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
	"github.com/nftx/trade-engine/internal/revenue"
)

// OfferParams describes a new buyer offer on one item.
type OfferParams struct {
	Collection     common.Address
	PaymentToken   common.Address
	TokenID        uint64
	Price          decimal.Decimal
	ExpirationTime time.Time
}

// CreateOffer places a standing offer. Native offers must attach exactly
// the offer price, which is escrowed immediately. Token offers attach no
// value; the buyer's balance and allowance are snapshot-checked here and
// the funds are pulled only at acceptance time.
func (e *Engine) CreateOffer(ctx context.Context, call chain.Call, p OfferParams) (uint64, error) {
	var id uint64
	err := e.run(func() error {
		if err := e.collect(ctx, call); err != nil {
			return err
		}

		if !p.Price.IsPositive() {
			return fmt.Errorf("%w: offer price must be positive", ErrValidation)
		}
		now := e.clock()
		if !p.ExpirationTime.After(now) {
			return fmt.Errorf("%w: expiration must be in the future", ErrValidation)
		}

		if model.IsNative(p.PaymentToken) {
			if !call.Value.Equal(p.Price) {
				return fmt.Errorf("%w: attached value %s must equal offer price %s",
					ErrValidation, call.Value, p.Price)
			}
		} else {
			if !e.cfg.TokenAllowed(p.PaymentToken) {
				return fmt.Errorf("%w: payment token %s is not supported", ErrValidation, p.PaymentToken.Hex())
			}
			if call.Value.IsPositive() {
				return fmt.Errorf("%w: token offers take no attached value", ErrValidation)
			}
			balance, err := e.tokens.BalanceOf(ctx, p.PaymentToken, call.Sender)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
			if balance.LessThan(p.Price) {
				return fmt.Errorf("%w: buyer balance %s below offer price", ErrValidation, balance)
			}
			allowance, err := e.tokens.Allowance(ctx, p.PaymentToken, call.Sender)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
			if allowance.LessThan(p.Price) {
				return fmt.Errorf("%w: buyer allowance %s below offer price", ErrValidation, allowance)
			}
		}

		e.mu.Lock()
		id = e.nextOffer
		e.nextOffer++
		e.offers[id] = &model.Offer{
			ID:             id,
			Status:         model.StatusOpen,
			Collection:     p.Collection,
			PaymentToken:   p.PaymentToken,
			Buyer:          call.Sender,
			TokenID:        p.TokenID,
			Price:          p.Price,
			ExpirationTime: p.ExpirationTime,
		}
		e.mu.Unlock()

		slog.Info("offer created",
			"offer_id", id,
			"collection", p.Collection.Hex(),
			"token_id", p.TokenID,
			"buyer", call.Sender.Hex(),
			"price", p.Price.String(),
		)
		e.emit(event.NewOffer{
			Collection:     p.Collection,
			OfferID:        id,
			TokenID:        p.TokenID,
			Buyer:          call.Sender,
			PaymentToken:   p.PaymentToken,
			Price:          p.Price,
			ExpirationTime: p.ExpirationTime,
			Timestamp:      now,
		})
		return nil
	})
	return id, err
}

// AcceptOffer settles an open, unexpired offer. The caller must currently
// own the item. Token funds are pulled from the buyer here, so a revoked
// allowance fails the acceptance, not the offer's creation.
func (e *Engine) AcceptOffer(ctx context.Context, call chain.Call, offerID uint64) (revenue.Breakdown, error) {
	var breakdown revenue.Breakdown
	err := e.run(func() error {
		if call.Value.IsPositive() {
			return fmt.Errorf("%w: offer acceptance takes no attached value", ErrValidation)
		}

		o, err := e.Offer(offerID)
		if err != nil {
			return err
		}
		now := e.clock()
		if o.Status != model.StatusOpen {
			return fmt.Errorf("%w: offer %d is %s", ErrBadState, offerID, o.Status)
		}
		if o.Expired(now) {
			return fmt.Errorf("%w: offer %d has expired", ErrBadState, offerID)
		}

		owner, err := e.assets.OwnerOf(ctx, o.Collection, o.TokenID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadState, err)
		}
		if owner != call.Sender {
			return fmt.Errorf("%w: caller does not own the item", ErrUnauthorized)
		}

		breakdown, err = e.splitter.Split(ctx, revenue.Sale{
			Collection:   o.Collection,
			TokenID:      o.TokenID,
			PaymentToken: o.PaymentToken,
			Price:        o.Price,
			Seller:       call.Sender,
			Payer:        o.Buyer,
			FromCustody:  model.IsNative(o.PaymentToken), // native funds were escrowed at creation
		})
		if err != nil {
			return err
		}

		if err := e.assets.TransferFrom(ctx, o.Collection, call.Sender, o.Buyer, o.TokenID); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}

		e.mu.Lock()
		e.offers[offerID].Status = model.StatusExecuted
		e.mu.Unlock()

		slog.Info("offer accepted",
			"offer_id", offerID,
			"seller", call.Sender.Hex(),
			"buyer", o.Buyer.Hex(),
			"price", o.Price.String(),
		)
		e.emit(event.TakeOffer{
			Collection:   o.Collection,
			OfferID:      offerID,
			TokenID:      o.TokenID,
			Seller:       call.Sender,
			Buyer:        o.Buyer,
			PaymentToken: o.PaymentToken,
			Price:        o.Price,
			Timestamp:    now,
		})
		return nil
	})
	return breakdown, err
}

// CancelOffer withdraws an open offer and refunds escrowed native value.
// Buyer only; expiration never blocks a buyer-initiated cancellation.
func (e *Engine) CancelOffer(ctx context.Context, call chain.Call, offerID uint64) error {
	return e.run(func() error {
		o, err := e.Offer(offerID)
		if err != nil {
			return err
		}
		if o.Buyer != call.Sender {
			return fmt.Errorf("%w: only the buyer may cancel", ErrUnauthorized)
		}
		return e.cancelOffer(ctx, o)
	})
}

// AdminCancelOffer is the operator's emergency unwind of an open offer,
// with the same refund behavior as a buyer cancellation.
func (e *Engine) AdminCancelOffer(ctx context.Context, call chain.Call, offerID uint64) error {
	return e.run(func() error {
		o, err := e.Offer(offerID)
		if err != nil {
			return err
		}
		if !e.cfg.IsOperator(call.Sender) {
			return fmt.Errorf("%w: only the platform operator may admin-cancel", ErrUnauthorized)
		}
		return e.cancelOffer(ctx, o)
	})
}

// cancelOffer refunds and terminates an offer; callers hold the guard.
func (e *Engine) cancelOffer(ctx context.Context, o model.Offer) error {
	if o.Status != model.StatusOpen {
		return fmt.Errorf("%w: offer %d is %s", ErrBadState, o.ID, o.Status)
	}

	if model.IsNative(o.PaymentToken) {
		if !e.native.Send(ctx, o.Buyer, o.Price) {
			return fmt.Errorf("%w: escrow refund to %s", ErrTransferFailed, o.Buyer.Hex())
		}
	}

	e.mu.Lock()
	e.offers[o.ID].Status = model.StatusCancelled
	e.mu.Unlock()

	slog.Info("offer cancelled", "offer_id", o.ID, "buyer", o.Buyer.Hex())
	e.emit(event.CancelOffer{Collection: o.Collection, OfferID: o.ID, Timestamp: e.clock()})
	return nil
}
