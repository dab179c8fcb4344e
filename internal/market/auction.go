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

// AuctionParams describes a new English auction.
type AuctionParams struct {
	Collection       common.Address
	PaymentToken     common.Address
	TokenID          uint64
	BasePrice        decimal.Decimal
	MinimalIncrement int64           // percent, 1..100
	BuyNowThreshold  decimal.Decimal // zero = no buy-now
	ListingTime      time.Time
	ExpirationTime   time.Time
}

// CreateAuction takes the item into engine custody and opens an English
// auction for it. The custody transfer runs before the exclusivity check;
// ownership is what proves the caller may sell.
func (e *Engine) CreateAuction(ctx context.Context, call chain.Call, p AuctionParams) (uint64, error) {
	var id uint64
	err := e.run(func() error {
		if call.Value.IsPositive() {
			return fmt.Errorf("%w: auction creation takes no attached value", ErrValidation)
		}
		if !p.BasePrice.IsPositive() {
			return fmt.Errorf("%w: base price must be positive", ErrValidation)
		}
		if p.MinimalIncrement < 1 || p.MinimalIncrement > 100 {
			return fmt.Errorf("%w: minimal increment must be within [1, 100] percent", ErrValidation)
		}
		if !p.ExpirationTime.After(p.ListingTime) {
			return fmt.Errorf("%w: expiration must follow listing time", ErrValidation)
		}
		if limit := e.cfg.MaxAuctionDuration(); p.ExpirationTime.Sub(p.ListingTime) > limit {
			return fmt.Errorf("%w: auction duration exceeds the %s maximum", ErrValidation, limit)
		}
		if err := e.checkPaymentToken(p.PaymentToken); err != nil {
			return err
		}

		// Custody first: a caller who does not own the item fails here.
		if err := e.assets.TransferFrom(ctx, p.Collection, call.Sender, e.self, p.TokenID); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}

		now := e.clock()
		key := model.SpotKey{Collection: p.Collection, TokenID: p.TokenID, Owner: call.Sender}
		if !e.spotFree(key, now) {
			return ErrSpotTaken
		}

		e.mu.Lock()
		id = e.nextAuction
		e.nextAuction++
		e.auctions[id] = &model.Auction{
			ID:               id,
			Status:           model.StatusOpen,
			Collection:       p.Collection,
			PaymentToken:     p.PaymentToken,
			Maker:            call.Sender,
			TokenID:          p.TokenID,
			BasePrice:        p.BasePrice,
			MinimalIncrement: p.MinimalIncrement,
			BuyNowThreshold:  p.BuyNowThreshold,
			ListingTime:      p.ListingTime,
			ExpirationTime:   p.ExpirationTime,
		}
		e.spots[key] = model.Spot{Kind: model.SpotAuction, ID: id}
		e.mu.Unlock()

		slog.Info("auction created",
			"auction_id", id,
			"collection", p.Collection.Hex(),
			"token_id", p.TokenID,
			"maker", call.Sender.Hex(),
			"base_price", p.BasePrice.String(),
			"increment_pct", p.MinimalIncrement,
		)
		e.emit(event.NewAuction{
			Collection:       p.Collection,
			AuctionID:        id,
			TokenID:          p.TokenID,
			PaymentToken:     p.PaymentToken,
			Maker:            call.Sender,
			BasePrice:        p.BasePrice,
			MinimalIncrement: p.MinimalIncrement,
			BuyNowThreshold:  p.BuyNowThreshold,
			ListingTime:      p.ListingTime,
			ExpirationTime:   p.ExpirationTime,
			Timestamp:        now,
		})
		return nil
	})
	return id, err
}

// Bid places a bid on an open auction and returns its sequence number,
// starting at 1. The previous leading bid is refunded in full before the
// new one is recorded. A bid at or above a positive buy-now threshold
// settles the auction immediately and returns sequence 0.
//
// Only direct calls may bid: contracts bidding through intermediaries are
// rejected so a hostile receiver cannot wedge the refund path.
func (e *Engine) Bid(ctx context.Context, call chain.Call, auctionID uint64, amount decimal.Decimal) (uint64, error) {
	var seq uint64
	err := e.run(func() error {
		if err := e.collect(ctx, call); err != nil {
			return err
		}
		if !call.Direct() {
			return fmt.Errorf("%w: only direct callers may bid", ErrUnauthorized)
		}

		a, err := e.Auction(auctionID)
		if err != nil {
			return err
		}
		now := e.clock()
		if a.Status != model.StatusOpen {
			return fmt.Errorf("%w: auction %d is %s", ErrBadState, auctionID, a.Status)
		}
		if !a.WithinWindow(now) {
			return fmt.Errorf("%w: auction %d is outside its time window", ErrBadState, auctionID)
		}

		if model.IsNative(a.PaymentToken) {
			if !call.Value.Equal(amount) {
				return fmt.Errorf("%w: attached value %s must equal bid amount %s",
					ErrValidation, call.Value, amount)
			}
		} else if call.Value.IsPositive() {
			return fmt.Errorf("%w: token bids take no attached value", ErrValidation)
		}

		if a.HasBid() {
			floor, err := pricing.MinBid(a.MaxPrice, a.MinimalIncrement)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
			if amount.LessThan(floor) {
				return fmt.Errorf("%w: bid %s below minimum %s", ErrValidation, amount, floor)
			}
		} else if amount.LessThan(a.BasePrice) {
			return fmt.Errorf("%w: bid %s below base price %s", ErrValidation, amount, a.BasePrice)
		}

		// Refund the outbid leader in full before anything else moves.
		if a.HasBid() {
			if err := e.refundBid(ctx, a); err != nil {
				return err
			}
		}

		// Buy-now: settle immediately at the bid amount. The new bid is
		// never recorded as a standing bid.
		if a.BuyNowThreshold.IsPositive() && !amount.LessThan(a.BuyNowThreshold) {
			return e.settleAuction(ctx, a, call.Sender, amount, now, settleBuyNow)
		}

		if !model.IsNative(a.PaymentToken) {
			if err := e.tokens.TransferFrom(ctx, a.PaymentToken, call.Sender, e.self, amount); err != nil {
				return fmt.Errorf("%w: %v", ErrTransferFailed, err)
			}
		}

		e.mu.Lock()
		au := e.auctions[auctionID]
		au.MaxBidder = call.Sender
		au.MaxPrice = amount
		// Anti-snipe: a late bid pushes the close out to a full window.
		if remaining := au.ExpirationTime.Sub(now); remaining <= e.cfg.SnipeWindow() {
			au.ExpirationTime = now.Add(e.cfg.SnipeWindow())
		}
		e.bidSeq++
		seq = e.bidSeq
		e.mu.Unlock()

		slog.Info("bid placed",
			"auction_id", auctionID,
			"bidder", call.Sender.Hex(),
			"amount", amount.String(),
			"bid_seq", seq,
		)
		e.emit(event.NewBid{
			Collection: a.Collection,
			AuctionID:  auctionID,
			TokenID:    a.TokenID,
			Bidder:     call.Sender,
			Price:      amount,
			Timestamp:  now,
			BidSeq:     seq,
		})
		return nil
	})
	return seq, err
}

// Settle closes an auction after its window. With no bids it returns the
// item to the maker and cancels; with a leading bid it pays out the maker
// from escrow and delivers the item to the winner. A no-bid unwind may be
// triggered by the maker or operator at any time; a settlement requires
// the expiration to have strictly passed and may additionally be
// triggered by the winner.
func (e *Engine) Settle(ctx context.Context, call chain.Call, auctionID uint64) error {
	return e.run(func() error {
		if call.Value.IsPositive() {
			return fmt.Errorf("%w: settlement takes no attached value", ErrValidation)
		}

		a, err := e.Auction(auctionID)
		if err != nil {
			return err
		}
		if a.Status != model.StatusOpen {
			return fmt.Errorf("%w: auction %d is %s", ErrBadState, auctionID, a.Status)
		}
		now := e.clock()

		if !a.HasBid() {
			if call.Sender != a.Maker && !e.cfg.IsOperator(call.Sender) {
				return fmt.Errorf("%w: only the maker or operator may cancel a no-bid auction", ErrUnauthorized)
			}
			if err := e.assets.TransferFrom(ctx, a.Collection, e.self, a.Maker, a.TokenID); err != nil {
				return fmt.Errorf("%w: %v", ErrTransferFailed, err)
			}

			e.mu.Lock()
			e.auctions[auctionID].Status = model.StatusCancelled
			e.mu.Unlock()

			slog.Info("auction cancelled", "auction_id", auctionID, "maker", a.Maker.Hex())
			e.emit(event.CancelAuction{Collection: a.Collection, AuctionID: auctionID, Timestamp: now})
			return nil
		}

		if !now.After(a.ExpirationTime) {
			return fmt.Errorf("%w: auction %d has not ended", ErrBadState, auctionID)
		}
		if call.Sender != a.Maker && call.Sender != a.MaxBidder && !e.cfg.IsOperator(call.Sender) {
			return fmt.Errorf("%w: only the maker, winner, or operator may settle", ErrUnauthorized)
		}

		return e.settleAuction(ctx, a, a.MaxBidder, a.MaxPrice, now, settleExpiry)
	})
}

type settleMode int

const (
	settleExpiry settleMode = iota
	settleBuyNow
)

// settleAuction delivers the item to the winner and distributes winner's
// payment; callers hold the guard. On expiry settlement the funds sit in
// engine escrow for both payment kinds; on buy-now, native funds were just
// collected while token funds are still pulled from the bidder.
func (e *Engine) settleAuction(ctx context.Context, a model.Auction, winner common.Address,
	price decimal.Decimal, now time.Time, mode settleMode) error {

	fromCustody := true
	if mode == settleBuyNow && !model.IsNative(a.PaymentToken) {
		fromCustody = false
	}

	if _, err := e.splitter.Split(ctx, revenue.Sale{
		Collection:   a.Collection,
		TokenID:      a.TokenID,
		PaymentToken: a.PaymentToken,
		Price:        price,
		Seller:       a.Maker,
		Payer:        winner,
		FromCustody:  fromCustody,
	}); err != nil {
		return err
	}

	if err := e.assets.TransferFrom(ctx, a.Collection, e.self, winner, a.TokenID); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.mu.Lock()
	e.auctions[a.ID].Status = model.StatusExecuted
	e.mu.Unlock()

	slog.Info("auction settled",
		"auction_id", a.ID,
		"winner", winner.Hex(),
		"seller", a.Maker.Hex(),
		"price", price.String(),
		"buy_now", mode == settleBuyNow,
	)
	e.emit(event.SettleAuction{
		Collection: a.Collection,
		AuctionID:  a.ID,
		TokenID:    a.TokenID,
		Seller:     a.Maker,
		Winner:     winner,
		Price:      price,
		Timestamp:  now,
	})
	return nil
}

// refundBid returns the standing leading bid to its bidder in full.
func (e *Engine) refundBid(ctx context.Context, a model.Auction) error {
	if model.IsNative(a.PaymentToken) {
		if !e.native.Send(ctx, a.MaxBidder, a.MaxPrice) {
			return fmt.Errorf("%w: bid refund to %s", ErrTransferFailed, a.MaxBidder.Hex())
		}
		return nil
	}
	if err := e.tokens.Transfer(ctx, a.PaymentToken, e.self, a.MaxBidder, a.MaxPrice); err != nil {
		return fmt.Errorf("%w: bid refund: %v", ErrTransferFailed, err)
	}
	return nil
}
