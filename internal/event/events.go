// Package event defines the typed notifications the trade engine emits on
// every lifecycle transition, and the Sink interface consumers implement
// (WebSocket hub, journal, metrics).
package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/nftx/trade-engine/internal/model"
)

// Event is one emitted notification.
type Event interface {
	Kind() string
}

// Sink consumes emitted events. Emit runs synchronously inside the engine's
// entry points; implementations must not call back into the engine.
type Sink interface {
	Emit(e Event)
}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// NewOrder announces a created listing.
type NewOrder struct {
	Collection     common.Address  `json:"collection"`
	OrderID        uint64          `json:"orderId"`
	TokenID        uint64          `json:"tokenId"`
	PaymentToken   common.Address  `json:"paymentToken"`
	OrderType      model.OrderType `json:"orderType"`
	Maker          common.Address  `json:"maker"`
	Taker          common.Address  `json:"taker"`
	BasePrice      decimal.Decimal `json:"basePrice"`
	EndingPrice    decimal.Decimal `json:"endingPrice"`
	ListingTime    time.Time       `json:"listingTime"`
	ExpirationTime time.Time       `json:"expirationTime"`
	Timestamp      time.Time       `json:"timestamp"`
}

func (NewOrder) Kind() string { return "NewOrder" }

// UpdateOrderPrice announces a fixed-price reprice.
type UpdateOrderPrice struct {
	Collection common.Address  `json:"collection"`
	OrderID    uint64          `json:"orderId"`
	OldPrice   decimal.Decimal `json:"oldPrice"`
	NewPrice   decimal.Decimal `json:"newPrice"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (UpdateOrderPrice) Kind() string { return "UpdateOrderPrice" }

// CancelOrder announces a maker-cancelled listing.
type CancelOrder struct {
	Collection common.Address `json:"collection"`
	OrderID    uint64         `json:"orderId"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (CancelOrder) Kind() string { return "CancelOrder" }

// Purchase announces an executed listing.
type Purchase struct {
	Collection common.Address  `json:"collection"`
	OrderID    uint64          `json:"orderId"`
	TokenID    uint64          `json:"tokenId"`
	Seller     common.Address  `json:"seller"`
	Buyer      common.Address  `json:"buyer"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (Purchase) Kind() string { return "Purchase" }

// NewOffer announces a created offer.
type NewOffer struct {
	Collection     common.Address  `json:"collection"`
	OfferID        uint64          `json:"offerId"`
	TokenID        uint64          `json:"tokenId"`
	Buyer          common.Address  `json:"buyer"`
	PaymentToken   common.Address  `json:"paymentToken"`
	Price          decimal.Decimal `json:"price"`
	ExpirationTime time.Time       `json:"expirationTime"`
	Timestamp      time.Time       `json:"timestamp"`
}

func (NewOffer) Kind() string { return "NewOffer" }

// TakeOffer announces an accepted offer.
type TakeOffer struct {
	Collection   common.Address  `json:"collection"`
	OfferID      uint64          `json:"offerId"`
	TokenID      uint64          `json:"tokenId"`
	Seller       common.Address  `json:"seller"`
	Buyer        common.Address  `json:"buyer"`
	PaymentToken common.Address  `json:"paymentToken"`
	Price        decimal.Decimal `json:"price"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (TakeOffer) Kind() string { return "TakeOffer" }

// CancelOffer announces a cancelled offer, buyer- or operator-initiated.
type CancelOffer struct {
	Collection common.Address `json:"collection"`
	OfferID    uint64         `json:"offerId"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (CancelOffer) Kind() string { return "CancelOffer" }

// NewAuction announces a created auction.
type NewAuction struct {
	Collection       common.Address  `json:"collection"`
	AuctionID        uint64          `json:"auctionId"`
	TokenID          uint64          `json:"tokenId"`
	PaymentToken     common.Address  `json:"paymentToken"`
	Maker            common.Address  `json:"maker"`
	BasePrice        decimal.Decimal `json:"basePrice"`
	MinimalIncrement int64           `json:"minimalIncrement"`
	BuyNowThreshold  decimal.Decimal `json:"buyNowThreshold"`
	ListingTime      time.Time       `json:"listingTime"`
	ExpirationTime   time.Time       `json:"expirationTime"`
	Timestamp        time.Time       `json:"timestamp"`
}

func (NewAuction) Kind() string { return "NewAuction" }

// NewBid announces an accepted standing bid.
type NewBid struct {
	Collection common.Address  `json:"collection"`
	AuctionID  uint64          `json:"auctionId"`
	TokenID    uint64          `json:"tokenId"`
	Bidder     common.Address  `json:"bidder"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
	BidSeq     uint64          `json:"bidSeq"`
}

func (NewBid) Kind() string { return "NewBid" }

// SettleAuction announces a settled auction, including buy-now settlements.
type SettleAuction struct {
	Collection common.Address  `json:"collection"`
	AuctionID  uint64          `json:"auctionId"`
	TokenID    uint64          `json:"tokenId"`
	Seller     common.Address  `json:"seller"`
	Winner     common.Address  `json:"winner"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
}

func (SettleAuction) Kind() string { return "SettleAuction" }

// CancelAuction announces a no-bid auction unwind.
type CancelAuction struct {
	Collection common.Address `json:"collection"`
	AuctionID  uint64         `json:"auctionId"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (CancelAuction) Kind() string { return "CancelAuction" }

// SetRoyalty announces an updated self-declared royalty term.
type SetRoyalty struct {
	Collection  common.Address `json:"collection"`
	Beneficiary common.Address `json:"beneficiary"`
	Ratio       int64          `json:"ratio"`
}

func (SetRoyalty) Kind() string { return "SetRoyalty" }
