// Package model defines the core domain types shared across the trade engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Accounts, collections, and payment tokens are Ethereum-style addresses;
// the zero address doubles as the native-payment sentinel and the
// "no account" optional.
package model

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Native is the payment-token sentinel for native-value settlement.
var Native = common.Address{}

// IsNative reports whether a payment token means native value.
func IsNative(token common.Address) bool {
	return token == Native
}

// None is the empty account: no taker restriction, no bidder, no beneficiary.
var None = common.Address{}

// Status is the lifecycle state of an order, offer, or auction.
// Executed and Cancelled are terminal; a terminal entity is immutable.
type Status int

const (
	StatusUnknown Status = iota
	StatusOpen
	StatusExecuted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusExecuted:
		return "executed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OrderType distinguishes fixed-price listings from Dutch-auction listings.
type OrderType int

const (
	TypeNone OrderType = iota
	TypeFixedPrice
	TypeDutchAuction
)

func (t OrderType) String() string {
	switch t {
	case TypeFixedPrice:
		return "fixed_price"
	case TypeDutchAuction:
		return "dutch_auction"
	default:
		return "none"
	}
}

func (t OrderType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Order is a maker's standing sale listing, fixed-price or Dutch-decay.
type Order struct {
	ID             uint64          `json:"id"`
	Type           OrderType       `json:"type"`
	Status         Status          `json:"status"`
	Collection     common.Address  `json:"collection"`
	PaymentToken   common.Address  `json:"payment_token"` // zero = native value
	Maker          common.Address  `json:"maker"`
	Taker          common.Address  `json:"taker"` // zero = anyone may buy
	TokenID        uint64          `json:"token_id"`
	BasePrice      decimal.Decimal `json:"base_price"`
	EndingPrice    decimal.Decimal `json:"ending_price"`
	ListingTime    time.Time       `json:"listing_time"`
	ExpirationTime time.Time       `json:"expiration_time"`
}

// WithinWindow reports whether now falls inside [listing, expiration].
func (o *Order) WithinWindow(now time.Time) bool {
	return !now.Before(o.ListingTime) && !now.After(o.ExpirationTime)
}

// Offer is a buyer's standing bid on one item. Native-value offers escrow
// the funds at creation; token offers are balance/allowance snapshots only.
type Offer struct {
	ID             uint64          `json:"id"`
	Status         Status          `json:"status"`
	Collection     common.Address  `json:"collection"`
	PaymentToken   common.Address  `json:"payment_token"`
	Buyer          common.Address  `json:"buyer"`
	TokenID        uint64          `json:"token_id"`
	Price          decimal.Decimal `json:"price"`
	ExpirationTime time.Time       `json:"expiration_time"`
}

// Expired reports whether the offer's acceptance window has closed.
// Offers carry only an upper time bound.
func (o *Offer) Expired(now time.Time) bool {
	return now.After(o.ExpirationTime)
}

// Auction is a custodial English auction. The engine holds the asset from
// creation until settlement, and escrows the current highest bid.
type Auction struct {
	ID               uint64          `json:"id"`
	Status           Status          `json:"status"`
	Collection       common.Address  `json:"collection"`
	PaymentToken     common.Address  `json:"payment_token"`
	Maker            common.Address  `json:"maker"`
	MaxBidder        common.Address  `json:"max_bidder"` // zero = no bid yet
	TokenID          uint64          `json:"token_id"`
	BasePrice        decimal.Decimal `json:"base_price"`
	MinimalIncrement int64           `json:"minimal_increment"` // percentage points, 1–100
	BuyNowThreshold  decimal.Decimal `json:"buy_now_threshold"` // zero disables buy-now
	MaxPrice         decimal.Decimal `json:"max_price"`
	ListingTime      time.Time       `json:"listing_time"`
	ExpirationTime   time.Time       `json:"expiration_time"` // extended by late bids
}

// WithinWindow reports whether now falls inside [listing, expiration].
func (a *Auction) WithinWindow(now time.Time) bool {
	return !now.Before(a.ListingTime) && !now.After(a.ExpirationTime)
}

// HasBid reports whether at least one bid has been recorded.
func (a *Auction) HasBid() bool {
	return a.MaxBidder != None
}

// SpotKind tags which entity kind holds an exclusivity spot.
type SpotKind string

const (
	SpotOrder   SpotKind = "order"
	SpotAuction SpotKind = "auction"
)

// SpotKey identifies an exclusivity spot: at most one active listing or
// auction may exist per (collection, tokenId, owner).
type SpotKey struct {
	Collection common.Address
	TokenID    uint64
	Owner      common.Address
}

// Spot references the most recent listing or auction claimed for a key.
// Liveness is evaluated at claim time; spots are never explicitly released.
type Spot struct {
	Kind SpotKind `json:"kind"`
	ID   uint64   `json:"id"`
}

// TradeEvent is an immutable journal record of an emitted notification.
// Once written, these are never modified or deleted.
type TradeEvent struct {
	ID         string          `json:"id" db:"id"`
	Kind       string          `json:"kind" db:"kind"`
	Collection common.Address  `json:"collection" db:"collection"`
	EntityID   uint64          `json:"entity_id" db:"entity_id"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}
