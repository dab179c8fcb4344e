// Package pricing implements the stateless price curves of the trade engine:
// the Dutch-auction linear decay and the minimum-next-bid rule.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Division results are floored to reproduce exact integer arithmetic:
// the decayed amount and the minimum bid are both floor divisions.
package pricing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nftx/trade-engine/internal/model"
)

var (
	// ErrUnknownOrderType is returned for order types without a price curve.
	ErrUnknownOrderType = errors.New("pricing: unknown order type")

	// ErrBadCurve is returned when a Dutch curve is not strictly decreasing
	// (endingPrice must be below basePrice).
	ErrBadCurve = errors.New("pricing: ending price must be below base price")

	// ErrBadWindow is returned when expiration does not follow listing time.
	ErrBadWindow = errors.New("pricing: expiration must follow listing time")

	// ErrBadIncrement is returned when the bid increment is outside [1, 100].
	ErrBadIncrement = errors.New("pricing: minimal increment must be within [1, 100]")

	hundred     = decimal.NewFromInt(100)
	basisPoints = decimal.NewFromInt(10000)
)

// CurrentPrice returns the amount due to buy a listing at the given instant.
//
// Fixed-price listings always cost basePrice. Dutch listings decay linearly
// from basePrice at listingTime to endingPrice at expirationTime:
//
//	price = base - floor((base-ending) * (now-listing) / (expiration-listing))
//
// and stay clamped at endingPrice for any later instant. The curve parameters
// are re-checked here even though listings are validated at creation.
func CurrentPrice(typ model.OrderType, basePrice, endingPrice decimal.Decimal,
	listingTime, expirationTime, now time.Time) (decimal.Decimal, error) {

	switch typ {
	case model.TypeFixedPrice:
		return basePrice, nil

	case model.TypeDutchAuction:
		if endingPrice.GreaterThanOrEqual(basePrice) {
			return decimal.Zero, ErrBadCurve
		}
		if !expirationTime.After(listingTime) {
			return decimal.Zero, ErrBadWindow
		}
		if !now.Before(expirationTime) {
			return endingPrice, nil
		}
		if !now.After(listingTime) {
			return basePrice, nil
		}

		elapsed := decimal.NewFromInt(now.Unix() - listingTime.Unix())
		duration := decimal.NewFromInt(expirationTime.Unix() - listingTime.Unix())
		decay := basePrice.Sub(endingPrice).Mul(elapsed).Div(duration).Floor()
		return basePrice.Sub(decay), nil

	default:
		return decimal.Zero, ErrUnknownOrderType
	}
}

// MinBid returns the lowest acceptable next bid over the current maximum:
//
//	floor(currentMax * (100 + incrementPct) / 100)
func MinBid(currentMax decimal.Decimal, incrementPct int64) (decimal.Decimal, error) {
	if incrementPct < 1 || incrementPct > 100 {
		return decimal.Zero, ErrBadIncrement
	}
	return currentMax.Mul(decimal.NewFromInt(100 + incrementPct)).Div(hundred).Floor(), nil
}

// Share returns the floored basis-point share of an amount:
//
//	floor(amount * bps / 10000)
//
// Used for both the platform fee and royalty ratios.
func Share(amount decimal.Decimal, bps int64) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(bps)).Div(basisPoints).Floor()
}
