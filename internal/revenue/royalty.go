// Package revenue resolves creator royalties and distributes sale proceeds
// into platform fee, royalty, and seller shares.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Shares are floored basis-point fractions; the seller receives the exact
// remainder, so fee + royalty + seller always equals the sale price.
package revenue

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/nftx/trade-engine/internal/chain"
	"github.com/nftx/trade-engine/internal/config"
	"github.com/nftx/trade-engine/internal/model"
	"github.com/nftx/trade-engine/internal/pricing"
)

// Resolver decides the royalty beneficiary and amount for a sale.
// A locally declared override wins; otherwise the external registry is
// probed. Royalties above the configured cap are dropped to zero, never
// surfaced as errors — policy violations silently forfeit the royalty.
type Resolver struct {
	cfg      *config.Settings
	registry chain.RoyaltyRegistry
}

// NewResolver creates a royalty resolver. registry may be nil when no
// external royalty source exists.
func NewResolver(cfg *config.Settings, registry chain.RoyaltyRegistry) *Resolver {
	return &Resolver{cfg: cfg, registry: registry}
}

// RoyaltyInfo returns the beneficiary and royalty amount for a sale, or
// (none, 0) when no royalty applies.
func (r *Resolver) RoyaltyInfo(ctx context.Context, collection common.Address,
	tokenID uint64, salePrice decimal.Decimal) (common.Address, decimal.Decimal) {

	if o, ok := r.cfg.RoyaltyOverrideFor(collection); ok {
		return o.Beneficiary, pricing.Share(salePrice, o.Bps)
	}

	if r.registry == nil || !r.registry.Supports(ctx, collection) {
		return model.None, decimal.Zero
	}

	receiver, amount, err := r.registry.RoyaltyInfo(ctx, collection, tokenID, salePrice)
	if err != nil || receiver == model.None || !amount.IsPositive() {
		return model.None, decimal.Zero
	}

	limit := pricing.Share(salePrice, r.cfg.MaxRoyaltyBps())
	if amount.GreaterThan(limit) {
		return model.None, decimal.Zero
	}
	return receiver, amount
}
