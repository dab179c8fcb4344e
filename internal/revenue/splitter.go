package revenue

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/nftx/trade-engine/internal/chain"
	"github.com/nftx/trade-engine/internal/config"
	"github.com/nftx/trade-engine/internal/model"
	"github.com/nftx/trade-engine/internal/pricing"
)

// ErrPayment is returned when any payout of a split fails. The caller's
// revert discipline makes the whole split all-or-nothing.
var ErrPayment = errors.New("revenue: payment transfer failed")

// Sale describes one settlement to split.
type Sale struct {
	Collection   common.Address
	TokenID      uint64
	PaymentToken common.Address // zero = native value
	Price        decimal.Decimal
	Seller       common.Address
	Payer        common.Address

	// FromCustody marks token sales whose funds the engine already holds
	// (escrowed auction bids); otherwise token payouts pull from the payer
	// through the allowance. Native payouts always push from custody.
	FromCustody bool
}

// Breakdown is the resulting three-way division of a sale price.
type Breakdown struct {
	Fee                decimal.Decimal `json:"fee"`
	Royalty            decimal.Decimal `json:"royalty"`
	SellerShare        decimal.Decimal `json:"seller_share"`
	RoyaltyBeneficiary common.Address  `json:"royalty_beneficiary"`
}

// Splitter issues the fee, royalty, and seller payments for a sale.
type Splitter struct {
	cfg      *config.Settings
	resolver *Resolver
	native   chain.NativeLedger
	tokens   chain.TokenLedger
	self     common.Address
}

// NewSplitter creates a revenue splitter. self is the engine's own account,
// the source of custodied payouts.
func NewSplitter(cfg *config.Settings, resolver *Resolver, native chain.NativeLedger,
	tokens chain.TokenLedger, self common.Address) *Splitter {
	return &Splitter{
		cfg:      cfg,
		resolver: resolver,
		native:   native,
		tokens:   tokens,
		self:     self,
	}
}

// Split divides the sale price and issues all payments. Any payout failure
// aborts with ErrPayment; zero amounts and the none-address are harmless
// skips, not errors.
func (s *Splitter) Split(ctx context.Context, sale Sale) (Breakdown, error) {
	fee := pricing.Share(sale.Price, s.cfg.FeeBps())
	beneficiary, royalty := s.resolver.RoyaltyInfo(ctx, sale.Collection, sale.TokenID, sale.Price)
	sellerShare := sale.Price.Sub(fee).Sub(royalty)

	b := Breakdown{
		Fee:                fee,
		Royalty:            royalty,
		SellerShare:        sellerShare,
		RoyaltyBeneficiary: beneficiary,
	}

	if err := s.pay(ctx, sale, s.cfg.FeeBeneficiary(), fee); err != nil {
		return Breakdown{}, fmt.Errorf("platform fee: %w", err)
	}
	if err := s.pay(ctx, sale, beneficiary, royalty); err != nil {
		return Breakdown{}, fmt.Errorf("royalty: %w", err)
	}
	if err := s.pay(ctx, sale, sale.Seller, sellerShare); err != nil {
		return Breakdown{}, fmt.Errorf("seller proceeds: %w", err)
	}
	return b, nil
}

// pay issues a single payout in the sale's payment mode.
func (s *Splitter) pay(ctx context.Context, sale Sale, to common.Address, amount decimal.Decimal) error {
	if to == model.None || amount.IsZero() {
		return nil
	}

	if model.IsNative(sale.PaymentToken) {
		if !s.native.Send(ctx, to, amount) {
			return fmt.Errorf("%w: native send of %s to %s", ErrPayment, amount, to.Hex())
		}
		return nil
	}

	if sale.FromCustody {
		if err := s.tokens.Transfer(ctx, sale.PaymentToken, s.self, to, amount); err != nil {
			return fmt.Errorf("%w: %v", ErrPayment, err)
		}
		return nil
	}

	if err := s.tokens.TransferFrom(ctx, sale.PaymentToken, sale.Payer, to, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrPayment, err)
	}
	return nil
}
