package revenue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/nftx/trade-engine/internal/chain"
	"github.com/nftx/trade-engine/internal/config"
	"github.com/nftx/trade-engine/internal/model"
	"github.com/nftx/trade-engine/internal/revenue"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var (
	engineAddr  = common.HexToAddress("0xe000000000000000000000000000000000000001")
	platform    = common.HexToAddress("0xfee0000000000000000000000000000000000001")
	creator     = common.HexToAddress("0xc000000000000000000000000000000000000001")
	seller      = common.HexToAddress("0x5e11000000000000000000000000000000000001")
	buyer       = common.HexToAddress("0xb000000000000000000000000000000000000001")
	collection  = common.HexToAddress("0xc011ec7000000000000000000000000000000001")
	tokenAddr   = common.HexToAddress("0x7000000000000000000000000000000000000001")
)

// newSplitEnv builds a splitter over a funded in-memory world.
func newSplitEnv(t *testing.T) (*config.Settings, *chain.Memory, *revenue.Splitter) {
	t.Helper()
	cfg := config.New()
	cfg.SetFeeBeneficiary(platform)

	world := chain.NewMemory(engineAddr)
	resolver := revenue.NewResolver(cfg, world.Royalties())
	sp := revenue.NewSplitter(cfg, resolver, world.Native(), world.Tokens(), engineAddr)
	return cfg, world, sp
}

func TestSplit_NativeWithRegistryRoyalty(t *testing.T) {
	_, world, sp := newSplitEnv(t)
	world.SetRoyaltyTerm(collection, creator, 1000)
	world.FundNative(engineAddr, d(1000)) // price already in custody

	b, err := sp.Split(context.Background(), revenue.Sale{
		Collection:   collection,
		TokenID:      1,
		PaymentToken: model.Native,
		Price:        d(1000),
		Seller:       seller,
		Payer:        buyer,
		FromCustody:  true,
	})
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}

	// Default fee 250 bps; registry royalty 1000 bps.
	if !b.Fee.Equal(d(25)) {
		t.Errorf("fee = %s, want 25", b.Fee)
	}
	if !b.Royalty.Equal(d(100)) {
		t.Errorf("royalty = %s, want 100", b.Royalty)
	}
	if !b.SellerShare.Equal(d(875)) {
		t.Errorf("seller share = %s, want 875", b.SellerShare)
	}
	if b.RoyaltyBeneficiary != creator {
		t.Errorf("beneficiary = %s, want creator", b.RoyaltyBeneficiary.Hex())
	}

	// Sum invariant and actual balances.
	if !b.Fee.Add(b.Royalty).Add(b.SellerShare).Equal(d(1000)) {
		t.Error("shares do not sum to the sale price")
	}
	if got := world.NativeBalance(platform); !got.Equal(d(25)) {
		t.Errorf("platform balance = %s, want 25", got)
	}
	if got := world.NativeBalance(creator); !got.Equal(d(100)) {
		t.Errorf("creator balance = %s, want 100", got)
	}
	if got := world.NativeBalance(seller); !got.Equal(d(875)) {
		t.Errorf("seller balance = %s, want 875", got)
	}
	if got := world.NativeBalance(engineAddr); !got.IsZero() {
		t.Errorf("engine retains %s, want 0", got)
	}
}

func TestSplit_OverrideBeatsRegistry(t *testing.T) {
	cfg, world, sp := newSplitEnv(t)
	world.SetRoyaltyTerm(collection, creator, 1000)
	override := common.HexToAddress("0x0dd0000000000000000000000000000000000001")
	if err := cfg.SetRoyaltyOverride(collection, override, 500); err != nil {
		t.Fatalf("set override: %v", err)
	}
	world.FundNative(engineAddr, d(1000))

	b, err := sp.Split(context.Background(), revenue.Sale{
		Collection:   collection,
		PaymentToken: model.Native,
		Price:        d(1000),
		Seller:       seller,
		Payer:        buyer,
		FromCustody:  true,
	})
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if b.RoyaltyBeneficiary != override {
		t.Errorf("beneficiary = %s, want override", b.RoyaltyBeneficiary.Hex())
	}
	if !b.Royalty.Equal(d(50)) {
		t.Errorf("royalty = %s, want 50 (500 bps)", b.Royalty)
	}
}

func TestSplit_ExcessiveRegistryRoyaltyForfeited(t *testing.T) {
	_, world, sp := newSplitEnv(t)
	// Registry claims 50%, far above the 1000 bps cap.
	world.SetRoyaltyTerm(collection, creator, 5000)
	world.FundNative(engineAddr, d(1000))

	b, err := sp.Split(context.Background(), revenue.Sale{
		Collection:   collection,
		PaymentToken: model.Native,
		Price:        d(1000),
		Seller:       seller,
		Payer:        buyer,
		FromCustody:  true,
	})
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if !b.Royalty.IsZero() {
		t.Errorf("royalty = %s, want 0 (over cap)", b.Royalty)
	}
	if b.RoyaltyBeneficiary != model.None {
		t.Errorf("beneficiary = %s, want none", b.RoyaltyBeneficiary.Hex())
	}
	if !b.SellerShare.Equal(d(975)) {
		t.Errorf("seller share = %s, want 975", b.SellerShare)
	}
}

func TestSplit_TokenPullFromPayer(t *testing.T) {
	_, world, sp := newSplitEnv(t)
	world.FundToken(tokenAddr, buyer, d(1000))
	world.Approve(tokenAddr, buyer, d(1000))

	b, err := sp.Split(context.Background(), revenue.Sale{
		Collection:   collection,
		PaymentToken: tokenAddr,
		Price:        d(1000),
		Seller:       seller,
		Payer:        buyer,
		FromCustody:  false,
	})
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if got := world.TokenBalance(tokenAddr, buyer); !got.IsZero() {
		t.Errorf("buyer keeps %s, want 0", got)
	}
	if got := world.TokenBalance(tokenAddr, seller); !got.Equal(b.SellerShare) {
		t.Errorf("seller balance = %s, want %s", got, b.SellerShare)
	}
}

func TestSplit_TokenFromCustody(t *testing.T) {
	_, world, sp := newSplitEnv(t)
	world.FundToken(tokenAddr, engineAddr, d(1000)) // escrowed bid

	if _, err := sp.Split(context.Background(), revenue.Sale{
		Collection:   collection,
		PaymentToken: tokenAddr,
		Price:        d(1000),
		Seller:       seller,
		Payer:        buyer,
		FromCustody:  true,
	}); err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if got := world.TokenBalance(tokenAddr, engineAddr); !got.IsZero() {
		t.Errorf("engine keeps %s, want 0", got)
	}
}

func TestSplit_FailedPayoutAborts(t *testing.T) {
	_, world, sp := newSplitEnv(t)
	world.FundNative(engineAddr, d(1000))
	world.FailSendsTo(seller, true)

	_, err := sp.Split(context.Background(), revenue.Sale{
		Collection:   collection,
		PaymentToken: model.Native,
		Price:        d(1000),
		Seller:       seller,
		Payer:        buyer,
		FromCustody:  true,
	})
	if !errors.Is(err, revenue.ErrPayment) {
		t.Fatalf("got %v, want ErrPayment", err)
	}
}

func TestSplit_ZeroSharesSkipped(t *testing.T) {
	cfg, world, sp := newSplitEnv(t)
	if err := cfg.SetFeeBps(0); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	world.FundNative(engineAddr, d(10))

	// No royalty term, zero fee: the seller takes everything, and the zero
	// payouts must not fail even though no recipient is configured.
	b, err := sp.Split(context.Background(), revenue.Sale{
		Collection:   collection,
		PaymentToken: model.Native,
		Price:        d(10),
		Seller:       seller,
		Payer:        buyer,
		FromCustody:  true,
	})
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if !b.SellerShare.Equal(d(10)) {
		t.Errorf("seller share = %s, want 10", b.SellerShare)
	}
}
