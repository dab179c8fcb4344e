// Package chain defines the external collaborators the trade engine settles
// against: the asset-ownership registry, the fungible payment ledgers, the
// native value ledger, and the optional per-collection royalty registry.
//
// Calls into these collaborators may hand control to untrusted code (an asset
// transfer can invoke arbitrary receiver logic); they are the engine's
// reentrancy boundary.
package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Call is the envelope of one engine invocation: who is calling, who
// originated the outermost call, and how much native value is attached.
type Call struct {
	Sender common.Address
	Origin common.Address
	Value  decimal.Decimal
}

// Direct reports whether the caller reached the engine without an
// intermediary — Sender is the transaction originator itself.
func (c Call) Direct() bool {
	return c.Sender == c.Origin
}

// AssetRegistry tracks ownership of the traded items.
type AssetRegistry interface {
	// OwnerOf returns the current owner of an item.
	OwnerOf(ctx context.Context, collection common.Address, tokenID uint64) (common.Address, error)

	// TransferFrom moves an item between accounts. It fails if from is not
	// the current owner. The receiver may run arbitrary code.
	TransferFrom(ctx context.Context, collection, from, to common.Address, tokenID uint64) error
}

// TokenLedger is the fungible payment ledger for non-native settlement.
// The engine is the implicit spender of all allowances it consumes.
type TokenLedger interface {
	BalanceOf(ctx context.Context, token, addr common.Address) (decimal.Decimal, error)
	Allowance(ctx context.Context, token, owner common.Address) (decimal.Decimal, error)

	// Transfer moves engine-held funds; from must be the engine itself.
	Transfer(ctx context.Context, token, from, to common.Address, amount decimal.Decimal) error

	// TransferFrom pulls funds from owner using the engine's allowance.
	TransferFrom(ctx context.Context, token, owner, to common.Address, amount decimal.Decimal) error
}

// NativeLedger handles native-value custody and push payments.
type NativeLedger interface {
	// Collect moves attached value from the caller into engine custody.
	Collect(ctx context.Context, from common.Address, amount decimal.Decimal) error

	// Send pushes engine-held value to a recipient. It reports success
	// rather than failing loudly; callers must check the result.
	Send(ctx context.Context, to common.Address, amount decimal.Decimal) bool
}

// RoyaltyRegistry resolves creator royalties for collections that publish
// them externally.
type RoyaltyRegistry interface {
	// Supports is the capability probe for a collection.
	Supports(ctx context.Context, collection common.Address) bool

	// RoyaltyInfo returns the royalty receiver and amount for a sale price.
	RoyaltyInfo(ctx context.Context, collection common.Address, tokenID uint64,
		salePrice decimal.Decimal) (common.Address, decimal.Decimal, error)
}

// World exposes snapshot/revert over the collaborating ledgers. The engine
// snapshots at the start of every mutating entry point and reverts on any
// failure, making each operation all-or-nothing.
type World interface {
	Snapshot() int
	RevertTo(id int)

	// Release drops a snapshot once the operation that took it commits.
	Release(id int)
}
