package market

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every entry-point failure wraps one of these so callers
// can discriminate the reason with errors.Is; nothing is retried and no
// failure leaves partial state behind.
var (
	// ErrValidation covers malformed parameters: zero prices, inverted
	// time windows, increments outside [1, 100], unsupported tokens,
	// wrong or missing attached value.
	ErrValidation = errors.New("market: invalid parameters")

	// ErrUnauthorized covers callers that are not the required maker,
	// taker, buyer, owner, or operator.
	ErrUnauthorized = errors.New("market: caller not authorized")

	// ErrBadState covers wrong lifecycle status, expired or not-yet-open
	// time windows, and ownership that changed since listing.
	ErrBadState = errors.New("market: entity not in a usable state")

	// ErrTransferFailed covers failed push payments and asset transfers.
	ErrTransferFailed = errors.New("market: asset or payment transfer failed")

	// ErrNotFound is returned for unknown entity identifiers.
	ErrNotFound = errors.New("market: entity not found")

	// ErrPaused is returned while the global circuit breaker is set.
	ErrPaused = errors.New("market: engine is paused")

	// ErrReentered is returned when a collaborator callback re-enters a
	// locked entry point. Re-entry fails immediately, it never blocks.
	ErrReentered = errors.New("market: reentrant call rejected")
)

// ErrSpotTaken rejects a second simultaneous listing for the same
// (collection, tokenId, owner). It is a state error.
var ErrSpotTaken = fmt.Errorf("%w: an active listing already exists for this item", ErrBadState)
