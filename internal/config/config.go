// Package config holds the admin-mutable platform settings the engine reads
// at the start of every entry point: the pause switch, fee terms, royalty
// policy, the supported-payment-token allowlist, and auction timing limits.
// The engine never owns this state; it consults it.
package config

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const maxBps = 10000

var (
	// ErrBadRatio is returned for basis-point values outside [0, 10000].
	ErrBadRatio = errors.New("config: ratio must be within [0, 10000] basis points")

	// ErrBadDuration is returned for non-positive duration settings.
	ErrBadDuration = errors.New("config: duration must be positive")
)

// RoyaltyOverride is a self-declared royalty term for one collection,
// taking precedence over any external registry.
type RoyaltyOverride struct {
	Beneficiary common.Address
	Bps         int64
}

// Settings is the runtime configuration collaborator. All reads and writes
// are guarded; admin handlers mutate it while the engine reads it.
type Settings struct {
	mu sync.RWMutex

	paused             bool
	feeBps             int64
	feeBeneficiary     common.Address
	operator           common.Address
	maxRoyaltyBps      int64
	maxAuctionDuration time.Duration
	snipeWindow        time.Duration
	tokens             map[common.Address]bool
	overrides          map[common.Address]RoyaltyOverride
}

// New returns settings with platform defaults: 2.5% fee, 10% royalty cap,
// 30-day auction limit, 10-minute anti-snipe window, engine unpaused.
func New() *Settings {
	return &Settings{
		feeBps:             250,
		maxRoyaltyBps:      1000,
		maxAuctionDuration: 30 * 24 * time.Hour,
		snipeWindow:        10 * time.Minute,
		tokens:             make(map[common.Address]bool),
		overrides:          make(map[common.Address]RoyaltyOverride),
	}
}

// Paused reports whether the global circuit breaker is set.
func (s *Settings) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// SetPaused flips the global circuit breaker.
func (s *Settings) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// FeeBps returns the platform fee ratio in basis points.
func (s *Settings) FeeBps() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeBps
}

// SetFeeBps updates the platform fee ratio.
func (s *Settings) SetFeeBps(bps int64) error {
	if bps < 0 || bps > maxBps {
		return ErrBadRatio
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeBps = bps
	return nil
}

// FeeBeneficiary returns the platform fee recipient.
func (s *Settings) FeeBeneficiary() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeBeneficiary
}

// SetFeeBeneficiary updates the platform fee recipient.
func (s *Settings) SetFeeBeneficiary(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeBeneficiary = addr
}

// Operator returns the platform operator account.
func (s *Settings) Operator() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operator
}

// SetOperator updates the platform operator account.
func (s *Settings) SetOperator(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operator = addr
}

// IsOperator reports whether addr is the platform operator.
func (s *Settings) IsOperator(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return addr != (common.Address{}) && addr == s.operator
}

// MaxRoyaltyBps returns the cap applied to externally resolved royalties.
func (s *Settings) MaxRoyaltyBps() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxRoyaltyBps
}

// SetMaxRoyaltyBps updates the royalty cap.
func (s *Settings) SetMaxRoyaltyBps(bps int64) error {
	if bps < 0 || bps > maxBps {
		return ErrBadRatio
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxRoyaltyBps = bps
	return nil
}

// MaxAuctionDuration returns the longest allowed auction run time.
func (s *Settings) MaxAuctionDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxAuctionDuration
}

// SetMaxAuctionDuration updates the auction duration limit.
func (s *Settings) SetMaxAuctionDuration(d time.Duration) error {
	if d <= 0 {
		return ErrBadDuration
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxAuctionDuration = d
	return nil
}

// SnipeWindow returns the trailing window that triggers bid-time extension.
func (s *Settings) SnipeWindow() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snipeWindow
}

// TokenAllowed reports whether a payment token is on the allowlist.
func (s *Settings) TokenAllowed(token common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[token]
}

// AllowToken adds a payment token to the allowlist.
func (s *Settings) AllowToken(token common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
}

// RevokeToken removes a payment token from the allowlist.
func (s *Settings) RevokeToken(token common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// RoyaltyOverrideFor returns the self-declared royalty term for a collection.
func (s *Settings) RoyaltyOverrideFor(collection common.Address) (RoyaltyOverride, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[collection]
	return o, ok
}

// SetRoyaltyOverride declares a local royalty term for a collection.
func (s *Settings) SetRoyaltyOverride(collection, beneficiary common.Address, bps int64) error {
	if bps < 0 || bps > maxBps {
		return ErrBadRatio
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[collection] = RoyaltyOverride{Beneficiary: beneficiary, Bps: bps}
	return nil
}
