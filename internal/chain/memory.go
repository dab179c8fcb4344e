package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AssetKey identifies one item inside one collection.
type AssetKey struct {
	Collection common.Address
	TokenID    uint64
}

type holdingKey struct {
	Token  common.Address
	Holder common.Address
}

type royaltyTerm struct {
	Receiver common.Address
	Bps      int64
}

type memState struct {
	owners     map[AssetKey]common.Address
	native     map[common.Address]decimal.Decimal
	tokens     map[holdingKey]decimal.Decimal
	allowances map[holdingKey]decimal.Decimal
}

// Memory is an in-process chain world backing every collaborator interface.
// Used for testing and for the standalone server mode. Not suitable for
// production settlement (no persistence, no real custody).
//
// The collaborator facets are reached through Assets, Tokens, Native, and
// Royalties; Memory itself implements World.
type Memory struct {
	mu        sync.RWMutex
	engine    common.Address
	state     memState
	royalties map[common.Address]royaltyTerm
	snapshots []memState
	failSends map[common.Address]bool

	// TransferHook, when set, runs after every asset transfer. It stands in
	// for arbitrary receiver code and lets tests exercise the reentrancy
	// boundary.
	TransferHook func()
}

// NewMemory creates an in-memory chain world. engine is the address holding
// custodied assets and funds, and the implicit spender of token allowances.
func NewMemory(engine common.Address) *Memory {
	return &Memory{
		engine: engine,
		state: memState{
			owners:     make(map[AssetKey]common.Address),
			native:     make(map[common.Address]decimal.Decimal),
			tokens:     make(map[holdingKey]decimal.Decimal),
			allowances: make(map[holdingKey]decimal.Decimal),
		},
		royalties: make(map[common.Address]royaltyTerm),
		failSends: make(map[common.Address]bool),
	}
}

// Assets returns the asset-ownership facet.
func (m *Memory) Assets() AssetRegistry { return memAssets{m} }

// Tokens returns the fungible-ledger facet.
func (m *Memory) Tokens() TokenLedger { return memTokens{m} }

// Native returns the native-value facet.
func (m *Memory) Native() NativeLedger { return memNative{m} }

// Royalties returns the royalty-registry facet.
func (m *Memory) Royalties() RoyaltyRegistry { return memRoyalties{m} }

// --- Seeding helpers (tests and standalone mode) ---

// MintAsset assigns an item to an owner.
func (m *Memory) MintAsset(collection common.Address, tokenID uint64, owner common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.owners[AssetKey{collection, tokenID}] = owner
}

// FundNative credits native value to an account.
func (m *Memory) FundNative(addr common.Address, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.native[addr] = m.state.native[addr].Add(amount)
}

// FundToken credits token balance to an account.
func (m *Memory) FundToken(token, addr common.Address, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := holdingKey{token, addr}
	m.state.tokens[k] = m.state.tokens[k].Add(amount)
}

// Approve grants the engine an allowance over an owner's token balance.
func (m *Memory) Approve(token, owner common.Address, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.allowances[holdingKey{token, owner}] = amount
}

// SetRoyaltyTerm registers a collection with the royalty registry.
func (m *Memory) SetRoyaltyTerm(collection, receiver common.Address, bps int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.royalties[collection] = royaltyTerm{Receiver: receiver, Bps: bps}
}

// FailSendsTo makes native pushes to an address report failure, standing in
// for a recipient that rejects payment.
func (m *Memory) FailSendsTo(addr common.Address, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSends[addr] = fail
}

// NativeBalance returns an account's native balance (test inspection).
func (m *Memory) NativeBalance(addr common.Address) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.native[addr]
}

// TokenBalance returns an account's token balance (test inspection).
func (m *Memory) TokenBalance(token, addr common.Address) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.tokens[holdingKey{token, addr}]
}

// AssetOwner returns the current owner of an item (test inspection).
func (m *Memory) AssetOwner(collection common.Address, tokenID uint64) common.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.owners[AssetKey{collection, tokenID}]
}

// --- AssetRegistry facet ---

type memAssets struct{ m *Memory }

func (a memAssets) OwnerOf(_ context.Context, collection common.Address, tokenID uint64) (common.Address, error) {
	a.m.mu.RLock()
	defer a.m.mu.RUnlock()
	owner, ok := a.m.state.owners[AssetKey{collection, tokenID}]
	if !ok {
		return common.Address{}, fmt.Errorf("chain: unknown asset %s/%d", collection.Hex(), tokenID)
	}
	return owner, nil
}

func (a memAssets) TransferFrom(_ context.Context, collection, from, to common.Address, tokenID uint64) error {
	a.m.mu.Lock()
	key := AssetKey{collection, tokenID}
	owner, ok := a.m.state.owners[key]
	if !ok {
		a.m.mu.Unlock()
		return fmt.Errorf("chain: unknown asset %s/%d", collection.Hex(), tokenID)
	}
	if owner != from {
		a.m.mu.Unlock()
		return fmt.Errorf("chain: %s does not own asset %s/%d", from.Hex(), collection.Hex(), tokenID)
	}
	a.m.state.owners[key] = to
	hook := a.m.TransferHook
	a.m.mu.Unlock()

	// Receiver code runs outside the ledger lock, like any external callee.
	if hook != nil {
		hook()
	}
	return nil
}

// --- TokenLedger facet ---

type memTokens struct{ m *Memory }

func (t memTokens) BalanceOf(_ context.Context, token, addr common.Address) (decimal.Decimal, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	return t.m.state.tokens[holdingKey{token, addr}], nil
}

func (t memTokens) Allowance(_ context.Context, token, owner common.Address) (decimal.Decimal, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	return t.m.state.allowances[holdingKey{token, owner}], nil
}

func (t memTokens) Transfer(_ context.Context, token, from, to common.Address, amount decimal.Decimal) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if from != t.m.engine {
		return fmt.Errorf("chain: transfer from %s is not engine-held", from.Hex())
	}
	return t.m.moveToken(token, from, to, amount)
}

func (t memTokens) TransferFrom(_ context.Context, token, owner, to common.Address, amount decimal.Decimal) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	k := holdingKey{token, owner}
	if t.m.state.allowances[k].LessThan(amount) {
		return fmt.Errorf("chain: allowance of %s too low for %s", owner.Hex(), amount)
	}
	if err := t.m.moveToken(token, owner, to, amount); err != nil {
		return err
	}
	t.m.state.allowances[k] = t.m.state.allowances[k].Sub(amount)
	return nil
}

// moveToken transfers balance; caller holds the lock.
func (m *Memory) moveToken(token, from, to common.Address, amount decimal.Decimal) error {
	fk := holdingKey{token, from}
	if m.state.tokens[fk].LessThan(amount) {
		return fmt.Errorf("chain: balance of %s too low for %s", from.Hex(), amount)
	}
	tk := holdingKey{token, to}
	m.state.tokens[fk] = m.state.tokens[fk].Sub(amount)
	m.state.tokens[tk] = m.state.tokens[tk].Add(amount)
	return nil
}

// --- NativeLedger facet ---

type memNative struct{ m *Memory }

func (n memNative) Collect(_ context.Context, from common.Address, amount decimal.Decimal) error {
	n.m.mu.Lock()
	defer n.m.mu.Unlock()
	if n.m.state.native[from].LessThan(amount) {
		return fmt.Errorf("chain: native balance of %s too low for %s", from.Hex(), amount)
	}
	n.m.state.native[from] = n.m.state.native[from].Sub(amount)
	n.m.state.native[n.m.engine] = n.m.state.native[n.m.engine].Add(amount)
	return nil
}

func (n memNative) Send(_ context.Context, to common.Address, amount decimal.Decimal) bool {
	n.m.mu.Lock()
	defer n.m.mu.Unlock()
	if n.m.failSends[to] {
		return false
	}
	if n.m.state.native[n.m.engine].LessThan(amount) {
		return false
	}
	n.m.state.native[n.m.engine] = n.m.state.native[n.m.engine].Sub(amount)
	n.m.state.native[to] = n.m.state.native[to].Add(amount)
	return true
}

// --- RoyaltyRegistry facet ---

type memRoyalties struct{ m *Memory }

func (r memRoyalties) Supports(_ context.Context, collection common.Address) bool {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	_, ok := r.m.royalties[collection]
	return ok
}

func (r memRoyalties) RoyaltyInfo(_ context.Context, collection common.Address, _ uint64,
	salePrice decimal.Decimal) (common.Address, decimal.Decimal, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	term, ok := r.m.royalties[collection]
	if !ok {
		return common.Address{}, decimal.Zero, fmt.Errorf("chain: no royalty terms for %s", collection.Hex())
	}
	amount := salePrice.Mul(decimal.NewFromInt(term.Bps)).Div(decimal.NewFromInt(10000)).Floor()
	return term.Receiver, amount, nil
}

// --- World ---

func (m *Memory) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, m.state.clone())
	return len(m.snapshots) - 1
}

func (m *Memory) RevertTo(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.snapshots) {
		return
	}
	m.state = m.snapshots[id].clone()
	m.snapshots = m.snapshots[:id]
}

// Release drops a snapshot taken by a committed operation.
func (m *Memory) Release(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id >= 0 && id < len(m.snapshots) {
		m.snapshots = m.snapshots[:id]
	}
}

func (s memState) clone() memState {
	c := memState{
		owners:     make(map[AssetKey]common.Address, len(s.owners)),
		native:     make(map[common.Address]decimal.Decimal, len(s.native)),
		tokens:     make(map[holdingKey]decimal.Decimal, len(s.tokens)),
		allowances: make(map[holdingKey]decimal.Decimal, len(s.allowances)),
	}
	for k, v := range s.owners {
		c.owners[k] = v
	}
	for k, v := range s.native {
		c.native[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.allowances {
		c.allowances[k] = v
	}
	return c
}
