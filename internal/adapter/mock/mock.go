// Package mock provides an in-memory ChainAdapter for tests and dry runs.
//
// The mock keeps native balances, token balances, allowances and an escrow
// table, enforces the same preconditions a real chain would (allowance,
// balance, hash lock) and records every call. Failures can be injected per
// method.
package mock

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/klingon-exchange/fusion-resolver/internal/adapter"
	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
)

// Escrow is an escrow held by the mock.
type Escrow struct {
	Address   string
	Params    adapter.EscrowParams
	Withdrawn bool
	Cancelled bool
	Secret    order.Secret
}

// Call is one recorded adapter call.
type Call struct {
	Method string
	Args   []string
}

// Adapter is an in-memory chain.
type Adapter struct {
	mu sync.Mutex

	network  string
	escrow   bool
	resolver string

	balances      map[string]*big.Int            // address -> native
	tokenBalances map[[2]string]*big.Int         // token, holder
	allowances    map[[3]string]*big.Int         // token, owner, spender
	escrows       map[order.Hash]*Escrow         // by order hash
	byAddress     map[string]*Escrow             // by escrow address
	failures      map[string]error               // method -> injected error
	hooks         map[string]func(args []string) // method -> called before the method runs

	calls   []Call
	txCount int
	closed  bool
}

// New creates a mock adapter for a network.
func New(network string, supportsEscrow bool) *Adapter {
	return &Adapter{
		network:       network,
		escrow:        supportsEscrow,
		resolver:      common.BytesToAddress(crypto.Keccak256([]byte("resolver/" + network))[12:]).Hex(),
		balances:      make(map[string]*big.Int),
		tokenBalances: make(map[[2]string]*big.Int),
		allowances:    make(map[[3]string]*big.Int),
		escrows:       make(map[order.Hash]*Escrow),
		byAddress:     make(map[string]*Escrow),
		failures:      make(map[string]error),
		hooks:         make(map[string]func([]string)),
	}
}

var _ adapter.ChainAdapter = (*Adapter)(nil)

// =============================================================================
// Scripting
// =============================================================================

// SetResolverAddress replaces the resolver address.
func (m *Adapter) SetResolverAddress(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolver = addr
}

// SetBalance sets a native balance.
func (m *Adapter) SetBalance(addr string, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[key(addr)] = new(big.Int).Set(amount)
}

// SetTokenBalance sets a token balance.
func (m *Adapter) SetTokenBalance(token, holder string, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenBalances[[2]string{key(token), key(holder)}] = new(big.Int).Set(amount)
}

// SetAllowance sets an allowance.
func (m *Adapter) SetAllowance(token, owner, spender string, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[[3]string{key(token), key(owner), key(spender)}] = new(big.Int).Set(amount)
}

// FailOn makes every call to method return err until ClearFailure.
func (m *Adapter) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = err
}

// ClearFailure removes an injected failure.
func (m *Adapter) ClearFailure(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, method)
}

// OnCall registers fn to run (without the adapter lock) before method executes.
func (m *Adapter) OnCall(method string, fn func(args []string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[method] = fn
}

// =============================================================================
// Inspection
// =============================================================================

// Calls returns a copy of the call log.
func (m *Adapter) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how often method was called.
func (m *Adapter) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// TokenBalance returns a token balance without recording a call.
func (m *Adapter) TokenBalance(token, holder string) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenBalance(token, holder)
}

// Escrow returns a copy of the escrow for an order.
func (m *Adapter) Escrow(orderHash order.Hash) (Escrow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escrows[orderHash]
	if !ok {
		return Escrow{}, false
	}
	return *e, true
}

// Closed reports whether Close was called.
func (m *Adapter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// =============================================================================
// ChainAdapter
// =============================================================================

func (m *Adapter) Network() string      { return m.network }
func (m *Adapter) SupportsEscrow() bool { return m.escrow }

func (m *Adapter) ResolverAddress() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolver
}

func (m *Adapter) ValidateAddress(address string) error {
	if address == "" || strings.ContainsAny(address, " \t\n") {
		return fmt.Errorf("invalid address %q", address)
	}
	return nil
}

func (m *Adapter) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *Adapter) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if err := m.begin(ctx, "GetBalance", address); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return copyOrZero(m.balances[key(address)]), nil
}

func (m *Adapter) GetTokenBalance(ctx context.Context, token, address string) (*big.Int, error) {
	if err := m.begin(ctx, "GetTokenBalance", token, address); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return m.tokenBalance(token, address), nil
}

func (m *Adapter) GetAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	if err := m.begin(ctx, "GetAllowance", token, owner, spender); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return copyOrZero(m.allowances[[3]string{key(token), key(owner), key(spender)}]), nil
}

func (m *Adapter) Approve(ctx context.Context, token, spender string, amount *big.Int) (adapter.TxRef, error) {
	if err := m.begin(ctx, "Approve", token, spender, amount.String()); err != nil {
		return "", err
	}
	defer m.mu.Unlock()
	m.allowances[[3]string{key(token), key(m.resolver), key(spender)}] = new(big.Int).Set(amount)
	return m.nextTx(), nil
}

func (m *Adapter) Transfer(ctx context.Context, token, to string, amount *big.Int) (adapter.TxRef, error) {
	if err := m.begin(ctx, "Transfer", token, to, amount.String()); err != nil {
		return "", err
	}
	defer m.mu.Unlock()
	if err := m.move(m.op("transfer"), token, m.resolver, to, amount); err != nil {
		return "", err
	}
	return m.nextTx(), nil
}

func (m *Adapter) TransferFrom(ctx context.Context, token, from, to string, amount *big.Int) (adapter.TxRef, error) {
	if err := m.begin(ctx, "TransferFrom", token, from, to, amount.String()); err != nil {
		return "", err
	}
	defer m.mu.Unlock()

	op := m.op("transferFrom")
	k := [3]string{key(token), key(from), key(m.resolver)}
	allowance := copyOrZero(m.allowances[k])
	if allowance.Cmp(amount) < 0 {
		return "", swaperr.Revert(op, "ERC20: insufficient allowance")
	}
	if err := m.move(op, token, from, to, amount); err != nil {
		return "", err
	}
	m.allowances[k] = allowance.Sub(allowance, amount)
	return m.nextTx(), nil
}

func (m *Adapter) CreateEscrow(ctx context.Context, p adapter.EscrowParams) (adapter.EscrowRef, error) {
	if !m.escrow {
		return adapter.EscrowRef{}, adapter.ErrEscrowUnsupported
	}
	if err := m.begin(ctx, "CreateEscrow", p.OrderHash.Hex(), p.Token, p.Amount.String(), p.Depositor, p.Beneficiary); err != nil {
		return adapter.EscrowRef{}, err
	}
	defer m.mu.Unlock()

	op := m.op("createEscrow")
	if _, exists := m.escrows[p.OrderHash]; exists {
		return adapter.EscrowRef{}, swaperr.Revert(op, "escrow already exists")
	}

	addr := common.BytesToAddress(crypto.Keccak256([]byte(m.network), p.OrderHash[:])[12:]).Hex()
	// The escrow pulls the amount from the resolver, which holds the tokens
	// after transferFrom or funds the destination leg itself.
	if err := m.move(op, p.Token, m.resolver, addr, p.Amount); err != nil {
		return adapter.EscrowRef{}, err
	}

	e := &Escrow{Address: addr, Params: p}
	m.escrows[p.OrderHash] = e
	m.byAddress[key(addr)] = e
	return adapter.EscrowRef{Address: addr, TxHash: m.nextTx()}, nil
}

func (m *Adapter) GetEscrow(ctx context.Context, orderHash order.Hash) (string, bool, error) {
	if !m.escrow {
		return "", false, adapter.ErrEscrowUnsupported
	}
	if err := m.begin(ctx, "GetEscrow", orderHash.Hex()); err != nil {
		return "", false, err
	}
	defer m.mu.Unlock()
	e, ok := m.escrows[orderHash]
	if !ok {
		return "", false, nil
	}
	return e.Address, true, nil
}

func (m *Adapter) Withdraw(ctx context.Context, escrowAddr string, secret order.Secret) (adapter.TxRef, error) {
	if !m.escrow {
		return "", adapter.ErrEscrowUnsupported
	}
	if err := m.begin(ctx, "Withdraw", escrowAddr); err != nil {
		return "", err
	}
	defer m.mu.Unlock()

	op := m.op("withdraw")
	e, ok := m.byAddress[key(escrowAddr)]
	switch {
	case !ok:
		return "", swaperr.Revert(op, "no escrow at "+escrowAddr)
	case e.Withdrawn || e.Cancelled:
		return "", swaperr.Revert(op, "escrow already settled")
	case !e.Params.HashLock.Matches(secret):
		return "", swaperr.Revert(op, "invalid secret")
	}

	if err := m.move(op, e.Params.Token, e.Address, e.Params.Beneficiary, e.Params.Amount); err != nil {
		return "", err
	}
	e.Withdrawn = true
	e.Secret = secret
	return m.nextTx(), nil
}

func (m *Adapter) Cancel(ctx context.Context, escrowAddr string) (adapter.TxRef, error) {
	if !m.escrow {
		return "", adapter.ErrEscrowUnsupported
	}
	if err := m.begin(ctx, "Cancel", escrowAddr); err != nil {
		return "", err
	}
	defer m.mu.Unlock()

	op := m.op("cancel")
	e, ok := m.byAddress[key(escrowAddr)]
	switch {
	case !ok:
		return "", swaperr.Revert(op, "no escrow at "+escrowAddr)
	case e.Withdrawn || e.Cancelled:
		return "", swaperr.Revert(op, "escrow already settled")
	}

	if err := m.move(op, e.Params.Token, e.Address, e.Params.Depositor, e.Params.Amount); err != nil {
		return "", err
	}
	e.Cancelled = true
	return m.nextTx(), nil
}

// =============================================================================
// Internals
// =============================================================================

// begin records the call, runs hooks and injected failures, and returns with
// m.mu held on success.
func (m *Adapter) begin(ctx context.Context, method string, args ...string) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
	hook := m.hooks[method]
	m.mu.Unlock()

	if hook != nil {
		hook(args)
	}
	if err := ctx.Err(); err != nil {
		return swaperr.RPC(m.op(method), err)
	}

	m.mu.Lock()
	if err := m.failures[method]; err != nil {
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Adapter) move(op, token, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return swaperr.Revert(op, "zero amount")
	}
	bal := m.tokenBalance(token, from)
	if bal.Cmp(amount) < 0 {
		return swaperr.Revert(op, "ERC20: transfer amount exceeds balance")
	}
	m.tokenBalances[[2]string{key(token), key(from)}] = bal.Sub(bal, amount)
	dst := m.tokenBalance(token, to)
	m.tokenBalances[[2]string{key(token), key(to)}] = dst.Add(dst, amount)
	return nil
}

func (m *Adapter) tokenBalance(token, holder string) *big.Int {
	return copyOrZero(m.tokenBalances[[2]string{key(token), key(holder)}])
}

func (m *Adapter) nextTx() adapter.TxRef {
	m.txCount++
	return adapter.TxRef(crypto.Keccak256Hash([]byte(fmt.Sprintf("%s/%d", m.network, m.txCount))).Hex())
}

func (m *Adapter) op(method string) string {
	return m.network + "." + method
}

func key(addr string) string {
	return strings.ToLower(addr)
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// ErrInjected is a convenience error for FailOn.
var ErrInjected = errors.New("injected failure")
