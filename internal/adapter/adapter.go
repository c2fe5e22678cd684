// Package adapter puts every settlement network behind one capability set.
//
// An adapter either supports HTLC escrows (an escrow factory is deployed on
// the network) or runs in degraded mode, where only direct token transfers are
// available. Callers check SupportsEscrow instead of comparing network names.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/timelock"
)

var (
	// ErrEscrowUnsupported is returned by escrow methods of degraded adapters.
	ErrEscrowUnsupported = errors.New("escrow not supported on this network")

	// ErrReadOnly is returned by write methods when no signing key is loaded.
	ErrReadOnly = errors.New("adapter has no signing key")

	ErrDuplicateNetwork = errors.New("duplicate network adapter")
)

// DefaultTimeout bounds a single chain call, including the wait for its receipt.
const DefaultTimeout = 2 * time.Minute

// TxRef identifies a confirmed transaction (EVM tx hash or Tron txID).
type TxRef string

func (r TxRef) String() string { return string(r) }

// EscrowParams are the arguments of an escrow creation.
type EscrowParams struct {
	OrderHash     order.Hash
	Token         string // token address in the network's native encoding
	Amount        *big.Int
	HashLock      order.HashLock
	TimeLocks     timelock.Packed
	Depositor     string
	Beneficiary   string
	SafetyDeposit *big.Int // native value attached to the call, may be nil
}

// EscrowRef is a deployed escrow.
type EscrowRef struct {
	Address string
	TxHash  TxRef
}

// ChainAdapter is the capability set of one settlement network.
//
// Reads fail with a swaperr RpcError. Writes block until the transaction is
// confirmed and fail with RpcError (node failure or timeout) or RevertError
// (the chain rejected the transaction) carrying the node-reported reason.
type ChainAdapter interface {
	Network() string
	SupportsEscrow() bool

	// ResolverAddress is the address the resolver signs with on this network.
	ResolverAddress() string

	GetBalance(ctx context.Context, address string) (*big.Int, error)
	GetTokenBalance(ctx context.Context, token, address string) (*big.Int, error)
	GetAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error)

	Approve(ctx context.Context, token, spender string, amount *big.Int) (TxRef, error)
	Transfer(ctx context.Context, token, to string, amount *big.Int) (TxRef, error)
	TransferFrom(ctx context.Context, token, from, to string, amount *big.Int) (TxRef, error)

	CreateEscrow(ctx context.Context, p EscrowParams) (EscrowRef, error)
	GetEscrow(ctx context.Context, orderHash order.Hash) (address string, found bool, err error)
	Withdraw(ctx context.Context, escrow string, secret order.Secret) (TxRef, error)
	Cancel(ctx context.Context, escrow string) (TxRef, error)

	// ValidateAddress checks an address in the network's native encoding.
	ValidateAddress(address string) error

	Close()
}

// =============================================================================
// Set
// =============================================================================

// Set maps network names to adapters. It is built once at startup and
// only read afterwards.
type Set struct {
	adapters map[string]ChainAdapter
}

// NewSet builds a set from adapters. Two adapters for the same network are an error.
func NewSet(adapters ...ChainAdapter) (*Set, error) {
	s := &Set{adapters: make(map[string]ChainAdapter, len(adapters))}
	for _, a := range adapters {
		if _, ok := s.adapters[a.Network()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNetwork, a.Network())
		}
		s.adapters[a.Network()] = a
	}
	return s, nil
}

// Get returns the adapter for a network.
func (s *Set) Get(network string) (ChainAdapter, bool) {
	a, ok := s.adapters[network]
	return a, ok
}

// Networks returns the network names, sorted.
func (s *Set) Networks() []string {
	names := make([]string, 0, len(s.adapters))
	for name := range s.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EscrowNetworks returns the escrow-capable network names, sorted.
func (s *Set) EscrowNetworks() []string {
	var names []string
	for _, name := range s.Networks() {
		if s.adapters[name].SupportsEscrow() {
			names = append(names, name)
		}
	}
	return names
}

// Close closes every adapter.
func (s *Set) Close() {
	for _, a := range s.adapters {
		a.Close()
	}
}

// boundContext applies the per-call chain timeout.
func boundContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
