// Package swap drives HTLC cross-chain swaps: the orchestrator builds an order
// and locks both legs, the monitor reveals the secret and settles once the
// reveal delay has passed.
package swap

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/internal/timelock"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderExists       = errors.New("order already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// Status
// =============================================================================

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusEscrowsCreated Status = "escrows_created"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
)

var statusDescriptions = map[Status]string{
	StatusPending:        "Order created, preparing escrows",
	StatusEscrowsCreated: "Escrows deployed, waiting for finality",
	StatusCompleted:      "Atomic swap completed successfully",
	StatusFailed:         "Swap failed, funds can be recovered",
}

// validTransitions lists the allowed next states. pending never jumps to completed.
var validTransitions = map[Status][]Status{
	StatusPending:        {StatusEscrowsCreated, StatusFailed},
	StatusEscrowsCreated: {StatusCompleted, StatusFailed},
}

// IsTerminal returns true for completed and failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the status may move to next.
// Staying in the same state is always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Description returns a human readable description.
func (s Status) Description() string {
	if d, ok := statusDescriptions[s]; ok {
		return d
	}
	return "Unknown status"
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusDescriptions[s]
	return ok
}

// Mode is the settlement guarantee an order actually got.
type Mode string

const (
	// ModeEscrow locks both legs in HTLC escrows.
	ModeEscrow Mode = "escrow"

	// ModeDegraded moves tokens directly. It is not atomic.
	ModeDegraded Mode = "degraded"
)

// =============================================================================
// OrderRecord
// =============================================================================

// OrderRecord is the resolver's state for one swap.
type OrderRecord struct {
	OrderHash  order.Hash
	HashScheme order.Scheme
	Order      order.Order
	HashLock   order.HashLock

	// Secret is cleared once the order completes.
	Secret        order.Secret
	SecretCleared bool

	SrcTimeLocks timelock.Packed
	DstTimeLocks timelock.Packed

	FromNetwork string
	ToNetwork   string
	FromToken   string
	ToToken     string
	Amount      string // requested decimal amount

	Mode   Mode
	Status Status

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time

	// PullTxHash is the transferFrom that moved the user's tokens to the resolver.
	PullTxHash string

	// SrcTxHash/DstTxHash are the escrow creations, or the pull and the direct
	// transfer in degraded mode.
	SrcTxHash string
	DstTxHash string
	SrcEscrow string
	DstEscrow string

	PayoutTxHash   string   // destination withdraw (or degraded transfer)
	ClaimTxHash    string   // resolver's source withdraw
	CancelTxHashes []string // escrow cancellations

	PartialSettlement bool
	ErrorKind         swaperr.Kind
	Error             string
}

// Clone returns a deep copy.
func (r *OrderRecord) Clone() *OrderRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Order.MakingAmount = cloneBig(r.Order.MakingAmount)
	c.Order.TakingAmount = cloneBig(r.Order.TakingAmount)
	c.Order.MakerTraits = cloneBig(r.Order.MakerTraits)
	if r.CancelTxHashes != nil {
		c.CancelTxHashes = append([]string(nil), r.CancelTxHashes...)
	}
	return &c
}

// SetStatus moves the record to next, enforcing the lifecycle.
func (r *OrderRecord) SetStatus(next Status) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// Fail marks the record failed with err's kind and message.
func (r *OrderRecord) Fail(err error) error {
	if e := r.SetStatus(StatusFailed); e != nil {
		return e
	}
	r.ErrorKind = swaperr.KindOf(err)
	r.Error = err.Error()
	if swaperr.Is(err, swaperr.KindPartialSettlement) {
		r.PartialSettlement = true
	}
	return nil
}

// ClearSecret zeroes the secret.
func (r *OrderRecord) ClearSecret() {
	r.Secret.Zero()
	r.SecretCleared = true
}

// SourceRef returns the most specific completed source-side reference.
func (r *OrderRecord) SourceRef() string {
	switch {
	case r.SrcEscrow != "":
		return r.SrcEscrow
	case r.SrcTxHash != "":
		return r.SrcTxHash
	default:
		return r.PullTxHash
	}
}

func cloneBig(b *big.Int) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b)
}
