// Package order builds swap orders and derives their identifiers: the secret,
// its hash lock, and the order hash used as the escrow key on both chains.
package order

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Secret is the 32-byte preimage that unlocks both escrows.
type Secret [32]byte

// HashLock is keccak256(secret).
type HashLock [32]byte

// Hash is an order hash.
type Hash [32]byte

// Order is an immutable swap order.
type Order struct {
	Maker        string   // user address on the source network
	MakerAsset   string   // asset address on the source network
	TakerAsset   string   // asset address on the destination network
	MakingAmount *big.Int // smallest units of MakerAsset
	TakingAmount *big.Int // smallest units of TakerAsset
	Receiver     string   // user address on the destination network
	Salt         [32]byte
	MakerTraits  *big.Int // reserved flags, always zero
}

// NewSecret generates a random secret.
func NewSecret() (Secret, error) {
	var s Secret
	if _, err := rand.Read(s[:]); err != nil {
		return s, fmt.Errorf("failed to generate secret: %w", err)
	}
	return s, nil
}

// HashLockOf computes the hash lock for a secret.
func HashLockOf(s Secret) HashLock {
	return HashLock(crypto.Keccak256Hash(s[:]))
}

// Matches reports whether the secret opens this hash lock.
func (h HashLock) Matches(s Secret) bool {
	return HashLockOf(s) == h
}

// NewSalt generates a random 256-bit salt.
func NewSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

func (s Secret) Hex() string   { return hexutil.Encode(s[:]) }
func (h HashLock) Hex() string { return hexutil.Encode(h[:]) }
func (h Hash) Hex() string     { return hexutil.Encode(h[:]) }

// Zero overwrites the secret in place.
func (s *Secret) Zero() {
	for i := range s {
		s[i] = 0
	}
}

// IsZero reports whether the secret has been cleared (or never set).
func (s Secret) IsZero() bool {
	return s == Secret{}
}

// ParseSecret decodes a 0x-prefixed 32-byte secret.
func ParseSecret(s string) (Secret, error) {
	var out Secret
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, fmt.Errorf("invalid secret: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("invalid secret length %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// ParseHash decodes a 0x-prefixed 32-byte order hash.
func ParseHash(s string) (Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid order hash: %w", err)
	}
	if len(b) != 32 {
		return Hash{}, fmt.Errorf("invalid order hash length %d", len(b))
	}
	return Hash(common.BytesToHash(b)), nil
}

// ParseHashLock decodes a 0x-prefixed 32-byte hash lock.
func ParseHashLock(s string) (HashLock, error) {
	h, err := ParseHash(s)
	if err != nil {
		return HashLock{}, fmt.Errorf("invalid hash lock: %w", err)
	}
	return HashLock(h), nil
}
