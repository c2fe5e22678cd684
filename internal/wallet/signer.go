package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/klingon-exchange/fusion-resolver/pkg/helpers"
)

var ErrInvalidPrivateKey = errors.New("invalid private key")

// Signer wraps a secp256k1 private key and exposes it in the forms the EVM
// and Tron adapters need.
type Signer struct {
	key *btcec.PrivateKey
}

// NewSigner wraps a private key.
func NewSigner(key *btcec.PrivateKey) *Signer {
	return &Signer{key: key}
}

// SignerFromHex parses a 32-byte hex private key (0x prefix optional).
func SignerFromHex(s string) (*Signer, error) {
	b, err := helpers.HexToBytes32(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	defer SecureClear(b[:])

	// Reject zero and out-of-range scalars.
	if _, err := crypto.ToECDSA(b[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	key, _ := btcec.PrivKeyFromBytes(b[:])
	return &Signer{key: key}, nil
}

// ECDSA returns the key for go-ethereum transactors.
func (s *Signer) ECDSA() *ecdsa.PrivateKey {
	return s.key.ToECDSA()
}

// PublicKey returns the public key.
func (s *Signer) PublicKey() *btcec.PublicKey {
	return s.key.PubKey()
}

// EVMAddress returns the EVM address of the key.
func (s *Signer) EVMAddress() common.Address {
	return PublicKeyToEVMAddress(s.key.PubKey())
}

// TronAddress returns the base58check Tron address of the key.
func (s *Signer) TronAddress() string {
	return EVMToTronAddress(s.EVMAddress())
}

// SignHash signs a 32-byte digest and returns r || s || v with v in {0, 1}.
func (s *Signer) SignHash(hash []byte) ([]byte, error) {
	sig, err := s.signCompact(hash)
	if err != nil {
		return nil, err
	}
	sig[64] -= 27
	return sig, nil
}

// SignTronTxID signs a Tron transaction ID. Tron expects r || s || v with
// v in {27, 28}.
func (s *Signer) SignTronTxID(txID []byte) ([]byte, error) {
	return s.signCompact(txID)
}

// signCompact returns r || s || v with v in {27, 28}.
func (s *Signer) signCompact(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}

	// SignCompact returns v || r || s.
	compact := btcecdsa.SignCompact(s.key, hash, false)
	if len(compact) != 65 {
		return nil, errors.New("invalid signature length")
	}

	sig := make([]byte, 65)
	copy(sig[:64], compact[1:])
	sig[64] = compact[0]
	return sig, nil
}

// Clear zeroes the private key.
func (s *Signer) Clear() {
	if s != nil && s.key != nil {
		s.key.Zero()
	}
}

// PublicKeyToEVMAddress converts a secp256k1 public key to an EVM address:
// the last 20 bytes of keccak256 over the uncompressed key without its prefix.
func PublicKeyToEVMAddress(pubKey *btcec.PublicKey) common.Address {
	return common.BytesToAddress(crypto.Keccak256(pubKey.SerializeUncompressed()[1:])[12:])
}

// ValidateEVMAddress checks a 0x-prefixed hex address. Mixed-case input must
// carry a valid EIP-55 checksum.
func ValidateEVMAddress(address string) error {
	if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return fmt.Errorf("invalid EVM address %q", address)
	}
	body := address[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if common.HexToAddress(address).Hex() != address {
			return fmt.Errorf("invalid EIP-55 checksum for %q", address)
		}
	}
	return nil
}
