// Package wallet holds the resolver's key material.
//
// Keys come from a raw hex private key, a BIP39 mnemonic (BIP44 derivation per
// network coin type) or an Argon2id-encrypted seed file. The same secp256k1
// key type signs EVM transactions and Tron transaction IDs.
package wallet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/klingon-exchange/fusion-resolver/internal/chain"
	"github.com/tyler-smith/go-bip39"
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

type pathKey [5]uint32

// Wallet derives keys from a BIP39 seed.
type Wallet struct {
	masterKey *hdkeychain.ExtendedKey
	mu        sync.Mutex
	cache     map[pathKey]*hdkeychain.ExtendedKey
}

// GenerateMnemonic generates a new 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return mnemonic, nil
}

// ValidateMnemonic checks if a mnemonic is valid.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// NewFromMnemonic creates a wallet from a BIP39 mnemonic.
// The passphrase is optional (can be empty string).
func NewFromMnemonic(mnemonic, passphrase string) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	defer SecureClear(seed)

	return NewFromSeed(seed)
}

// NewFromSeed creates a wallet from a raw 64-byte seed.
func NewFromSeed(seed []byte) (*Wallet, error) {
	// The net params only affect extended key serialization, which is never
	// exported here.
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	return &Wallet{
		masterKey: masterKey,
		cache:     make(map[pathKey]*hdkeychain.ExtendedKey),
	}, nil
}

// DeriveKey derives a key at m/purpose'/coin'/account'/change/index.
func (w *Wallet) DeriveKey(purpose, coinType, account, change, index uint32) (*hdkeychain.ExtendedKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	pk := pathKey{purpose, coinType, account, change, index}
	if key, ok := w.cache[pk]; ok {
		return key, nil
	}

	steps := []struct {
		name  string
		child uint32
	}{
		{"purpose", hdkeychain.HardenedKeyStart + purpose},
		{"coin", hdkeychain.HardenedKeyStart + coinType},
		{"account", hdkeychain.HardenedKeyStart + account},
		{"change", change},
		{"index", index},
	}

	key := w.masterKey
	for _, s := range steps {
		next, err := key.Derive(s.child)
		if err != nil {
			return nil, fmt.Errorf("failed to derive %s: %w", s.name, err)
		}
		key = next
	}

	w.cache[pk] = key
	return key, nil
}

// DerivePrivateKey derives the private key for a network at the given account
// and index, using the network's BIP44 coin type.
func (w *Wallet) DerivePrivateKey(network string, account, index uint32) (*btcec.PrivateKey, error) {
	params, ok := chain.Get(network)
	if !ok {
		return nil, fmt.Errorf("%w: %s", chain.ErrUnknownNetwork, network)
	}

	key, err := w.DeriveKey(params.DefaultPurpose, params.CoinType, account, 0, index)
	if err != nil {
		return nil, err
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get private key: %w", err)
	}
	return privKey, nil
}

// DeriveSigner derives a signer for a network.
func (w *Wallet) DeriveSigner(network string, account, index uint32) (*Signer, error) {
	privKey, err := w.DerivePrivateKey(network, account, index)
	if err != nil {
		return nil, err
	}
	return NewSigner(privKey), nil
}

// ClearCache drops derived keys.
func (w *Wallet) ClearCache() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k := range w.cache {
		w.cache[k].Zero()
		delete(w.cache, k)
	}
}
