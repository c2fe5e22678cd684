package wallet

import (
	"errors"
	"fmt"
	"os"
)

// Default networks whose coin types are used for mnemonic derivation.
const (
	evmDerivationNetwork  = "ethereum"
	tronDerivationNetwork = "tron"
)

var (
	ErrNoKey      = errors.New("no resolver key configured")
	ErrSeedExists = errors.New("seed file already exists")
)

// KeySource lists where resolver keys may come from, in priority order:
// raw private keys, then a mnemonic, then an encrypted seed file.
type KeySource struct {
	PrivateKey     string
	TronPrivateKey string
	Mnemonic       string
	SeedFile       string
	SeedPassword   string
	Account        uint32
	Index          uint32
}

// Keys are the resolver's signing keys.
type Keys struct {
	EVM  *Signer
	Tron *Signer
}

// LoadKeys resolves the resolver keys from the first available source.
func LoadKeys(src KeySource) (*Keys, error) {
	if src.PrivateKey != "" {
		evm, err := SignerFromHex(src.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("resolver key: %w", err)
		}
		tron := evm
		if src.TronPrivateKey != "" && src.TronPrivateKey != src.PrivateKey {
			if tron, err = SignerFromHex(src.TronPrivateKey); err != nil {
				return nil, fmt.Errorf("tron key: %w", err)
			}
		}
		return &Keys{EVM: evm, Tron: tron}, nil
	}

	mnemonic := src.Mnemonic
	if mnemonic == "" && src.SeedFile != "" && src.SeedPassword != "" {
		if _, err := os.Stat(src.SeedFile); err == nil {
			enc, err := LoadEncryptedSeed(src.SeedFile)
			if err != nil {
				return nil, err
			}
			if mnemonic, err = DecryptMnemonic(enc, src.SeedPassword); err != nil {
				return nil, err
			}
		}
	}
	if mnemonic == "" {
		return nil, ErrNoKey
	}

	w, err := NewFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	defer w.ClearCache()

	evm, err := w.DeriveSigner(evmDerivationNetwork, src.Account, src.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive EVM key: %w", err)
	}
	tron, err := w.DeriveSigner(tronDerivationNetwork, src.Account, src.Index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive Tron key: %w", err)
	}
	return &Keys{EVM: evm, Tron: tron}, nil
}

// Clear zeroes both keys.
func (k *Keys) Clear() {
	if k == nil {
		return
	}
	k.EVM.Clear()
	if k.Tron != k.EVM {
		k.Tron.Clear()
	}
}

// InitSeed generates a new mnemonic, encrypts it with password and writes it
// to path. It refuses to overwrite an existing seed file. The mnemonic is
// returned so the operator can back it up.
func InitSeed(path, password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrSeedExists, path)
	}

	mnemonic, err := GenerateMnemonic()
	if err != nil {
		return "", err
	}
	enc, err := EncryptMnemonic(mnemonic, password)
	if err != nil {
		return "", err
	}
	if err := SaveEncryptedSeed(enc, path); err != nil {
		return "", err
	}
	return mnemonic, nil
}
