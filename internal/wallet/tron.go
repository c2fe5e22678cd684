package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
)

// TronAddressPrefix is the version byte of Tron mainnet and testnet addresses.
const TronAddressPrefix byte = 0x41

var ErrInvalidTronAddress = errors.New("invalid tron address")

// EVMToTronAddress encodes a 20-byte account as a base58check Tron address.
func EVMToTronAddress(addr common.Address) string {
	return base58.CheckEncode(addr.Bytes(), TronAddressPrefix)
}

// TronToEVMAddress decodes a base58check Tron address (T...) into its 20-byte
// account.
func TronToEVMAddress(addr string) (common.Address, error) {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidTronAddress, addr, err)
	}
	if version != TronAddressPrefix {
		return common.Address{}, fmt.Errorf("%w: %q: version byte %#x", ErrInvalidTronAddress, addr, version)
	}
	if len(payload) != common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: %q: payload length %d", ErrInvalidTronAddress, addr, len(payload))
	}
	return common.BytesToAddress(payload), nil
}

// ValidateTronAddress checks a base58check Tron address.
func ValidateTronAddress(addr string) error {
	_, err := TronToEVMAddress(addr)
	return err
}

// TronHexAddress returns the 41-prefixed hex form used by the full-node HTTP API.
func TronHexAddress(addr string) (string, error) {
	a, err := TronToEVMAddress(addr)
	if err != nil {
		return "", err
	}
	return "41" + hex.EncodeToString(a.Bytes()), nil
}
