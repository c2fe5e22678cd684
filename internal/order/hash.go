package order

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Scheme identifies which encoding produced an order hash.
type Scheme string

const (
	// SchemeABI is keccak256(abi.encode(string, string, string, uint256,
	// uint256, string, bytes32, uint256)) over the order fields in
	// declaration order. Addresses are encoded as strings so orders that mix
	// EVM and Tron address formats hash the same way.
	SchemeABI Scheme = "abi"

	// SchemeDelimited is keccak256 of the length-prefixed fields joined
	// with "-", each written as "<byte length>:<value>".
	SchemeDelimited Scheme = "delimited"
)

var ErrInvalidOrder = errors.New("invalid order")

var orderArguments = mustArguments(
	"string", "string", "string", "uint256", "uint256", "string", "bytes32", "uint256",
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("order: bad abi type %s: %v", t, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// Encode returns the canonical ABI encoding of the order.
func Encode(o *Order) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	traits := o.MakerTraits
	if traits == nil {
		traits = new(big.Int)
	}
	for name, v := range map[string]*big.Int{"makingAmount": o.MakingAmount, "takingAmount": o.TakingAmount, "makerTraits": traits} {
		if err := checkUint256(name, v); err != nil {
			return nil, err
		}
	}
	return orderArguments.Pack(
		o.Maker,
		o.MakerAsset,
		o.TakerAsset,
		o.MakingAmount,
		o.TakingAmount,
		o.Receiver,
		o.Salt,
		traits,
	)
}

// HashABI hashes the canonical ABI encoding.
func HashABI(o *Order) (Hash, error) {
	enc, err := Encode(o)
	if err != nil {
		return Hash{}, fmt.Errorf("failed to abi-encode order: %w", err)
	}
	return Hash(crypto.Keccak256Hash(enc)), nil
}

// HashDelimited hashes maker, makerAsset, takerAsset, making, taking,
// receiver, salt and traits in that order. Amounts and traits are decimal,
// the salt is 0x-prefixed hex. The length prefix keeps a "-" inside a field
// from shifting field boundaries.
func HashDelimited(o *Order) (Hash, error) {
	if o == nil {
		return Hash{}, fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	fields := []string{
		o.Maker,
		o.MakerAsset,
		o.TakerAsset,
		decimalOrZero(o.MakingAmount),
		decimalOrZero(o.TakingAmount),
		o.Receiver,
		hexutil.Encode(o.Salt[:]),
		decimalOrZero(o.MakerTraits),
	}
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}
	return Hash(crypto.Keccak256Hash([]byte(b.String()))), nil
}

// ComputeHash returns the order hash and the scheme used. The ABI scheme is
// used whenever the order can be encoded; the delimited scheme is only reached
// for orders the ABI encoder rejects (nil, negative or oversized amounts).
func ComputeHash(o *Order) (Hash, Scheme, error) {
	h, err := HashABI(o)
	if err == nil {
		return h, SchemeABI, nil
	}
	h, ferr := HashDelimited(o)
	if ferr != nil {
		return Hash{}, "", errors.Join(err, ferr)
	}
	return h, SchemeDelimited, nil
}

// checkUint256 rejects values the ABI encoder would otherwise wrap or panic on.
func checkUint256(name string, v *big.Int) error {
	switch {
	case v == nil:
		return fmt.Errorf("%w: %s is nil", ErrInvalidOrder, name)
	case v.Sign() < 0:
		return fmt.Errorf("%w: %s is negative", ErrInvalidOrder, name)
	case v.BitLen() > 256:
		return fmt.Errorf("%w: %s exceeds 256 bits", ErrInvalidOrder, name)
	}
	return nil
}

func decimalOrZero(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
