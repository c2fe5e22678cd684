package adapter

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/klingon-exchange/fusion-resolver/internal/backend"
	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/internal/wallet"
	"github.com/klingon-exchange/fusion-resolver/pkg/logging"
)

// DefaultTronFeeLimit is the energy fee limit in sun for contract calls.
const DefaultTronFeeLimit = 100_000_000

// TronConfig configures a Tron adapter.
type TronConfig struct {
	Network string
	Node    *backend.Config

	// ResolverAddress overrides the signer's address for read-only use.
	ResolverAddress string

	FeeLimit     int64
	Timeout      time.Duration
	PollInterval time.Duration
}

// TronAdapter settles TRC20 tokens through a Tron full node. Tron has no escrow
// factory deployment, so the adapter always runs in degraded mode.
type TronAdapter struct {
	network     string
	node        *backend.TronBackend
	signer      *wallet.Signer
	resolver    string // base58
	resolverHex string // 41-prefixed hex
	feeLimit    int64
	timeout     time.Duration
	poll        time.Duration
	log         *logging.Logger
}

var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
)

// NewTronAdapter creates a Tron adapter. Connect is not called here.
func NewTronAdapter(cfg TronConfig, signer *wallet.Signer) (*TronAdapter, error) {
	if cfg.Node == nil || cfg.Node.URL == "" {
		return nil, fmt.Errorf("%s: no node URL", cfg.Network)
	}

	a := &TronAdapter{
		network:  cfg.Network,
		node:     backend.NewTronBackend(cfg.Node),
		signer:   signer,
		feeLimit: cfg.FeeLimit,
		timeout:  cfg.Timeout,
		poll:     cfg.PollInterval,
		log:      logging.GetDefault().Component("tron").With("network", cfg.Network),
	}
	if a.feeLimit <= 0 {
		a.feeLimit = DefaultTronFeeLimit
	}
	if a.poll <= 0 {
		a.poll = 3 * time.Second
	}

	switch {
	case cfg.ResolverAddress != "":
		a.resolver = cfg.ResolverAddress
	case signer != nil:
		a.resolver = signer.TronAddress()
	}
	if a.resolver != "" {
		h, err := wallet.TronHexAddress(a.resolver)
		if err != nil {
			return nil, fmt.Errorf("resolver address: %w", err)
		}
		a.resolverHex = h
	}
	return a, nil
}

// Connect checks that the node answers.
func (a *TronAdapter) Connect(ctx context.Context) error {
	ctx, cancel := boundContext(ctx, a.timeout)
	defer cancel()
	if err := a.node.Connect(ctx); err != nil {
		return swaperr.RPC(a.op("connect"), err)
	}
	return nil
}

func (a *TronAdapter) Network() string         { return a.network }
func (a *TronAdapter) SupportsEscrow() bool    { return false }
func (a *TronAdapter) ResolverAddress() string { return a.resolver }

// ValidateAddress checks a base58check T-address.
func (a *TronAdapter) ValidateAddress(address string) error {
	return wallet.ValidateTronAddress(address)
}

func (a *TronAdapter) Close() {
	_ = a.node.Close()
}

// =============================================================================
// Reads
// =============================================================================

// GetBalance returns the TRX balance in sun.
func (a *TronAdapter) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	op := a.op("getBalance")
	h, err := a.hexAddress(op, address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := boundContext(ctx, a.timeout)
	defer cancel()

	bal, err := a.node.GetBalance(ctx, h)
	if err != nil {
		return nil, a.classify(op, err)
	}
	return big.NewInt(bal), nil
}

func (a *TronAdapter) GetTokenBalance(ctx context.Context, token, address string) (*big.Int, error) {
	op := a.op("balanceOf")
	owner, err := a.evmAddress(op, address)
	if err != nil {
		return nil, err
	}
	params, err := packParams(op, []abi.Type{addressType}, owner)
	if err != nil {
		return nil, err
	}
	return a.callUint(ctx, op, token, "balanceOf(address)", params)
}

func (a *TronAdapter) GetAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	op := a.op("allowance")
	o, err := a.evmAddress(op, owner)
	if err != nil {
		return nil, err
	}
	s, err := a.evmAddress(op, spender)
	if err != nil {
		return nil, err
	}
	params, err := packParams(op, []abi.Type{addressType, addressType}, o, s)
	if err != nil {
		return nil, err
	}
	return a.callUint(ctx, op, token, "allowance(address,address)", params)
}

func (a *TronAdapter) callUint(ctx context.Context, op, token, selector, params string) (*big.Int, error) {
	contract, err := a.hexAddress(op, token)
	if err != nil {
		return nil, err
	}

	// Constant calls need an owner; any valid address works when read-only.
	owner := a.resolverHex
	if owner == "" {
		owner = contract
	}

	ctx, cancel := boundContext(ctx, a.timeout)
	defer cancel()

	res, err := a.node.TriggerConstant(ctx, owner, contract, selector, params)
	if err != nil {
		return nil, a.classify(op, err)
	}
	if len(res.Output) < 32 {
		return nil, swaperr.RPC(op, fmt.Errorf("short result of %d bytes", len(res.Output)))
	}
	return new(big.Int).SetBytes(res.Output[:32]), nil
}

// =============================================================================
// Writes
// =============================================================================

func (a *TronAdapter) Approve(ctx context.Context, token, spender string, amount *big.Int) (TxRef, error) {
	op := a.op("approve")
	s, err := a.evmAddress(op, spender)
	if err != nil {
		return "", err
	}
	params, err := packParams(op, []abi.Type{addressType, uint256Type}, s, amount)
	if err != nil {
		return "", err
	}
	return a.send(ctx, op, token, "approve(address,uint256)", params)
}

func (a *TronAdapter) Transfer(ctx context.Context, token, to string, amount *big.Int) (TxRef, error) {
	op := a.op("transfer")
	dst, err := a.evmAddress(op, to)
	if err != nil {
		return "", err
	}
	params, err := packParams(op, []abi.Type{addressType, uint256Type}, dst, amount)
	if err != nil {
		return "", err
	}
	return a.send(ctx, op, token, "transfer(address,uint256)", params)
}

func (a *TronAdapter) TransferFrom(ctx context.Context, token, from, to string, amount *big.Int) (TxRef, error) {
	op := a.op("transferFrom")
	src, err := a.evmAddress(op, from)
	if err != nil {
		return "", err
	}
	dst, err := a.evmAddress(op, to)
	if err != nil {
		return "", err
	}
	params, err := packParams(op, []abi.Type{addressType, addressType, uint256Type}, src, dst, amount)
	if err != nil {
		return "", err
	}
	return a.send(ctx, op, token, "transferFrom(address,address,uint256)", params)
}

func (a *TronAdapter) CreateEscrow(context.Context, EscrowParams) (EscrowRef, error) {
	return EscrowRef{}, ErrEscrowUnsupported
}

func (a *TronAdapter) GetEscrow(context.Context, order.Hash) (string, bool, error) {
	return "", false, ErrEscrowUnsupported
}

func (a *TronAdapter) Withdraw(context.Context, string, order.Secret) (TxRef, error) {
	return "", ErrEscrowUnsupported
}

func (a *TronAdapter) Cancel(context.Context, string) (TxRef, error) {
	return "", ErrEscrowUnsupported
}

// send builds a contract call on the node, signs its txID locally, broadcasts
// it and polls until it is in a block.
func (a *TronAdapter) send(ctx context.Context, op, token, selector, params string) (TxRef, error) {
	if a.signer == nil {
		return "", swaperr.RPC(op, ErrReadOnly)
	}
	contract, err := a.hexAddress(op, token)
	if err != nil {
		return "", err
	}

	ctx, cancel := boundContext(ctx, a.timeout)
	defer cancel()

	tx, err := a.node.TriggerSmartContract(ctx, a.resolverHex, contract, selector, params, a.feeLimit, 0)
	if err != nil {
		return "", a.classify(op, err)
	}

	txID, err := tx.TxIDBytes()
	if err != nil {
		return "", swaperr.RPC(op, err)
	}
	sig, err := a.signer.SignTronTxID(txID)
	if err != nil {
		return "", swaperr.RPC(op, fmt.Errorf("failed to sign: %w", err))
	}
	tx.Signature = []string{hex.EncodeToString(sig)}

	id, err := a.node.BroadcastTransaction(ctx, tx)
	if err != nil {
		return "", a.classify(op, err)
	}
	a.log.Debug("Transaction broadcast", "op", op, "txid", id)

	info, err := a.node.WaitForTransaction(ctx, id, a.poll)
	if err != nil {
		return "", swaperr.RPC(op, err)
	}
	if !info.Succeeded() {
		reason := info.FailureReason()
		a.log.Warn("Transaction failed", "op", op, "txid", id, "reason", reason)
		return "", swaperr.Revert(op, fmt.Sprintf("%s: %s", id, reason))
	}

	a.log.Info("Transaction confirmed", "op", op, "txid", id, "block", info.BlockNumber)
	return TxRef(id), nil
}

// =============================================================================
// Helpers
// =============================================================================

// classify maps node errors: a rejected call or broadcast is a revert, anything
// else is an RPC failure.
func (a *TronAdapter) classify(op string, err error) error {
	if errors.Is(err, backend.ErrContractCall) || errors.Is(err, backend.ErrBroadcastFailed) {
		return swaperr.Revert(op, err.Error())
	}
	return swaperr.RPC(op, err)
}

func (a *TronAdapter) evmAddress(op, address string) (common.Address, error) {
	addr, err := wallet.TronToEVMAddress(address)
	if err != nil {
		return common.Address{}, swaperr.Encoding(op, err)
	}
	return addr, nil
}

func (a *TronAdapter) hexAddress(op, address string) (string, error) {
	h, err := wallet.TronHexAddress(address)
	if err != nil {
		return "", swaperr.Encoding(op, err)
	}
	return h, nil
}

func (a *TronAdapter) op(method string) string {
	return a.network + "." + method
}

// packParams ABI-encodes call arguments without a selector, as the Tron HTTP
// API expects in "parameter".
func packParams(op string, types []abi.Type, values ...interface{}) (string, error) {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		args[i] = abi.Argument{Type: t}
	}
	data, err := args.Pack(values...)
	if err != nil {
		return "", swaperr.Encoding(op, err)
	}
	return hex.EncodeToString(data), nil
}
