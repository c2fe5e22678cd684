package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/klingon-exchange/fusion-resolver/internal/contracts/escrow"
	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/internal/wallet"
	"github.com/klingon-exchange/fusion-resolver/pkg/logging"
)

// GasLimits per EVM operation.
type GasLimits struct {
	EscrowCreation uint64
	Withdrawal     uint64
	Cancellation   uint64
	Transfer       uint64
	Approve        uint64
}

// DefaultGasLimits returns gas limits that fit the escrow contracts.
func DefaultGasLimits() GasLimits {
	return GasLimits{
		EscrowCreation: 800000,
		Withdrawal:     150000,
		Cancellation:   150000,
		Transfer:       100000,
		Approve:        100000,
	}
}

// EVMConfig configures an EVM adapter.
type EVMConfig struct {
	Network string
	RPCURL  string

	// EscrowFactory is the factory address; empty means degraded mode.
	EscrowFactory string

	// ResolverAddress overrides the signer's address for read-only use.
	ResolverAddress string

	GasLimits GasLimits
	Timeout   time.Duration
}

// EVMAdapter settles on an EVM chain through go-ethereum bound contracts.
type EVMAdapter struct {
	network  string
	client   *escrow.Client
	signer   *wallet.Signer // nil for read-only adapters
	resolver common.Address
	gas      GasLimits
	timeout  time.Duration
	log      *logging.Logger
}

// DialEVM connects to the network's RPC endpoint and returns an adapter.
func DialEVM(ctx context.Context, cfg EVMConfig, signer *wallet.Signer) (*EVMAdapter, error) {
	factory, err := parseFactory(cfg.EscrowFactory)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := boundContext(ctx, cfg.Timeout)
	defer cancel()

	client, err := escrow.Dial(dialCtx, cfg.RPCURL, factory)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Network, err)
	}
	return NewEVMAdapter(cfg, client, signer)
}

// NewEVMAdapter wraps an existing escrow client.
func NewEVMAdapter(cfg EVMConfig, client *escrow.Client, signer *wallet.Signer) (*EVMAdapter, error) {
	a := &EVMAdapter{
		network: cfg.Network,
		client:  client,
		signer:  signer,
		gas:     cfg.GasLimits,
		timeout: cfg.Timeout,
		log:     logging.GetDefault().Component("evm").With("network", cfg.Network),
	}
	if a.gas == (GasLimits{}) {
		a.gas = DefaultGasLimits()
	}

	switch {
	case cfg.ResolverAddress != "":
		if err := wallet.ValidateEVMAddress(cfg.ResolverAddress); err != nil {
			return nil, fmt.Errorf("resolver address: %w", err)
		}
		a.resolver = common.HexToAddress(cfg.ResolverAddress)
	case signer != nil:
		a.resolver = signer.EVMAddress()
	}
	return a, nil
}

func parseFactory(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if err := wallet.ValidateEVMAddress(s); err != nil {
		return common.Address{}, fmt.Errorf("escrow factory: %w", err)
	}
	return common.HexToAddress(s), nil
}

func (a *EVMAdapter) Network() string      { return a.network }
func (a *EVMAdapter) SupportsEscrow() bool { return a.client.HasFactory() }

func (a *EVMAdapter) ResolverAddress() string {
	if a.resolver == (common.Address{}) {
		return ""
	}
	return a.resolver.Hex()
}

// ValidateAddress checks a 0x address, enforcing EIP-55 on mixed case input.
func (a *EVMAdapter) ValidateAddress(address string) error {
	return wallet.ValidateEVMAddress(address)
}

func (a *EVMAdapter) Close() {
	a.client.Close()
}

// =============================================================================
// Reads
// =============================================================================

func (a *EVMAdapter) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	op := a.op("getBalance")
	addr, err := a.parseAddress(op, address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := boundContext(ctx, a.timeout)
	defer cancel()

	bal, err := a.client.BalanceAt(ctx, addr)
	if err != nil {
		return nil, a.classify(op, err)
	}
	return bal, nil
}

func (a *EVMAdapter) GetTokenBalance(ctx context.Context, token, address string) (*big.Int, error) {
	op := a.op("balanceOf")
	tok, err := a.parseAddress(op, token)
	if err != nil {
		return nil, err
	}
	owner, err := a.parseAddress(op, address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := boundContext(ctx, a.timeout)
	defer cancel()

	bal, err := a.client.TokenBalance(ctx, tok, owner)
	if err != nil {
		return nil, a.classify(op, err)
	}
	return bal, nil
}

func (a *EVMAdapter) GetAllowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	op := a.op("allowance")
	tok, err := a.parseAddress(op, token)
	if err != nil {
		return nil, err
	}
	o, err := a.parseAddress(op, owner)
	if err != nil {
		return nil, err
	}
	s, err := a.parseAddress(op, spender)
	if err != nil {
		return nil, err
	}

	ctx, cancel := boundContext(ctx, a.timeout)
	defer cancel()

	allowance, err := a.client.Allowance(ctx, tok, o, s)
	if err != nil {
		return nil, a.classify(op, err)
	}
	return allowance, nil
}

// GetEscrow returns the escrow deployed for an order. The zero address means
// none exists.
func (a *EVMAdapter) GetEscrow(ctx context.Context, orderHash order.Hash) (string, bool, error) {
	if !a.SupportsEscrow() {
		return "", false, ErrEscrowUnsupported
	}

	ctx, cancel := boundContext(ctx, a.timeout)
	defer cancel()

	addr, err := a.client.GetEscrow(ctx, orderHash)
	if err != nil {
		return "", false, a.classify(a.op("getEscrow"), err)
	}
	if addr == (common.Address{}) {
		return "", false, nil
	}
	return addr.Hex(), true, nil
}

// =============================================================================
// Writes
// =============================================================================

func (a *EVMAdapter) Approve(ctx context.Context, token, spender string, amount *big.Int) (TxRef, error) {
	op := a.op("approve")
	tok, err := a.parseAddress(op, token)
	if err != nil {
		return "", err
	}
	s, err := a.parseAddress(op, spender)
	if err != nil {
		return "", err
	}

	receipt, err := a.transact(ctx, op, a.gas.Approve, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return a.client.Approve(opts, tok, s, amount)
	})
	if err != nil {
		return "", err
	}
	return TxRef(receipt.TxHash.Hex()), nil
}

func (a *EVMAdapter) Transfer(ctx context.Context, token, to string, amount *big.Int) (TxRef, error) {
	op := a.op("transfer")
	tok, err := a.parseAddress(op, token)
	if err != nil {
		return "", err
	}
	dst, err := a.parseAddress(op, to)
	if err != nil {
		return "", err
	}

	receipt, err := a.transact(ctx, op, a.gas.Transfer, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return a.client.Transfer(opts, tok, dst, amount)
	})
	if err != nil {
		return "", err
	}
	return TxRef(receipt.TxHash.Hex()), nil
}

func (a *EVMAdapter) TransferFrom(ctx context.Context, token, from, to string, amount *big.Int) (TxRef, error) {
	op := a.op("transferFrom")
	tok, err := a.parseAddress(op, token)
	if err != nil {
		return "", err
	}
	src, err := a.parseAddress(op, from)
	if err != nil {
		return "", err
	}
	dst, err := a.parseAddress(op, to)
	if err != nil {
		return "", err
	}

	receipt, err := a.transact(ctx, op, a.gas.Transfer, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return a.client.TransferFrom(opts, tok, src, dst, amount)
	})
	if err != nil {
		return "", err
	}
	return TxRef(receipt.TxHash.Hex()), nil
}

// CreateEscrow deploys an escrow through the factory with the safety deposit
// attached as msg.value.
func (a *EVMAdapter) CreateEscrow(ctx context.Context, p EscrowParams) (EscrowRef, error) {
	if !a.SupportsEscrow() {
		return EscrowRef{}, ErrEscrowUnsupported
	}

	op := a.op("createEscrow")
	tok, err := a.parseAddress(op, p.Token)
	if err != nil {
		return EscrowRef{}, err
	}
	depositor, err := a.parseAddress(op, p.Depositor)
	if err != nil {
		return EscrowRef{}, err
	}
	beneficiary, err := a.parseAddress(op, p.Beneficiary)
	if err != nil {
		return EscrowRef{}, err
	}

	args := escrow.CreateEscrowArgs{
		OrderHash:   p.OrderHash,
		Token:       tok,
		Amount:      p.Amount,
		HashLock:    p.HashLock,
		TimeLocks:   p.TimeLocks.Big(),
		Beneficiary: beneficiary,
		Depositor:   depositor,
	}
	receipt, err := a.transact(ctx, op, a.gas.EscrowCreation, p.SafetyDeposit, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return a.client.CreateEscrow(opts, args)
	})
	if err != nil {
		return EscrowRef{}, err
	}

	ref := EscrowRef{TxHash: TxRef(receipt.TxHash.Hex())}
	if addr, ok := escrow.EscrowFromReceipt(receipt, a.client.FactoryAddress()); ok {
		ref.Address = addr.Hex()
		return ref, nil
	}

	// Factories that do not emit EscrowCreated are read back instead.
	addr, found, err := a.GetEscrow(ctx, p.OrderHash)
	if err != nil {
		return EscrowRef{}, err
	}
	if !found {
		return EscrowRef{}, swaperr.Revert(op, "escrow not registered after "+ref.TxHash.String())
	}
	ref.Address = addr
	return ref, nil
}

// Withdraw reveals the secret to an escrow.
func (a *EVMAdapter) Withdraw(ctx context.Context, escrowAddr string, secret order.Secret) (TxRef, error) {
	if !a.SupportsEscrow() {
		return "", ErrEscrowUnsupported
	}
	op := a.op("withdraw")
	e, err := a.parseAddress(op, escrowAddr)
	if err != nil {
		return "", err
	}

	receipt, err := a.transact(ctx, op, a.gas.Withdrawal, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return a.client.Withdraw(opts, e, secret)
	})
	if err != nil {
		return "", err
	}
	return TxRef(receipt.TxHash.Hex()), nil
}

// Cancel returns escrowed funds to the depositor. The contract enforces the
// cancellation window.
func (a *EVMAdapter) Cancel(ctx context.Context, escrowAddr string) (TxRef, error) {
	if !a.SupportsEscrow() {
		return "", ErrEscrowUnsupported
	}
	op := a.op("cancel")
	e, err := a.parseAddress(op, escrowAddr)
	if err != nil {
		return "", err
	}

	receipt, err := a.transact(ctx, op, a.gas.Cancellation, nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return a.client.Cancel(opts, e)
	})
	if err != nil {
		return "", err
	}
	return TxRef(receipt.TxHash.Hex()), nil
}

// =============================================================================
// Helpers
// =============================================================================

// transact signs and submits a transaction, then waits for its receipt within
// the chain timeout.
func (a *EVMAdapter) transact(ctx context.Context, op string, gasLimit uint64, value *big.Int, send func(*bind.TransactOpts) (*types.Transaction, error)) (*types.Receipt, error) {
	if a.signer == nil {
		return nil, swaperr.RPC(op, ErrReadOnly)
	}

	ctx, cancel := boundContext(ctx, a.timeout)
	defer cancel()

	opts, err := a.client.NewTransactor(ctx, a.signer.ECDSA(), gasLimit, value)
	if err != nil {
		return nil, swaperr.RPC(op, err)
	}

	tx, err := send(opts)
	if err != nil {
		return nil, a.classify(op, err)
	}
	a.log.Debug("Transaction sent", "op", op, "tx_hash", tx.Hash().Hex())

	receipt, err := a.client.WaitForTx(ctx, tx)
	if err != nil {
		if errors.Is(err, escrow.ErrTxReverted) {
			a.log.Warn("Transaction reverted", "op", op, "tx_hash", tx.Hash().Hex(), "error", err)
			return nil, swaperr.Revert(op, err.Error())
		}
		return nil, swaperr.RPC(op, fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err))
	}

	a.log.Info("Transaction confirmed", "op", op, "tx_hash", tx.Hash().Hex(), "block", receipt.BlockNumber)
	return receipt, nil
}

// classify maps a node error to RevertError when the node reports an
// execution revert and RpcError otherwise.
func (a *EVMAdapter) classify(op string, err error) error {
	if reason, ok := escrow.RevertReason(err); ok {
		return swaperr.Revert(op, reason)
	}
	return swaperr.RPC(op, err)
}

func (a *EVMAdapter) parseAddress(op, s string) (common.Address, error) {
	if err := wallet.ValidateEVMAddress(s); err != nil {
		return common.Address{}, swaperr.Encoding(op, err)
	}
	return common.HexToAddress(s), nil
}

func (a *EVMAdapter) op(method string) string {
	return a.network + "." + method
}
