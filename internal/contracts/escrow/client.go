// Package escrow provides Go bindings and a client for the Fusion+ escrow
// contracts (EscrowFactory, per-order Escrow) and the ERC20 calls the
// resolver makes around them.
package escrow

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrNoFactory  = errors.New("no escrow factory configured")
	ErrTxReverted = errors.New("transaction reverted")
)

// Backend is the node surface the client needs. *ethclient.Client implements it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client wraps the escrow factory, escrows and ERC20 tokens on one EVM chain.
type Client struct {
	backend Backend
	closer  func()
	chainID *big.Int
	factory *EscrowFactory // nil when no factory is deployed
}

// Dial connects to an EVM JSON-RPC endpoint. A zero factory address yields
// a client without escrow support.
func Dial(ctx context.Context, rpcURL string, factory common.Address) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	c, err := NewClient(ctx, ec, factory)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closer = ec.Close
	return c, nil
}

// NewClient creates a client over an existing backend.
func NewClient(ctx context.Context, backend Backend, factory common.Address) (*Client, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	c := &Client{backend: backend, chainID: chainID}
	if factory != (common.Address{}) {
		if c.factory, err = NewEscrowFactory(factory, backend); err != nil {
			return nil, fmt.Errorf("failed to bind escrow factory: %w", err)
		}
	}
	return c, nil
}

// Close closes the underlying RPC connection if the client dialed it.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// ChainID returns the chain ID reported by the node.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// HasFactory reports whether escrow operations are available.
func (c *Client) HasFactory() bool {
	return c.factory != nil
}

// FactoryAddress returns the escrow factory address, or the zero address.
func (c *Client) FactoryAddress() common.Address {
	if c.factory == nil {
		return common.Address{}
	}
	return c.factory.Address()
}

// NewTransactor returns signing options bound to ctx with a fixed gas limit
// and optional native value.
func (c *Client) NewTransactor(ctx context.Context, key *ecdsa.PrivateKey, gasLimit uint64, value *big.Int) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	auth.GasLimit = gasLimit
	if value != nil {
		auth.Value = value
	}
	return auth, nil
}

func callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx}
}

// =============================================================================
// Escrows
// =============================================================================

// CreateEscrowArgs are the createEscrow parameters.
type CreateEscrowArgs struct {
	OrderHash   [32]byte
	Token       common.Address
	Amount      *big.Int
	HashLock    [32]byte
	TimeLocks   *big.Int
	Beneficiary common.Address
	Depositor   common.Address
}

// CreateEscrow submits createEscrow on the factory.
func (c *Client) CreateEscrow(opts *bind.TransactOpts, args CreateEscrowArgs) (*types.Transaction, error) {
	if c.factory == nil {
		return nil, ErrNoFactory
	}
	return c.factory.CreateEscrow(opts, args.OrderHash, args.Token, args.Amount, args.HashLock, args.TimeLocks, args.Beneficiary, args.Depositor)
}

// GetEscrow returns the escrow registered for an order, or the zero address.
func (c *Client) GetEscrow(ctx context.Context, orderHash [32]byte) (common.Address, error) {
	if c.factory == nil {
		return common.Address{}, ErrNoFactory
	}
	return c.factory.GetEscrow(callOpts(ctx), orderHash)
}

// Withdraw reveals the secret to an escrow.
func (c *Client) Withdraw(opts *bind.TransactOpts, escrow common.Address, secret [32]byte) (*types.Transaction, error) {
	e, err := NewEscrow(escrow, c.backend)
	if err != nil {
		return nil, err
	}
	return e.Withdraw(opts, secret)
}

// Cancel cancels an escrow.
func (c *Client) Cancel(opts *bind.TransactOpts, escrow common.Address) (*types.Transaction, error) {
	e, err := NewEscrow(escrow, c.backend)
	if err != nil {
		return nil, err
	}
	return e.Cancel(opts)
}

// Status is the on-chain view of an escrow.
type Status struct {
	State          string
	Withdrawn      bool
	Cancelled      bool
	RevealedSecret [32]byte
}

// EscrowStatus reads the escrow's state.
func (c *Client) EscrowStatus(ctx context.Context, escrow common.Address) (*Status, error) {
	e, err := NewEscrow(escrow, c.backend)
	if err != nil {
		return nil, err
	}
	opts := callOpts(ctx)

	var s Status
	if s.State, err = e.GetState(opts); err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}
	if s.Withdrawn, err = e.Withdrawn(opts); err != nil {
		return nil, fmt.Errorf("failed to get withdrawn: %w", err)
	}
	if s.Cancelled, err = e.Cancelled(opts); err != nil {
		return nil, fmt.Errorf("failed to get cancelled: %w", err)
	}
	if s.RevealedSecret, err = e.RevealedSecret(opts); err != nil {
		return nil, fmt.Errorf("failed to get revealed secret: %w", err)
	}
	return &s, nil
}

// =============================================================================
// ERC20 and native balance
// =============================================================================

// BalanceAt returns the native balance at the latest block.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.backend.BalanceAt(ctx, account, nil)
}

// TokenBalance returns an ERC20 balance.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	t, err := NewERC20(token, c.backend)
	if err != nil {
		return nil, err
	}
	return t.BalanceOf(callOpts(ctx), owner)
}

// Allowance returns an ERC20 allowance.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	t, err := NewERC20(token, c.backend)
	if err != nil {
		return nil, err
	}
	return t.Allowance(callOpts(ctx), owner, spender)
}

// Approve submits an ERC20 approve.
func (c *Client) Approve(opts *bind.TransactOpts, token, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	t, err := NewERC20(token, c.backend)
	if err != nil {
		return nil, err
	}
	return t.Approve(opts, spender, amount)
}

// Transfer submits an ERC20 transfer.
func (c *Client) Transfer(opts *bind.TransactOpts, token, to common.Address, amount *big.Int) (*types.Transaction, error) {
	t, err := NewERC20(token, c.backend)
	if err != nil {
		return nil, err
	}
	return t.Transfer(opts, to, amount)
}

// TransferFrom submits an ERC20 transferFrom.
func (c *Client) TransferFrom(opts *bind.TransactOpts, token, from, to common.Address, amount *big.Int) (*types.Transaction, error) {
	t, err := NewERC20(token, c.backend)
	if err != nil {
		return nil, err
	}
	return t.TransferFrom(opts, from, to, amount)
}

// =============================================================================
// Transaction helpers
// =============================================================================

// WaitForTx waits for a transaction to be mined. A receipt with status 0
// returns ErrTxReverted wrapped with the replayed revert reason when the node
// provides one.
func (c *Client) WaitForTx(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := c.replayRevert(ctx, tx, receipt.BlockNumber)
		if reason == "" {
			return receipt, fmt.Errorf("%w: %s", ErrTxReverted, tx.Hash().Hex())
		}
		return receipt, fmt.Errorf("%w: %s: %s", ErrTxReverted, tx.Hash().Hex(), reason)
	}
	return receipt, nil
}

// replayRevert re-executes a failed transaction as a call at its block to
// recover the revert reason.
func (c *Client) replayRevert(ctx context.Context, tx *types.Transaction, block *big.Int) string {
	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return ""
	}
	msg := ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	_, err = c.backend.CallContract(ctx, msg, block)
	if err == nil {
		return ""
	}
	reason, _ := RevertReason(err)
	return reason
}

// RevertReason extracts the revert reason from a node error. The boolean
// reports whether err is an execution revert at all.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(s); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason, true
				}
			}
		}
		if strings.Contains(de.Error(), "revert") {
			return de.Error(), true
		}
	}

	if errors.Is(err, ErrTxReverted) || strings.Contains(err.Error(), "execution reverted") {
		return err.Error(), true
	}
	return "", false
}

// EscrowFromReceipt returns the escrow address from an EscrowCreated log
// emitted by factory.
func EscrowFromReceipt(receipt *types.Receipt, factory common.Address) (common.Address, bool) {
	if receipt == nil {
		return common.Address{}, false
	}
	for _, l := range receipt.Logs {
		if l.Address != factory || len(l.Topics) < 3 || l.Topics[0] != EscrowCreatedTopic {
			continue
		}
		return common.BytesToAddress(l.Topics[2].Bytes()), true
	}
	return common.Address{}, false
}
