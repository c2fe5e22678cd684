package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func bindContract(meta *bind.MetaData, address common.Address, backend bind.ContractBackend) (*bind.BoundContract, error) {
	parsed, err := meta.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return bind.NewBoundContract(address, *parsed, backend, backend, backend), nil
}

// =============================================================================
// EscrowFactory
// =============================================================================

// EscrowFactory is a binding around a deployed EscrowFactory.
type EscrowFactory struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewEscrowFactory binds an EscrowFactory at address.
func NewEscrowFactory(address common.Address, backend bind.ContractBackend) (*EscrowFactory, error) {
	c, err := bindContract(EscrowFactoryMetaData, address, backend)
	if err != nil {
		return nil, err
	}
	return &EscrowFactory{address: address, contract: c}, nil
}

// Address returns the factory address.
func (f *EscrowFactory) Address() common.Address {
	return f.address
}

// CreateEscrow is a paid mutator transaction binding the contract method 0x4ac80158.
//
// Solidity: function createEscrow(bytes32 orderHash, address token, uint256 amount, bytes32 hashLock, uint256 timelocks, address beneficiary, address depositor) payable returns(address)
func (f *EscrowFactory) CreateEscrow(opts *bind.TransactOpts, orderHash [32]byte, token common.Address, amount *big.Int, hashLock [32]byte, timelocks *big.Int, beneficiary, depositor common.Address) (*types.Transaction, error) {
	return f.contract.Transact(opts, "createEscrow", orderHash, token, amount, hashLock, timelocks, beneficiary, depositor)
}

// GetEscrow is a free data retrieval call binding the contract method 0xf023b811.
//
// Solidity: function getEscrow(bytes32 orderHash) view returns(address)
func (f *EscrowFactory) GetEscrow(opts *bind.CallOpts, orderHash [32]byte) (common.Address, error) {
	var out []interface{}
	if err := f.contract.Call(opts, &out, "getEscrow", orderHash); err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// =============================================================================
// Escrow
// =============================================================================

// Escrow is a binding around a per-order escrow.
type Escrow struct {
	contract *bind.BoundContract
}

// NewEscrow binds an Escrow at address.
func NewEscrow(address common.Address, backend bind.ContractBackend) (*Escrow, error) {
	c, err := bindContract(EscrowMetaData, address, backend)
	if err != nil {
		return nil, err
	}
	return &Escrow{contract: c}, nil
}

// Withdraw is a paid mutator transaction binding the contract method 0x8e19899e.
//
// Solidity: function withdraw(bytes32 secret)
func (e *Escrow) Withdraw(opts *bind.TransactOpts, secret [32]byte) (*types.Transaction, error) {
	return e.contract.Transact(opts, "withdraw", secret)
}

// Cancel is a paid mutator transaction binding the contract method 0xea8a1af0.
//
// Solidity: function cancel()
func (e *Escrow) Cancel(opts *bind.TransactOpts) (*types.Transaction, error) {
	return e.contract.Transact(opts, "cancel")
}

// GetState is a free data retrieval call binding the contract method 0x1865c57d.
//
// Solidity: function getState() view returns(string)
func (e *Escrow) GetState(opts *bind.CallOpts) (string, error) {
	var out []interface{}
	if err := e.contract.Call(opts, &out, "getState"); err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// RevealedSecret is a free data retrieval call binding the contract method 0x3810f04f.
//
// Solidity: function revealedSecret() view returns(bytes32)
func (e *Escrow) RevealedSecret(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	if err := e.contract.Call(opts, &out, "revealedSecret"); err != nil {
		return [32]byte{}, err
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// Withdrawn is a free data retrieval call binding the contract method 0xc80ec522.
func (e *Escrow) Withdrawn(opts *bind.CallOpts) (bool, error) {
	return e.callBool(opts, "withdrawn")
}

// Cancelled is a free data retrieval call binding the contract method 0x9a82a09a.
func (e *Escrow) Cancelled(opts *bind.CallOpts) (bool, error) {
	return e.callBool(opts, "cancelled")
}

func (e *Escrow) callBool(opts *bind.CallOpts, method string) (bool, error) {
	var out []interface{}
	if err := e.contract.Call(opts, &out, method); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// =============================================================================
// ERC20
// =============================================================================

// ERC20 is a binding around an ERC20 token.
type ERC20 struct {
	contract *bind.BoundContract
}

// NewERC20 binds an ERC20 token at address.
func NewERC20(address common.Address, backend bind.ContractBackend) (*ERC20, error) {
	c, err := bindContract(ERC20MetaData, address, backend)
	if err != nil {
		return nil, err
	}
	return &ERC20{contract: c}, nil
}

// BalanceOf is a free data retrieval call binding the contract method 0x70a08231.
func (t *ERC20) BalanceOf(opts *bind.CallOpts, owner common.Address) (*big.Int, error) {
	return t.callUint(opts, "balanceOf", owner)
}

// Allowance is a free data retrieval call binding the contract method 0xdd62ed3e.
func (t *ERC20) Allowance(opts *bind.CallOpts, owner, spender common.Address) (*big.Int, error) {
	return t.callUint(opts, "allowance", owner, spender)
}

// Decimals is a free data retrieval call binding the contract method 0x313ce567.
func (t *ERC20) Decimals(opts *bind.CallOpts) (uint8, error) {
	var out []interface{}
	if err := t.contract.Call(opts, &out, "decimals"); err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

// Approve is a paid mutator transaction binding the contract method 0x095ea7b3.
func (t *ERC20) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "approve", spender, amount)
}

// Transfer is a paid mutator transaction binding the contract method 0xa9059cbb.
func (t *ERC20) Transfer(opts *bind.TransactOpts, to common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "transfer", to, amount)
}

// TransferFrom is a paid mutator transaction binding the contract method 0x23b872dd.
func (t *ERC20) TransferFrom(opts *bind.TransactOpts, from, to common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.contract.Transact(opts, "transferFrom", from, to, amount)
}

func (t *ERC20) callUint(opts *bind.CallOpts, method string, params ...interface{}) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(opts, &out, method, params...); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
