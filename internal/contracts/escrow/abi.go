package escrow

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
)

// EscrowFactoryMetaData contains the EscrowFactory ABI.
var EscrowFactoryMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"createEscrow","stateMutability":"payable",
	 "inputs":[
		{"name":"orderHash","type":"bytes32"},
		{"name":"token","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"hashLock","type":"bytes32"},
		{"name":"timelocks","type":"uint256"},
		{"name":"beneficiary","type":"address"},
		{"name":"depositor","type":"address"}],
	 "outputs":[{"name":"escrow","type":"address"}]},
	{"type":"function","name":"getEscrow","stateMutability":"view",
	 "inputs":[{"name":"orderHash","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"EscrowCreated","anonymous":false,
	 "inputs":[
		{"name":"orderHash","type":"bytes32","indexed":true},
		{"name":"escrow","type":"address","indexed":true},
		{"name":"token","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"hashLock","type":"bytes32","indexed":false},
		{"name":"deployedAt","type":"uint256","indexed":false}]}
]`,
}

// EscrowMetaData contains the per-order Escrow ABI.
var EscrowMetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"withdraw","stateMutability":"nonpayable",
	 "inputs":[{"name":"secret","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"cancel","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"getState","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"revealedSecret","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"withdrawn","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"cancelled","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bool"}]}
]`,
}

// ERC20MetaData contains the subset of ERC20 the resolver uses.
var ERC20MetaData = &bind.MetaData{
	ABI: `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transferFrom","stateMutability":"nonpayable",
	 "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]}
]`,
}

// EscrowCreatedTopic is the topic of EscrowCreated(bytes32,address,address,uint256,bytes32,uint256).
var EscrowCreatedTopic = crypto.Keccak256Hash([]byte("EscrowCreated(bytes32,address,address,uint256,bytes32,uint256)"))
