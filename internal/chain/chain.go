// Package chain defines network parameters and asset tables for the networks the
// resolver can settle on. Built-in values are registered in init(); the daemon
// config may add networks or assets on top through a Registry.
package chain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrUnknownAsset   = errors.New("unknown asset")
)

// Kind represents the chain family, which decides the adapter used.
type Kind string

const (
	KindEVM  Kind = "evm"  // Ethereum and EVM chains
	KindTron Kind = "tron" // Tron (TVM, base58check addresses)
)

// Params contains the parameters of one settlement network.
type Params struct {
	// Identity
	Name        string // network identifier used in requests (sepolia, tron, ...)
	DisplayName string // human readable name
	Kind        Kind
	ChainID     uint64

	// Native asset
	NativeSymbol   string
	NativeDecimals uint8

	// BIP44 derivation for the resolver's key on this network
	CoinType       uint32 // 60 for EVM, 195 for Tron
	DefaultPurpose uint32

	Testnet bool
}

// DerivationPath returns the BIP44 derivation path for this network.
// Format: m/purpose'/coin'/account'/change/index
func (p *Params) DerivationPath(account, change, index uint32) []uint32 {
	return []uint32{
		p.DefaultPurpose + 0x80000000, // purpose' (hardened)
		p.CoinType + 0x80000000,       // coin_type' (hardened)
		account + 0x80000000,          // account' (hardened)
		change,                        // change (0=external, 1=internal)
		index,                         // address_index
	}
}

// DerivationPathString returns the derivation path as a string.
func (p *Params) DerivationPathString(account, change, index uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d", p.DefaultPurpose, p.CoinType, account, change, index)
}

// builtinNetworks holds the parameters registered at init time.
var builtinNetworks = make(map[string]*Params)

// Register adds network params to the built-in table.
func Register(params *Params) {
	builtinNetworks[params.Name] = params
}

// Get returns built-in params for a network name.
func Get(name string) (*Params, bool) {
	params, ok := builtinNetworks[name]
	return params, ok
}

// List returns all built-in network names, sorted.
func List() []string {
	names := make([]string, 0, len(builtinNetworks))
	for name := range builtinNetworks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry is the resolver's view of networks and assets: the built-in tables
// plus anything added from configuration. It is built once at startup and then
// only read.
type Registry struct {
	networks map[string]*Params
	assets   map[string]map[string]*AssetInfo
}

// NewRegistry returns a registry seeded with the built-in networks and assets.
func NewRegistry() *Registry {
	r := &Registry{
		networks: make(map[string]*Params),
		assets:   make(map[string]map[string]*AssetInfo),
	}
	for name, params := range builtinNetworks {
		p := *params
		r.networks[name] = &p
	}
	for network, assets := range builtinAssets {
		for _, a := range assets {
			asset := *a
			r.addAsset(network, &asset)
		}
	}
	return r
}

// AddNetwork registers or replaces a network.
func (r *Registry) AddNetwork(params *Params) {
	p := *params
	r.networks[p.Name] = &p
}

// AddAsset registers or replaces an asset on a known network.
func (r *Registry) AddAsset(network string, asset *AssetInfo) error {
	if _, ok := r.networks[network]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNetwork, network)
	}
	a := *asset
	a.Network = network
	r.addAsset(network, &a)
	return nil
}

func (r *Registry) addAsset(network string, asset *AssetInfo) {
	if r.assets[network] == nil {
		r.assets[network] = make(map[string]*AssetInfo)
	}
	r.assets[network][strings.ToUpper(asset.Symbol)] = asset
}

// Network returns params for a network.
func (r *Registry) Network(name string) (*Params, error) {
	params, ok := r.networks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
	}
	return params, nil
}

// Networks returns the names of all known networks, sorted.
func (r *Registry) Networks() []string {
	names := make([]string, 0, len(r.networks))
	for name := range r.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Asset resolves a token symbol (case-insensitive) on a network.
func (r *Registry) Asset(network, symbol string) (*AssetInfo, error) {
	if _, ok := r.networks[network]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, network)
	}
	asset, ok := r.assets[network][strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownAsset, symbol, network)
	}
	return asset, nil
}

// Assets returns all assets on a network, sorted by symbol.
func (r *Registry) Assets(network string) []*AssetInfo {
	assets := make([]*AssetInfo, 0, len(r.assets[network]))
	for _, a := range r.assets[network] {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Symbol < assets[j].Symbol })
	return assets
}
