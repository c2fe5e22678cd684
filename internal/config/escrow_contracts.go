package config

import "strings"

// EscrowFactoryNone disables escrows on a network when used as the
// escrow_factory override.
const EscrowFactoryNone = "none"

// EscrowContracts holds the Fusion+ contract addresses deployed on a network.
// Addresses are kept in the network's native text form (hex for EVM, base58
// for Tron).
type EscrowContracts struct {
	// EscrowFactory deploys per-order escrows. Empty means no usable factory.
	EscrowFactory string

	// LimitOrderProtocol and Settlement are informational.
	LimitOrderProtocol string
	Settlement         string
}

// escrowContractRegistry maps network name -> contract addresses.
var escrowContractRegistry = map[string]*EscrowContracts{
	// ==========================================================================
	// Testnets
	// ==========================================================================

	"sepolia": {
		EscrowFactory:      "0xcBcFEe91Bbd4A12533Fc72a3D286B6d86ab2B9D5",
		LimitOrderProtocol: "0xed4A8916209Bf528EC3317755e84138f55624824",
		Settlement:         "0x9B9B198e2E9e0E789A4B00190302754A6Faa6854",
	},

	// No escrow factory on Shasta. TDSffTVz8BGTgKeTvgHQeWDa2WQxErey7b is a
	// settlement deployment without createEscrow, so Tron runs degraded.
	"tron": {
		Settlement: "TQJFqP41kqU7RS5ZxkhmQXZbVgUp5gd4EK",
	},

	// ==========================================================================
	// Mainnets (no deployments yet)
	// ==========================================================================

	"ethereum":     {},
	"arbitrum":     {},
	"base":         {},
	"tron-mainnet": {},
}

// GetEscrowFactory returns the built-in escrow factory for a network, or ""
// when none is deployed.
func GetEscrowFactory(network string) string {
	if c := escrowContractRegistry[network]; c != nil {
		return c.EscrowFactory
	}
	return ""
}

// EscrowFactory returns the escrow factory the resolver should use on a
// network: the configured override, else the built-in address. It returns ""
// when the network must run degraded.
func (c *Config) EscrowFactory(network string) string {
	if n := c.Networks[network]; n != nil && n.EscrowFactory != "" {
		if strings.EqualFold(n.EscrowFactory, EscrowFactoryNone) {
			return ""
		}
		return n.EscrowFactory
	}
	return GetEscrowFactory(network)
}
