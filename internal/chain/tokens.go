package chain

// AssetInfo describes a fungible token on one network.
type AssetInfo struct {
	Symbol   string // Token symbol (USDC, USDT, ...)
	Name     string // Full name
	Decimals uint8  // Token decimals
	Address  string // Contract address in the network's native encoding
	Network  string // Network name the asset lives on
}

// builtinAssets maps network -> symbol -> AssetInfo
var builtinAssets = make(map[string]map[string]*AssetInfo)

func init() {
	// ==========================================================================
	// Ethereum Mainnet
	// ==========================================================================
	registerAsset("ethereum", &AssetInfo{Symbol: "USDT", Name: "Tether USD", Decimals: 6, Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7"})
	registerAsset("ethereum", &AssetInfo{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"})
	registerAsset("ethereum", &AssetInfo{Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18, Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"})
	registerAsset("ethereum", &AssetInfo{Symbol: "WBTC", Name: "Wrapped Bitcoin", Decimals: 8, Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"})
	registerAsset("ethereum", &AssetInfo{Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18, Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"})

	// ==========================================================================
	// Arbitrum One
	// ==========================================================================
	registerAsset("arbitrum", &AssetInfo{Symbol: "USDT", Name: "Tether USD", Decimals: 6, Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"})
	registerAsset("arbitrum", &AssetInfo{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"})
	registerAsset("arbitrum", &AssetInfo{Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18, Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"})
	registerAsset("arbitrum", &AssetInfo{Symbol: "WBTC", Name: "Wrapped Bitcoin", Decimals: 8, Address: "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f"})

	// ==========================================================================
	// Base
	// ==========================================================================
	registerAsset("base", &AssetInfo{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"})
	registerAsset("base", &AssetInfo{Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18, Address: "0x4200000000000000000000000000000000000006"})

	// ==========================================================================
	// TESTNETS
	// ==========================================================================

	// Sepolia
	registerAsset("sepolia", &AssetInfo{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"})
	registerAsset("sepolia", &AssetInfo{Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18, Address: "0x7b79995e5f793A07Bc00c21412e50Ecae098E7f9"})
	registerAsset("sepolia", &AssetInfo{Symbol: "TRUEERC20", Name: "True ERC20", Decimals: 18, Address: "0x343d726b4E8cFfbbe615FE1d782f095eaD6D9574"})

	// Tron Shasta
	registerAsset("tron", &AssetInfo{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Address: "TSdZwNqpHofzP6BsBKGQUWdBeJphLmF6id"})
	registerAsset("tron", &AssetInfo{Symbol: "TRUEERC20", Name: "True ERC20", Decimals: 18, Address: "TWMdGyPMtLj2zW3hgMgDneuVnc7qVwGvJU"})

	// Tron mainnet
	registerAsset("tron-mainnet", &AssetInfo{Symbol: "USDT", Name: "Tether USD", Decimals: 6, Address: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"})
}

func registerAsset(network string, asset *AssetInfo) {
	if builtinAssets[network] == nil {
		builtinAssets[network] = make(map[string]*AssetInfo)
	}
	asset.Network = network
	builtinAssets[network][asset.Symbol] = asset
}

// GetAsset returns a built-in asset, or nil if the network does not list it.
func GetAsset(network, symbol string) *AssetInfo {
	if assets, ok := builtinAssets[network]; ok {
		return assets[symbol]
	}
	return nil
}

// GetAssetDecimals returns the decimals for a built-in asset.
// Returns 0 if not found.
func GetAssetDecimals(network, symbol string) uint8 {
	if asset := GetAsset(network, symbol); asset != nil {
		return asset.Decimals
	}
	return 0
}
