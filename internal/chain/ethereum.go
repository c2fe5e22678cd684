package chain

func init() {
	// ==========================================================================
	// Ethereum
	// ==========================================================================

	Register(&Params{
		Name:           "ethereum",
		DisplayName:    "Ethereum",
		Kind:           KindEVM,
		ChainID:        1,
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		CoinType:       60,
		DefaultPurpose: 44,
	})

	Register(&Params{
		Name:           "sepolia",
		DisplayName:    "Ethereum Sepolia",
		Kind:           KindEVM,
		ChainID:        11155111,
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		CoinType:       60,
		DefaultPurpose: 44,
		Testnet:        true,
	})

	// ==========================================================================
	// L2s
	// ==========================================================================

	Register(&Params{
		Name:           "arbitrum",
		DisplayName:    "Arbitrum One",
		Kind:           KindEVM,
		ChainID:        42161,
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		CoinType:       60,
		DefaultPurpose: 44,
	})

	Register(&Params{
		Name:           "base",
		DisplayName:    "Base",
		Kind:           KindEVM,
		ChainID:        8453,
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		CoinType:       60,
		DefaultPurpose: 44,
	})
}
