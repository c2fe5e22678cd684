package chain

func init() {
	// ==========================================================================
	// Tron
	// ==========================================================================

	// Shasta testnet. The network name "tron" matches what clients already send.
	Register(&Params{
		Name:           "tron",
		DisplayName:    "Tron Shasta",
		Kind:           KindTron,
		ChainID:        2,
		NativeSymbol:   "TRX",
		NativeDecimals: 6,
		CoinType:       195,
		DefaultPurpose: 44,
		Testnet:        true,
	})

	Register(&Params{
		Name:           "tron-mainnet",
		DisplayName:    "Tron",
		Kind:           KindTron,
		ChainID:        728126428,
		NativeSymbol:   "TRX",
		NativeDecimals: 6,
		CoinType:       195,
		DefaultPurpose: 44,
	})
}
