package model

// Event names used in persisted records.
const (
	EventLiquidityAdded   = "liquidity_added"
	EventLiquidityRemoved = "liquidity_removed"
	EventSwap             = "swap"
)

// LiquidityAddedEvent is the liquidity-added notification payload.
type LiquidityAddedEvent struct {
	Provider     string `json:"provider"`
	Amount1      string `json:"amount1"`
	Amount2      string `json:"amount2"`
	SharesMinted string `json:"shares_minted"`
}

// LiquidityRemovedEvent is the liquidity-removed notification payload.
type LiquidityRemovedEvent struct {
	Provider     string `json:"provider"`
	Amount1      string `json:"amount1"`
	Amount2      string `json:"amount2"`
	SharesBurned string `json:"shares_burned"`
}

// SwapEvent is the swap notification payload.
type SwapEvent struct {
	Trader    string `json:"trader"`
	AssetIn   string `json:"asset_in"`
	AssetOut  string `json:"asset_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}
