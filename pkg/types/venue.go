package types

import "time"

// Envelope is the uniform response wrapper the venue wraps every REST response in.
// Errno == 0 denotes success; any other value is a well-known business/fatal code.
type Envelope[T any] struct {
	Errno  int    `json:"errno"`
	Errmsg string `json:"errmsg"`
	Result T      `json:"result"`
}

// Well-known errno values the venue uses for control flow.
const (
	ErrnoOK                 = 0
	ErrnoInsufficientBalance = 10207
	ErrnoRegionBlocked       = 10403
)

// Position is a held balance of one outcome token in one market.
type Position struct {
	MarketID string `json:"market_id"`
	TokenID  string `json:"token_id"`
	Outcome  string `json:"outcome"` // "Yes" or "No"
	Shares   string `json:"shares"`
	AvgPrice string `json:"avg_price"`
}

// BalanceResponse is the venue's /balance-allowance response for the
// collateral (quote-token) asset type.
type BalanceResponse struct {
	Balance string `json:"balance"`
}

// MergeResult/SplitResult normalize the venue's delayed "Transaction hash:"
// exception-string convention into a proper structured value.
type MergeResult struct {
	TxHash string `json:"tx_hash"`
}

type SplitResult struct {
	TxHash string `json:"tx_hash"`
}

// RedeemResult reports a resolved-market redemption.
type RedeemResult struct {
	TxHash string `json:"tx_hash"`
}

// CategoricalMarket describes a multi-outcome parent market whose tradeable
// CLOB tokens live on its children, not on the parent itself.
type CategoricalMarket struct {
	ParentID string       `json:"parent_id"`
	Children []MarketInfo `json:"children"`
}

// GridPosition tracks one filled grid buy awaiting its paired sell.
type GridPosition struct {
	BuyOrderID   string
	BuyPrice     float64
	Shares       float64
	SellOrderID  string
	SellPrice    float64
	FilledAt     time.Time
}

// DistributionMode selects how layered-order or grid sizing is spread across levels.
type DistributionMode string

const (
	DistUniform        DistributionMode = "UNIFORM"
	DistPyramid        DistributionMode = "PYRAMID"
	DistInversePyramid DistributionMode = "INVERSE_PYRAMID"
	DistCustom         DistributionMode = "CUSTOM"
)

// DepthDropAction selects what the engine does when the depth-drop gate trips.
type DepthDropAction string

const (
	DropHold        DepthDropAction = "HOLD"
	DropSellAll     DepthDropAction = "SELL_ALL"
	DropSellPartial DepthDropAction = "SELL_PARTIAL"
)

// StrategyKind selects which control-loop strategy an engine runs.
type StrategyKind string

const (
	StrategyDualQuote StrategyKind = "DUAL_QUOTE"
	StrategyGrid      StrategyKind = "GRID"
)
