package models

import "github.com/shopspring/decimal"

// Trade sides as persisted and published.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// SettledTrade is the record of one committed trade: the amounts that moved,
// how the fill was sourced and the realized rate that fed the HIYA average.
type SettledTrade struct {
	TradeID        string
	ReserveID      string
	Epoch          uint64
	Side           string // "buy", "sell"
	Initiator      string
	AmountIn       decimal.Decimal
	AmountOut      decimal.Decimal
	RefundedExcess decimal.Decimal
	RealizedRate   decimal.Decimal
	RolloverFill   decimal.Decimal
	ReserveFill    decimal.Decimal
	CurveFill      decimal.Decimal
	Hiya           decimal.Decimal
	SettledAt      int64 // unix seconds
}

// PoolSync is one venue feed frame: the external pool balances plus the chain
// head at the time of the snapshot.
type PoolSync struct {
	Venue     string
	AssetA    string
	ReserveA  decimal.Decimal
	AssetB    string
	ReserveB  decimal.Decimal
	Block     uint64
	Timestamp int64
}
