package reserve

import (
	"github.com/shopspring/decimal"

	"RollSwap/internal/engine/fixedpoint"
)

// RolloverFill is the outcome of routing a buy through the fixed-rate window.
// RaLeft is the residual deposit handed on to curve pricing.
type RolloverFill struct {
	Received   decimal.Decimal
	RaConsumed decimal.Decimal
	RaLeft     decimal.Decimal

	Drained           Drained
	VaultProceeds     decimal.Decimal
	StabilityProceeds decimal.Decimal
}

// RolloverActive reports whether the fixed-rate window applies: never on the
// first epoch, only before the window end block, only once a prior epoch has
// produced a rate, and only while internal inventory remains.
func RolloverActive(pair *EpochPair, hiya decimal.Decimal, isFirstEpoch bool, currentBlock, endBlock uint64) bool {
	if isFirstEpoch || hiya.IsZero() {
		return false
	}
	if currentBlock >= endBlock {
		return false
	}
	return pair.Total().Sign() > 0
}

// Rollover fills a buy at the fixed rate implied by hiya, price 1/(1+hiya),
// capped by internal inventory. It mutates pair (callers stage on a clone),
// drains both pools proportionally and attributes the rate-implied proceeds
// back to each pool by its drained share. Outside the active window it is a
// pure pass-through.
func Rollover(pair *EpochPair, hiya decimal.Decimal, isFirstEpoch bool, currentBlock, endBlock uint64, depositIn decimal.Decimal) RolloverFill {
	if depositIn.Sign() <= 0 || !RolloverActive(pair, hiya, isFirstEpoch, currentBlock, endBlock) {
		return RolloverFill{RaLeft: depositIn}
	}

	onePlus := fixedpoint.One.Add(hiya)
	want := depositIn.Mul(onePlus)

	total := pair.Total()
	fill := want
	consumed := depositIn
	if fill.GreaterThan(total) {
		fill = total
		consumed = fill.DivRound(onePlus, fixedpoint.Scale)
	}

	drained := pair.Drain(fill)
	fill = drained.Taken()

	var vaultProceeds decimal.Decimal
	if fill.Sign() > 0 {
		vaultProceeds = consumed.Mul(drained.FromVault).DivRound(fill, fixedpoint.Scale)
	}
	return RolloverFill{
		Received:          fill,
		RaConsumed:        consumed,
		RaLeft:            depositIn.Sub(consumed),
		Drained:           drained,
		VaultProceeds:     vaultProceeds,
		StabilityProceeds: consumed.Sub(vaultProceeds),
	}
}
