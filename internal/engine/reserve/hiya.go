package reserve

import (
	"github.com/shopspring/decimal"

	"RollSwap/internal/engine/fixedpoint"
)

// PostTrade appends one realized trade to the epoch's HIYA sums:
//
//	RateVolume += volume * rate * decayFactor
//	Volume     += volume * decayFactor
//
// Single writer, append-only; there is no retroactive correction once a trade
// has posted. Zero-volume trades are ignored.
func PostTrade(pair *EpochPair, volume, realizedRate, decayFactor decimal.Decimal) {
	if volume.Sign() <= 0 {
		return
	}
	weighted := volume.Mul(decayFactor)
	pair.RateVolume = pair.RateVolume.Add(weighted.Mul(realizedRate))
	pair.Volume = pair.Volume.Add(weighted)
}

// EffectiveHiya is the epoch's decay-weighted average realized rate, zero
// until the first trade posts volume.
func EffectiveHiya(pair *EpochPair) decimal.Decimal {
	if pair.Volume.Sign() <= 0 {
		return decimal.Zero
	}
	return pair.RateVolume.DivRound(pair.Volume, fixedpoint.Scale)
}
