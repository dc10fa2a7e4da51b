package fixedpoint

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Engine quantities are 18-digit decimals. Scale is the rounding scale applied
// by the iterative routines below.
const Scale int32 = 18

var (
	ErrInvalidDecay    = errors.New("fixedpoint: decay factor below zero")
	ErrInvalidExponent = errors.New("fixedpoint: exponent out of range")

	One          = decimal.NewFromInt(1)
	secondsInDay = decimal.NewFromInt(86400)
	epsilon      = decimal.New(1, -Scale)
)

// Pow computes base^exponent for base > 0 and exponent in (0, 1], which is the
// only range the bonding curve needs (the 1-t exponent). Integer exponents go
// through the library; fractional exponents use exp(exponent * ln(base)).
func Pow(base, exponent decimal.Decimal) (decimal.Decimal, error) {
	if exponent.Sign() <= 0 || exponent.GreaterThan(One) {
		return decimal.Zero, ErrInvalidExponent
	}
	if base.Sign() < 0 {
		return decimal.Zero, ErrInvalidExponent
	}
	if base.IsZero() {
		return decimal.Zero, nil
	}
	if exponent.Equal(One) {
		return base, nil
	}
	ln, err := lnSeries(base)
	if err != nil {
		return decimal.Zero, err
	}
	return expSeries(ln.Mul(exponent)), nil
}

// expSeries sums the Taylor series of e^x until the term drops under epsilon.
func expSeries(x decimal.Decimal) decimal.Decimal {
	term := One
	sum := One
	for i := int64(1); i < 200; i++ {
		term = term.Mul(x).DivRound(decimal.NewFromInt(i), Scale+2)
		if term.Abs().LessThan(epsilon) {
			break
		}
		sum = sum.Add(term)
	}
	return sum.Round(Scale)
}

// lnSeries inverts expSeries by Newton iteration on f(y) = e^y - x, seeded
// from the float64 logarithm so only the final digits are left to refine.
func lnSeries(x decimal.Decimal) (decimal.Decimal, error) {
	if x.Sign() <= 0 {
		return decimal.Zero, ErrInvalidExponent
	}
	y := decimal.Zero
	if f, _ := x.Float64(); f > 0 {
		if seed := math.Log(f); !math.IsInf(seed, 0) {
			y = decimal.NewFromFloat(seed)
		}
	}
	for i := 0; i < 200; i++ {
		expY := expSeries(y)
		next := y.Sub(expY.Sub(x).DivRound(expY, Scale+2))
		if next.Sub(y).Abs().LessThan(epsilon) {
			return next.Round(Scale), nil
		}
		y = next
	}
	return y.Round(Scale), nil
}

// DecayFactor is the time discount applied to HIYA postings:
// 1 - (rateInDays/86400) * elapsedSeconds. A negative result means the epoch
// has decayed past the configured horizon and the posting must be rejected.
func DecayFactor(decayRateDays decimal.Decimal, elapsedSeconds int64) (decimal.Decimal, error) {
	perSecond := decayRateDays.DivRound(secondsInDay, Scale)
	df := One.Sub(perSecond.Mul(decimal.NewFromInt(elapsedSeconds)))
	if df.Sign() < 0 {
		return decimal.Zero, ErrInvalidDecay
	}
	return df, nil
}

// OneMinusT is the curve exponent: remaining time to maturity normalized over
// the epoch length. It reads 1 at issuance and decays toward 0 at maturity.
// The normalized time t is clamped to a ceiling near 1, so the exponent never
// drops under floor = 1-tCeiling; an unclamped exponent blows the curve up
// right before maturity.
func OneMinusT(issuedAt, maturesAt, now int64, floor decimal.Decimal) decimal.Decimal {
	if maturesAt <= issuedAt || now <= issuedAt {
		return One
	}
	if now >= maturesAt {
		return floor
	}
	remaining := decimal.NewFromInt(maturesAt - now)
	total := decimal.NewFromInt(maturesAt - issuedAt)
	oneMinusT := remaining.DivRound(total, Scale)
	if oneMinusT.LessThan(floor) {
		return floor
	}
	return oneMinusT
}
