package curve

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"RollSwap/internal/engine/fixedpoint"
)

var (
	ErrNoBracket     = errors.New("curve: no sign change in bracket")
	ErrNoConvergence = errors.New("curve: bisection iteration budget exhausted")
	ErrInvalidDomain = errors.New("curve: candidate point outside curve domain")
)

// Params are the bonding curve inputs for one trade. They are derived per
// trade and never persisted: X and Y are the decayed reserve magnitudes,
// DepositIn the amount supplied, OneMinusT the decay exponent in (0, 1].
type Params struct {
	X         decimal.Decimal
	Y         decimal.Decimal
	DepositIn decimal.Decimal
	OneMinusT decimal.Decimal
}

// bracketAdjustments bounds how many times the upper bracket edge is shrunk
// looking for a sign change before giving up with ErrNoBracket.
const bracketAdjustments = 64

var (
	two   = decimal.NewFromInt(2)
	delta = decimal.New(1, -9) // initial bracket edge backs off x+deposit by this
)

// ExcessDemand evaluates
//
//	x^e + y^e - (x - s + deposit)^e - (y + s)^e
//
// at the candidate sale amount s. The function is strictly monotone in s over
// the admissible domain, so a bracketed root is unique. A candidate that
// pushes either post-trade balance negative is out of domain.
func ExcessDemand(p Params, s decimal.Decimal) (decimal.Decimal, error) {
	xSide := p.X.Sub(s).Add(p.DepositIn)
	ySide := p.Y.Add(s)
	if xSide.Sign() < 0 || ySide.Sign() < 0 {
		return decimal.Zero, ErrInvalidDomain
	}
	xe, err := fixedpoint.Pow(p.X, p.OneMinusT)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pow x: %w", err)
	}
	ye, err := fixedpoint.Pow(p.Y, p.OneMinusT)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pow y: %w", err)
	}
	xSideE, err := fixedpoint.Pow(xSide, p.OneMinusT)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pow x side: %w", err)
	}
	ySideE, err := fixedpoint.Pow(ySide, p.OneMinusT)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pow y side: %w", err)
	}
	return xe.Add(ye).Sub(xSideE).Sub(ySideE), nil
}

// Solve finds the unique s with |ExcessDemand(p, s)| < epsilon by bisection.
// The initial bracket is [0, x+deposit-delta]; if the edge is out of domain or
// carries the same sign as f(0), it is halved a bounded number of times before
// the solver reports ErrNoBracket.
func Solve(p Params, epsilon decimal.Decimal, maxIterations int) (decimal.Decimal, error) {
	if p.DepositIn.Sign() <= 0 {
		return decimal.Zero, nil
	}
	// At exponent exactly 1 the curve is constant-sum and the excess demand is
	// the constant -deposit, so bisection has no root. The swap closed form on
	// a constant-sum curve is one-for-one.
	if p.OneMinusT.Equal(fixedpoint.One) {
		if p.X.Sign() <= 0 || p.Y.Sign() < 0 {
			return decimal.Zero, ErrInvalidDomain
		}
		return p.DepositIn, nil
	}
	lo := decimal.Zero
	fLo, err := ExcessDemand(p, lo)
	if err != nil {
		return decimal.Zero, err
	}
	if fLo.Abs().LessThan(epsilon) {
		return lo, nil
	}

	hi := p.X.Add(p.DepositIn).Sub(delta)
	if hi.Sign() <= 0 {
		return decimal.Zero, ErrNoBracket
	}
	fHi, err := ExcessDemand(p, hi)
	for adj := 0; err != nil || fHi.Sign() == fLo.Sign(); adj++ {
		if err != nil && !errors.Is(err, ErrInvalidDomain) {
			return decimal.Zero, err
		}
		if adj >= bracketAdjustments {
			return decimal.Zero, ErrNoBracket
		}
		hi = hi.DivRound(two, fixedpoint.Scale)
		if hi.LessThanOrEqual(epsilon) {
			return decimal.Zero, ErrNoBracket
		}
		fHi, err = ExcessDemand(p, hi)
	}
	if fHi.Abs().LessThan(epsilon) {
		return hi, nil
	}

	for i := 0; i < maxIterations; i++ {
		mid := lo.Add(hi).DivRound(two, fixedpoint.Scale)
		fMid, err := ExcessDemand(p, mid)
		if err != nil {
			return decimal.Zero, err
		}
		if fMid.Abs().LessThan(epsilon) || hi.Sub(lo).LessThan(epsilon) {
			return mid, nil
		}
		if fMid.Sign() == fLo.Sign() {
			lo, fLo = mid, fMid
		} else {
			hi = mid
		}
	}
	return decimal.Zero, ErrNoConvergence
}
