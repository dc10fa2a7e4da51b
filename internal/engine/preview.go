package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"RollSwap/internal/engine/curve"
	"RollSwap/internal/engine/fixedpoint"
	"RollSwap/internal/engine/reserve"
)

// Preview is a quote-phase-only view of a trade: same waterfall, same
// pricing, no state change and no venue round trip.
type Preview struct {
	ReserveID string          `json:"reserve_id"`
	Epoch     uint64          `json:"epoch"`
	Side      string          `json:"side"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Fills     Fills           `json:"fills"`
	Rate      decimal.Decimal `json:"rate"`
}

// PreviewBuy prices a buy without executing it. It runs the identical
// three-stage waterfall against a staged copy of the epoch pair.
func (e *Engine) PreviewBuy(reserveID string, epoch uint64, amountIn decimal.Decimal) (*Preview, error) {
	if amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	st, err := e.reserveState(reserveID)
	if err != nil {
		return nil, err
	}
	st.Lock()
	defer st.Unlock()
	pair, err := st.Epoch(epoch)
	if err != nil {
		return nil, err
	}
	staged := pair.Clone()
	now := e.now()
	block := e.clock.CurrentBlock()

	ro := reserve.Rollover(staged, st.Hiya, epoch == st.FirstEpoch, block, st.RolloverEndBlock, amountIn)
	residual := ro.RaLeft

	var fromReserve, curveFill decimal.Decimal
	oneMinusT := fixedpoint.OneMinusT(staged.IssuedAt, staged.MaturesAt, now, e.cfg.OneMinusTFloor)
	if residual.GreaterThan(reserve.DustFloor) {
		x, y, verr := e.venue.GetReserves(staged.RA, staged.CT)
		if verr != nil {
			return nil, fmt.Errorf("venue reserves: %w", verr)
		}
		curveOut, serr := curve.Solve(curve.Params{X: x, Y: y, DepositIn: residual, OneMinusT: oneMinusT}, e.cfg.Epsilon, e.cfg.MaxIterations)
		if serr != nil {
			return nil, serr
		}
		eligible := reserve.SellEligible(staged.Total(), curveOut, st.SellPressureCapPercent, st.GradualSaleDisabled)
		if eligible.Sign() > 0 {
			drained := staged.Drain(eligible)
			fromReserve = drained.Taken()
			reserveRa := residual.Mul(fromReserve).DivRound(curveOut, fixedpoint.Scale)
			residual = residual.Sub(reserveRa)
		}
		if residual.GreaterThan(reserve.DustFloor) {
			curveFill = curveOut.Sub(fromReserve)
			if fromReserve.Sign() > 0 || ro.Received.Sign() > 0 {
				curveFill, serr = curve.Solve(curve.Params{X: x, Y: y, DepositIn: residual, OneMinusT: oneMinusT}, e.cfg.Epsilon, e.cfg.MaxIterations)
				if serr != nil {
					return nil, serr
				}
			}
		}
	}

	amountOut := ro.Received.Add(fromReserve).Add(curveFill)
	return &Preview{
		ReserveID: reserveID,
		Epoch:     epoch,
		Side:      "buy",
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Fills:     Fills{Rollover: ro.Received, Reserve: fromReserve, Curve: curveFill},
		Rate:      e.realizedRate(amountOut, amountIn),
	}, nil
}

// PreviewSell prices a sell at current venue reserves.
func (e *Engine) PreviewSell(reserveID string, epoch uint64, amountIn decimal.Decimal) (*Preview, error) {
	if amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	st, err := e.reserveState(reserveID)
	if err != nil {
		return nil, err
	}
	st.Lock()
	defer st.Unlock()
	pair, err := st.Epoch(epoch)
	if err != nil {
		return nil, err
	}
	required, err := e.venue.QuoteAmountIn(pair.RA, pair.CT, amountIn)
	if err != nil {
		return nil, fmt.Errorf("venue quote: %w", err)
	}
	amountOut := amountIn.Sub(required)
	if amountOut.Sign() < 0 {
		amountOut = decimal.Zero
	}
	return &Preview{
		ReserveID: reserveID,
		Epoch:     epoch,
		Side:      "sell",
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Fills:     Fills{Curve: amountOut},
		Rate:      e.realizedRate(amountIn, amountOut),
	}, nil
}
