package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"RollSwap/internal/engine/curve"
	"RollSwap/internal/engine/fixedpoint"
	"RollSwap/internal/engine/reserve"
	"RollSwap/internal/engine/settlement"
	"RollSwap/internal/engine/venue"
	"RollSwap/pkg/logger"
)

// TradeRequest is one buy or sell against a reserve epoch. AmountIn is RA for
// buys and DS for sells. A non-empty PermitSignature applies the opaque
// pre-authorized transfer capability before the deposit is pulled.
type TradeRequest struct {
	TradeID         uuid.UUID
	ReserveID       string
	Epoch           uint64
	Initiator       string
	AmountIn        decimal.Decimal
	MinOut          decimal.Decimal
	PermitSignature []byte
}

// Fills breaks the realized output down by route.
type Fills struct {
	Rollover decimal.Decimal `json:"rollover"`
	Reserve  decimal.Decimal `json:"reserve"`
	Curve    decimal.Decimal `json:"curve"`
}

// TradeResult is the committed outcome of a trade.
type TradeResult struct {
	TradeID        uuid.UUID
	Side           settlement.Direction
	ReserveID      string
	Epoch          uint64
	AmountIn       decimal.Decimal
	AmountOut      decimal.Decimal
	RefundedExcess decimal.Decimal
	RealizedRate   decimal.Decimal
	Fills          Fills
	Hiya           decimal.Decimal
}

// Buy routes a deposit of RA through the three-stage waterfall: the rollover
// window fills first at the fixed HIYA-implied rate, the internal reserve
// drain fills next against the curve price of the residual, and the remaining
// residual settles through the venue. Every stage prices the residual it
// receives, never the original deposit. The whole trade commits or unwinds as
// one unit.
func (e *Engine) Buy(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	start := time.Now()
	res, err := e.buy(ctx, req)
	e.metrics.RecordLatency("buy", time.Since(start).Seconds())
	e.metrics.RecordTrade("buy", tradeResultLabel(err))
	if err != nil {
		e.metrics.RecordError("buy")
		return nil, err
	}
	return res, nil
}

func (e *Engine) buy(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	if req.AmountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.TradeID == uuid.Nil {
		req.TradeID = uuid.New()
	}
	st, err := e.reserveState(req.ReserveID)
	if err != nil {
		return nil, err
	}
	st.Lock()
	defer st.Unlock()

	pair, err := st.Epoch(req.Epoch)
	if err != nil {
		return nil, err
	}
	now := e.now()
	decayFactor, err := fixedpoint.DecayFactor(st.DecayDiscountRateDays, now-pair.IssuedAt)
	if err != nil {
		return nil, err
	}
	block := e.clock.CurrentBlock()
	staged := pair.Clone()

	if err := e.pullDeposit(ctx, pair.RA, req); err != nil {
		return nil, err
	}
	// depositHeld shrinks as parts of the deposit are refunded mid-trade, so
	// a failed trade hands back exactly what the engine still holds
	depositHeld := req.AmountIn
	consumed := req.AmountIn
	unwindDeposit := func() {
		if depositHeld.Sign() <= 0 {
			return
		}
		if terr := e.custody.Transfer(ctx, pair.RA, AccountEngine, req.Initiator, depositHeld); terr != nil {
			e.log.Error("deposit unwind failed", logger.Error(terr),
				logger.String("reserve", req.ReserveID),
				logger.String("initiator", req.Initiator),
				logger.String("amount", depositHeld.String()))
		}
	}

	// stage 1: fixed-rate rollover window
	ro := reserve.Rollover(staged, st.Hiya, req.Epoch == st.FirstEpoch, block, st.RolloverEndBlock, req.AmountIn)
	residual := ro.RaLeft

	// stage 2: curve-priced internal drain on the residual
	var curveOut, fromReserve, reserveRa decimal.Decimal
	var drained reserve.Drained
	oneMinusT := fixedpoint.OneMinusT(staged.IssuedAt, staged.MaturesAt, now, e.cfg.OneMinusTFloor)
	if residual.GreaterThan(reserve.DustFloor) {
		x, y, verr := e.venue.GetReserves(staged.RA, staged.CT)
		if verr != nil {
			unwindDeposit()
			return nil, fmt.Errorf("venue reserves: %w", verr)
		}
		params := curve.Params{X: x, Y: y, DepositIn: residual, OneMinusT: oneMinusT}
		curveOut, err = curve.Solve(params, e.cfg.Epsilon, e.cfg.MaxIterations)
		if err != nil {
			unwindDeposit()
			return nil, err
		}
		eligible := reserve.SellEligible(staged.Total(), curveOut, st.SellPressureCapPercent, st.GradualSaleDisabled)
		if eligible.Sign() > 0 {
			drained = staged.Drain(eligible)
			fromReserve = drained.Taken()
			reserveRa = residual.Mul(fromReserve).DivRound(curveOut, fixedpoint.Scale)
			residual = residual.Sub(reserveRa)
		}
	}

	// stage 3: re-price what is left and settle it against the venue
	var curveFill, refundedExcess decimal.Decimal
	amountOut := ro.Received.Add(fromReserve)
	if residual.GreaterThan(reserve.DustFloor) {
		target := curveOut.Sub(fromReserve)
		if fromReserve.Sign() > 0 || ro.Received.Sign() > 0 {
			x, y, verr := e.venue.GetReserves(staged.RA, staged.CT)
			if verr != nil {
				unwindDeposit()
				return nil, fmt.Errorf("venue reserves: %w", verr)
			}
			target, err = curve.Solve(curve.Params{X: x, Y: y, DepositIn: residual, OneMinusT: oneMinusT}, e.cfg.Epsilon, e.cfg.MaxIterations)
			if err != nil {
				unwindDeposit()
				return nil, err
			}
		}
		minRemaining := req.MinOut.Sub(amountOut)
		curveFill, refundedExcess, err = e.settleBuyLeg(ctx, req, staged, residual, target, minRemaining)
		if err != nil {
			unwindDeposit()
			return nil, err
		}
		if leftover := residual.Sub(target); leftover.Sign() > 0 {
			// curve priced DS at or above par: only target RA was needed for
			// the mint, the rest goes back to the initiator
			if terr := e.custody.Transfer(ctx, pair.RA, AccountEngine, req.Initiator, leftover); terr != nil {
				unwindDeposit()
				return nil, fmt.Errorf("%w: leftover refund: %v", ErrTransferFailed, terr)
			}
			depositHeld = depositHeld.Sub(leftover)
			consumed = consumed.Sub(leftover)
		}
		amountOut = amountOut.Add(curveFill)
	} else if residual.Sign() > 0 {
		// sub-dust residual goes back to the initiator rather than being
		// silently absorbed
		if terr := e.custody.Transfer(ctx, pair.RA, AccountEngine, req.Initiator, residual); terr != nil {
			unwindDeposit()
			return nil, fmt.Errorf("%w: residual refund: %v", ErrTransferFailed, terr)
		}
		depositHeld = depositHeld.Sub(residual)
		consumed = consumed.Sub(residual)
	}

	if amountOut.LessThan(req.MinOut) {
		unwindDeposit()
		return nil, fmt.Errorf("%w: out %s, min %s", settlement.ErrInsufficientOutput, amountOut, req.MinOut)
	}

	// pay the buyer from engine inventory (internal fills) plus the settled leg
	if amountOut.Sign() > 0 {
		if terr := e.custody.Transfer(ctx, pair.DS, AccountEngine, req.Initiator, amountOut); terr != nil {
			unwindDeposit()
			return nil, fmt.Errorf("%w: payout: %v", ErrTransferFailed, terr)
		}
	}

	// distribute internal-fill proceeds to the two pool owners
	vaultProfit := ro.VaultProceeds
	stabilityProfit := ro.StabilityProceeds
	if fromReserve.Sign() > 0 {
		vaultShare := reserveRa.Mul(drained.FromVault).DivRound(fromReserve, fixedpoint.Scale)
		vaultProfit = vaultProfit.Add(vaultShare)
		stabilityProfit = stabilityProfit.Add(reserveRa.Sub(vaultShare))
	}
	if err := e.distributeProfit(ctx, pair.RA, req.Epoch, vaultProfit, stabilityProfit); err != nil {
		// claw back the initiator-facing legs and fail before the commit; the
		// venue loan is already closed, so the mint stays engine inventory
		if amountOut.Sign() > 0 {
			_ = e.custody.Transfer(ctx, pair.DS, req.Initiator, AccountEngine, amountOut)
		}
		if refundedExcess.Sign() > 0 {
			_ = e.custody.Transfer(ctx, pair.CT, req.Initiator, AccountEngine, refundedExcess)
		}
		unwindDeposit()
		return nil, err
	}

	// post the realized rate and commit the staged ledger as one unit
	rate := e.realizedRate(amountOut, req.AmountIn)
	reserve.PostTrade(staged, consumed, rate, decayFactor)
	*pair = *staged
	e.recordReserves(req.ReserveID, pair)
	e.metrics.RecordHiya(req.ReserveID, hiyaGauge(reserve.EffectiveHiya(pair)))
	e.recordFills(Fills{Rollover: ro.Received, Reserve: fromReserve, Curve: curveFill})

	res := &TradeResult{
		TradeID:        req.TradeID,
		Side:           settlement.DirectionBuy,
		ReserveID:      req.ReserveID,
		Epoch:          req.Epoch,
		AmountIn:       req.AmountIn,
		AmountOut:      amountOut,
		RefundedExcess: refundedExcess,
		RealizedRate:   rate,
		Fills:          Fills{Rollover: ro.Received, Reserve: fromReserve, Curve: curveFill},
		Hiya:           reserve.EffectiveHiya(pair),
	}
	e.logTrade(res)
	return res, nil
}

// settleBuyLeg runs the flash settlement for the curve-routed residual:
// borrow the RA shortfall, mint the target DS+CT through the PSM, repay the
// loan in minted CT, refund the CT excess to the initiator. When the residual
// covers the target on its own no loan is taken; the caller refunds the
// leftover RA.
func (e *Engine) settleBuyLeg(ctx context.Context, req TradeRequest, pair *reserve.EpochPair, residual, target, minRemaining decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	borrow := target.Sub(residual)
	if borrow.Sign() <= 0 {
		if target.LessThan(minRemaining) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: out %s, min %s", settlement.ErrInsufficientOutput, target, minRemaining)
		}
		if err := e.mint(ctx, pair, target); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		return target, decimal.Zero, nil
	}

	cc := &settlement.CallbackContext{
		ID:          req.TradeID,
		Direction:   settlement.DirectionBuy,
		Initiator:   req.Initiator,
		ReserveID:   req.ReserveID,
		Epoch:       req.Epoch,
		VenueName:   e.venue.Name(),
		BorrowAsset: pair.RA,
		Borrowed:    borrow,
		Provided:    residual,
		Target:      target,
		MinOut:      minRemaining,
	}
	if err := e.book.Open(cc); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	defer e.book.Close(cc.ID)

	if err := e.venue.BorrowAndSettle(ctx, pair.RA, borrow, cc.ID, &settleAdapter{e: e, pair: pair}); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return cc.AmountOut, cc.Refund, nil
}

// settleAdapter carries the epoch asset references into the venue callback.
type settleAdapter struct {
	e    *Engine
	pair *reserve.EpochPair
}

func (a *settleAdapter) OnSettle(ctx context.Context, sender string, ctxID uuid.UUID, payment decimal.Decimal, paymentAsset string, v venue.Venue) error {
	cc, err := a.e.book.Authenticate(sender, ctxID, payment, paymentAsset)
	if err != nil {
		return err
	}
	if cc.Direction == settlement.DirectionBuy {
		return a.e.settleBuyCallback(ctx, cc, a.pair, v)
	}
	return a.e.settleSellCallback(ctx, cc, a.pair, v)
}

// settleBuyCallback runs inside the venue round trip. Any error returned here
// makes the venue restore its pool, and the caller unwinds everything else;
// the mint is compensated before returning an error so no partial state
// survives.
func (e *Engine) settleBuyCallback(ctx context.Context, cc *settlement.CallbackContext, pair *reserve.EpochPair, v venue.Venue) error {
	minted := cc.Provided.Add(cc.Borrowed)
	if err := e.mint(ctx, pair, minted); err != nil {
		return err
	}
	required, err := v.QuoteAmountIn(pair.CT, pair.RA, cc.Borrowed)
	if err != nil {
		e.burn(ctx, pair, minted)
		return fmt.Errorf("repayment quote: %w", err)
	}
	// the minted CT is everything received to repay with
	if required.GreaterThan(minted) {
		e.burn(ctx, pair, minted)
		return fmt.Errorf("%w: required %s, received %s", settlement.ErrInsufficientLiquidity, required, minted)
	}
	if minted.LessThan(cc.MinOut) {
		e.burn(ctx, pair, minted)
		return fmt.Errorf("%w: out %s, min %s", settlement.ErrInsufficientOutput, minted, cc.MinOut)
	}
	refund := minted.Sub(required)
	if refund.Sign() > 0 {
		if terr := e.custody.Transfer(ctx, pair.CT, AccountEngine, cc.Initiator, refund); terr != nil {
			e.burn(ctx, pair, minted)
			return fmt.Errorf("%w: refund: %v", ErrTransferFailed, terr)
		}
	}
	if terr := e.custody.Transfer(ctx, pair.CT, AccountEngine, cc.VenueName, required); terr != nil {
		_ = e.custody.Transfer(ctx, pair.CT, cc.Initiator, AccountEngine, refund)
		e.burn(ctx, pair, minted)
		return fmt.Errorf("%w: repay: %v", ErrTransferFailed, terr)
	}
	if rerr := v.Repay(cc.ID, pair.CT, required); rerr != nil {
		_ = e.custody.Transfer(ctx, pair.CT, cc.VenueName, AccountEngine, required)
		_ = e.custody.Transfer(ctx, pair.CT, cc.Initiator, AccountEngine, refund)
		e.burn(ctx, pair, minted)
		return fmt.Errorf("loan repayment: %w", rerr)
	}
	cc.Received = minted
	cc.Repaid = required
	cc.Refund = refund
	cc.AmountOut = minted
	return nil
}

// Sell routes DS back to RA: borrow matching CT from the venue, redeem
// DS+CT through the PSM, repay the loan in RA and pay the seller the rest.
// Rollover and reserve drain are buy-side mechanisms and pass sells through.
func (e *Engine) Sell(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	start := time.Now()
	res, err := e.sell(ctx, req)
	e.metrics.RecordLatency("sell", time.Since(start).Seconds())
	e.metrics.RecordTrade("sell", tradeResultLabel(err))
	if err != nil {
		e.metrics.RecordError("sell")
		return nil, err
	}
	return res, nil
}

func (e *Engine) sell(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	if req.AmountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.TradeID == uuid.Nil {
		req.TradeID = uuid.New()
	}
	st, err := e.reserveState(req.ReserveID)
	if err != nil {
		return nil, err
	}
	st.Lock()
	defer st.Unlock()

	pair, err := st.Epoch(req.Epoch)
	if err != nil {
		return nil, err
	}
	now := e.now()
	decayFactor, err := fixedpoint.DecayFactor(st.DecayDiscountRateDays, now-pair.IssuedAt)
	if err != nil {
		return nil, err
	}
	staged := pair.Clone()

	if err := e.pullDeposit(ctx, pair.DS, req); err != nil {
		return nil, err
	}
	unwindDeposit := func() {
		if terr := e.custody.Transfer(ctx, pair.DS, AccountEngine, req.Initiator, req.AmountIn); terr != nil {
			e.log.Error("deposit unwind failed", logger.Error(terr),
				logger.String("reserve", req.ReserveID),
				logger.String("initiator", req.Initiator),
				logger.String("amount", req.AmountIn.String()))
		}
	}

	cc := &settlement.CallbackContext{
		ID:          req.TradeID,
		Direction:   settlement.DirectionSell,
		Initiator:   req.Initiator,
		ReserveID:   req.ReserveID,
		Epoch:       req.Epoch,
		VenueName:   e.venue.Name(),
		BorrowAsset: pair.CT,
		Borrowed:    req.AmountIn,
		Provided:    req.AmountIn,
		Target:      req.AmountIn,
		MinOut:      req.MinOut,
	}
	if err := e.book.Open(cc); err != nil {
		unwindDeposit()
		return nil, err
	}
	err = e.venue.BorrowAndSettle(ctx, pair.CT, req.AmountIn, cc.ID, &settleAdapter{e: e, pair: pair})
	e.book.Close(cc.ID)
	if err != nil {
		unwindDeposit()
		return nil, err
	}

	amountOut := cc.AmountOut
	if terr := e.custody.Transfer(ctx, pair.RA, AccountEngine, req.Initiator, amountOut); terr != nil {
		unwindDeposit()
		return nil, fmt.Errorf("%w: payout: %v", ErrTransferFailed, terr)
	}

	rate := e.realizedRate(req.AmountIn, amountOut)
	reserve.PostTrade(staged, amountOut, rate, decayFactor)
	*pair = *staged
	e.metrics.RecordHiya(req.ReserveID, hiyaGauge(reserve.EffectiveHiya(pair)))
	e.recordFills(Fills{Curve: amountOut})

	res := &TradeResult{
		TradeID:      req.TradeID,
		Side:         settlement.DirectionSell,
		ReserveID:    req.ReserveID,
		Epoch:        req.Epoch,
		AmountIn:     req.AmountIn,
		AmountOut:    amountOut,
		RealizedRate: rate,
		Fills:        Fills{Curve: amountOut},
		Hiya:         reserve.EffectiveHiya(pair),
	}
	e.logTrade(res)
	return res, nil
}

// settleSellCallback redeems the seller's DS together with the borrowed CT,
// repays the loan in RA and leaves the remainder as the seller's proceeds.
func (e *Engine) settleSellCallback(ctx context.Context, cc *settlement.CallbackContext, pair *reserve.EpochPair, v venue.Venue) error {
	redeemed := cc.Provided
	if err := e.redeem(ctx, pair, redeemed); err != nil {
		return err
	}
	required, err := v.QuoteAmountIn(pair.RA, pair.CT, cc.Borrowed)
	if err != nil {
		e.unredeem(ctx, pair, redeemed)
		return fmt.Errorf("repayment quote: %w", err)
	}
	if required.GreaterThan(redeemed) {
		e.unredeem(ctx, pair, redeemed)
		return fmt.Errorf("%w: required %s, received %s", settlement.ErrInsufficientLiquidity, required, redeemed)
	}
	out := redeemed.Sub(required)
	if out.LessThan(cc.MinOut) {
		e.unredeem(ctx, pair, redeemed)
		return fmt.Errorf("%w: out %s, min %s", settlement.ErrInsufficientOutput, out, cc.MinOut)
	}
	if terr := e.custody.Transfer(ctx, pair.RA, AccountEngine, cc.VenueName, required); terr != nil {
		e.unredeem(ctx, pair, redeemed)
		return fmt.Errorf("%w: repay: %v", ErrTransferFailed, terr)
	}
	if rerr := v.Repay(cc.ID, pair.RA, required); rerr != nil {
		_ = e.custody.Transfer(ctx, pair.RA, cc.VenueName, AccountEngine, required)
		e.unredeem(ctx, pair, redeemed)
		return fmt.Errorf("loan repayment: %w", rerr)
	}
	cc.Received = redeemed
	cc.Repaid = required
	cc.AmountOut = out
	return nil
}

// pullDeposit applies the permit capability when supplied and moves the
// deposit into the engine account.
func (e *Engine) pullDeposit(ctx context.Context, asset string, req TradeRequest) error {
	if len(req.PermitSignature) > 0 {
		if err := e.custody.Permit(ctx, asset, req.Initiator, AccountEngine, req.AmountIn, req.PermitSignature); err != nil {
			return err
		}
	}
	if err := e.custody.Transfer(ctx, asset, req.Initiator, AccountEngine, req.AmountIn); err != nil {
		return fmt.Errorf("%w: deposit: %v", ErrTransferFailed, err)
	}
	return nil
}

// mint swaps RA into fresh DS+CT through the PSM account; burn compensates a
// mint that has to be rolled back.
func (e *Engine) mint(ctx context.Context, pair *reserve.EpochPair, amount decimal.Decimal) error {
	if err := e.custody.Transfer(ctx, pair.RA, AccountEngine, AccountPSM, amount); err != nil {
		return fmt.Errorf("%w: mint ra leg: %v", ErrTransferFailed, err)
	}
	if err := e.custody.Transfer(ctx, pair.DS, AccountPSM, AccountEngine, amount); err != nil {
		_ = e.custody.Transfer(ctx, pair.RA, AccountPSM, AccountEngine, amount)
		return fmt.Errorf("%w: mint ds leg: %v", ErrTransferFailed, err)
	}
	if err := e.custody.Transfer(ctx, pair.CT, AccountPSM, AccountEngine, amount); err != nil {
		_ = e.custody.Transfer(ctx, pair.DS, AccountEngine, AccountPSM, amount)
		_ = e.custody.Transfer(ctx, pair.RA, AccountPSM, AccountEngine, amount)
		return fmt.Errorf("%w: mint ct leg: %v", ErrTransferFailed, err)
	}
	return nil
}

func (e *Engine) burn(ctx context.Context, pair *reserve.EpochPair, amount decimal.Decimal) {
	_ = e.custody.Transfer(ctx, pair.DS, AccountEngine, AccountPSM, amount)
	_ = e.custody.Transfer(ctx, pair.CT, AccountEngine, AccountPSM, amount)
	_ = e.custody.Transfer(ctx, pair.RA, AccountPSM, AccountEngine, amount)
}

// redeem swaps DS+CT back into RA; unredeem compensates it.
func (e *Engine) redeem(ctx context.Context, pair *reserve.EpochPair, amount decimal.Decimal) error {
	if err := e.custody.Transfer(ctx, pair.DS, AccountEngine, AccountPSM, amount); err != nil {
		return fmt.Errorf("%w: redeem ds leg: %v", ErrTransferFailed, err)
	}
	if err := e.custody.Transfer(ctx, pair.CT, AccountEngine, AccountPSM, amount); err != nil {
		_ = e.custody.Transfer(ctx, pair.DS, AccountPSM, AccountEngine, amount)
		return fmt.Errorf("%w: redeem ct leg: %v", ErrTransferFailed, err)
	}
	if err := e.custody.Transfer(ctx, pair.RA, AccountPSM, AccountEngine, amount); err != nil {
		_ = e.custody.Transfer(ctx, pair.CT, AccountPSM, AccountEngine, amount)
		_ = e.custody.Transfer(ctx, pair.DS, AccountPSM, AccountEngine, amount)
		return fmt.Errorf("%w: redeem ra leg: %v", ErrTransferFailed, err)
	}
	return nil
}

func (e *Engine) unredeem(ctx context.Context, pair *reserve.EpochPair, amount decimal.Decimal) {
	_ = e.custody.Transfer(ctx, pair.RA, AccountEngine, AccountPSM, amount)
	_ = e.custody.Transfer(ctx, pair.CT, AccountPSM, AccountEngine, amount)
	_ = e.custody.Transfer(ctx, pair.DS, AccountPSM, AccountEngine, amount)
}

// distributeProfit moves each pool owner's share out of the engine account
// and notifies its sink. On failure every transfer already made is reversed
// so the caller can fail the trade with the engine float intact.
func (e *Engine) distributeProfit(ctx context.Context, ra string, epoch uint64, vaultProfit, stabilityProfit decimal.Decimal) error {
	revertVault := func() {
		if vaultProfit.Sign() > 0 {
			_ = e.custody.Transfer(ctx, ra, AccountVaultOwner, AccountEngine, vaultProfit)
		}
	}
	if vaultProfit.Sign() > 0 {
		if err := e.custody.Transfer(ctx, ra, AccountEngine, AccountVaultOwner, vaultProfit); err != nil {
			return fmt.Errorf("%w: vault profit: %v", ErrTransferFailed, err)
		}
		if err := e.vaultSink.AcceptProfit(ctx, epoch, vaultProfit); err != nil {
			revertVault()
			return fmt.Errorf("vault sink: %w", err)
		}
	}
	if stabilityProfit.Sign() > 0 {
		if err := e.custody.Transfer(ctx, ra, AccountEngine, AccountStabilityOwner, stabilityProfit); err != nil {
			revertVault()
			return fmt.Errorf("%w: stability profit: %v", ErrTransferFailed, err)
		}
		if err := e.stabilitySink.AcceptProfit(ctx, epoch, stabilityProfit); err != nil {
			_ = e.custody.Transfer(ctx, ra, AccountStabilityOwner, AccountEngine, stabilityProfit)
			revertVault()
			return fmt.Errorf("stability sink: %w", err)
		}
	}
	return nil
}

// realizedRate is the implied yield of a fill: DS received per RA minus one
// for buys, DS given per RA received minus one for sells. Never negative.
func (e *Engine) realizedRate(ds, ra decimal.Decimal) decimal.Decimal {
	if ra.Sign() <= 0 {
		return decimal.Zero
	}
	rate := ds.DivRound(ra, fixedpoint.Scale).Sub(fixedpoint.One)
	if rate.Sign() < 0 {
		return decimal.Zero
	}
	return rate
}

func (e *Engine) logTrade(res *TradeResult) {
	e.log.Info("trade settled",
		logger.String("trade_id", res.TradeID.String()),
		logger.String("side", res.Side.String()),
		logger.String("reserve", res.ReserveID),
		logger.Uint64("epoch", res.Epoch),
		logger.String("amount_in", res.AmountIn.String()),
		logger.String("amount_out", res.AmountOut.String()),
		logger.String("rate", res.RealizedRate.String()))
}

func (e *Engine) recordFills(f Fills) {
	for route, amount := range map[string]decimal.Decimal{
		"rollover": f.Rollover,
		"reserve":  f.Reserve,
		"curve":    f.Curve,
	} {
		if amount.Sign() > 0 {
			v, _ := amount.Float64()
			e.metrics.RecordFill(route, v)
		}
	}
}

func tradeResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
