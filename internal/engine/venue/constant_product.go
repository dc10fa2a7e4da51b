package venue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 0.3% swap fee, uniswap v2 style.
var (
	feeMul = decimal.NewFromInt(997)
	feeDen = decimal.NewFromInt(1000)
)

// ConstantProduct is the in-process reference venue: a two-asset x*y=k pool
// with a 0.3% fee and flash-style borrow/settle. Production deployments point
// the engine at a remote venue instead; this one backs tests and local mode.
type ConstantProduct struct {
	name string

	mu       sync.Mutex
	reserves map[string]decimal.Decimal

	pending map[uuid.UUID]*loan
}

type loan struct {
	asset  string
	amount decimal.Decimal

	repaidAsset  string
	repaidAmount decimal.Decimal
}

// NewConstantProduct seeds a pool over the two assets.
func NewConstantProduct(name, assetA string, reserveA decimal.Decimal, assetB string, reserveB decimal.Decimal) *ConstantProduct {
	return &ConstantProduct{
		name: name,
		reserves: map[string]decimal.Decimal{
			assetA: reserveA,
			assetB: reserveB,
		},
		pending: make(map[uuid.UUID]*loan),
	}
}

func (p *ConstantProduct) Name() string { return p.name }

func (p *ConstantProduct) GetReserves(assetA, assetB string) (decimal.Decimal, decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ra, ok := p.reserves[assetA]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownAsset, assetA)
	}
	rb, ok := p.reserves[assetB]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownAsset, assetB)
	}
	return ra, rb, nil
}

// amountIn = reserveIn*out*1000 / ((reserveOut-out)*997), rounded up.
func getAmountIn(out, reserveIn, reserveOut decimal.Decimal) (decimal.Decimal, error) {
	if out.GreaterThanOrEqual(reserveOut) {
		return decimal.Zero, ErrDrainedPool
	}
	num := reserveIn.Mul(out).Mul(feeDen)
	den := reserveOut.Sub(out).Mul(feeMul)
	return num.DivRound(den, 18), nil
}

func (p *ConstantProduct) QuoteAmountIn(assetIn, assetOut string, desiredOut decimal.Decimal) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quoteAmountInLocked(assetIn, assetOut, desiredOut)
}

func (p *ConstantProduct) quoteAmountInLocked(assetIn, assetOut string, desiredOut decimal.Decimal) (decimal.Decimal, error) {
	reserveIn, ok := p.reserves[assetIn]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownAsset, assetIn)
	}
	reserveOut, ok := p.reserves[assetOut]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownAsset, assetOut)
	}
	return getAmountIn(desiredOut, reserveIn, reserveOut)
}

// BorrowAndSettle removes the borrowed amount from the pool, hands control to
// the settler, and on return verifies the recorded repayment against a fresh
// quote at post-borrow reserves. Any failure restores the pool exactly.
func (p *ConstantProduct) BorrowAndSettle(ctx context.Context, borrowAsset string, borrowAmount decimal.Decimal, ctxID uuid.UUID, s Settler) error {
	p.mu.Lock()
	reserve, ok := p.reserves[borrowAsset]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAsset, borrowAsset)
	}
	if borrowAmount.Sign() <= 0 || borrowAmount.GreaterThanOrEqual(reserve) {
		p.mu.Unlock()
		return fmt.Errorf("%w: borrow %s %s", ErrDrainedPool, borrowAsset, borrowAmount)
	}
	p.reserves[borrowAsset] = reserve.Sub(borrowAmount)
	l := &loan{asset: borrowAsset, amount: borrowAmount}
	p.pending[ctxID] = l
	p.mu.Unlock()

	err := s.OnSettle(ctx, p.name, ctxID, borrowAmount, borrowAsset, p)

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, ctxID)
	if err != nil {
		p.reserves[borrowAsset] = p.reserves[borrowAsset].Add(borrowAmount)
		return err
	}
	if l.repaidAsset == "" {
		p.reserves[borrowAsset] = p.reserves[borrowAsset].Add(borrowAmount)
		return fmt.Errorf("%w: %s", ErrRepaymentShort, ctxID)
	}

	var required decimal.Decimal
	if l.repaidAsset == borrowAsset {
		// same-asset flash loan: principal plus fee
		required = borrowAmount.Mul(feeDen).DivRound(feeMul, 18)
	} else {
		req, qerr := p.quoteAmountInLocked(l.repaidAsset, borrowAsset, borrowAmount)
		if qerr != nil {
			p.reserves[borrowAsset] = p.reserves[borrowAsset].Add(borrowAmount)
			return qerr
		}
		required = req
	}
	if l.repaidAmount.LessThan(required) {
		p.reserves[borrowAsset] = p.reserves[borrowAsset].Add(borrowAmount)
		return fmt.Errorf("%w: repaid %s required %s", ErrRepaymentShort, l.repaidAmount, required)
	}
	p.reserves[l.repaidAsset] = p.reserves[l.repaidAsset].Add(l.repaidAmount)
	return nil
}

// Repay records the settlement-phase repayment for the in-flight loan.
func (p *ConstantProduct) Repay(ctxID uuid.UUID, asset string, amount decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.pending[ctxID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLoan, ctxID)
	}
	if _, ok := p.reserves[asset]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	l.repaidAsset = asset
	l.repaidAmount = l.repaidAmount.Add(amount)
	return nil
}
