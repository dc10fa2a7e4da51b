package venue

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownAsset   = errors.New("venue: asset not in pool")
	ErrDrainedPool    = errors.New("venue: insufficient pool reserve")
	ErrRepaymentShort = errors.New("venue: repayment below required amount")
	ErrUnknownLoan    = errors.New("venue: repay without matching loan")
)

// Settler receives the venue's settlement callback. The engine implements it;
// the context id ties the callback back to the trade that requested the loan.
type Settler interface {
	OnSettle(ctx context.Context, sender string, ctxID uuid.UUID, payment decimal.Decimal, paymentAsset string, v Venue) error
}

// Venue is the external constant-curve liquidity pool, consumed only through
// reserve queries, quotes, and the borrow/settle round trip. BorrowAndSettle
// lends optimistically, invokes the settler exactly once, and expects Repay
// to have been called from inside the callback; a callback error or a short
// repayment unwinds the loan with the pool restored.
type Venue interface {
	Name() string
	// GetReserves returns the pool balances for the pair, in argument order.
	GetReserves(assetA, assetB string) (decimal.Decimal, decimal.Decimal, error)
	// QuoteAmountIn prices how much assetIn the pool requires for desiredOut
	// of assetOut at current reserves.
	QuoteAmountIn(assetIn, assetOut string, desiredOut decimal.Decimal) (decimal.Decimal, error)
	BorrowAndSettle(ctx context.Context, borrowAsset string, borrowAmount decimal.Decimal, ctxID uuid.UUID, s Settler) error
	// Repay records the loan repayment for an in-flight borrow. Valid only
	// from inside the settlement callback for the same context id.
	Repay(ctxID uuid.UUID, asset string, amount decimal.Decimal) error
}
