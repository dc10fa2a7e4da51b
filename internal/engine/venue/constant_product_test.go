package venue

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testPool() *ConstantProduct {
	return NewConstantProduct("pool-a", "RA", dec("1000"), "CT", dec("1000"))
}

type settlerFunc func(ctx context.Context, sender string, ctxID uuid.UUID, payment decimal.Decimal, paymentAsset string, v Venue) error

func (f settlerFunc) OnSettle(ctx context.Context, sender string, ctxID uuid.UUID, payment decimal.Decimal, paymentAsset string, v Venue) error {
	return f(ctx, sender, ctxID, payment, paymentAsset, v)
}

func TestQuoteAmountIn(t *testing.T) {
	p := testPool()
	// in = 1000*100*1000 / ((1000-100)*997) rounded at 18
	got, err := p.QuoteAmountIn("RA", "CT", dec("100"))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	want := dec("1000").Mul(dec("100")).Mul(dec("1000")).
		DivRound(dec("900").Mul(dec("997")), 18)
	if !got.Equal(want) {
		t.Fatalf("quote = %s, want %s", got, want)
	}
}

func TestQuoteDrainedPool(t *testing.T) {
	p := testPool()
	if _, err := p.QuoteAmountIn("RA", "CT", dec("1000")); !errors.Is(err, ErrDrainedPool) {
		t.Fatalf("expected ErrDrainedPool, got %v", err)
	}
}

func TestQuoteUnknownAsset(t *testing.T) {
	p := testPool()
	if _, err := p.QuoteAmountIn("DS", "CT", dec("1")); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestBorrowAndSettleCrossAsset(t *testing.T) {
	p := testPool()
	id := uuid.New()
	err := p.BorrowAndSettle(context.Background(), "RA", dec("100"), id,
		settlerFunc(func(ctx context.Context, sender string, ctxID uuid.UUID, payment decimal.Decimal, paymentAsset string, v Venue) error {
			if sender != "pool-a" || ctxID != id {
				t.Fatalf("callback identity: %s %s", sender, ctxID)
			}
			if !payment.Equal(dec("100")) || paymentAsset != "RA" {
				t.Fatalf("callback payment: %s %s", payment, paymentAsset)
			}
			// repay generously in CT
			return v.Repay(ctxID, "CT", dec("130"))
		}))
	if err != nil {
		t.Fatalf("borrow and settle: %v", err)
	}
	ra, ct, _ := p.GetReserves("RA", "CT")
	if !ra.Equal(dec("900")) || !ct.Equal(dec("1130")) {
		t.Fatalf("reserves after settle: %s / %s", ra, ct)
	}
}

func TestBorrowAndSettleUnwindsOnCallbackError(t *testing.T) {
	p := testPool()
	boom := errors.New("boom")
	err := p.BorrowAndSettle(context.Background(), "RA", dec("100"), uuid.New(),
		settlerFunc(func(ctx context.Context, sender string, ctxID uuid.UUID, payment decimal.Decimal, paymentAsset string, v Venue) error {
			return boom
		}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	ra, ct, _ := p.GetReserves("RA", "CT")
	if !ra.Equal(dec("1000")) || !ct.Equal(dec("1000")) {
		t.Fatalf("pool not restored: %s / %s", ra, ct)
	}
}

func TestBorrowAndSettleShortRepayment(t *testing.T) {
	p := testPool()
	err := p.BorrowAndSettle(context.Background(), "RA", dec("100"), uuid.New(),
		settlerFunc(func(ctx context.Context, sender string, ctxID uuid.UUID, payment decimal.Decimal, paymentAsset string, v Venue) error {
			return v.Repay(ctxID, "CT", dec("1"))
		}))
	if !errors.Is(err, ErrRepaymentShort) {
		t.Fatalf("expected ErrRepaymentShort, got %v", err)
	}
	ra, _, _ := p.GetReserves("RA", "CT")
	if !ra.Equal(dec("1000")) {
		t.Fatalf("pool not restored: %s", ra)
	}
}

func TestBorrowAndSettleNoRepayment(t *testing.T) {
	p := testPool()
	err := p.BorrowAndSettle(context.Background(), "RA", dec("100"), uuid.New(),
		settlerFunc(func(ctx context.Context, sender string, ctxID uuid.UUID, payment decimal.Decimal, paymentAsset string, v Venue) error {
			return nil
		}))
	if !errors.Is(err, ErrRepaymentShort) {
		t.Fatalf("expected ErrRepaymentShort, got %v", err)
	}
	ra, _, _ := p.GetReserves("RA", "CT")
	if !ra.Equal(dec("1000")) {
		t.Fatalf("pool not restored: %s", ra)
	}
}

func TestBorrowExceedsReserve(t *testing.T) {
	p := testPool()
	err := p.BorrowAndSettle(context.Background(), "RA", dec("1000"), uuid.New(),
		settlerFunc(func(ctx context.Context, sender string, ctxID uuid.UUID, payment decimal.Decimal, paymentAsset string, v Venue) error {
			return nil
		}))
	if !errors.Is(err, ErrDrainedPool) {
		t.Fatalf("expected ErrDrainedPool, got %v", err)
	}
}

func TestRepayWithoutLoan(t *testing.T) {
	p := testPool()
	if err := p.Repay(uuid.New(), "CT", dec("10")); !errors.Is(err, ErrUnknownLoan) {
		t.Fatalf("expected ErrUnknownLoan, got %v", err)
	}
}

func TestSameAssetFlashLoan(t *testing.T) {
	p := testPool()
	// principal plus 0.3% fee must come back in the same asset
	fee := dec("100").Mul(dec("1000")).DivRound(dec("997"), 18)
	err := p.BorrowAndSettle(context.Background(), "RA", dec("100"), uuid.New(),
		settlerFunc(func(ctx context.Context, sender string, ctxID uuid.UUID, payment decimal.Decimal, paymentAsset string, v Venue) error {
			return v.Repay(ctxID, "RA", fee)
		}))
	if err != nil {
		t.Fatalf("flash loan: %v", err)
	}
	ra, _, _ := p.GetReserves("RA", "CT")
	if ra.LessThan(dec("1000")) {
		t.Fatalf("pool lost value: %s", ra)
	}
}
