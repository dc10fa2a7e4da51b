package curve

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"RollSwap/internal/engine/fixedpoint"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var (
	testEpsilon = decimal.New(1, -9)
	maxIter     = 256
)

func solve(t *testing.T, x, y, d, e string) decimal.Decimal {
	t.Helper()
	p := Params{X: dec(x), Y: dec(y), DepositIn: dec(d), OneMinusT: dec(e)}
	s, err := Solve(p, testEpsilon, maxIter)
	if err != nil {
		t.Fatalf("solve(%s,%s,%s,%s): %v", x, y, d, e, err)
	}
	return s
}

func TestSolveZeroDeposit(t *testing.T) {
	s, err := Solve(Params{X: dec("1000"), Y: dec("1000"), DepositIn: decimal.Zero, OneMinusT: dec("0.5")}, testEpsilon, maxIter)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !s.IsZero() {
		t.Fatalf("zero deposit solved to %s", s)
	}
}

func TestSolveConstantSum(t *testing.T) {
	// at exponent 1 the invariant degenerates to x+y = const and the swap is
	// one-for-one
	s := solve(t, "1000", "1000", "100", "1")
	if !s.Equal(dec("100")) {
		t.Fatalf("constant-sum fill = %s, want 100", s)
	}
}

func TestSolveConstantSumEmptyPool(t *testing.T) {
	_, err := Solve(Params{X: decimal.Zero, Y: dec("1000"), DepositIn: dec("10"), OneMinusT: fixedpoint.One}, testEpsilon, maxIter)
	if !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("expected ErrInvalidDomain, got %v", err)
	}
}

func TestSolveResidualUnderEpsilon(t *testing.T) {
	cases := []struct{ x, y, d, e string }{
		{"1000", "1000", "100", "0.5"},
		{"1000", "1000", "100", "0.9"},
		{"1000", "500", "50", "0.75"},
		{"100", "100", "1", "0.99"},
	}
	for _, c := range cases {
		p := Params{X: dec(c.x), Y: dec(c.y), DepositIn: dec(c.d), OneMinusT: dec(c.e)}
		s, err := Solve(p, testEpsilon, maxIter)
		if err != nil {
			t.Fatalf("solve(%+v): %v", c, err)
		}
		f, err := ExcessDemand(p, s)
		if err != nil {
			t.Fatalf("excess demand at root: %v", err)
		}
		if f.Abs().GreaterThan(dec("0.000001")) {
			t.Fatalf("residual at root %s = %s", s, f)
		}
	}
}

func TestSolveKnownRoot(t *testing.T) {
	// x=y=1000, deposit 100, exponent 0.5: root near 497.2136
	s := solve(t, "1000", "1000", "100", "0.5")
	if s.Sub(dec("497.2136")).Abs().GreaterThan(dec("0.01")) {
		t.Fatalf("root = %s, want ~497.2136", s)
	}
}

func TestSolveLargeReserves(t *testing.T) {
	s := solve(t, "1000000", "1000000", "100", "0.5")
	if s.Sub(dec("14192.1356")).Abs().GreaterThan(dec("0.01")) {
		t.Fatalf("root = %s, want ~14192.1356", s)
	}
}

func TestSolveFillExceedsDeposit(t *testing.T) {
	// below par the buyer always receives more DS than RA deposited
	s := solve(t, "1000", "1000", "100", "0.9")
	if s.LessThanOrEqual(dec("100")) {
		t.Fatalf("fill %s not above deposit", s)
	}
}

func TestSolveNoBracket(t *testing.T) {
	// excess demand stays negative over the whole bracket
	p := Params{X: dec("100"), Y: dec("100"), DepositIn: dec("50"), OneMinusT: dec("0.99")}
	_, err := Solve(p, testEpsilon, maxIter)
	if !errors.Is(err, ErrNoBracket) {
		t.Fatalf("expected ErrNoBracket, got %v", err)
	}
}

func TestExcessDemandDomainGuard(t *testing.T) {
	p := Params{X: dec("100"), Y: dec("100"), DepositIn: dec("10"), OneMinusT: dec("0.5")}
	_, err := ExcessDemand(p, dec("200"))
	if !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("expected ErrInvalidDomain, got %v", err)
	}
}
