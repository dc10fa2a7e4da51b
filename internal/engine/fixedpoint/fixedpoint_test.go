package fixedpoint

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPowIdentityExponent(t *testing.T) {
	got, err := Pow(dec("123.456"), One)
	if err != nil {
		t.Fatalf("pow: %v", err)
	}
	if !got.Equal(dec("123.456")) {
		t.Fatalf("base^1 = %s", got)
	}
}

func TestPowZeroBase(t *testing.T) {
	got, err := Pow(decimal.Zero, dec("0.5"))
	if err != nil {
		t.Fatalf("pow: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("0^e = %s", got)
	}
}

func TestPowSquareRoot(t *testing.T) {
	got, err := Pow(dec("4"), dec("0.5"))
	if err != nil {
		t.Fatalf("pow: %v", err)
	}
	if got.Sub(dec("2")).Abs().GreaterThan(dec("0.000000001")) {
		t.Fatalf("4^0.5 = %s", got)
	}
}

func TestPowLargeBase(t *testing.T) {
	// 1000^0.9 = 501.187233627...
	got, err := Pow(dec("1000"), dec("0.9"))
	if err != nil {
		t.Fatalf("pow: %v", err)
	}
	if got.Sub(dec("501.187233627")).Abs().GreaterThan(dec("0.000001")) {
		t.Fatalf("1000^0.9 = %s", got)
	}
}

func TestPowRejectsBadExponent(t *testing.T) {
	if _, err := Pow(dec("2"), decimal.Zero); !errors.Is(err, ErrInvalidExponent) {
		t.Fatalf("exponent 0: %v", err)
	}
	if _, err := Pow(dec("2"), dec("1.5")); !errors.Is(err, ErrInvalidExponent) {
		t.Fatalf("exponent 1.5: %v", err)
	}
	if _, err := Pow(dec("-2"), dec("0.5")); !errors.Is(err, ErrInvalidExponent) {
		t.Fatalf("negative base: %v", err)
	}
}

func TestDecayFactor(t *testing.T) {
	// 8640 days/day => 0.1/s, after 5s the factor is 0.5
	got, err := DecayFactor(dec("8640"), 5)
	if err != nil {
		t.Fatalf("decay: %v", err)
	}
	if !got.Equal(dec("0.5")) {
		t.Fatalf("decay factor = %s", got)
	}
}

func TestDecayFactorFresh(t *testing.T) {
	got, err := DecayFactor(dec("10"), 0)
	if err != nil {
		t.Fatalf("decay: %v", err)
	}
	if !got.Equal(One) {
		t.Fatalf("decay factor at t=0 = %s", got)
	}
}

func TestDecayFactorPastHorizon(t *testing.T) {
	_, err := DecayFactor(dec("8640"), 11)
	if !errors.Is(err, ErrInvalidDecay) {
		t.Fatalf("expected ErrInvalidDecay, got %v", err)
	}
}

func TestOneMinusTAtIssuance(t *testing.T) {
	got := OneMinusT(100, 200, 100, dec("0.0001"))
	if !got.Equal(One) {
		t.Fatalf("exponent at issuance = %s", got)
	}
}

func TestOneMinusTMidway(t *testing.T) {
	got := OneMinusT(0, 1000, 250, dec("0.0001"))
	if !got.Equal(dec("0.75")) {
		t.Fatalf("exponent at 25%% elapsed = %s", got)
	}
}

func TestOneMinusTFloorNearMaturity(t *testing.T) {
	floor := dec("0.0001")
	got := OneMinusT(0, 1_000_000, 999_999, floor)
	if !got.Equal(floor) {
		t.Fatalf("exponent near maturity = %s, want floor %s", got, floor)
	}
}

func TestOneMinusTAfterMaturity(t *testing.T) {
	floor := dec("0.0001")
	got := OneMinusT(0, 100, 150, floor)
	if !got.Equal(floor) {
		t.Fatalf("exponent after maturity = %s", got)
	}
}

func TestOneMinusTDegenerateEpoch(t *testing.T) {
	got := OneMinusT(100, 100, 150, dec("0.0001"))
	if !got.Equal(One) {
		t.Fatalf("degenerate epoch exponent = %s", got)
	}
}
