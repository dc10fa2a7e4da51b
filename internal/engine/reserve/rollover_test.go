package reserve

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRolloverInactiveFirstEpoch(t *testing.T) {
	p := pair("500", "500")
	f := Rollover(p, dec("0.05"), true, 10, 100, dec("100"))
	if f.Received.Sign() != 0 || !f.RaLeft.Equal(dec("100")) {
		t.Fatalf("first epoch filled: %+v", f)
	}
}

func TestRolloverInactiveZeroHiya(t *testing.T) {
	p := pair("500", "500")
	f := Rollover(p, decimal.Zero, false, 10, 100, dec("100"))
	if f.Received.Sign() != 0 || !f.RaLeft.Equal(dec("100")) {
		t.Fatalf("zero hiya filled: %+v", f)
	}
}

func TestRolloverInactiveWindowClosed(t *testing.T) {
	p := pair("500", "500")
	f := Rollover(p, dec("0.05"), false, 100, 100, dec("100"))
	if f.Received.Sign() != 0 || !f.RaLeft.Equal(dec("100")) {
		t.Fatalf("closed window filled: %+v", f)
	}
}

func TestRolloverFullFill(t *testing.T) {
	p := pair("500", "500")
	f := Rollover(p, dec("0.05"), false, 10, 100, dec("100"))
	if !f.Received.Equal(dec("105")) {
		t.Fatalf("received = %s, want 105", f.Received)
	}
	if !f.RaConsumed.Equal(dec("100")) || f.RaLeft.Sign() != 0 {
		t.Fatalf("consumed %s, left %s", f.RaConsumed, f.RaLeft)
	}
	if !p.Total().Equal(dec("895")) {
		t.Fatalf("inventory after fill = %s", p.Total())
	}
	if !f.VaultProceeds.Add(f.StabilityProceeds).Equal(dec("100")) {
		t.Fatalf("proceeds do not sum to consumed: %s + %s",
			f.VaultProceeds, f.StabilityProceeds)
	}
}

func TestRolloverPartialFill(t *testing.T) {
	// only 21 DS in inventory against a 105 DS want: consume 20 RA, return 80
	p := pair("10.5", "10.5")
	f := Rollover(p, dec("0.05"), false, 10, 100, dec("100"))
	if !f.Received.Equal(dec("21")) {
		t.Fatalf("received = %s, want 21", f.Received)
	}
	if !f.RaConsumed.Equal(dec("20")) {
		t.Fatalf("consumed = %s, want 20", f.RaConsumed)
	}
	if !f.RaLeft.Equal(dec("80")) {
		t.Fatalf("left = %s, want 80", f.RaLeft)
	}
	if p.Total().Sign() != 0 {
		t.Fatalf("inventory not exhausted: %s", p.Total())
	}
}

func TestRolloverProceedsFollowDrainShares(t *testing.T) {
	p := pair("300", "100")
	f := Rollover(p, dec("0.05"), false, 10, 100, dec("100"))
	// 3/4 of the fill drained from the vault, so 3/4 of the proceeds are its
	want := f.RaConsumed.Mul(dec("0.75"))
	if f.VaultProceeds.Sub(want).Abs().GreaterThan(dec("0.000001")) {
		t.Fatalf("vault proceeds = %s, want ~%s", f.VaultProceeds, want)
	}
}
