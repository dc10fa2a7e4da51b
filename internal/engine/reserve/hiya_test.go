package reserve

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEffectiveHiyaNoVolume(t *testing.T) {
	p := pair("0", "0")
	if !EffectiveHiya(p).IsZero() {
		t.Fatalf("hiya without volume = %s", EffectiveHiya(p))
	}
}

func TestPostTradeWeightedAverage(t *testing.T) {
	p := pair("0", "0")
	PostTrade(p, dec("100"), dec("0.10"), dec("1"))
	PostTrade(p, dec("300"), dec("0.02"), dec("1"))
	// (100*0.10 + 300*0.02) / 400 = 0.04
	if !EffectiveHiya(p).Equal(dec("0.04")) {
		t.Fatalf("hiya = %s, want 0.04", EffectiveHiya(p))
	}
}

func TestPostTradeDecayWeighting(t *testing.T) {
	p := pair("0", "0")
	PostTrade(p, dec("100"), dec("0.10"), dec("1"))
	PostTrade(p, dec("100"), dec("0.02"), dec("0.5"))
	// (100*0.10 + 50*0.02) / 150 = 0.0733...
	want := dec("11").DivRound(dec("150"), 18)
	if !EffectiveHiya(p).Equal(want) {
		t.Fatalf("hiya = %s, want %s", EffectiveHiya(p), want)
	}
}

func TestPostTradeIgnoresZeroVolume(t *testing.T) {
	p := pair("0", "0")
	PostTrade(p, decimal.Zero, dec("0.10"), dec("1"))
	if p.Volume.Sign() != 0 || p.RateVolume.Sign() != 0 {
		t.Fatalf("zero-volume trade posted: %s / %s", p.Volume, p.RateVolume)
	}
}

func TestPostTradeReplayDeterminism(t *testing.T) {
	a := pair("0", "0")
	b := pair("0", "0")
	trades := []struct{ v, r, d string }{
		{"10", "0.05", "1"},
		{"25", "0.01", "0.9"},
		{"7.5", "0.12", "0.8"},
	}
	for _, tr := range trades {
		PostTrade(a, dec(tr.v), dec(tr.r), dec(tr.d))
	}
	for _, tr := range trades {
		PostTrade(b, dec(tr.v), dec(tr.r), dec(tr.d))
	}
	if !EffectiveHiya(a).Equal(EffectiveHiya(b)) {
		t.Fatalf("replay diverged: %s vs %s", EffectiveHiya(a), EffectiveHiya(b))
	}
}
