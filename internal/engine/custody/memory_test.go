package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"RollSwap/internal/engine"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTransfer(t *testing.T) {
	b := NewBook(true)
	b.Credit("RA", "alice", dec("100"))
	if err := b.Transfer(context.Background(), "RA", "alice", "bob", dec("40")); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !b.Balance("RA", "alice").Equal(dec("60")) {
		t.Fatalf("alice = %s", b.Balance("RA", "alice"))
	}
	if !b.Balance("RA", "bob").Equal(dec("40")) {
		t.Fatalf("bob = %s", b.Balance("RA", "bob"))
	}
}

func TestTransferInsufficient(t *testing.T) {
	b := NewBook(true)
	b.Credit("RA", "alice", dec("10"))
	err := b.Transfer(context.Background(), "RA", "alice", "bob", dec("40"))
	if !errors.Is(err, engine.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if !b.Balance("RA", "alice").Equal(dec("10")) {
		t.Fatalf("failed transfer mutated balance: %s", b.Balance("RA", "alice"))
	}
}

func TestTransferNegative(t *testing.T) {
	b := NewBook(true)
	if err := b.Transfer(context.Background(), "RA", "alice", "bob", dec("-1")); !errors.Is(err, engine.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
}

func TestPermit(t *testing.T) {
	b := NewBook(true)
	if err := b.Permit(context.Background(), "RA", "alice", "engine", dec("10"), []byte{0x01}); err != nil {
		t.Fatalf("permit: %v", err)
	}
}

func TestPermitEmptySignature(t *testing.T) {
	b := NewBook(true)
	err := b.Permit(context.Background(), "RA", "alice", "engine", dec("10"), nil)
	if !errors.Is(err, engine.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestPermitUnsupported(t *testing.T) {
	b := NewBook(false)
	err := b.Permit(context.Background(), "RA", "alice", "engine", dec("10"), []byte{0x01})
	if !errors.Is(err, engine.ErrPermitNotSupported) {
		t.Fatalf("expected ErrPermitNotSupported, got %v", err)
	}
}

func TestProfitLedger(t *testing.T) {
	l := NewProfitLedger()
	if err := l.AcceptProfit(context.Background(), 1, dec("10")); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := l.AcceptProfit(context.Background(), 1, dec("2.5")); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !l.Total(1).Equal(dec("12.5")) {
		t.Fatalf("epoch total = %s", l.Total(1))
	}
	if l.Total(2).Sign() != 0 {
		t.Fatalf("untouched epoch total = %s", l.Total(2))
	}
}

func TestProfitLedgerRejectsNegative(t *testing.T) {
	l := NewProfitLedger()
	if err := l.AcceptProfit(context.Background(), 1, dec("-1")); !errors.Is(err, engine.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
