package settlement

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func openCtx(t *testing.T, b *Book) *CallbackContext {
	t.Helper()
	cc := &CallbackContext{
		ID:          uuid.New(),
		Direction:   DirectionBuy,
		Initiator:   "alice",
		VenueName:   "pool-a",
		BorrowAsset: "RA",
		Borrowed:    decimal.NewFromInt(50),
	}
	if err := b.Open(cc); err != nil {
		t.Fatalf("open: %v", err)
	}
	return cc
}

func TestAuthenticateHappyPath(t *testing.T) {
	b := NewBook()
	cc := openCtx(t, b)
	got, err := b.Authenticate("pool-a", cc.ID, decimal.NewFromInt(50), "RA")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got != cc {
		t.Fatalf("wrong context returned")
	}
}

func TestAuthenticateUnknownContext(t *testing.T) {
	b := NewBook()
	_, err := b.Authenticate("pool-a", uuid.New(), decimal.NewFromInt(50), "RA")
	if !errors.Is(err, ErrCallbackOriginMismatch) {
		t.Fatalf("expected origin mismatch, got %v", err)
	}
}

func TestAuthenticateWrongSender(t *testing.T) {
	b := NewBook()
	cc := openCtx(t, b)
	_, err := b.Authenticate("pool-b", cc.ID, decimal.NewFromInt(50), "RA")
	if !errors.Is(err, ErrCallbackOriginMismatch) {
		t.Fatalf("expected origin mismatch, got %v", err)
	}
}

func TestAuthenticatePaymentMismatch(t *testing.T) {
	b := NewBook()
	cc := openCtx(t, b)
	if _, err := b.Authenticate("pool-a", cc.ID, decimal.NewFromInt(49), "RA"); !errors.Is(err, ErrCallbackOriginMismatch) {
		t.Fatalf("short payment accepted: %v", err)
	}
	if _, err := b.Authenticate("pool-a", cc.ID, decimal.NewFromInt(50), "CT"); !errors.Is(err, ErrCallbackOriginMismatch) {
		t.Fatalf("wrong asset accepted: %v", err)
	}
}

func TestAuthenticateReplay(t *testing.T) {
	b := NewBook()
	cc := openCtx(t, b)
	if _, err := b.Authenticate("pool-a", cc.ID, decimal.NewFromInt(50), "RA"); err != nil {
		t.Fatalf("first authenticate: %v", err)
	}
	if _, err := b.Authenticate("pool-a", cc.ID, decimal.NewFromInt(50), "RA"); !errors.Is(err, ErrCallbackOriginMismatch) {
		t.Fatalf("replay accepted: %v", err)
	}
}

func TestOpenDuplicate(t *testing.T) {
	b := NewBook()
	cc := openCtx(t, b)
	if err := b.Open(cc); !errors.Is(err, ErrContextBusy) {
		t.Fatalf("expected ErrContextBusy, got %v", err)
	}
}

func TestCloseReleasesContext(t *testing.T) {
	b := NewBook()
	cc := openCtx(t, b)
	b.Close(cc.ID)
	if b.Inflight() != 0 {
		t.Fatalf("inflight = %d after close", b.Inflight())
	}
	if _, err := b.Authenticate("pool-a", cc.ID, decimal.NewFromInt(50), "RA"); err == nil {
		t.Fatalf("closed context authenticated")
	}
}
