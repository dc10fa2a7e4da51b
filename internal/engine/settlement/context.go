package settlement

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientLiquidity  = errors.New("settlement: repayment exceeds amount received")
	ErrInsufficientOutput     = errors.New("settlement: realized amount below minimum output")
	ErrCallbackOriginMismatch = errors.New("settlement: callback origin mismatch")
	ErrContextBusy            = errors.New("settlement: callback context already in flight")
)

// Direction of the trade a callback context belongs to.
type Direction int

const (
	DirectionBuy Direction = iota
	DirectionSell
)

func (d Direction) String() string {
	if d == DirectionBuy {
		return "buy"
	}
	return "sell"
}

// CallbackContext is the per-trade state that survives the borrow/settle
// round trip. It is exclusively owned by its in-flight trade: opened before
// the venue call, resolved (or abandoned) when the round trip returns, and
// never visible to another trade in between.
type CallbackContext struct {
	ID        uuid.UUID
	Direction Direction
	Initiator string
	ReserveID string
	Epoch     uint64

	VenueName   string
	BorrowAsset string
	Borrowed    decimal.Decimal
	Provided    decimal.Decimal

	// target output the callback should realize, and the caller's slippage
	// floor checked against the realized amount
	Target decimal.Decimal
	MinOut decimal.Decimal

	// filled in by the callback
	Received  decimal.Decimal
	Repaid    decimal.Decimal
	Refund    decimal.Decimal
	AmountOut decimal.Decimal
	settled   bool
}

// Book tracks in-flight callback contexts keyed by trade id.
type Book struct {
	mu       sync.Mutex
	inflight map[uuid.UUID]*CallbackContext
}

func NewBook() *Book {
	return &Book{inflight: make(map[uuid.UUID]*CallbackContext)}
}

// Open registers a context for the duration of one venue round trip.
func (b *Book) Open(cc *CallbackContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inflight[cc.ID]; ok {
		return fmt.Errorf("%w: %s", ErrContextBusy, cc.ID)
	}
	b.inflight[cc.ID] = cc
	return nil
}

// Authenticate verifies a callback against its in-flight context: the sender
// must be the venue the loan was requested from, the context must exist and
// must not have settled already, and the delivered payment must match the
// requested borrow. Spoofed, replayed or cross-wired callbacks all land here.
func (b *Book) Authenticate(sender string, ctxID uuid.UUID, payment decimal.Decimal, paymentAsset string) (*CallbackContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cc, ok := b.inflight[ctxID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown context %s", ErrCallbackOriginMismatch, ctxID)
	}
	if cc.settled {
		return nil, fmt.Errorf("%w: context %s already settled", ErrCallbackOriginMismatch, ctxID)
	}
	if sender != cc.VenueName {
		return nil, fmt.Errorf("%w: sender %q, expected %q", ErrCallbackOriginMismatch, sender, cc.VenueName)
	}
	if paymentAsset != cc.BorrowAsset || !payment.Equal(cc.Borrowed) {
		return nil, fmt.Errorf("%w: payment %s %s does not match borrow %s %s",
			ErrCallbackOriginMismatch, payment, paymentAsset, cc.Borrowed, cc.BorrowAsset)
	}
	cc.settled = true
	return cc, nil
}

// Close removes the context once the round trip has resolved either way.
func (b *Book) Close(ctxID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, ctxID)
}

// Inflight reports how many round trips are outstanding.
func (b *Book) Inflight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}
