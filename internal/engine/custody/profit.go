package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"RollSwap/internal/engine"
)

// ProfitLedger accumulates distributed profit per epoch. Vault and stability
// pool each get their own ledger; a deployment substitutes the real payout
// destination behind the same interface.
type ProfitLedger struct {
	mu     sync.Mutex
	totals map[uint64]decimal.Decimal
}

func NewProfitLedger() *ProfitLedger {
	return &ProfitLedger{totals: make(map[uint64]decimal.Decimal)}
}

func (l *ProfitLedger) AcceptProfit(ctx context.Context, epochID uint64, amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative profit %s", engine.ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	l.totals[epochID] = l.totals[epochID].Add(amount)
	l.mu.Unlock()
	return nil
}

// Total reads the accumulated profit for an epoch.
func (l *ProfitLedger) Total(epochID uint64) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[epochID]
}
