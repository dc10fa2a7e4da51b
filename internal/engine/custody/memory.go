package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"RollSwap/internal/engine"
)

// Book is the in-memory custody/transfer primitive: balances and allowances
// per asset and account. Each operation is atomic under the book lock. It
// backs tests and local mode; a deployment substitutes a real custodian
// behind the same interface.
type Book struct {
	mu         sync.Mutex
	balances   map[string]map[string]decimal.Decimal // asset -> account -> balance
	allowances map[string]map[string]decimal.Decimal // asset -> owner/spender -> allowance
	permits    bool
}

// NewBook creates an empty custody book. supportsPermits controls whether the
// pre-authorized transfer capability is accepted.
func NewBook(supportsPermits bool) *Book {
	return &Book{
		balances:   make(map[string]map[string]decimal.Decimal),
		allowances: make(map[string]map[string]decimal.Decimal),
		permits:    supportsPermits,
	}
}

// Credit seeds an account balance outside of any trade.
func (b *Book) Credit(asset, account string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(asset, account, amount)
}

func (b *Book) credit(asset, account string, amount decimal.Decimal) {
	if b.balances[asset] == nil {
		b.balances[asset] = make(map[string]decimal.Decimal)
	}
	b.balances[asset][account] = b.balances[asset][account].Add(amount)
}

// Balance reads an account balance.
func (b *Book) Balance(asset, account string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[asset][account]
}

func (b *Book) Transfer(ctx context.Context, asset, from, to string, amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative amount %s", engine.ErrTransferFailed, amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balances[asset][from]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s balance %s short of %s", engine.ErrTransferFailed, from, bal, amount)
	}
	b.balances[asset][from] = bal.Sub(amount)
	b.credit(asset, to, amount)
	return nil
}

func (b *Book) AuthorizeAllowance(ctx context.Context, asset, owner, spender string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allowances[asset] == nil {
		b.allowances[asset] = make(map[string]decimal.Decimal)
	}
	b.allowances[asset][owner+"/"+spender] = amount
	return nil
}

// Permit accepts any non-empty signature; an empty signature is invalid and a
// book created without permit support rejects all of them.
func (b *Book) Permit(ctx context.Context, asset, owner, spender string, amount decimal.Decimal, signature []byte) error {
	if !b.permits {
		return engine.ErrPermitNotSupported
	}
	if len(signature) == 0 {
		return engine.ErrInvalidSignature
	}
	return b.AuthorizeAllowance(ctx, asset, owner, spender, amount)
}
