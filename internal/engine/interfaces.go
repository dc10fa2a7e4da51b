package engine

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Custody account names the engine operates. Traders and venues are addressed
// by their own account names; the PSM account stands in for the out-of-scope
// vault deposit/redemption collaborator.
const (
	AccountEngine = "engine"
	AccountPSM    = "psm"

	AccountVaultOwner     = "vault-owner"
	AccountStabilityOwner = "stability-owner"
)

var (
	ErrUnknownReserve     = errors.New("engine: unknown reserve")
	ErrReserveExists      = errors.New("engine: reserve already created")
	ErrInvalidAmount      = errors.New("engine: amount must be positive")
	ErrTransferFailed     = errors.New("engine: transfer failed")
	ErrInvalidSignature   = errors.New("engine: invalid permit signature")
	ErrPermitNotSupported = errors.New("engine: permit not supported")
)

// Custody is the external token custody/transfer primitive. Each call is
// atomic: it fully succeeds or fails without effect. Implementations signal
// failure by wrapping ErrTransferFailed, and permit misuse by wrapping
// ErrInvalidSignature or ErrPermitNotSupported.
type Custody interface {
	Transfer(ctx context.Context, asset, from, to string, amount decimal.Decimal) error
	AuthorizeAllowance(ctx context.Context, asset, owner, spender string, amount decimal.Decimal) error
	// Permit applies a pre-authorized transfer capability: an opaque signature
	// standing in for an off-band authorization.
	Permit(ctx context.Context, asset, owner, spender string, amount decimal.Decimal, signature []byte) error
}

// ProfitSink accepts one pool owner's share of a settled trade's proceeds.
type ProfitSink interface {
	AcceptProfit(ctx context.Context, epochID uint64, amount decimal.Decimal) error
}

// BlockClock supplies the current block height the rollover window is checked
// against.
type BlockClock interface {
	CurrentBlock() uint64
}

// Metrics is the engine-side recording interface; pkg/metrics implements it
// with Prometheus collectors.
type Metrics interface {
	RecordTrade(side, result string)
	RecordFill(route string, amount float64)
	RecordHiya(reserve string, rate float64)
	RecordReserve(reserve, pool string, balance float64)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}
