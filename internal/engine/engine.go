package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"RollSwap/internal/engine/reserve"
	"RollSwap/internal/engine/settlement"
	"RollSwap/internal/engine/venue"
	"RollSwap/pkg/logger"
)

// Config carries the solver tuning shared by every trade.
type Config struct {
	Epsilon        decimal.Decimal
	MaxIterations  int
	OneMinusTFloor decimal.Decimal
}

// Engine prices and settles DS/CT trades: the rollover window, the internal
// reserve drain and the flash settlement against the external venue, in that
// order. One Engine instance owns all reserve ledgers; trades against the
// same reserve serialize on that reserve's lock, trades against different
// reserves proceed independently.
type Engine struct {
	cfg Config

	mu       sync.RWMutex
	reserves map[string]*reserve.State

	venue         venue.Venue
	custody       Custody
	vaultSink     ProfitSink
	stabilitySink ProfitSink
	clock         BlockClock
	book          *settlement.Book

	log     *logger.Logger
	metrics Metrics

	now func() int64
}

func New(cfg Config, v venue.Venue, custody Custody, vaultSink, stabilitySink ProfitSink, clock BlockClock, log *logger.Logger, m Metrics) *Engine {
	if cfg.Epsilon.IsZero() {
		cfg.Epsilon = decimal.New(1, -9)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 256
	}
	if cfg.OneMinusTFloor.IsZero() {
		cfg.OneMinusTFloor = decimal.New(1, -4)
	}
	return &Engine{
		cfg:           cfg,
		reserves:      make(map[string]*reserve.State),
		venue:         v,
		custody:       custody,
		vaultSink:     vaultSink,
		stabilitySink: stabilitySink,
		clock:         clock,
		book:          settlement.NewBook(),
		log:           log,
		metrics:       m,
		now:           func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the wall clock, for tests.
func (e *Engine) SetNowFunc(now func() int64) { e.now = now }

// CreateReserve installs the ledger for a new reserve.
func (e *Engine) CreateReserve(id string, decayRateDays, sellPressureCap decimal.Decimal, gradualSaleDisabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.reserves[id]; ok {
		return fmt.Errorf("%w: %s", ErrReserveExists, id)
	}
	e.reserves[id] = reserve.NewState(id, decayRateDays, sellPressureCap, gradualSaleDisabled)
	e.log.Info("reserve created",
		logger.String("reserve", id),
		logger.String("decay_rate_days", decayRateDays.String()),
		logger.String("sell_pressure_cap", sellPressureCap.String()))
	return nil
}

func (e *Engine) reserveState(id string) (*reserve.State, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.reserves[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReserve, id)
	}
	return st, nil
}

// IssueEpoch is the configuration authority's onNewEpoch trigger: it creates
// the epoch pair, snapshots the prior epoch's effective HIYA as the rollover
// rate, and opens the rollover window for rolloverWindowBlocks blocks.
func (e *Engine) IssueEpoch(reserveID string, epoch uint64, ds, ct, ra string, maturesAt int64, rolloverWindowBlocks uint64) error {
	st, err := e.reserveState(reserveID)
	if err != nil {
		return err
	}
	st.Lock()
	defer st.Unlock()
	pair := &reserve.EpochPair{
		DS:        ds,
		CT:        ct,
		RA:        ra,
		IssuedAt:  e.now(),
		MaturesAt: maturesAt,
	}
	if err := st.Issue(epoch, pair, e.clock.CurrentBlock(), rolloverWindowBlocks); err != nil {
		return err
	}
	e.metrics.RecordHiya(reserveID, hiyaGauge(st.Hiya))
	e.log.Info("epoch issued",
		logger.String("reserve", reserveID),
		logger.Uint64("epoch", epoch),
		logger.Uint64("rollover_end_block", st.RolloverEndBlock),
		logger.String("hiya", st.Hiya.String()))
	return nil
}

// AddReserve credits internal inventory: DS moves from the depositor to the
// engine account and the named pool's balance grows by the same amount. This
// is the only operation that increases vault+stability for an epoch.
func (e *Engine) AddReserve(ctx context.Context, reserveID string, epoch uint64, pool reserve.Pool, from string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	st, err := e.reserveState(reserveID)
	if err != nil {
		return err
	}
	st.Lock()
	defer st.Unlock()
	pair, err := st.Epoch(epoch)
	if err != nil {
		return err
	}
	if err := e.custody.Transfer(ctx, pair.DS, from, AccountEngine, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := pair.Add(pool, amount); err != nil {
		// hand the inventory back; the ledger rejected the credit
		_ = e.custody.Transfer(ctx, pair.DS, AccountEngine, from, amount)
		return err
	}
	e.recordReserves(reserveID, pair)
	return nil
}

// SetParams applies a configuration-authority update; nil fields are left
// unchanged.
func (e *Engine) SetParams(reserveID string, decayRateDays, sellPressureCap *decimal.Decimal, gradualSaleDisabled *bool) error {
	st, err := e.reserveState(reserveID)
	if err != nil {
		return err
	}
	st.Lock()
	defer st.Unlock()
	if decayRateDays != nil {
		st.DecayDiscountRateDays = *decayRateDays
	}
	if sellPressureCap != nil {
		st.SellPressureCapPercent = *sellPressureCap
	}
	if gradualSaleDisabled != nil {
		st.GradualSaleDisabled = *gradualSaleDisabled
	}
	e.log.Info("reserve params updated", logger.String("reserve", reserveID))
	return nil
}

// CurrentHIYA returns the live decay-weighted average rate of the latest
// epoch, falling back to the snapshot the rollover window prices at while the
// epoch has no volume yet.
func (e *Engine) CurrentHIYA(reserveID string) (decimal.Decimal, error) {
	st, err := e.reserveState(reserveID)
	if err != nil {
		return decimal.Zero, err
	}
	st.Lock()
	defer st.Unlock()
	if pair, perr := st.Epoch(st.LastEpoch); perr == nil {
		if live := reserve.EffectiveHiya(pair); !live.IsZero() {
			return live, nil
		}
	}
	return st.Hiya, nil
}

// RolloverWindowEnd returns the absolute block at which the reserve's current
// rollover window closes.
func (e *Engine) RolloverWindowEnd(reserveID string) (uint64, error) {
	st, err := e.reserveState(reserveID)
	if err != nil {
		return 0, err
	}
	st.Lock()
	defer st.Unlock()
	return st.RolloverEndBlock, nil
}

func (e *Engine) recordReserves(reserveID string, pair *reserve.EpochPair) {
	v, _ := pair.Vault.Float64()
	s, _ := pair.Stability.Float64()
	e.metrics.RecordReserve(reserveID, "vault", v)
	e.metrics.RecordReserve(reserveID, "stability", s)
}

func hiyaGauge(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
