package reserve

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Pool names one of the two internal reserve sources.
type Pool int

const (
	PoolVault Pool = iota
	PoolStability
)

func (p Pool) String() string {
	if p == PoolVault {
		return "vault"
	}
	return "stability"
}

var (
	ErrUnknownEpoch   = errors.New("reserve: unknown epoch")
	ErrEpochExists    = errors.New("reserve: epoch already issued")
	ErrNegativeAmount = errors.New("reserve: negative amount")

	hundred = decimal.NewFromInt(100)

	// DustFloor is the smallest internal fill worth draining; anything under
	// it routes to external liquidity instead.
	DustFloor = decimal.New(1, -6)
)

// EpochPair is the per-(reserve, epoch) state: asset references, the two
// DS-denominated reserve balances, drain bookkeeping and the HIYA accumulator
// sums accrued during the epoch. It is owned by the State that issued it and
// mutated only through Add and Drain.
type EpochPair struct {
	DS string
	CT string
	RA string

	Vault     decimal.Decimal
	Stability decimal.Decimal

	DrainedVault     decimal.Decimal
	DrainedStability decimal.Decimal

	// decay-weighted HIYA sums, append-only
	RateVolume decimal.Decimal
	Volume     decimal.Decimal

	IssuedAt  int64
	MaturesAt int64
}

// Total is the combined internal reserve still available.
func (p *EpochPair) Total() decimal.Decimal {
	return p.Vault.Add(p.Stability)
}

// Clone copies the pair so a trade can stage mutations and commit or discard
// them as a unit.
func (p *EpochPair) Clone() *EpochPair {
	c := *p
	return &c
}

// Add credits the named pool. This is the only operation that may grow
// Vault+Stability.
func (p *EpochPair) Add(pool Pool, amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if pool == PoolVault {
		p.Vault = p.Vault.Add(amount)
	} else {
		p.Stability = p.Stability.Add(amount)
	}
	return nil
}

// Drained reports how much each pool gave up in one Drain call.
type Drained struct {
	FromVault     decimal.Decimal
	FromStability decimal.Decimal
}

// Taken is the combined drained amount.
func (d Drained) Taken() decimal.Decimal {
	return d.FromVault.Add(d.FromStability)
}

// Drain removes min(requested, total) from the two pools, each decremented in
// proportion to its share of the total, rounding down, with the rounding
// remainder left in the larger pool. Draining an empty epoch is a no-op.
func (p *EpochPair) Drain(requested decimal.Decimal) Drained {
	total := p.Total()
	if requested.Sign() <= 0 || total.Sign() <= 0 {
		return Drained{}
	}
	take := requested
	if take.GreaterThan(total) {
		take = total
	}

	fromVault := take.Mul(p.Vault).Div(total).Truncate(18)
	fromStability := take.Mul(p.Stability).Div(total).Truncate(18)
	remainder := take.Sub(fromVault).Sub(fromStability)
	if remainder.Sign() > 0 {
		// remainder is drained from (i.e. left out of) the larger pool
		if p.Vault.GreaterThanOrEqual(p.Stability) {
			fromVault = fromVault.Add(remainder)
		} else {
			fromStability = fromStability.Add(remainder)
		}
	}
	if fromVault.GreaterThan(p.Vault) {
		fromVault = p.Vault
	}
	if fromStability.GreaterThan(p.Stability) {
		fromStability = p.Stability
	}

	p.Vault = p.Vault.Sub(fromVault)
	p.Stability = p.Stability.Sub(fromStability)
	p.DrainedVault = p.DrainedVault.Add(fromVault)
	p.DrainedStability = p.DrainedStability.Add(fromStability)
	return Drained{FromVault: fromVault, FromStability: fromStability}
}

// SellEligible computes how much of a curve-priced fill may come from internal
// inventory: min(total, curveOutput - fee(curveOutput, capPercent)), zero when
// gradual sale is switched off or the eligible amount is under the dust floor.
func SellEligible(total, curveOutput, capPercent decimal.Decimal, disabled bool) decimal.Decimal {
	if disabled || curveOutput.Sign() <= 0 || total.Sign() <= 0 {
		return decimal.Zero
	}
	fee := curveOutput.Mul(capPercent).Div(hundred)
	eligible := curveOutput.Sub(fee)
	if eligible.GreaterThan(total) {
		eligible = total
	}
	if eligible.LessThan(DustFloor) {
		return decimal.Zero
	}
	return eligible
}

// State is the per-reserve ledger: the epoch map plus the policy parameters
// and the HIYA snapshot the rollover window prices against. All access goes
// through the holder of the state lock; the engine serializes trades per
// reserve on it.
type State struct {
	ID string

	mu sync.Mutex

	Epochs     map[uint64]*EpochPair
	FirstEpoch uint64
	LastEpoch  uint64

	DecayDiscountRateDays  decimal.Decimal
	RolloverEndBlock       uint64
	SellPressureCapPercent decimal.Decimal
	GradualSaleDisabled    bool

	// Hiya is the prior epoch's effective rate, zero until the first epoch
	// hands one over.
	Hiya decimal.Decimal
}

// NewState creates the ledger for a reserve at its first issuance.
func NewState(id string, decayRateDays, sellPressureCap decimal.Decimal, gradualSaleDisabled bool) *State {
	return &State{
		ID:                     id,
		Epochs:                 make(map[uint64]*EpochPair),
		DecayDiscountRateDays:  decayRateDays,
		SellPressureCapPercent: sellPressureCap,
		GradualSaleDisabled:    gradualSaleDisabled,
	}
}

func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// Epoch returns the pair for an issued epoch.
func (s *State) Epoch(id uint64) (*EpochPair, error) {
	p, ok := s.Epochs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", ErrUnknownEpoch, s.ID, id)
	}
	return p, nil
}

// Issue installs a new epoch pair. The first issuance pins FirstEpoch; each
// later issuance snapshots the previous epoch's effective HIYA and opens the
// rollover window.
func (s *State) Issue(epoch uint64, pair *EpochPair, currentBlock, rolloverWindowBlocks uint64) error {
	if _, ok := s.Epochs[epoch]; ok {
		return fmt.Errorf("%w: %s/%d", ErrEpochExists, s.ID, epoch)
	}
	if len(s.Epochs) == 0 {
		s.FirstEpoch = epoch
	} else {
		prev, ok := s.Epochs[s.LastEpoch]
		if ok {
			s.Hiya = EffectiveHiya(prev)
		}
	}
	s.Epochs[epoch] = pair
	s.LastEpoch = epoch
	s.RolloverEndBlock = currentBlock + rolloverWindowBlocks
	return nil
}
