package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"RollSwap/internal/engine"
	"RollSwap/internal/engine/custody"
	"RollSwap/internal/engine/reserve"
	"RollSwap/internal/engine/settlement"
	"RollSwap/internal/engine/venue"
	"RollSwap/pkg/logger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type nopMetrics struct{}

func (nopMetrics) RecordTrade(string, string)            {}
func (nopMetrics) RecordFill(string, float64)            {}
func (nopMetrics) RecordHiya(string, float64)            {}
func (nopMetrics) RecordReserve(string, string, float64) {}
func (nopMetrics) RecordLatency(string, float64)         {}
func (nopMetrics) RecordError(string)                    {}

type fixedClock uint64

func (c fixedClock) CurrentBlock() uint64 { return uint64(c) }

// stubVenue scripts pool reserves and repayment quotes so a trade's flash leg
// can be driven through chosen outcomes.
type stubVenue struct {
	name     string
	x, y     decimal.Decimal
	required decimal.Decimal
	quoteErr error
	repayErr error

	repaidAsset  string
	repaidAmount decimal.Decimal
}

func (v *stubVenue) Name() string { return v.name }

func (v *stubVenue) GetReserves(assetA, assetB string) (decimal.Decimal, decimal.Decimal, error) {
	return v.x, v.y, nil
}

func (v *stubVenue) QuoteAmountIn(assetIn, assetOut string, desiredOut decimal.Decimal) (decimal.Decimal, error) {
	if v.quoteErr != nil {
		return decimal.Zero, v.quoteErr
	}
	return v.required, nil
}

func (v *stubVenue) BorrowAndSettle(ctx context.Context, borrowAsset string, borrowAmount decimal.Decimal, ctxID uuid.UUID, s venue.Settler) error {
	return s.OnSettle(ctx, v.name, ctxID, borrowAmount, borrowAsset, v)
}

func (v *stubVenue) Repay(ctxID uuid.UUID, asset string, amount decimal.Decimal) error {
	if v.repayErr != nil {
		return v.repayErr
	}
	v.repaidAsset = asset
	v.repaidAmount = v.repaidAmount.Add(amount)
	return nil
}

type harness struct {
	eng   *engine.Engine
	book  *custody.Book
	pool  *stubVenue
	vault *custody.ProfitLedger
	stab  *custody.ProfitLedger
	now   int64
}

const (
	trader  = "alice"
	funder  = "bob"
	epochTS = int64(1_700_000_000)
)

func newHarness(t *testing.T, pool *stubVenue, block uint64) *harness {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	book := custody.NewBook(true)
	// engine float plus trader and PSM inventory
	book.Credit("RA", engine.AccountEngine, dec("100000"))
	book.Credit("DS", engine.AccountEngine, dec("100000"))
	book.Credit("CT", engine.AccountEngine, dec("100000"))
	book.Credit("RA", engine.AccountPSM, dec("1000000"))
	book.Credit("DS", engine.AccountPSM, dec("1000000"))
	book.Credit("CT", engine.AccountPSM, dec("1000000"))
	book.Credit("RA", trader, dec("10000"))
	book.Credit("DS", trader, dec("10000"))
	book.Credit("DS", funder, dec("10000"))

	h := &harness{book: book, pool: pool, vault: custody.NewProfitLedger(), stab: custody.NewProfitLedger(), now: epochTS}
	h.eng = engine.New(engine.Config{}, pool, book, h.vault, h.stab, fixedClock(block), log, nopMetrics{})
	h.eng.SetNowFunc(func() int64 { return h.now })
	if err := h.eng.CreateReserve("res", dec("0.0001"), dec("15"), false); err != nil {
		t.Fatalf("create reserve: %v", err)
	}
	return h
}

func (h *harness) issue(t *testing.T, epoch uint64, maturesAt int64, windowBlocks uint64) {
	t.Helper()
	if err := h.eng.IssueEpoch("res", epoch, "DS", "CT", "RA", maturesAt, windowBlocks); err != nil {
		t.Fatalf("issue epoch %d: %v", epoch, err)
	}
}

func closeTo(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(dec("0.001"))
}

func TestBuyAtParMintsOneForOne(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	// at issuance the exponent is 1 and the curve prices at par, so the whole
	// deposit mints through the PSM without a venue loan

	res, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !res.AmountOut.Equal(dec("100")) {
		t.Fatalf("amount out = %s, want 100", res.AmountOut)
	}
	if !res.Fills.Curve.Equal(dec("100")) || res.Fills.Rollover.Sign() != 0 || res.Fills.Reserve.Sign() != 0 {
		t.Fatalf("fills = %+v", res.Fills)
	}
	if !res.RealizedRate.IsZero() {
		t.Fatalf("par buy rate = %s", res.RealizedRate)
	}
	if !h.book.Balance("DS", trader).Equal(dec("10100")) {
		t.Fatalf("trader DS = %s", h.book.Balance("DS", trader))
	}
	if !h.book.Balance("RA", trader).Equal(dec("9900")) {
		t.Fatalf("trader RA = %s", h.book.Balance("RA", trader))
	}
}

func TestBuyFlashLegRefundsExcess(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("300")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500 // exponent 0.5

	res, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	// bonding curve root for x=y=1000, deposit 100, exponent 0.5
	if !closeTo(res.AmountOut, dec("497.2136")) {
		t.Fatalf("amount out = %s, want ~497.2136", res.AmountOut)
	}
	// minted CT covers the 300 repayment; the rest is refunded
	wantRefund := res.AmountOut.Sub(dec("300"))
	if !closeTo(res.RefundedExcess, wantRefund) {
		t.Fatalf("refund = %s, want %s", res.RefundedExcess, wantRefund)
	}
	if !closeTo(h.book.Balance("CT", trader), wantRefund) {
		t.Fatalf("trader CT = %s", h.book.Balance("CT", trader))
	}
	if !closeTo(h.book.Balance("CT", "pool-a"), dec("300")) {
		t.Fatalf("venue CT = %s", h.book.Balance("CT", "pool-a"))
	}
	if pool.repaidAsset != "CT" || !closeTo(pool.repaidAmount, dec("300")) {
		t.Fatalf("repaid %s %s", pool.repaidAmount, pool.repaidAsset)
	}
	if !closeTo(h.book.Balance("DS", trader), dec("10000").Add(res.AmountOut)) {
		t.Fatalf("trader DS = %s", h.book.Balance("DS", trader))
	}
}

func TestBuySlippageUnwindsEverything(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("300")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500

	_, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
		MinOut: dec("1000"),
	})
	if !errors.Is(err, settlement.ErrInsufficientOutput) {
		t.Fatalf("expected ErrInsufficientOutput, got %v", err)
	}
	for asset, want := range map[string]string{"RA": "10000", "DS": "10000", "CT": "0"} {
		if !h.book.Balance(asset, trader).Equal(dec(want)) {
			t.Fatalf("trader %s = %s after unwind", asset, h.book.Balance(asset, trader))
		}
	}
	if !h.book.Balance("RA", engine.AccountEngine).Equal(dec("100000")) {
		t.Fatalf("engine RA = %s after unwind", h.book.Balance("RA", engine.AccountEngine))
	}
}

func TestBuyInsufficientLiquidityUnwinds(t *testing.T) {
	// repayment quote above the minted amount: the flash leg cannot close
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("10000")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500

	_, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
	})
	if !errors.Is(err, settlement.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if !h.book.Balance("RA", trader).Equal(dec("10000")) {
		t.Fatalf("trader RA = %s after unwind", h.book.Balance("RA", trader))
	}
}

func TestBuyRepayFailureUnwinds(t *testing.T) {
	repayErr := errors.New("pool rejected repayment")
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("300"), repayErr: repayErr}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500

	_, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
	})
	if !errors.Is(err, repayErr) {
		t.Fatalf("expected repay failure, got %v", err)
	}
	// the CT refund and the repayment both come back and the mint burns
	for asset, want := range map[string]string{"RA": "10000", "DS": "10000", "CT": "0"} {
		if !h.book.Balance(asset, trader).Equal(dec(want)) {
			t.Fatalf("trader %s = %s after unwind", asset, h.book.Balance(asset, trader))
		}
	}
	if !h.book.Balance("CT", "pool-a").IsZero() {
		t.Fatalf("venue kept CT: %s", h.book.Balance("CT", "pool-a"))
	}
	for _, asset := range []string{"RA", "DS", "CT"} {
		if !h.book.Balance(asset, engine.AccountEngine).Equal(dec("100000")) {
			t.Fatalf("engine %s = %s after unwind", asset, h.book.Balance(asset, engine.AccountEngine))
		}
	}
}

func TestRolloverWindowBuy(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("300")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500

	// first-epoch trade produces the rate the next epoch rolls over at
	first, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
	})
	if err != nil {
		t.Fatalf("seed buy: %v", err)
	}
	hiya := first.Hiya
	if hiya.Sign() <= 0 {
		t.Fatalf("no rate produced: %s", hiya)
	}

	h.issue(t, 2, epochTS+2000, 50) // window closes at block 150
	if err := h.eng.AddReserve(context.Background(), "res", 2, reserve.PoolVault, funder, dec("600")); err != nil {
		t.Fatalf("add vault: %v", err)
	}
	if err := h.eng.AddReserve(context.Background(), "res", 2, reserve.PoolStability, funder, dec("400")); err != nil {
		t.Fatalf("add stability: %v", err)
	}

	got, err := h.eng.CurrentHIYA("res")
	if err != nil || !got.Equal(hiya) {
		t.Fatalf("snapshot hiya = %s (%v), want %s", got, err, hiya)
	}
	end, err := h.eng.RolloverWindowEnd("res")
	if err != nil || end != 150 {
		t.Fatalf("window end = %d (%v), want 150", end, err)
	}

	res, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 2, Initiator: trader, AmountIn: dec("100"),
	})
	if err != nil {
		t.Fatalf("rollover buy: %v", err)
	}
	wantFill := dec("100").Mul(decimal.NewFromInt(1).Add(hiya))
	if !closeTo(res.Fills.Rollover, wantFill) {
		t.Fatalf("rollover fill = %s, want %s", res.Fills.Rollover, wantFill)
	}
	if !closeTo(res.AmountOut, wantFill) {
		t.Fatalf("amount out = %s, want %s", res.AmountOut, wantFill)
	}
	// the consumed deposit flows to the pool owners as proceeds
	vaultRA := h.book.Balance("RA", engine.AccountVaultOwner)
	stabRA := h.book.Balance("RA", engine.AccountStabilityOwner)
	if !closeTo(vaultRA.Add(stabRA), dec("100")) {
		t.Fatalf("distributed proceeds = %s + %s, want 100", vaultRA, stabRA)
	}
	if !closeTo(h.vault.Total(2).Add(h.stab.Total(2)), dec("100")) {
		t.Fatalf("sink totals = %s + %s", h.vault.Total(2), h.stab.Total(2))
	}
	if vaultRA.LessThanOrEqual(stabRA) {
		t.Fatalf("vault (larger pool) received %s, stability %s", vaultRA, stabRA)
	}
}

func TestBuyUnwindReturnsExactDeposit(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("300")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500
	first, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
	})
	if err != nil {
		t.Fatalf("seed buy: %v", err)
	}

	h.issue(t, 2, epochTS+2000, 50)
	if err := h.eng.AddReserve(context.Background(), "res", 2, reserve.PoolVault, funder, dec("400")); err != nil {
		t.Fatalf("add vault: %v", err)
	}
	// a deposit overrunning the window inventory by a hair leaves a residual
	// under the dust floor, refunded before the output check fails
	onePlus := decimal.NewFromInt(1).Add(first.Hiya)
	deposit := dec("400").DivRound(onePlus, 18).Add(dec("0.0000005"))
	raBefore := h.book.Balance("RA", trader)
	engineBefore := h.book.Balance("RA", engine.AccountEngine)

	_, err = h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 2, Initiator: trader, AmountIn: deposit,
		MinOut: dec("401"),
	})
	if !errors.Is(err, settlement.ErrInsufficientOutput) {
		t.Fatalf("expected ErrInsufficientOutput, got %v", err)
	}
	if got := h.book.Balance("RA", trader); !got.Equal(raBefore) {
		t.Fatalf("trader RA = %s after unwind, want %s", got, raBefore)
	}
	if got := h.book.Balance("RA", engine.AccountEngine); !got.Equal(engineBefore) {
		t.Fatalf("engine RA = %s after unwind, want %s", got, engineBefore)
	}
}

func TestBuyHiyaOmitsRefundedResidual(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("300")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500
	first, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
	})
	if err != nil {
		t.Fatalf("seed buy: %v", err)
	}

	h.issue(t, 2, epochTS+2000, 50)
	if err := h.eng.AddReserve(context.Background(), "res", 2, reserve.PoolVault, funder, dec("400")); err != nil {
		t.Fatalf("add vault: %v", err)
	}
	onePlus := decimal.NewFromInt(1).Add(first.Hiya)
	deposit := dec("400").DivRound(onePlus, 18).Add(dec("0.0000005"))
	res1, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 2, Initiator: trader, AmountIn: deposit,
	})
	if err != nil {
		t.Fatalf("rollover buy: %v", err)
	}
	// the refunded residual never traded, so epoch volume carries only the
	// consumed part of the deposit
	consumed := deposit.Sub(dec("0.0000005"))
	res2, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 2, Initiator: trader, AmountIn: dec("100"),
	})
	if err != nil {
		t.Fatalf("par buy: %v", err)
	}
	if !res2.RealizedRate.IsZero() {
		t.Fatalf("par buy rate = %s", res2.RealizedRate)
	}
	want := consumed.Mul(res1.RealizedRate).DivRound(consumed.Add(dec("100")), 18)
	got, err := h.eng.CurrentHIYA("res")
	if err != nil {
		t.Fatalf("hiya: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("hiya = %s, want %s", got, want)
	}
}

func TestRolloverClosedAfterWindow(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("300")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500
	if _, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
	}); err != nil {
		t.Fatalf("seed buy: %v", err)
	}

	// window of zero blocks: closed immediately
	h.issue(t, 2, epochTS+2000, 0)
	if err := h.eng.AddReserve(context.Background(), "res", 2, reserve.PoolVault, funder, dec("500")); err != nil {
		t.Fatalf("add vault: %v", err)
	}
	res, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 2, Initiator: trader, AmountIn: dec("100"),
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.Fills.Rollover.Sign() != 0 {
		t.Fatalf("rollover filled outside window: %s", res.Fills.Rollover)
	}
}

func TestSellRoutesThroughRedeem(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("4")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500

	res, err := h.eng.Sell(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("10"),
	})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	// 10 DS redeem 10 RA, 4 repay the CT loan, 6 are proceeds
	if !res.AmountOut.Equal(dec("6")) {
		t.Fatalf("amount out = %s, want 6", res.AmountOut)
	}
	if !h.book.Balance("DS", trader).Equal(dec("9990")) {
		t.Fatalf("trader DS = %s", h.book.Balance("DS", trader))
	}
	if !h.book.Balance("RA", trader).Equal(dec("10006")) {
		t.Fatalf("trader RA = %s", h.book.Balance("RA", trader))
	}
	if pool.repaidAsset != "RA" || !pool.repaidAmount.Equal(dec("4")) {
		t.Fatalf("repaid %s %s", pool.repaidAmount, pool.repaidAsset)
	}
}

func TestSellInsufficientLiquidityUnwinds(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("15")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500

	_, err := h.eng.Sell(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("10"),
	})
	if !errors.Is(err, settlement.ErrInsufficientLiquidity) {
		t.Fatalf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if !h.book.Balance("DS", trader).Equal(dec("10000")) {
		t.Fatalf("trader DS = %s after unwind", h.book.Balance("DS", trader))
	}
}

func TestSellRepayFailureUnwinds(t *testing.T) {
	repayErr := errors.New("pool rejected repayment")
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("4"), repayErr: repayErr}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500

	_, err := h.eng.Sell(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("10"),
	})
	if !errors.Is(err, repayErr) {
		t.Fatalf("expected repay failure, got %v", err)
	}
	if !h.book.Balance("DS", trader).Equal(dec("10000")) {
		t.Fatalf("trader DS = %s after unwind", h.book.Balance("DS", trader))
	}
	if !h.book.Balance("RA", trader).Equal(dec("10000")) {
		t.Fatalf("trader RA = %s after unwind", h.book.Balance("RA", trader))
	}
	if !h.book.Balance("RA", "pool-a").IsZero() {
		t.Fatalf("venue kept RA: %s", h.book.Balance("RA", "pool-a"))
	}
	for _, asset := range []string{"RA", "DS", "CT"} {
		if !h.book.Balance(asset, engine.AccountEngine).Equal(dec("100000")) {
			t.Fatalf("engine %s = %s after unwind", asset, h.book.Balance(asset, engine.AccountEngine))
		}
	}
}

func TestPreviewMatchesExecution(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("300")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	h.now = epochTS + 500

	pv, err := h.eng.PreviewBuy("res", 1, dec("100"))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	res, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !pv.AmountOut.Equal(res.AmountOut) {
		t.Fatalf("preview %s, executed %s", pv.AmountOut, res.AmountOut)
	}
	if !pv.Rate.Equal(res.RealizedRate) {
		t.Fatalf("preview rate %s, executed %s", pv.Rate, res.RealizedRate)
	}
}

func TestBuyPermitApplied(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)

	if _, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
		PermitSignature: []byte{0xde, 0xad},
	}); err != nil {
		t.Fatalf("buy with permit: %v", err)
	}
}

func TestBuyUnknownEpoch(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000")}
	h := newHarness(t, pool, 100)
	_, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 9, Initiator: trader, AmountIn: dec("100"),
	})
	if !errors.Is(err, reserve.ErrUnknownEpoch) {
		t.Fatalf("expected ErrUnknownEpoch, got %v", err)
	}
}

func TestBuyUnknownReserve(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000")}
	h := newHarness(t, pool, 100)
	_, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "other", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
	})
	if !errors.Is(err, engine.ErrUnknownReserve) {
		t.Fatalf("expected ErrUnknownReserve, got %v", err)
	}
}

func TestBuyRejectsZeroAmount(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000")}
	h := newHarness(t, pool, 100)
	h.issue(t, 1, epochTS+1000, 0)
	_, err := h.eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: decimal.Zero,
	})
	if !errors.Is(err, engine.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

// haltedSink rejects every profit hand-off.
type haltedSink struct{ err error }

func (s haltedSink) AcceptProfit(context.Context, uint64, decimal.Decimal) error { return s.err }

func TestBuyFailsWhenProfitSinkRejects(t *testing.T) {
	pool := &stubVenue{name: "pool-a", x: dec("1000"), y: dec("1000"), required: dec("300")}
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	book := custody.NewBook(true)
	book.Credit("RA", engine.AccountEngine, dec("100000"))
	book.Credit("DS", engine.AccountEngine, dec("100000"))
	book.Credit("CT", engine.AccountEngine, dec("100000"))
	book.Credit("RA", engine.AccountPSM, dec("1000000"))
	book.Credit("DS", engine.AccountPSM, dec("1000000"))
	book.Credit("CT", engine.AccountPSM, dec("1000000"))
	book.Credit("RA", trader, dec("10000"))
	book.Credit("DS", trader, dec("10000"))
	book.Credit("DS", funder, dec("10000"))

	sinkErr := errors.New("ledger unavailable")
	eng := engine.New(engine.Config{}, pool, book, haltedSink{sinkErr}, custody.NewProfitLedger(), fixedClock(100), log, nopMetrics{})
	now := epochTS
	eng.SetNowFunc(func() int64 { return now })
	if err := eng.CreateReserve("res", dec("0.0001"), dec("15"), false); err != nil {
		t.Fatalf("create reserve: %v", err)
	}
	if err := eng.IssueEpoch("res", 1, "DS", "CT", "RA", epochTS+1000, 0); err != nil {
		t.Fatalf("issue epoch 1: %v", err)
	}
	now = epochTS + 500
	// the first epoch has no internal fills, so no profit reaches the sink
	first, err := eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 1, Initiator: trader, AmountIn: dec("100"),
	})
	if err != nil {
		t.Fatalf("seed buy: %v", err)
	}
	if err := eng.IssueEpoch("res", 2, "DS", "CT", "RA", epochTS+2000, 50); err != nil {
		t.Fatalf("issue epoch 2: %v", err)
	}
	if err := eng.AddReserve(context.Background(), "res", 2, reserve.PoolVault, funder, dec("600")); err != nil {
		t.Fatalf("add vault: %v", err)
	}

	raBefore := book.Balance("RA", trader)
	dsBefore := book.Balance("DS", trader)
	_, err = eng.Buy(context.Background(), engine.TradeRequest{
		ReserveID: "res", Epoch: 2, Initiator: trader, AmountIn: dec("100"),
	})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink rejection, got %v", err)
	}
	if got := book.Balance("RA", trader); !got.Equal(raBefore) {
		t.Fatalf("trader RA = %s after unwind, want %s", got, raBefore)
	}
	if got := book.Balance("DS", trader); !got.Equal(dsBefore) {
		t.Fatalf("trader DS = %s after unwind, want %s", got, dsBefore)
	}
	if !book.Balance("RA", engine.AccountVaultOwner).IsZero() {
		t.Fatalf("vault owner kept profit: %s", book.Balance("RA", engine.AccountVaultOwner))
	}
	// the failed trade never commits: the snapshot rate still stands
	hiya, err := eng.CurrentHIYA("res")
	if err != nil || !hiya.Equal(first.Hiya) {
		t.Fatalf("hiya = %s (%v), want %s", hiya, err, first.Hiya)
	}
}
