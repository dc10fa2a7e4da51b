package usecase

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"RollSwap/internal/domain/models"
	drepo "RollSwap/internal/domain/repository"
	"RollSwap/internal/engine"
	"RollSwap/internal/engine/reserve"
	pkgqueue "RollSwap/pkg/queue"
	"RollSwap/pkg/logger"
)

// recordTradeMsgType is the queue message type for async trade recording.
const recordTradeMsgType = "settled_trade"

// TradingService fronts the engine for the HTTP layer: it parses request
// amounts, executes trades and hands the committed result to the recording
// path. Recording is post-commit, so the response never waits on the backend.
type TradingService struct {
	eng      *engine.Engine
	recorder *TradeRecorder
	queue    pkgqueue.QueueService
	storage  drepo.Storage
	log      *logger.Logger
}

func NewTradingService(eng *engine.Engine, recorder *TradeRecorder, q pkgqueue.QueueService, storage drepo.Storage, log *logger.Logger) *TradingService {
	return &TradingService{eng: eng, recorder: recorder, queue: q, storage: storage, log: log}
}

func (s *TradingService) Buy(ctx context.Context, req *models.TradeRequest) (*engine.TradeResult, error) {
	er, err := s.engineRequest(req)
	if err != nil {
		return nil, err
	}
	res, err := s.eng.Buy(ctx, er)
	if err != nil {
		return nil, err
	}
	s.record(ctx, res, req.Initiator)
	return res, nil
}

func (s *TradingService) Sell(ctx context.Context, req *models.TradeRequest) (*engine.TradeResult, error) {
	er, err := s.engineRequest(req)
	if err != nil {
		return nil, err
	}
	res, err := s.eng.Sell(ctx, er)
	if err != nil {
		return nil, err
	}
	s.record(ctx, res, req.Initiator)
	return res, nil
}

func (s *TradingService) engineRequest(req *models.TradeRequest) (engine.TradeRequest, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return engine.TradeRequest{}, fmt.Errorf("parse amount: %w", err)
	}
	minOut := decimal.Zero
	if req.MinOut != "" {
		if minOut, err = decimal.NewFromString(req.MinOut); err != nil {
			return engine.TradeRequest{}, fmt.Errorf("parse min_out: %w", err)
		}
	}
	var permit []byte
	if req.Permit != "" {
		if permit, err = hex.DecodeString(req.Permit); err != nil {
			return engine.TradeRequest{}, fmt.Errorf("parse permit: %w", err)
		}
	}
	return engine.TradeRequest{
		TradeID:         uuid.New(),
		ReserveID:       req.ReserveID,
		Epoch:           req.Epoch,
		Initiator:       req.Initiator,
		AmountIn:        amount,
		MinOut:          minOut,
		PermitSignature: permit,
	}, nil
}

// record pushes the settled trade to the recording path. The queue takes
// precedence when configured; a direct recorder is the fallback. Failures are
// logged only: the trade is already committed.
func (s *TradingService) record(ctx context.Context, res *engine.TradeResult, initiator string) {
	t := settledTrade(res, initiator)
	if s.queue != nil {
		if err := s.queue.PublishMessage(ctx, recordTradeMsgType, t); err != nil {
			s.log.Error("enqueue settled trade", logger.String("trade_id", t.TradeID), logger.Error(err))
		}
		return
	}
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, t); err != nil {
			s.log.Error("record settled trade", logger.String("trade_id", t.TradeID), logger.Error(err))
		}
	}
}

func settledTrade(res *engine.TradeResult, initiator string) *models.SettledTrade {
	return &models.SettledTrade{
		TradeID:        res.TradeID.String(),
		ReserveID:      res.ReserveID,
		Epoch:          res.Epoch,
		Side:           res.Side.String(),
		Initiator:      initiator,
		AmountIn:       res.AmountIn,
		AmountOut:      res.AmountOut,
		RefundedExcess: res.RefundedExcess,
		RealizedRate:   res.RealizedRate,
		RolloverFill:   res.Fills.Rollover,
		ReserveFill:    res.Fills.Reserve,
		CurveFill:      res.Fills.Curve,
		Hiya:           res.Hiya,
		SettledAt:      time.Now().Unix(),
	}
}

func (s *TradingService) PreviewBuy(reserveID string, epoch uint64, amount string) (*engine.Preview, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return s.eng.PreviewBuy(reserveID, epoch, d)
}

func (s *TradingService) PreviewSell(reserveID string, epoch uint64, amount string) (*engine.Preview, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	return s.eng.PreviewSell(reserveID, epoch, d)
}

func (s *TradingService) Hiya(reserveID string) (decimal.Decimal, error) {
	return s.eng.CurrentHIYA(reserveID)
}

func (s *TradingService) RolloverWindowEnd(reserveID string) (uint64, error) {
	return s.eng.RolloverWindowEnd(reserveID)
}

func (s *TradingService) CreateReserve(req *models.CreateReserveRequest) error {
	decay, err := decimal.NewFromString(req.DecayRateDays)
	if err != nil {
		return fmt.Errorf("parse decay_rate_days: %w", err)
	}
	cap, err := decimal.NewFromString(req.SellPressureCap)
	if err != nil {
		return fmt.Errorf("parse sell_pressure_cap: %w", err)
	}
	return s.eng.CreateReserve(req.ReserveID, decay, cap, req.GradualSaleDisabled)
}

func (s *TradingService) IssueEpoch(req *models.IssueEpochRequest) error {
	return s.eng.IssueEpoch(req.ReserveID, req.Epoch, req.DS, req.CT, req.RA, req.MaturesAt, req.RolloverWindowBlocks)
}

func (s *TradingService) AddReserve(ctx context.Context, reserveID string, epoch uint64, pool reserve.Pool, from, amount string) error {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}
	return s.eng.AddReserve(ctx, reserveID, epoch, pool, from, d)
}

func (s *TradingService) UpdateParams(req *models.UpdateParamsRequest) error {
	var decay, cap *decimal.Decimal
	if req.DecayRateDays != nil {
		d, err := decimal.NewFromString(*req.DecayRateDays)
		if err != nil {
			return fmt.Errorf("parse decay_rate_days: %w", err)
		}
		decay = &d
	}
	if req.SellPressureCap != nil {
		d, err := decimal.NewFromString(*req.SellPressureCap)
		if err != nil {
			return fmt.Errorf("parse sell_pressure_cap: %w", err)
		}
		cap = &d
	}
	return s.eng.SetParams(req.ReserveID, decay, cap, req.GradualSaleDisabled)
}

func (s *TradingService) Trades(ctx context.Context, reserveID string, from, to time.Time, limit int) ([]*models.SettledTrade, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("trade storage not configured")
	}
	return s.storage.Query(ctx, reserveID, from, to, limit)
}
