package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	models "RollSwap/internal/domain/models"
	"RollSwap/internal/engine"
	"RollSwap/internal/engine/curve"
	"RollSwap/internal/engine/fixedpoint"
	"RollSwap/internal/engine/settlement"
	"RollSwap/internal/engine/venue"
	icache "RollSwap/internal/service/cache"
	"RollSwap/internal/service/ratelimit"
	"RollSwap/internal/usecase"
	pkgcache "RollSwap/pkg/cache"
	xhttp "RollSwap/pkg/http"
	xlogger "RollSwap/pkg/logger"
	"RollSwap/pkg/util"

	"github.com/labstack/echo/v4"
)

// TradesEchoHandler implements Echo-based HTTP handlers following Clean Architecture.
type TradesEchoHandler struct {
	logger     *xlogger.Logger
	trading    *usecase.TradingService
	cache      icache.BytesCache
	queryCache pkgcache.Service
	rl         *ratelimit.Limiter
}

func NewTradesEchoHandler(logger *xlogger.Logger, trading *usecase.TradingService) *TradesEchoHandler {
	return &TradesEchoHandler{logger: logger, trading: trading, rl: ratelimit.New()}
}

// SetCache injects a bytes cache for preview responses.
func (h *TradesEchoHandler) SetCache(c icache.BytesCache) { h.cache = c }

// SetQueryCache injects a cache for trade history queries.
func (h *TradesEchoHandler) SetQueryCache(c pkgcache.Service) { h.queryCache = c }

func (h *TradesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/buy", h.Buy)
	g.POST("/sell", h.Sell)
	g.GET("/preview/buy", h.PreviewBuy)
	g.GET("/preview/sell", h.PreviewSell)
	g.GET("/hiya", h.Hiya)
	g.GET("/rollover-window", h.RolloverWindow)
	g.GET("/trades", h.Trades)
	g.POST("/admin/reserve", h.CreateReserve)
	g.POST("/admin/epoch", h.IssueEpoch)
	g.POST("/admin/params", h.UpdateParams)
}

// tradeResponse is the wire form of a committed trade.
type tradeResponse struct {
	TradeID        string       `json:"trade_id"`
	Side           string       `json:"side"`
	ReserveID      string       `json:"reserve_id"`
	Epoch          uint64       `json:"epoch"`
	AmountIn       string       `json:"amount_in"`
	AmountOut      string       `json:"amount_out"`
	RefundedExcess string       `json:"refunded_excess"`
	RealizedRate   string       `json:"realized_rate"`
	Fills          engine.Fills `json:"fills"`
	Hiya           string       `json:"hiya"`
}

func toTradeResponse(res *engine.TradeResult) *tradeResponse {
	return &tradeResponse{
		TradeID:        res.TradeID.String(),
		Side:           res.Side.String(),
		ReserveID:      res.ReserveID,
		Epoch:          res.Epoch,
		AmountIn:       res.AmountIn.String(),
		AmountOut:      res.AmountOut.String(),
		RefundedExcess: res.RefundedExcess.String(),
		RealizedRate:   res.RealizedRate.String(),
		Fills:          res.Fills,
		Hiya:           res.Hiya.String(),
	}
}

func (h *TradesEchoHandler) Buy(c echo.Context) error {
	req := &models.TradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.trading.Buy(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("buy usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, tradeError(err))
	}
	h.invalidateTrades(c, req.ReserveID)
	return xhttp.SuccessResponse(c, toTradeResponse(res))
}

func (h *TradesEchoHandler) Sell(c echo.Context) error {
	req := &models.TradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.trading.Sell(c.Request().Context(), req)
	if err != nil {
		h.logger.Error("sell usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, tradeError(err))
	}
	h.invalidateTrades(c, req.ReserveID)
	return xhttp.SuccessResponse(c, toTradeResponse(res))
}

// invalidateTrades drops cached history pages for a reserve after a commit.
func (h *TradesEchoHandler) invalidateTrades(c echo.Context, reserveID string) {
	if h.queryCache == nil {
		return
	}
	pattern := pkgcache.BuildPattern(pkgcache.GenerateKey("trades", reserveID))
	if err := h.queryCache.DeleteByPattern(c.Request().Context(), pattern); err != nil {
		h.logger.Warn("trades cache_invalidate_error", xlogger.Error(err))
	}
}

func (h *TradesEchoHandler) PreviewBuy(c echo.Context) error {
	return h.preview(c, models.SideBuy, h.trading.PreviewBuy)
}

func (h *TradesEchoHandler) PreviewSell(c echo.Context) error {
	return h.preview(c, models.SideSell, h.trading.PreviewSell)
}

func (h *TradesEchoHandler) preview(c echo.Context, side string, fn func(string, uint64, string) (*engine.Preview, error)) error {
	req := &models.PreviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":preview", 10, 5) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}
	cacheKey := pkgcache.GenerateKeyWithParams("preview", side, req.ReserveID, req.Epoch, req.Amount)
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(cacheKey); err != nil {
			h.logger.Warn("preview cache_get_error", xlogger.Error(err))
		} else if ok {
			var p engine.Preview
			if err := json.Unmarshal(b, &p); err == nil {
				return xhttp.SuccessResponse(c, &p)
			}
		}
	}
	res, err := fn(req.ReserveID, req.Epoch, req.Amount)
	if err != nil {
		h.logger.Error("preview usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, tradeError(err))
	}
	if h.cache != nil {
		if b, err := json.Marshal(res); err == nil {
			if err := h.cache.SetBytes(cacheKey, b, 3*time.Second); err != nil {
				h.logger.Warn("preview cache_set_error", xlogger.Error(err))
			}
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *TradesEchoHandler) Hiya(c echo.Context) error {
	req := &models.HiyaRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	hiya, err := h.trading.Hiya(req.ReserveID)
	if err != nil {
		return xhttp.AppErrorResponse(c, tradeError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{
		"reserve_id": req.ReserveID,
		"hiya":       hiya.String(),
	})
}

func (h *TradesEchoHandler) RolloverWindow(c echo.Context) error {
	req := &models.RolloverWindowRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	end, err := h.trading.RolloverWindowEnd(req.ReserveID)
	if err != nil {
		return xhttp.AppErrorResponse(c, tradeError(err))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"reserve_id": req.ReserveID,
		"end_block":  end,
	})
}

func (h *TradesEchoHandler) Trades(c echo.Context) error {
	req := &models.TradesQueryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	now := time.Now()
	from := util.ParseTimeDefault(req.From, now.Add(-24*time.Hour))
	to := util.ParseTimeDefault(req.To, now)
	// whole-second alignment keeps the cache key stable across nano inputs
	from, to = util.AlignFromTo(from, to, "1s")

	ctx := c.Request().Context()
	key := pkgcache.GenerateKeyWithParams("trades", req.ReserveID, from.Unix(), to.Unix(), req.Limit)
	if h.queryCache != nil {
		var cached []*models.SettledTrade
		if err := h.queryCache.Get(ctx, key, &cached); err == nil {
			return xhttp.ListResponse(c, cached, int64(len(cached)))
		}
	}

	rows, err := h.trading.Trades(ctx, req.ReserveID, from, to, req.Limit)
	if err != nil {
		h.logger.Error("trades query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if h.queryCache != nil {
		_ = h.queryCache.Set(ctx, key, rows, 10*time.Second)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *TradesEchoHandler) CreateReserve(c echo.Context) error {
	req := &models.CreateReserveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.trading.CreateReserve(req); err != nil {
		return xhttp.AppErrorResponse(c, tradeError(err))
	}
	return xhttp.CreatedResponse(c, map[string]string{"reserve_id": req.ReserveID})
}

func (h *TradesEchoHandler) IssueEpoch(c echo.Context) error {
	req := &models.IssueEpochRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.queryCache != nil {
		// single-flight across replicas: two admins racing the same epoch
		// would double-seed reserves
		lockKey := pkgcache.GenerateKey("lock:epoch", req.ReserveID)
		ctx := c.Request().Context()
		locked, err := h.queryCache.TryLock(ctx, lockKey, 10*time.Second)
		if err == nil {
			if !locked {
				return xhttp.AppErrorResponse(c, xhttp.ConflictError("epoch issuance already in progress").WithCode("ERR_LOCKED"))
			}
			defer func() { _ = h.queryCache.Unlock(ctx, lockKey) }()
		}
	}
	if err := h.trading.IssueEpoch(req); err != nil {
		return xhttp.AppErrorResponse(c, tradeError(err))
	}
	return xhttp.CreatedResponse(c, map[string]interface{}{
		"reserve_id": req.ReserveID,
		"epoch":      req.Epoch,
	})
}

func (h *TradesEchoHandler) UpdateParams(c echo.Context) error {
	req := &models.UpdateParamsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.trading.UpdateParams(req); err != nil {
		return xhttp.AppErrorResponse(c, tradeError(err))
	}
	return xhttp.NoContentResponse(c)
}

// tradeError maps engine failures onto transport errors. Pricing and policy
// failures are unprocessable, liquidity and slippage are conflicts, custody
// transfer failures are upstream errors. Anything unmapped stays internal.
func tradeError(err error) error {
	switch {
	case errors.Is(err, engine.ErrUnknownReserve):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, engine.ErrReserveExists):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidSignature),
		errors.Is(err, engine.ErrPermitNotSupported):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, curve.ErrNoBracket),
		errors.Is(err, curve.ErrNoConvergence),
		errors.Is(err, curve.ErrInvalidDomain),
		errors.Is(err, fixedpoint.ErrInvalidDecay),
		errors.Is(err, fixedpoint.ErrInvalidExponent):
		return xhttp.UnprocessableError(err.Error()).WithCode("ERR_UNPRICEABLE").WithError(err)
	case errors.Is(err, settlement.ErrInsufficientLiquidity),
		errors.Is(err, settlement.ErrInsufficientOutput),
		errors.Is(err, venue.ErrDrainedPool),
		errors.Is(err, venue.ErrRepaymentShort):
		return xhttp.ConflictError(err.Error()).WithCode("ERR_LIQUIDITY").WithError(err)
	case errors.Is(err, engine.ErrTransferFailed):
		return xhttp.BadGatewayError(err.Error()).WithError(err)
	default:
		return err
	}
}
