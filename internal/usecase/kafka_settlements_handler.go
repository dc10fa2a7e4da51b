package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"RollSwap/internal/domain/models"
	domrepo "RollSwap/internal/domain/repository"
	pkgkafka "RollSwap/pkg/kafka"
)

// KafkaSettlementsHandler consumes settled-trade messages and writes them to
// storage. Runs when the engine publishes to Kafka and ClickHouse ingestion
// happens out of band.
type KafkaSettlementsHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaSettlementsHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaSettlementsHandler {
	return &KafkaSettlementsHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaSettlementsHandler) Topic() string { return h.topic }

// incoming message schema matches the KafkaPublisher payload
func (h *KafkaSettlementsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		TradeID        string `json:"trade_id"`
		ReserveID      string `json:"reserve_id"`
		Epoch          uint64 `json:"epoch"`
		Side           string `json:"side"`
		Initiator      string `json:"initiator"`
		AmountIn       string `json:"amount_in"`
		AmountOut      string `json:"amount_out"`
		RefundedExcess string `json:"refunded_excess"`
		RealizedRate   string `json:"realized_rate"`
		RolloverFill   string `json:"rollover_fill"`
		ReserveFill    string `json:"reserve_fill"`
		CurveFill      string `json:"curve_fill"`
		Hiya           string `json:"hiya"`
		SettledAt      int64  `json:"settled_at"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	// E2E latency from settlement time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.SettledAt, 0)).Seconds())

	t := &models.SettledTrade{
		TradeID:   m.TradeID,
		ReserveID: m.ReserveID,
		Epoch:     m.Epoch,
		Side:      m.Side,
		Initiator: m.Initiator,
		SettledAt: m.SettledAt,
	}
	fields := map[*decimal.Decimal]string{
		&t.AmountIn:       m.AmountIn,
		&t.AmountOut:      m.AmountOut,
		&t.RefundedExcess: m.RefundedExcess,
		&t.RealizedRate:   m.RealizedRate,
		&t.RolloverFill:   m.RolloverFill,
		&t.ReserveFill:    m.ReserveFill,
		&t.CurveFill:      m.CurveFill,
		&t.Hiya:           m.Hiya,
	}
	for dst, raw := range fields {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			h.metrics.RecordError("consumer_decode")
			return err
		}
		*dst = d
	}

	start := time.Now()
	err := h.storage.Store(ctx, t)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", t.ReserveID)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaSettlementsHandler)(nil)
