package usecase

import (
	"context"
	"fmt"
	"time"

	"RollSwap/internal/domain/models"
	drepo "RollSwap/internal/domain/repository"
)

// TradeRecorder routes settled trades to the configured backend. The engine
// commit path hands trades off after the ledger write, so a backend failure
// never unwinds a settlement.
type TradeRecorder struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewTradeRecorder creates a new TradeRecorder instance.
func NewTradeRecorder(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *TradeRecorder {
	return &TradeRecorder{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// Record routes a single settled trade to the configured backend.
func (r *TradeRecorder) Record(ctx context.Context, t *models.SettledTrade) error {
	if t == nil {
		return fmt.Errorf("trade is nil")
	}

	start := time.Now()
	var err error

	switch r.backend {
	case "kafka":
		err = r.pub.Publish(ctx, t)
	case "clickhouse":
		err = r.store.Store(ctx, t)
	default:
		err = fmt.Errorf("unknown backend: %s", r.backend)
	}

	if err != nil {
		r.metrics.RecordError("record")
		return fmt.Errorf("record trade: %w", err)
	}

	r.metrics.RecordMessageSent(r.backend, t.ReserveID)
	r.metrics.RecordLatency("record", time.Since(start).Seconds())

	return nil
}

// RecordBatch routes multiple settled trades in a batch.
func (r *TradeRecorder) RecordBatch(ctx context.Context, trades []*models.SettledTrade) error {
	if len(trades) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch r.backend {
	case "kafka":
		err = r.pub.PublishBatch(ctx, trades)
	case "clickhouse":
		err = r.store.StoreBatch(ctx, trades)
	default:
		err = fmt.Errorf("unknown backend: %s", r.backend)
	}

	if err != nil {
		r.metrics.RecordError("record_batch")
		return fmt.Errorf("record batch: %w", err)
	}

	for _, t := range trades {
		r.metrics.RecordMessageSent(r.backend, t.ReserveID)
	}
	r.metrics.RecordLatency("record_batch", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (r *TradeRecorder) Close() {
	if r.pub != nil {
		_ = r.pub.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}
