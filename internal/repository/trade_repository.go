package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"RollSwap/internal/domain/models"
	"RollSwap/internal/domain/repository"
	pkgkafka "RollSwap/pkg/kafka"
)

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseStorage creates ClickHouse storage.
func NewClickHouseStorage(db *sql.DB, table string) repository.Storage {
	return &ClickHouseStorage{db: db, table: table}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseStorage) Store(ctx context.Context, t *models.SettledTrade) error {
	q := fmt.Sprintf("INSERT INTO %s (settled_at, trade_id, reserve_id, epoch, side, initiator, amount_in, amount_out, refunded_excess, realized_rate, rollover_fill, reserve_fill, curve_fill, hiya) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q, tradeArgs(t)...)
	return err
}

func (s *ClickHouseStorage) StoreBatch(ctx context.Context, trades []*models.SettledTrade) error {
	if len(trades) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	// Chunk size tuned to 2000 rows per batch.
	const chunkSize = 2000
	for start := 0; start < len(trades); start += chunkSize {
		end := start + chunkSize
		if end > len(trades) {
			end = len(trades)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*14)
		for _, t := range trades[start:end] {
			if t == nil || t.TradeID == "" || t.ReserveID == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, tradeArgs(t)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (settled_at, trade_id, reserve_id, epoch, side, initiator, amount_in, amount_out, refunded_excess, realized_rate, rollover_fill, reserve_fill, curve_fill, hiya) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func tradeArgs(t *models.SettledTrade) []interface{} {
	return []interface{}{
		time.Unix(t.SettledAt, 0),
		t.TradeID,
		t.ReserveID,
		t.Epoch,
		t.Side,
		t.Initiator,
		t.AmountIn.String(),
		t.AmountOut.String(),
		t.RefundedExcess.String(),
		t.RealizedRate.String(),
		t.RolloverFill.String(),
		t.ReserveFill.String(),
		t.CurveFill.String(),
		t.Hiya.String(),
	}
}

func (s *ClickHouseStorage) Query(ctx context.Context, reserveID string, from, to time.Time, limit int) ([]*models.SettledTrade, error) {
	q := fmt.Sprintf("SELECT settled_at, trade_id, reserve_id, epoch, side, initiator, amount_in, amount_out, refunded_excess, realized_rate, rollover_fill, reserve_fill, curve_fill, hiya FROM %s WHERE reserve_id = ? AND settled_at >= ? AND settled_at <= ? ORDER BY settled_at DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, reserveID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.SettledTrade
	for rows.Next() {
		var (
			t       models.SettledTrade
			ts      time.Time
			amounts [8]string
		)
		if err := rows.Scan(&ts, &t.TradeID, &t.ReserveID, &t.Epoch, &t.Side, &t.Initiator,
			&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5], &amounts[6], &amounts[7]); err != nil {
			return nil, err
		}
		t.SettledAt = ts.Unix()
		dsts := []*decimal.Decimal{&t.AmountIn, &t.AmountOut, &t.RefundedExcess, &t.RealizedRate, &t.RolloverFill, &t.ReserveFill, &t.CurveFill, &t.Hiya}
		for i, dst := range dsts {
			d, err := decimal.NewFromString(amounts[i])
			if err != nil {
				return nil, fmt.Errorf("decode amount column %d: %w", i, err)
			}
			*dst = d
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // Managed by pkg
}

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, t *models.SettledTrade) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.ReserveID), tradePayload(t))
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, trades []*models.SettledTrade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(trades))
	for i, t := range trades {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(t.ReserveID),
			Value: tradePayload(t),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func tradePayload(t *models.SettledTrade) map[string]interface{} {
	return map[string]interface{}{
		"trade_id":        t.TradeID,
		"reserve_id":      t.ReserveID,
		"epoch":           t.Epoch,
		"side":            t.Side,
		"initiator":       t.Initiator,
		"amount_in":       t.AmountIn.String(),
		"amount_out":      t.AmountOut.String(),
		"refunded_excess": t.RefundedExcess.String(),
		"realized_rate":   t.RealizedRate.String(),
		"rollover_fill":   t.RolloverFill.String(),
		"reserve_fill":    t.ReserveFill.String(),
		"curve_fill":      t.CurveFill.String(),
		"hiya":            t.Hiya.String(),
		"settled_at":      t.SettledAt,
	}
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
