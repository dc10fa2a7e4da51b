package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"RollSwap/internal/domain/models"
)

type fakePublisher struct {
	published []*models.SettledTrade
	batches   int
	err       error
	closed    bool
}

func (f *fakePublisher) Publish(ctx context.Context, t *models.SettledTrade) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, t)
	return nil
}

func (f *fakePublisher) PublishBatch(ctx context.Context, trades []*models.SettledTrade) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, trades...)
	f.batches++
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

type fakeStorage struct {
	stored []*models.SettledTrade
	err    error
	closed bool
}

func (f *fakeStorage) Init(ctx context.Context) error { return nil }

func (f *fakeStorage) Store(ctx context.Context, t *models.SettledTrade) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, t)
	return nil
}

func (f *fakeStorage) StoreBatch(ctx context.Context, trades []*models.SettledTrade) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, trades...)
	return nil
}

func (f *fakeStorage) Query(ctx context.Context, reserveID string, from, to time.Time, limit int) ([]*models.SettledTrade, error) {
	return nil, nil
}

func (f *fakeStorage) Health(ctx context.Context) error { return nil }

func (f *fakeStorage) Close() error {
	f.closed = true
	return nil
}

type countingMetrics struct {
	sent   int
	errors int
}

func (m *countingMetrics) RecordMessageSent(backend, reserveID string)      { m.sent++ }
func (m *countingMetrics) RecordError(kind string)                          { m.errors++ }
func (m *countingMetrics) RecordPoolReserve(venue, asset string, q float64) {}
func (m *countingMetrics) RecordBlockHeight(venue string, height uint64)    {}
func (m *countingMetrics) RecordLatency(op string, seconds float64)         {}

func settled(id string) *models.SettledTrade {
	return &models.SettledTrade{
		TradeID:   id,
		ReserveID: "res",
		Epoch:     1,
		Side:      "buy",
		AmountIn:  decimal.NewFromInt(100),
		AmountOut: decimal.NewFromInt(105),
		SettledAt: 1_700_000_000,
	}
}

func TestRecordRoutesToKafka(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStorage{}
	m := &countingMetrics{}
	r := NewTradeRecorder(pub, store, m, "kafka")

	if err := r.Record(context.Background(), settled("t1")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(pub.published) != 1 || len(store.stored) != 0 {
		t.Fatalf("published %d, stored %d", len(pub.published), len(store.stored))
	}
	if m.sent != 1 {
		t.Fatalf("sent metric = %d", m.sent)
	}
}

func TestRecordRoutesToClickHouse(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStorage{}
	r := NewTradeRecorder(pub, store, &countingMetrics{}, "clickhouse")

	if err := r.Record(context.Background(), settled("t1")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(store.stored) != 1 || len(pub.published) != 0 {
		t.Fatalf("published %d, stored %d", len(pub.published), len(store.stored))
	}
}

func TestRecordUnknownBackend(t *testing.T) {
	m := &countingMetrics{}
	r := NewTradeRecorder(&fakePublisher{}, &fakeStorage{}, m, "postgres")
	if err := r.Record(context.Background(), settled("t1")); err == nil {
		t.Fatalf("unknown backend accepted")
	}
	if m.errors != 1 {
		t.Fatalf("error metric = %d", m.errors)
	}
}

func TestRecordNilTrade(t *testing.T) {
	r := NewTradeRecorder(&fakePublisher{}, &fakeStorage{}, &countingMetrics{}, "kafka")
	if err := r.Record(context.Background(), nil); err == nil {
		t.Fatalf("nil trade accepted")
	}
}

func TestRecordBackendFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	m := &countingMetrics{}
	r := NewTradeRecorder(pub, &fakeStorage{}, m, "kafka")
	if err := r.Record(context.Background(), settled("t1")); err == nil {
		t.Fatalf("backend failure swallowed")
	}
	if m.errors != 1 || m.sent != 0 {
		t.Fatalf("errors %d sent %d", m.errors, m.sent)
	}
}

func TestRecordBatch(t *testing.T) {
	pub := &fakePublisher{}
	m := &countingMetrics{}
	r := NewTradeRecorder(pub, &fakeStorage{}, m, "kafka")

	trades := []*models.SettledTrade{settled("t1"), settled("t2"), settled("t3")}
	if err := r.RecordBatch(context.Background(), trades); err != nil {
		t.Fatalf("record batch: %v", err)
	}
	if pub.batches != 1 || len(pub.published) != 3 {
		t.Fatalf("batches %d published %d", pub.batches, len(pub.published))
	}
	if m.sent != 3 {
		t.Fatalf("sent metric = %d", m.sent)
	}
}

func TestRecordBatchEmpty(t *testing.T) {
	pub := &fakePublisher{}
	r := NewTradeRecorder(pub, &fakeStorage{}, &countingMetrics{}, "kafka")
	if err := r.RecordBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if pub.batches != 0 {
		t.Fatalf("empty batch reached publisher")
	}
}

func TestCloseClosesBackends(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStorage{}
	r := NewTradeRecorder(pub, store, &countingMetrics{}, "kafka")
	r.Close()
	if !pub.closed || !store.closed {
		t.Fatalf("close: publisher %v storage %v", pub.closed, store.closed)
	}
}
