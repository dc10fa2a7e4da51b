package repository

import (
	"context"
	"time"

	"RollSwap/internal/domain/models"
)

type VenueStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.PoolSync, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Publisher interface {
	Publish(ctx context.Context, t *models.SettledTrade) error
	PublishBatch(ctx context.Context, trades []*models.SettledTrade) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, t *models.SettledTrade) error
	StoreBatch(ctx context.Context, trades []*models.SettledTrade) error
	Query(ctx context.Context, reserveID string, from, to time.Time, limit int) ([]*models.SettledTrade, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, reserveID string)
	RecordError(kind string)
	RecordPoolReserve(venue, asset string, qty float64)
	RecordBlockHeight(venue string, height uint64)
	RecordLatency(op string, seconds float64)
}
