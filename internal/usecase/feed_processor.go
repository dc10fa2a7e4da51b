package usecase

import (
	"context"
	"fmt"

	"RollSwap/internal/domain/models"
	drepo "RollSwap/internal/domain/repository"
	"RollSwap/internal/service/venuefeed"
)

// FeedProcessor applies venue sync frames to the mirror and exports the pool
// balances and chain head as gauges.
type FeedProcessor struct {
	mirror  *venuefeed.Mirror
	metrics drepo.Metrics
}

func NewFeedProcessor(mirror *venuefeed.Mirror, metrics drepo.Metrics) *FeedProcessor {
	return &FeedProcessor{mirror: mirror, metrics: metrics}
}

func (p *FeedProcessor) Process(ctx context.Context, ps *models.PoolSync) error {
	if ps == nil {
		return fmt.Errorf("sync is nil")
	}
	p.mirror.Apply(ps)
	p.metrics.RecordPoolReserve(ps.Venue, ps.AssetA, ps.ReserveA.InexactFloat64())
	p.metrics.RecordPoolReserve(ps.Venue, ps.AssetB, ps.ReserveB.InexactFloat64())
	p.metrics.RecordBlockHeight(ps.Venue, ps.Block)
	return nil
}
