package usecase

import (
	"RollSwap/internal/domain/models"
	drepo "RollSwap/internal/domain/repository"
	mid "RollSwap/internal/middleware"
	"context"
)

// FeedCollector collects pool sync frames from the venue stream and applies
// them to the mirror.
type FeedCollector struct {
	stream  drepo.VenueStream
	proc    *FeedProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewFeedCollector creates a new FeedCollector instance.
func NewFeedCollector(stream drepo.VenueStream, proc *FeedProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *FeedCollector {
	return &FeedCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the venue stream is connected.
func (c *FeedCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *FeedCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	syncCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, syncCh, errCh)
	return nil
}

func (c *FeedCollector) consume(ctx context.Context, syncCh <-chan *models.PoolSync, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case ps := <-syncCh:
			if ps == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, ps)
			} else {
				_ = c.proc.Process(ctx, ps)
			}
		}
	}
}

func (c *FeedCollector) Stop() error { return c.stream.Close() }

// Shutdown stops pipeline and closes stream.
func (c *FeedCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
