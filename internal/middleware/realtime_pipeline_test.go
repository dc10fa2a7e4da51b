package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"RollSwap/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, string)          {}
func (nopMetrics) RecordError(string)                        {}
func (nopMetrics) RecordPoolReserve(string, string, float64) {}
func (nopMetrics) RecordBlockHeight(string, uint64)          {}
func (nopMetrics) RecordLatency(string, float64)             {}

type captureProc struct {
	mu     sync.Mutex
	frames []*models.PoolSync
	err    error
}

func (c *captureProc) Process(ctx context.Context, ps *models.PoolSync) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, ps)
	return nil
}

func (c *captureProc) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *captureProc) first() *models.PoolSync {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[0]
}

func frame(venue string, block uint64) *models.PoolSync {
	return &models.PoolSync{
		Venue:    venue,
		AssetA:   "RA",
		ReserveA: decimal.NewFromInt(1000),
		AssetB:   "CT",
		ReserveB: decimal.NewFromInt(1000),
		Block:    block,
	}
}

func TestPipelineForwardsValidFrame(t *testing.T) {
	proc := &captureProc{}
	p := NewRealtimePipeline(proc, nopMetrics{})
	if err := p.Process(context.Background(), frame("pool-a", 1)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("forwarded %d frames, want 1", proc.count())
	}
}

func TestPipelineRejectsInvalidFrames(t *testing.T) {
	proc := &captureProc{}
	p := NewRealtimePipeline(proc, nopMetrics{})
	cases := []*models.PoolSync{
		nil,
		frame("", 1),
		frame("pool-a", 0),
		{Venue: "pool-a", Block: 1, ReserveA: decimal.NewFromInt(-1), ReserveB: decimal.NewFromInt(1)},
	}
	for i, ps := range cases {
		if err := p.Process(context.Background(), ps); err == nil {
			t.Fatalf("case %d accepted", i)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("invalid frames reached downstream")
	}
}

func TestPipelineThrottlesPerVenue(t *testing.T) {
	proc := &captureProc{}
	p := NewRealtimePipeline(proc, nopMetrics{}, WithMaxRPS(1))
	for i := uint64(1); i <= 5; i++ {
		if err := p.Process(context.Background(), frame("pool-a", i)); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}
	// the burst collapses to the first frame; throttled ones drop silently
	if proc.count() != 1 {
		t.Fatalf("forwarded %d frames, want 1", proc.count())
	}
	// a second venue has its own budget
	if err := p.Process(context.Background(), frame("pool-b", 1)); err != nil {
		t.Fatalf("other venue: %v", err)
	}
	if proc.count() != 2 {
		t.Fatalf("forwarded %d frames, want 2", proc.count())
	}
}

func TestPipelineTransformAppliesBeforeForward(t *testing.T) {
	proc := &captureProc{}
	p := NewRealtimePipeline(proc, nopMetrics{}, WithTransform(func(ps *models.PoolSync) *models.PoolSync {
		ps.Venue = "normalized:" + ps.Venue
		return ps
	}))
	if err := p.Process(context.Background(), frame("pool-a", 1)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.first().Venue != "normalized:pool-a" {
		t.Fatalf("venue = %s", proc.first().Venue)
	}
}

func TestPipelineBuffersOnDownstreamError(t *testing.T) {
	proc := &captureProc{err: errors.New("downstream down")}
	p := NewRealtimePipeline(proc, nopMetrics{}, WithBufferSize(4))
	if err := p.Process(context.Background(), frame("pool-a", 1)); err == nil {
		t.Fatalf("downstream error swallowed")
	}

	// downstream recovers; the buffered frame flushes in the background
	proc.mu.Lock()
	proc.err = nil
	proc.mu.Unlock()
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for proc.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("buffered frame never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if proc.first().Block != 1 {
		t.Fatalf("flushed block %d", proc.first().Block)
	}
}
