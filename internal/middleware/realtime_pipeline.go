package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"RollSwap/internal/domain/models"
	domrepo "RollSwap/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, ps *models.PoolSync) error
}

// RealtimePipeline is a middleware between the venue WebSocket and the mirror.
// It validates, filters/throttles, optionally transforms, and buffers when downstream is unavailable.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.PoolSync
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-venue last accepted time
	// simple format transform hook (optional)
	transform func(*models.PoolSync) *models.PoolSync
	// metrics
	bufDepthGauge func(int)
	throttleWarn  func(string)
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max sync frames per second per venue.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,   // default throttle per venue
		bufSize:  1000, // default buffer
		bufCh:    make(chan *models.PoolSync, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.PoolSync, p.bufSize)
	}
	// metrics hooks using domain metrics if available
	p.bufDepthGauge = func(n int) { p.metrics.RecordLatency("pipeline_buffer_depth", float64(n)) }
	p.throttleWarn = func(venue string) { p.metrics.RecordError("pipeline_throttle_" + venue) }
	return p
}

// Start launches background flushing of buffered frames.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case ps := <-p.bufCh:
				if ps == nil {
					continue
				}
				if err := p.proc.Process(ctx, ps); err != nil {
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- ps:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a frame downstream, buffering on errors.
func (p *RealtimePipeline) Process(ctx context.Context, ps *models.PoolSync) error {
	start := time.Now()
	if err := validateSync(ps); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		ps = p.transform(ps)
		if err := validateSync(ps); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(ps.Venue, start) {
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		if p.throttleWarn != nil {
			p.throttleWarn(ps.Venue)
		}
		return nil
	}

	if err := p.proc.Process(ctx, ps); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- ps:
			if p.bufDepthGauge != nil {
				p.bufDepthGauge(len(p.bufCh))
			}
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// WithTransform sets a transformation hook to modify the frame format.
func WithTransform(fn func(*models.PoolSync) *models.PoolSync) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func validateSync(ps *models.PoolSync) error {
	if ps == nil {
		return fmt.Errorf("sync nil")
	}
	if ps.Venue == "" {
		return fmt.Errorf("venue empty")
	}
	if ps.Block == 0 {
		return fmt.Errorf("block invalid")
	}
	if ps.ReserveA.Sign() < 0 || ps.ReserveB.Sign() < 0 {
		return fmt.Errorf("negative reserves")
	}
	return nil
}

func (p *RealtimePipeline) allow(venue string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	// simple throttle: ensure at most maxRPS per second
	last := p.lastSeen[venue]
	if last.IsZero() {
		p.lastSeen[venue] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[venue] = now
	return true
}
