package venuefeed

import (
	"sync"

	"RollSwap/internal/domain/models"
)

// Mirror keeps the latest pool snapshot per venue and tracks the chain head.
// The engine reads the head for rollover window checks; snapshots back the
// pool gauges and the feed endpoint.
type Mirror struct {
	mu    sync.RWMutex
	pools map[string]*models.PoolSync
	head  uint64
}

func NewMirror() *Mirror {
	return &Mirror{pools: make(map[string]*models.PoolSync)}
}

// Apply records a sync frame. Stale frames for a venue (older block than the
// stored one) are ignored; the head only moves forward.
func (m *Mirror) Apply(ps *models.PoolSync) {
	if ps == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.pools[ps.Venue]; ok && prev.Block > ps.Block {
		return
	}
	m.pools[ps.Venue] = ps
	if ps.Block > m.head {
		m.head = ps.Block
	}
}

// CurrentBlock returns the highest block seen across venue frames.
func (m *Mirror) CurrentBlock() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.head
}

// Pool returns the latest snapshot for a venue, or nil.
func (m *Mirror) Pool(venue string) *models.PoolSync {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pools[venue]
}

// Pools returns a copy of all latest snapshots.
func (m *Mirror) Pools() []*models.PoolSync {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.PoolSync, 0, len(m.pools))
	for _, ps := range m.pools {
		out = append(out, ps)
	}
	return out
}
