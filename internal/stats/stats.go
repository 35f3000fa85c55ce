// Package stats implements the supplemented SentinelStatisticsInternal /
// GetAvailableServersWeighted behavior from the original
// implementation (spec.md §6 names GetAvailableServersWeighted but
// leaves its weighting unspecified; SPEC_FULL.md §12 fills it in):
// rolling per-shard/per-instance counters, decayed on a timer, used both
// for diagnostics and for client-side load-balancing weights.
package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// DefaultDecayInterval is how often Run halves every tracked counter, so
// GetAvailableServersWeighted reflects recent instance behavior rather
// than a lifetime-cumulative error ratio (spec.md §12's "decayed on a
// timer").
const DefaultDecayInterval = 60 * time.Second

// ServerID identifies one backend instance within a shard.
type ServerID struct {
	Shard topology.ShardID
	Addr  string
}

// instanceCounters are the raw rolling counters for one ServerID.
type instanceCounters struct {
	commands  atomic.Uint64
	errors    atomic.Uint64
	redirects atomic.Uint64
	reconnects atomic.Uint64
}

// Snapshot is the immutable, published view of Statistics' counters at
// one point in time, consumed by Controller.Statistics().
type Snapshot struct {
	PerInstance map[ServerID]InstanceStats
}

// InstanceStats is one instance's counters at snapshot time.
type InstanceStats struct {
	Commands   uint64
	Errors     uint64
	Redirects  uint64
	Reconnects uint64
}

// Statistics owns one instanceCounters per ServerID, grounded on the
// teacher's pattern of one small mutable struct per tracked entity
// guarded by a map-level mutex (manager.go's per-shard worker map).
type Statistics struct {
	mu   sync.RWMutex
	byID map[ServerID]*instanceCounters
}

func New() *Statistics {
	return &Statistics{byID: make(map[ServerID]*instanceCounters)}
}

func (s *Statistics) counters(id ServerID) *instanceCounters {
	s.mu.RLock()
	c, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		return c
	}
	c = &instanceCounters{}
	s.byID[id] = c
	return c
}

func (s *Statistics) RecordCommand(id ServerID)   { s.counters(id).commands.Add(1) }
func (s *Statistics) RecordError(id ServerID)     { s.counters(id).errors.Add(1) }
func (s *Statistics) RecordRedirect(id ServerID)  { s.counters(id).redirects.Add(1) }
func (s *Statistics) RecordReconnect(id ServerID) { s.counters(id).reconnects.Add(1) }

// Forget drops counters for a ServerID whose endpoint was permanently
// removed, so Snapshot doesn't accumulate stale instances forever.
func (s *Statistics) Forget(id ServerID) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

// Snapshot returns an immutable copy of every tracked instance's
// counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ServerID]InstanceStats, len(s.byID))
	for id, c := range s.byID {
		out[id] = InstanceStats{
			Commands:   c.commands.Load(),
			Errors:     c.errors.Load(),
			Redirects:  c.redirects.Load(),
			Reconnects: c.reconnects.Load(),
		}
	}
	return Snapshot{PerInstance: out}
}

// AvailableServersWeighted computes per-instance weights for shard,
// derived from recent error rate (spec.md §6): an instance with no
// traffic gets the baseline weight; one with a high error ratio is
// down-weighted, never to zero, so it still receives occasional probe
// traffic. withPrimary controls whether the shard's primary instance is
// included alongside replicas.
func (s *Statistics) AvailableServersWeighted(shard topology.ShardID, withPrimary bool, endpoints []topology.Endpoint) map[ServerID]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[ServerID]int, len(endpoints))
	for _, ep := range endpoints {
		if ep.ShardID != shard {
			continue
		}
		if ep.Role == topology.RolePrimary && !withPrimary {
			continue
		}
		id := ServerID{Shard: shard, Addr: ep.HostPort()}
		out[id] = weightFor(s.byID[id])
	}
	return out
}

// Run halves every tracked counter every interval until ctx is canceled.
// Counters decay by half rather than resetting to zero, so an instance's
// recent history fades gradually instead of vanishing at each tick
// boundary.
func (s *Statistics) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultDecayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.decayAll()
		}
	}
}

func (s *Statistics) decayAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.byID {
		halve(&c.commands)
		halve(&c.errors)
		halve(&c.redirects)
		halve(&c.reconnects)
	}
}

func halve(v *atomic.Uint64) {
	for {
		old := v.Load()
		if old == 0 {
			return
		}
		if v.CompareAndSwap(old, old/2) {
			return
		}
	}
}

const baselineWeight = 100

func weightFor(c *instanceCounters) int {
	if c == nil {
		return baselineWeight
	}
	cmds := c.commands.Load()
	errs := c.errors.Load()
	if cmds == 0 {
		return baselineWeight
	}
	ratio := float64(errs) / float64(cmds)
	w := int(float64(baselineWeight) * (1 - ratio))
	if w < 1 {
		w = 1
	}
	return w
}
