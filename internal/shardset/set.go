package shardset

import (
	"sort"
	"sync"

	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// Set is the live collection of Shard handles: one per logical shard, plus
// the sentinel Shard used for SENTINEL discovery connections (spec.md §2
// component 5). Only the Controller mutates it (spec.md §3 ownership).
type Set struct {
	mu            sync.RWMutex
	shards        map[topology.ShardID]*Shard
	sentinel      *Shard
	onReadyChange func()
}

const sentinelShardID topology.ShardID = -2

func New() *Set {
	return &Set{
		shards:   make(map[topology.ShardID]*Shard),
		sentinel: newShard(sentinelShardID, "sentinel"),
	}
}

func (s *Set) Sentinel() *Shard { return s.sentinel }

// OnReadinessChange installs fn to be called (from whatever goroutine a
// Connection's OnReady callback fires on) every time any shard's
// readiness.Gate sets a bit to true, so the Controller can wake its loop
// and drain commands that were queued waiting on that shard. It applies
// to every shard already tracked plus every shard created afterward.
func (s *Set) OnReadinessChange(fn func()) {
	s.mu.Lock()
	s.onReadyChange = fn
	s.sentinel.gate.OnChange = fn
	for _, sh := range s.shards {
		sh.gate.OnChange = fn
	}
	s.mu.Unlock()
}

// Shard returns the handle for id, and false if no such shard is tracked.
// It never creates one; shards are created only by Reconcile.
func (s *Set) Shard(id topology.ShardID) (*Shard, bool) {
	s.mu.RLock()
	sh, ok := s.shards[id]
	s.mu.RUnlock()
	return sh, ok
}

func (s *Set) ensureShard(id topology.ShardID, name string) *Shard {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shards[id]
	if !ok {
		sh = newShard(id, name)
		sh.gate.OnChange = s.onReadyChange
		s.shards[id] = sh
	}
	return sh
}

// MasterShards returns a reference-counted snapshot of the tracked
// shards in id order, for public callers doing statistics (spec.md §3
// "Ownership": callers hold shared, read-only handles to Shards).
func (s *Set) MasterShards() []*Shard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Shard, 0, len(s.shards))
	for _, sh := range s.shards {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *Set) ShardsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shards)
}

// Reconcile applies a new endpoint set for shard id: computes the diff
// against the shard's current endpoints, dials added endpoints, marks
// removed ones draining, and returns the diff so the Controller can
// rebuild HostIndex/SlotMap before calling CloseDrained (spec.md §4.5's
// ordering guarantee: publish new topology before closing drained
// connections).
func (s *Set) Reconcile(id topology.ShardID, name string, next []topology.Endpoint, dial DialFunc) (added, removed, retained []topology.Endpoint) {
	sh := s.ensureShard(id, name)
	old := sh.Endpoints()
	added, removed, retained = diffEndpoints(old, next)
	sh.applyDiff(added, removed, dial)
	return added, removed, retained
}

// ReconcileSentinel applies a new endpoint set to the sentinel Shard (the
// SENTINEL discovery connections themselves, spec.md §2 component 5),
// the same way Reconcile does for a logical shard.
func (s *Set) ReconcileSentinel(next []topology.Endpoint, dial DialFunc) (added, removed, retained []topology.Endpoint) {
	old := s.sentinel.Endpoints()
	added, removed, retained = diffEndpoints(old, next)
	s.sentinel.applyDiff(added, removed, dial)
	return added, removed, retained
}

// RemoveShard tears an entire shard down (e.g. cluster mode shrank by one
// shard) and returns its former endpoints so HostIndex can drop them.
func (s *Set) RemoveShard(id topology.ShardID) []topology.Endpoint {
	s.mu.Lock()
	sh, ok := s.shards[id]
	if ok {
		delete(s.shards, id)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	eps := sh.Endpoints()
	sh.applyDiff(nil, eps, nil)
	return eps
}

// CloseDrained closes every draining connection across all shards and the
// sentinel shard, and drops their bookkeeping. Must be called only after
// the new HostIndex/SlotMap have been published.
func (s *Set) CloseDrained() {
	s.mu.RLock()
	shards := make([]*Shard, 0, len(s.shards)+1)
	for _, sh := range s.shards {
		shards = append(shards, sh)
	}
	shards = append(shards, s.sentinel)
	s.mu.RUnlock()

	for _, sh := range shards {
		sh.mu.RLock()
		draining := collectDraining(sh.primaries, sh.replicas)
		sh.mu.RUnlock()
		for _, conn := range draining {
			_ = conn.Close()
		}
		sh.pruneDraining()
	}
}

func collectDraining(primaries, replicas []*connState) []redisx.Connection {
	out := make([]redisx.Connection, 0)
	for _, cs := range primaries {
		if cs.status == statusDraining {
			out = append(out, cs.conn)
		}
	}
	for _, cs := range replicas {
		if cs.status == statusDraining {
			out = append(out, cs.conn)
		}
	}
	return out
}

// AllEndpoints returns the union of every tracked shard's (and the
// sentinel's) current endpoints, used to rebuild HostIndex wholesale.
func (s *Set) AllEndpoints() []topology.Endpoint {
	s.mu.RLock()
	shards := make([]*Shard, 0, len(s.shards))
	for _, sh := range s.shards {
		shards = append(shards, sh)
	}
	s.mu.RUnlock()

	out := make([]topology.Endpoint, 0)
	for _, sh := range shards {
		out = append(out, sh.Endpoints()...)
	}
	out = append(out, s.sentinel.Endpoints()...)
	return out
}

// CloseAll closes every connection in every shard, used by Controller.Stop.
func (s *Set) CloseAll() {
	s.mu.RLock()
	shards := make([]*Shard, 0, len(s.shards)+1)
	for _, sh := range s.shards {
		shards = append(shards, sh)
	}
	shards = append(shards, s.sentinel)
	s.mu.RUnlock()

	for _, sh := range shards {
		sh.mu.Lock()
		all := append(append([]*connState{}, sh.primaries...), sh.replicas...)
		sh.primaries = nil
		sh.replicas = nil
		sh.mu.Unlock()
		for _, cs := range all {
			if cs.conn != nil {
				_ = cs.conn.Close()
			}
		}
	}
}
