package shardset

import (
	"sync"

	"github.com/NogameNo-life/redis-sentinel/internal/readiness"
	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// DialFunc creates a Connection for a newly seen endpoint. Swappable for
// tests.
type DialFunc func(topology.Endpoint) redisx.Connection

// Shard is one logical partition's live connections: a primary set and a
// replica set, exclusively owned by this Shard (spec.md §3 ownership
// table). The Router reaches it only through PickConnection and ReadyFor,
// never past it into individual Connections; its endpoint set is replaced
// through Set.Reconcile (applyDiff), not through a method on Shard.
type Shard struct {
	id    topology.ShardID
	name  string
	gate  *readiness.Gate

	mu        sync.RWMutex
	primaries []*connState
	replicas  []*connState
	rrPrimary int
	rrReplica int
}

func newShard(id topology.ShardID, name string) *Shard {
	return &Shard{id: id, name: name, gate: readiness.New()}
}

func (s *Shard) ID() topology.ShardID { return s.id }
func (s *Shard) Name() string         { return s.name }
func (s *Shard) Gate() *readiness.Gate { return s.gate }

// PickConnection returns a ready connection for pref, round-robining among
// live candidates and skipping prevInstanceIdx so a caller retrying a
// just-failed replica doesn't immediately hit the same one again
// (spec.md §4.6 step 3). The returned index should be passed back as
// prevInstanceIdx on a subsequent retry.
func (s *Shard) PickConnection(pref Preference, prevInstanceIdx int) (redisx.Connection, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pref == PreferPrimary {
		return pickFrom(s.primaries, &s.rrPrimary, prevInstanceIdx)
	}

	// PreferAny: try replicas first (spread read load), fall back to
	// primaries if no replica is live.
	if conn, idx, ok := pickFrom(s.replicas, &s.rrReplica, prevInstanceIdx-len(s.primaries)); ok {
		return conn, idx + len(s.primaries), true
	}
	return pickFrom(s.primaries, &s.rrPrimary, prevInstanceIdx)
}

func pickFrom(set []*connState, cursor *int, avoidIdx int) (redisx.Connection, int, bool) {
	n := len(set)
	if n == 0 {
		return nil, -1, false
	}
	for i := 0; i < n; i++ {
		idx := (*cursor + i) % n
		if idx == avoidIdx {
			continue
		}
		cs := set[idx]
		if cs.status == statusLive && cs.conn.IsReady() {
			*cursor = (idx + 1) % n
			return cs.conn, idx, true
		}
	}
	// every candidate was either the one to avoid or not ready; allow a
	// retry to reuse avoidIdx rather than fail outright if it's the only
	// live connection.
	for i := 0; i < n; i++ {
		cs := set[i]
		if cs.status == statusLive && cs.conn.IsReady() {
			*cursor = (i + 1) % n
			return cs.conn, i, true
		}
	}
	return nil, -1, false
}

// ReadyFor reports whether the shard currently satisfies pref: at least
// one live primary connection for PreferPrimary, or at least one live
// connection of either role for PreferAny.
func (s *Shard) ReadyFor(pref Preference) bool {
	primary, replica := s.gate.Snapshot()
	if pref == PreferPrimary {
		return primary
	}
	return primary || replica
}

// Endpoints returns the shard's current live+pending endpoint set, used by
// Set to compute the next reconfiguration diff.
func (s *Shard) Endpoints() []topology.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]topology.Endpoint, 0, len(s.primaries)+len(s.replicas))
	for _, cs := range s.primaries {
		if cs.status != statusDraining {
			out = append(out, cs.endpoint)
		}
	}
	for _, cs := range s.replicas {
		if cs.status != statusDraining {
			out = append(out, cs.endpoint)
		}
	}
	return out
}

// applyDiff creates connections for added endpoints (in pending state,
// flipping to live and setting the gate once ready) and marks removed
// endpoints' connections draining. It returns the connections now in
// draining state so the caller can close them once the ordering
// guarantee (publish topology before closing) has been honored.
func (s *Shard) applyDiff(added, removed []topology.Endpoint, dial DialFunc) []redisx.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ep := range added {
		cs := &connState{endpoint: ep, status: statusPending}
		conn := dial(ep)
		cs.conn = conn
		s.appendLocked(cs)

		role := ep.Role
		conn.OnReady(func() {
			s.mu.Lock()
			cs.status = statusLive
			s.mu.Unlock()
			if role == topology.RolePrimary {
				s.gate.SetPrimaryReady()
			} else {
				s.gate.SetReplicaReady()
			}
		})
		conn.OnDisconnect(func(error) {
			s.mu.Lock()
			stillLive := s.hasLiveLocked(role, cs)
			s.mu.Unlock()
			if !stillLive {
				if role == topology.RolePrimary {
					s.gate.ClearPrimary()
				} else {
					s.gate.ClearReplica()
				}
			}
		})
	}

	drained := make([]redisx.Connection, 0, len(removed))
	removedSet := make(map[string]bool, len(removed))
	for _, ep := range removed {
		removedSet[ep.HostPort()+"/"+ep.Role.String()] = true
	}
	mark := func(set []*connState) {
		for _, cs := range set {
			if removedSet[cs.endpoint.HostPort()+"/"+cs.endpoint.Role.String()] {
				cs.status = statusDraining
				drained = append(drained, cs.conn)
			}
		}
	}
	mark(s.primaries)
	mark(s.replicas)

	return drained
}

func (s *Shard) appendLocked(cs *connState) {
	if cs.endpoint.Role == topology.RolePrimary {
		s.primaries = append(s.primaries, cs)
	} else {
		s.replicas = append(s.replicas, cs)
	}
}

func (s *Shard) hasLiveLocked(role topology.Role, exclude *connState) bool {
	set := s.primaries
	if role == topology.RoleReplica {
		set = s.replicas
	}
	for _, cs := range set {
		if cs == exclude {
			continue
		}
		if cs.status == statusLive && cs.conn.IsReady() {
			return true
		}
	}
	return false
}

// pruneDraining drops connState entries whose connections have fully
// drained (spec.md §4.5 step 4: closed once empty of in-flight replies).
// Connection lifetime here doesn't track per-command in-flight counts, so
// draining is treated as immediately closeable once the new topology has
// been published.
func (s *Shard) pruneDraining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primaries = pruneSlice(s.primaries)
	s.replicas = pruneSlice(s.replicas)
}

func pruneSlice(set []*connState) []*connState {
	out := set[:0]
	for _, cs := range set {
		if cs.status != statusDraining {
			out = append(out, cs)
		}
	}
	return out
}
