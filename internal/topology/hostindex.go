package topology

import "sync/atomic"

// HostIndex maps "host:port" to the shard that owns it. It exists
// separately from walking Shard endpoint sets because MOVED/ASK parsing
// must answer in constant time on the hot path (spec.md §4.2).
type HostIndex struct {
	cur atomic.Pointer[map[string]ShardID]
}

// NewHostIndex returns an empty index.
func NewHostIndex() *HostIndex {
	h := &HostIndex{}
	empty := map[string]ShardID{}
	h.cur.Store(&empty)
	return h
}

// ShardOf returns the shard owning host:port, or (UnknownShard, false) if
// no live endpoint at that address is known.
func (h *HostIndex) ShardOf(host string, port uint16) (ShardID, bool) {
	m := *h.cur.Load()
	id, ok := m[JoinHostPort(host, port)]
	if !ok {
		return UnknownShard, false
	}
	return id, true
}

// ShardOfAddr is the same lookup taking an already-joined "host:port".
func (h *HostIndex) ShardOfAddr(hostPort string) (ShardID, bool) {
	m := *h.cur.Load()
	id, ok := m[hostPort]
	if !ok {
		return UnknownShard, false
	}
	return id, true
}

// Replace atomically swaps in a newly built map. Callers build the map from
// the union of retained+added endpoints (spec.md §4.5 step 5) so it is
// always consistent with the live Shard endpoint sets.
func (h *HostIndex) Replace(endpoints []Endpoint) {
	next := make(map[string]ShardID, len(endpoints))
	for _, e := range endpoints {
		next[e.HostPort()] = e.ShardID
	}
	h.cur.Store(&next)
}
