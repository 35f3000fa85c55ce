// Package poller implements the periodic topology discovery task
// (sentinel mode and cluster mode) that feeds the Controller's
// reconciliation step. It is grounded on the teacher's
// ticker-driven Manager.Run refresh loop, generalized from scanning
// Redis lists to polling cluster/sentinel topology, and on
// SentinelImpl::ReadSentinels / UpdateClusterSlots from the
// original C++ implementation this module's domain logic is
// distilled from.
package poller

import "github.com/NogameNo-life/redis-sentinel/internal/topology"

// Snapshot is one poll's result: the endpoints discovered per shard, plus
// (cluster mode only) the slot intervals each shard now owns. Partial is
// set when a source could only answer for a subset of previously known
// shards (spec.md §4.4's "apply only if the snapshot covers all
// previously known shards or explicitly signals removal").
type Snapshot struct {
	Endpoints   map[topology.ShardID][]topology.Endpoint
	Intervals   []topology.Interval // nil outside cluster mode
	ShardNames  map[topology.ShardID]string
	Partial     bool
	Fingerprint uint64
}

// AllEndpoints flattens Endpoints into the slice shape ShardSet/HostIndex
// consume.
func (s Snapshot) AllEndpoints() []topology.Endpoint {
	out := make([]topology.Endpoint, 0)
	for _, eps := range s.Endpoints {
		out = append(out, eps...)
	}
	return out
}
