package shardset

import (
	"golang.org/x/exp/slices"

	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// diffEndpoints computes added/removed/retained per spec.md §4.5 step 1,
// keyed by host:port (an endpoint changing role without changing address
// is treated as removed+added, since its Connection needs to be redialed
// under the new role bookkeeping).
func diffEndpoints(old, next []topology.Endpoint) (added, removed, retained []topology.Endpoint) {
	oldKeys := make([]string, 0, len(old))
	for _, e := range old {
		oldKeys = append(oldKeys, e.HostPort()+"/"+e.Role.String())
	}
	nextKeys := make([]string, 0, len(next))
	for _, e := range next {
		nextKeys = append(nextKeys, e.HostPort()+"/"+e.Role.String())
	}

	for i, e := range next {
		if slices.Contains(oldKeys, nextKeys[i]) {
			retained = append(retained, e)
		} else {
			added = append(added, e)
		}
	}
	for i, e := range old {
		if !slices.Contains(nextKeys, oldKeys[i]) {
			removed = append(removed, e)
		}
	}
	return added, removed, retained
}
