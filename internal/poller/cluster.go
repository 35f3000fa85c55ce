package poller

import (
	"strings"

	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// clusterSlot mirrors the subset of redis.ClusterSlot/ClusterNode fields
// this package needs, so the parsing logic below stays independent of the
// exact go-redis return type (tested with plain structs).
type clusterSlot struct {
	Start, End int
	Nodes      []clusterNode
}

type clusterNode struct {
	Addr string
}

func (p *Poller) snapshotFromSlots(slots []clusterSlot) Snapshot {
	endpoints := make(map[topology.ShardID][]topology.Endpoint)
	names := make(map[topology.ShardID]string)
	intervals := make([]topology.Interval, 0, len(slots))

	for _, sl := range slots {
		if len(sl.Nodes) == 0 {
			continue
		}
		primaryAddr := stripBusPort(sl.Nodes[0].Addr)
		shardID := p.shardIDFor(primaryAddr)

		intervals = append(intervals, topology.Interval{Min: sl.Start, Max: sl.End, Shard: shardID})

		if _, ok := endpoints[shardID]; !ok {
			eps := make([]topology.Endpoint, 0, len(sl.Nodes))
			for i, node := range sl.Nodes {
				addr := stripBusPort(node.Addr)
				host, port, err := parseHostPort(addr)
				if err != nil {
					continue
				}
				role := topology.RoleReplica
				if i == 0 {
					role = topology.RolePrimary
				}
				eps = append(eps, topology.Endpoint{Host: host, Port: port, Role: role, ShardID: shardID})
			}
			endpoints[shardID] = eps
			names[shardID] = primaryAddr
		}
	}

	return Snapshot{Endpoints: endpoints, Intervals: intervals, ShardNames: names}
}

// shardIDFor returns the stable ShardID for a primary address, assigning
// a new dense id the first time an address is seen (spec.md §3: ShardId
// is "assigned at init, stable for process lifetime").
func (p *Poller) shardIDFor(primaryAddr string) topology.ShardID {
	if id, ok := p.shardIDByPrimary[primaryAddr]; ok {
		return id
	}
	id := topology.ShardID(p.nextShardID)
	p.nextShardID++
	p.shardIDByPrimary[primaryAddr] = id
	return id
}

func stripBusPort(addr string) string {
	if i := strings.IndexByte(addr, '@'); i != -1 {
		return addr[:i]
	}
	return addr
}

var errNoClusterSeeds = &hostPortError{"poller: no cluster seed clients configured"}
