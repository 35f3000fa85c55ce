package poller

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// fingerprint hashes a canonicalized rendering of a snapshot so pollOnce
// can skip a no-op ShardSet.Reconcile when nothing changed since the last
// poll — the same xxhash the teacher used to score rendezvous candidates,
// repurposed here to answer "did anything change" instead of "who owns
// this shard."
func fingerprint(endpoints map[topology.ShardID][]topology.Endpoint, intervals []topology.Interval) uint64 {
	var b strings.Builder

	shardIDs := make([]topology.ShardID, 0, len(endpoints))
	for id := range endpoints {
		shardIDs = append(shardIDs, id)
	}
	sort.Slice(shardIDs, func(i, j int) bool { return shardIDs[i] < shardIDs[j] })

	for _, id := range shardIDs {
		eps := append([]topology.Endpoint(nil), endpoints[id]...)
		sort.Slice(eps, func(i, j int) bool { return eps[i].HostPort() < eps[j].HostPort() })
		b.WriteString("s")
		b.WriteString(strconv.Itoa(int(id)))
		for _, e := range eps {
			b.WriteString(";")
			b.WriteString(e.HostPort())
			b.WriteString("/")
			b.WriteString(e.Role.String())
		}
		b.WriteString("|")
	}

	ivs := append([]topology.Interval(nil), intervals...)
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Min < ivs[j].Min })
	for _, iv := range ivs {
		b.WriteString("i")
		b.WriteString(strconv.Itoa(iv.Min))
		b.WriteString("-")
		b.WriteString(strconv.Itoa(iv.Max))
		b.WriteString("=")
		b.WriteString(strconv.Itoa(int(iv.Shard)))
		b.WriteString("|")
	}

	return xxhash.Sum64String(b.String())
}
