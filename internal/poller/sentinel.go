package poller

import (
	"context"
	"strconv"

	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// pollSentinel queries every configured sentinel client for the masters
// and replicas of each tracked shard name, majority-merges disagreements
// on which address is primary, and returns a Snapshot (spec.md §4.4
// "aggregate responses; majority-merge conflicting primary/replica lists").
func (p *Poller) pollSentinel(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	shardNames := append([]string(nil), p.shardNames...)
	clients := append([]redisx.DiscoveryClient(nil), p.sentinelClients...)
	p.mu.Unlock()

	endpoints := make(map[topology.ShardID][]topology.Endpoint, len(shardNames))
	names := make(map[topology.ShardID]string, len(shardNames))
	var lastErr error
	reachable := 0

	for shardIdx, name := range shardNames {
		shardID := topology.ShardID(shardIdx)
		names[shardID] = name

		primaryVotes := make(map[string]int)
		replicaSet := make(map[string]topology.Endpoint)

		for _, client := range clients {
			masters, err := client.SentinelMasters(ctx)
			if err != nil {
				lastErr = err
				continue
			}
			reachable++

			for _, m := range masters {
				if m["name"] != name {
					continue
				}
				hostPort, ok := endpointHostPort(m)
				if ok {
					primaryVotes[hostPort]++
				}
			}

			replicas, err := client.SentinelReplicas(ctx, name)
			if err != nil {
				lastErr = err
				continue
			}
			for _, r := range replicas {
				hostPort, ok := endpointHostPort(r)
				if !ok {
					continue
				}
				host, port, err := parseHostPort(hostPort)
				if err != nil {
					continue
				}
				replicaSet[hostPort] = topology.Endpoint{Host: host, Port: port, Role: topology.RoleReplica, ShardID: shardID}
			}
		}

		var eps []topology.Endpoint
		if hostPort, ok := majorityWinner(primaryVotes); ok {
			host, port, err := parseHostPort(hostPort)
			if err == nil {
				eps = append(eps, topology.Endpoint{Host: host, Port: port, Role: topology.RolePrimary, ShardID: shardID})
			}
		}
		for _, e := range replicaSet {
			eps = append(eps, e)
		}
		endpoints[shardID] = eps
	}

	if reachable == 0 && lastErr != nil {
		return Snapshot{}, lastErr
	}

	return Snapshot{
		Endpoints:  endpoints,
		ShardNames: names,
		Partial:    lastErr != nil,
	}, nil
}

func endpointHostPort(fields map[string]string) (string, bool) {
	host, ok := fields["ip"]
	if !ok || host == "" {
		return "", false
	}
	port := fields["port"]
	if port == "" {
		return "", false
	}
	return host + ":" + port, true
}

func majorityWinner(votes map[string]int) (string, bool) {
	best := ""
	bestCount := 0
	for addr, count := range votes {
		if count > bestCount || (count == bestCount && addr < best) {
			best = addr
			bestCount = count
		}
	}
	return best, bestCount > 0
}

func parseHostPort(hostPort string) (string, uint16, error) {
	i := lastColon(hostPort)
	if i == -1 {
		return "", 0, errInvalidHostPort
	}
	host := hostPort[:i]
	if len(host) >= 2 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}
	p, err := strconv.ParseUint(hostPort[i+1:], 10, 16)
	if err != nil {
		return "", 0, err
	}
	return host, uint16(p), nil
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

var errInvalidHostPort = &hostPortError{"poller: malformed host:port"}

type hostPortError struct{ msg string }

func (e *hostPortError) Error() string { return e.msg }
