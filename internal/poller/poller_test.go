package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

type fakeDiscovery struct {
	masters      []map[string]string
	mastersErr   error
	replicasByName map[string][]map[string]string
	replicasErr  error
	slots        []redis.ClusterSlot
	slotsErr     error
}

func (f *fakeDiscovery) Close() error         { return nil }
func (f *fakeDiscovery) Ping(context.Context) error { return nil }
func (f *fakeDiscovery) SentinelMasters(context.Context) ([]map[string]string, error) {
	return f.masters, f.mastersErr
}
func (f *fakeDiscovery) SentinelReplicas(_ context.Context, name string) ([]map[string]string, error) {
	return f.replicasByName[name], f.replicasErr
}
func (f *fakeDiscovery) ClusterSlots(context.Context) ([]redis.ClusterSlot, error) {
	return f.slots, f.slotsErr
}
func (f *fakeDiscovery) Do(context.Context, ...interface{}) (interface{}, error) { return nil, nil }

func TestPollSentinelMajorityMerge(t *testing.T) {
	agree := &fakeDiscovery{
		masters: []map[string]string{{"name": "shard0", "ip": "10.0.0.1", "port": "6379"}},
		replicasByName: map[string][]map[string]string{
			"shard0": {{"ip": "10.0.0.2", "port": "6379"}},
		},
	}
	stale := &fakeDiscovery{
		masters: []map[string]string{{"name": "shard0", "ip": "10.0.0.9", "port": "6379"}},
		replicasByName: map[string][]map[string]string{
			"shard0": {{"ip": "10.0.0.2", "port": "6379"}},
		},
	}

	p := NewSentinelPoller([]redisx.DiscoveryClient{agree, agree, stale}, []string{"shard0"}, time.Second, zerolog.Nop())

	snap, err := p.pollSentinel(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eps := snap.Endpoints[0]
	var primaryFound bool
	for _, e := range eps {
		if e.Role == topology.RolePrimary {
			primaryFound = true
			if e.Host != "10.0.0.1" {
				t.Fatalf("expected majority-voted primary 10.0.0.1, got %s", e.Host)
			}
		}
	}
	if !primaryFound {
		t.Fatalf("expected a primary endpoint in snapshot, got %+v", eps)
	}
}

// flakyDiscovery fails SentinelMasters on its failOn'th call, so a test
// can simulate one shard's query failing while another shard's (queried
// earlier in the same pollSentinel pass) succeeded.
type flakyDiscovery struct {
	calls   int
	failOn  int
	masters []map[string]string
}

func (f *flakyDiscovery) Close() error               { return nil }
func (f *flakyDiscovery) Ping(context.Context) error { return nil }
func (f *flakyDiscovery) SentinelMasters(context.Context) ([]map[string]string, error) {
	f.calls++
	if f.calls == f.failOn {
		return nil, errors.New("sentinel: connection refused")
	}
	return f.masters, nil
}
func (f *flakyDiscovery) SentinelReplicas(context.Context, string) ([]map[string]string, error) {
	return nil, nil
}
func (f *flakyDiscovery) ClusterSlots(context.Context) ([]redis.ClusterSlot, error) { return nil, nil }
func (f *flakyDiscovery) Do(context.Context, ...interface{}) (interface{}, error)   { return nil, nil }

func TestPollSentinelMarksPartialWithoutClearingHealthyShard(t *testing.T) {
	d := &flakyDiscovery{
		failOn: 2, // shard0's query (call 1) succeeds; shard1's (call 2) fails
		masters: []map[string]string{
			{"name": "shard0", "ip": "10.0.0.1", "port": "6379"},
			{"name": "shard1", "ip": "10.0.0.3", "port": "6379"},
		},
	}
	p := NewSentinelPoller([]redisx.DiscoveryClient{d}, []string{"shard0", "shard1"}, time.Second, zerolog.Nop())

	snap, err := p.pollSentinel(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !snap.Partial {
		t.Fatalf("expected Partial=true when one shard's sentinel query failed")
	}
	if len(snap.Endpoints[0]) == 0 {
		t.Fatalf("expected shard0 to still have endpoints despite shard1's failure")
	}
	if len(snap.Endpoints[1]) != 0 {
		t.Fatalf("expected shard1 to have no endpoints recorded this poll, got %+v", snap.Endpoints[1])
	}
}

func TestSnapshotFromSlotsAssignsStableShardIDs(t *testing.T) {
	p := NewClusterPoller(nil, time.Second, time.Second, zerolog.Nop())

	slots := []clusterSlot{
		{Start: 0, End: 100, Nodes: []clusterNode{{Addr: "10.0.0.1:7000"}, {Addr: "10.0.0.2:7000"}}},
		{Start: 101, End: 200, Nodes: []clusterNode{{Addr: "10.0.0.3:7000"}}},
	}
	snap := p.snapshotFromSlots(slots)
	if len(snap.Intervals) != 2 {
		t.Fatalf("expected 2 intervals, got %d", len(snap.Intervals))
	}

	again := p.snapshotFromSlots(slots)
	if again.Intervals[0].Shard != snap.Intervals[0].Shard {
		t.Fatalf("expected stable shard id across polls for the same primary")
	}
}

func TestFingerprintStableAcrossEndpointOrder(t *testing.T) {
	a := map[topology.ShardID][]topology.Endpoint{
		0: {
			{Host: "10.0.0.1", Port: 7000, Role: topology.RolePrimary, ShardID: 0},
			{Host: "10.0.0.2", Port: 7000, Role: topology.RoleReplica, ShardID: 0},
		},
	}
	b := map[topology.ShardID][]topology.Endpoint{
		0: {
			{Host: "10.0.0.2", Port: 7000, Role: topology.RoleReplica, ShardID: 0},
			{Host: "10.0.0.1", Port: 7000, Role: topology.RolePrimary, ShardID: 0},
		},
	}
	if fingerprint(a, nil) != fingerprint(b, nil) {
		t.Fatalf("fingerprint should be independent of endpoint order within a shard")
	}
}

func TestPollOnceSkipsUnchangedSnapshot(t *testing.T) {
	d := &fakeDiscovery{
		masters: []map[string]string{{"name": "shard0", "ip": "10.0.0.1", "port": "6379"}},
	}
	p := NewSentinelPoller([]redisx.DiscoveryClient{d}, []string{"shard0"}, time.Second, zerolog.Nop())

	calls := 0
	p.OnSnapshot = func(Snapshot) { calls++ }

	p.pollOnce(context.Background())
	p.pollOnce(context.Background())

	if calls != 1 {
		t.Fatalf("expected OnSnapshot to fire once for an unchanged topology, got %d", calls)
	}
}
