package stats

import (
	"context"
	"testing"
	"time"

	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

func TestRecordAndSnapshot(t *testing.T) {
	s := New()
	id := ServerID{Shard: 0, Addr: "10.0.0.1:7000"}

	s.RecordCommand(id)
	s.RecordCommand(id)
	s.RecordError(id)
	s.RecordRedirect(id)
	s.RecordReconnect(id)

	snap := s.Snapshot()
	got, ok := snap.PerInstance[id]
	if !ok {
		t.Fatalf("expected snapshot to contain %v", id)
	}
	if got.Commands != 2 || got.Errors != 1 || got.Redirects != 1 || got.Reconnects != 1 {
		t.Fatalf("unexpected counters: %+v", got)
	}
}

func TestAvailableServersWeightedDownweightsErrors(t *testing.T) {
	s := New()
	healthy := ServerID{Shard: 0, Addr: "10.0.0.1:7000"}
	flaky := ServerID{Shard: 0, Addr: "10.0.0.2:7000"}

	for i := 0; i < 100; i++ {
		s.RecordCommand(healthy)
	}
	for i := 0; i < 100; i++ {
		s.RecordCommand(flaky)
	}
	for i := 0; i < 50; i++ {
		s.RecordError(flaky)
	}

	endpoints := []topology.Endpoint{
		{Host: "10.0.0.1", Port: 7000, Role: topology.RoleReplica, ShardID: 0},
		{Host: "10.0.0.2", Port: 7000, Role: topology.RoleReplica, ShardID: 0},
	}
	weights := s.AvailableServersWeighted(0, false, endpoints)

	if weights[healthy] <= weights[flaky] {
		t.Fatalf("expected healthy instance to outweigh flaky one: healthy=%d flaky=%d", weights[healthy], weights[flaky])
	}
	if weights[flaky] < 1 {
		t.Fatalf("expected flaky instance weight to stay >= 1, got %d", weights[flaky])
	}
}

func TestAvailableServersWeightedExcludesPrimaryWhenAsked(t *testing.T) {
	s := New()
	endpoints := []topology.Endpoint{
		{Host: "10.0.0.1", Port: 7000, Role: topology.RolePrimary, ShardID: 0},
		{Host: "10.0.0.2", Port: 7000, Role: topology.RoleReplica, ShardID: 0},
	}
	weights := s.AvailableServersWeighted(0, false, endpoints)
	if len(weights) != 1 {
		t.Fatalf("expected only the replica to be included, got %d entries", len(weights))
	}
}

func TestDecayHalvesCountersOnEachTick(t *testing.T) {
	s := New()
	id := ServerID{Shard: 0, Addr: "10.0.0.1:7000"}
	for i := 0; i < 8; i++ {
		s.RecordCommand(id)
	}

	s.decayAll()
	if got := s.Snapshot().PerInstance[id].Commands; got != 4 {
		t.Fatalf("expected counters to halve once, got %d", got)
	}

	s.decayAll()
	if got := s.Snapshot().PerInstance[id].Commands; got != 2 {
		t.Fatalf("expected counters to halve twice, got %d", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return once ctx is canceled")
	}
}

func TestForgetRemovesCounters(t *testing.T) {
	s := New()
	id := ServerID{Shard: 0, Addr: "10.0.0.1:7000"}
	s.RecordCommand(id)
	s.Forget(id)
	if _, ok := s.Snapshot().PerInstance[id]; ok {
		t.Fatalf("expected forgotten instance to be absent from snapshot")
	}
}
