package shardset

import (
	"context"
	"testing"

	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// fakeConn is a Connection test double that becomes ready synchronously on
// dial, or stays never-ready when told to.
type fakeConn struct {
	addr      string
	ready     bool
	readyFns  []func()
	downFns   []func(error)
	closed    bool
}

func newFakeConn(addr string, ready bool) *fakeConn {
	return &fakeConn{addr: addr, ready: ready}
}

func (c *fakeConn) Send(ctx context.Context, cmd redisx.Command, onReply func(redisx.Reply, error)) {
}
func (c *fakeConn) Addr() string    { return c.addr }
func (c *fakeConn) IsReady() bool   { return c.ready && !c.closed }
func (c *fakeConn) Close() error    { c.closed = true; return nil }
func (c *fakeConn) OnReady(fn func()) {
	c.readyFns = append(c.readyFns, fn)
	if c.ready {
		fn()
	}
}
func (c *fakeConn) OnDisconnect(fn func(error)) {
	c.downFns = append(c.downFns, fn)
}
func (c *fakeConn) fail(err error) {
	c.ready = false
	for _, fn := range c.downFns {
		fn(err)
	}
}

func dialFake(ready bool) DialFunc {
	return func(ep topology.Endpoint) redisx.Connection {
		return newFakeConn(ep.HostPort(), ready)
	}
}

func TestReconcileAddedBecomesLiveAndReady(t *testing.T) {
	s := New()
	added, removed, retained := s.Reconcile(0, "shard0", []topology.Endpoint{
		{Host: "127.0.0.1", Port: 7000, Role: topology.RolePrimary, ShardID: 0},
	}, dialFake(true))

	if len(added) != 1 || len(removed) != 0 || len(retained) != 0 {
		t.Fatalf("unexpected diff: +%d -%d =%d", len(added), len(removed), len(retained))
	}

	sh, ok := s.Shard(0)
	if !ok {
		t.Fatalf("shard 0 not created")
	}
	if !sh.ReadyFor(PreferPrimary) {
		t.Fatalf("expected primary-ready after dialing a ready connection")
	}
}

func TestReconcileRemovedGoesDrainingThenCloses(t *testing.T) {
	s := New()
	s.Reconcile(0, "shard0", []topology.Endpoint{
		{Host: "127.0.0.1", Port: 7000, Role: topology.RolePrimary, ShardID: 0},
	}, dialFake(true))

	added, removed, _ := s.Reconcile(0, "shard0", nil, dialFake(true))
	if len(added) != 0 || len(removed) != 1 {
		t.Fatalf("expected the sole endpoint to be removed, got +%d -%d", len(added), len(removed))
	}

	sh, _ := s.Shard(0)
	eps := sh.Endpoints()
	if len(eps) != 0 {
		t.Fatalf("draining endpoint should not appear in Endpoints(): %v", eps)
	}

	s.CloseDrained()
	sh.mu.RLock()
	n := len(sh.primaries)
	sh.mu.RUnlock()
	if n != 0 {
		t.Fatalf("expected draining connection pruned after CloseDrained, got %d left", n)
	}
}

func TestPickConnectionSkipsPrevInstance(t *testing.T) {
	s := New()
	s.Reconcile(0, "shard0", []topology.Endpoint{
		{Host: "10.0.0.1", Port: 7000, Role: topology.RolePrimary, ShardID: 0},
		{Host: "10.0.0.2", Port: 7000, Role: topology.RolePrimary, ShardID: 0},
	}, dialFake(true))

	sh, _ := s.Shard(0)
	_, idx0, ok := sh.PickConnection(PreferPrimary, -1)
	if !ok {
		t.Fatalf("expected a connection")
	}
	_, idx1, ok := sh.PickConnection(PreferPrimary, idx0)
	if !ok {
		t.Fatalf("expected a connection")
	}
	if idx1 == idx0 {
		t.Fatalf("expected PickConnection to avoid the previous instance index")
	}
}

func TestAllEndpointsUnion(t *testing.T) {
	s := New()
	s.Reconcile(0, "shard0", []topology.Endpoint{
		{Host: "10.0.0.1", Port: 7000, Role: topology.RolePrimary, ShardID: 0},
	}, dialFake(true))
	s.Reconcile(1, "shard1", []topology.Endpoint{
		{Host: "10.0.0.2", Port: 7000, Role: topology.RolePrimary, ShardID: 1},
	}, dialFake(true))

	all := s.AllEndpoints()
	if len(all) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(all))
	}
}

func TestReadinessGateClearsOnDisconnect(t *testing.T) {
	s := New()
	s.Reconcile(0, "shard0", []topology.Endpoint{
		{Host: "10.0.0.1", Port: 7000, Role: topology.RolePrimary, ShardID: 0},
	}, dialFake(true))

	sh, _ := s.Shard(0)
	if !sh.ReadyFor(PreferPrimary) {
		t.Fatalf("expected ready before disconnect")
	}

	sh.mu.RLock()
	fc := sh.primaries[0].conn.(*fakeConn)
	sh.mu.RUnlock()
	fc.fail(nil)

	if sh.ReadyFor(PreferPrimary) {
		t.Fatalf("expected not-ready after the only primary disconnects")
	}
}
