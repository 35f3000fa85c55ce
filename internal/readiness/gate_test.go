package readiness

import (
	"testing"
	"time"
)

func TestWaitUntilReturnsImmediatelyWhenAlreadySatisfied(t *testing.T) {
	g := New()
	g.SetPrimaryReady()

	start := time.Now()
	ok := g.WaitUntil(start.Add(50*time.Millisecond), PrimaryOnly)
	if !ok {
		t.Fatalf("expected satisfied")
	}
	if time.Since(start) > 20*time.Millisecond {
		t.Fatalf("should not have blocked, took %v", time.Since(start))
	}
}

func TestWaitUntilTimesOut(t *testing.T) {
	g := New()
	start := time.Now()
	ok := g.WaitUntil(start.Add(50*time.Millisecond), PrimaryOnly)
	elapsed := time.Since(start)
	if ok {
		t.Fatalf("expected timeout")
	}
	if elapsed < 40*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Fatalf("timeout took unexpected duration: %v", elapsed)
	}
}

func TestWaitUntilWakesOnSet(t *testing.T) {
	g := New()
	done := make(chan bool, 1)
	go func() {
		done <- g.WaitUntil(time.Now().Add(2*time.Second), PrimaryAndReplica)
	}()

	time.Sleep(10 * time.Millisecond)
	g.SetPrimaryReady()
	time.Sleep(10 * time.Millisecond)
	g.SetReplicaReady()

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("expected satisfied")
		}
	case <-time.After(time.Second):
		t.Fatalf("wait did not wake up")
	}
}

func TestPrimaryOrReplica(t *testing.T) {
	g := New()
	g.SetReplicaReady()
	if !g.WaitUntil(time.Now().Add(time.Second), PrimaryOrReplica) {
		t.Fatalf("expected satisfied by replica alone")
	}
}

func TestResetDropsBits(t *testing.T) {
	g := New()
	g.SetPrimaryReady()
	g.SetReplicaReady()
	g.Reset()
	p, r := g.Snapshot()
	if p || r {
		t.Fatalf("expected both bits cleared after reset")
	}
}
