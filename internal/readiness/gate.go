// Package readiness implements the per-shard two-bit readiness signal that
// callers block on until a shard has a usable connection.
package readiness

import (
	"sync"
	"time"
)

// Mode selects which combination of the two bits WaitUntil requires.
type Mode int

const (
	PrimaryOnly Mode = iota
	ReplicaOnly
	PrimaryOrReplica
	PrimaryAndReplica
	NoWait
)

// Gate holds a shard's (master_ready, replica_ready) pair and a condition
// variable that any waiter wakes on. Transitions are monotonic within a
// topology epoch; Reset drops both bits at the start of a reconfiguration
// so waiters correctly block again until the new connections come up.
type Gate struct {
	mu           sync.Mutex
	cond         *sync.Cond
	primaryReady bool
	replicaReady bool

	// OnChange, if set, is called (outside the lock) after either bit goes
	// from false to true; clearing a bit does not call it. This lets the
	// Controller wake its loop and drain commands that were
	// queued waiting on this shard (spec.md §8 property 4: dispatched
	// "within one event-loop iteration" of the gate opening).
	OnChange func()
}

func New() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *Gate) SetPrimaryReady() {
	g.mu.Lock()
	changed := !g.primaryReady
	if changed {
		g.primaryReady = true
		g.cond.Broadcast()
	}
	g.mu.Unlock()
	if changed && g.OnChange != nil {
		g.OnChange()
	}
}

func (g *Gate) SetReplicaReady() {
	g.mu.Lock()
	changed := !g.replicaReady
	if changed {
		g.replicaReady = true
		g.cond.Broadcast()
	}
	g.mu.Unlock()
	if changed && g.OnChange != nil {
		g.OnChange()
	}
}

// ClearPrimary and ClearReplica back a bit out to false, e.g. when a
// shard's last live connection for that role drains away.
func (g *Gate) ClearPrimary() {
	g.mu.Lock()
	g.primaryReady = false
	g.mu.Unlock()
}

func (g *Gate) ClearReplica() {
	g.mu.Lock()
	g.replicaReady = false
	g.mu.Unlock()
}

// Reset drops both bits, used when a reconfiguration is about to replace
// every connection for a shard.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.primaryReady = false
	g.replicaReady = false
	g.mu.Unlock()
}

// Snapshot returns the current bits without waiting.
func (g *Gate) Snapshot() (primary, replica bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.primaryReady, g.replicaReady
}

func (g *Gate) satisfies(mode Mode) bool {
	switch mode {
	case PrimaryOnly:
		return g.primaryReady
	case ReplicaOnly:
		return g.replicaReady
	case PrimaryOrReplica:
		return g.primaryReady || g.replicaReady
	case PrimaryAndReplica:
		return g.primaryReady && g.replicaReady
	case NoWait:
		return true
	default:
		return false
	}
}

// WaitUntil blocks until the predicate implied by mode is satisfied or
// deadline elapses, returning whether it was satisfied. Spurious wakeups
// are handled by rechecking the predicate in a loop.
func (g *Gate) WaitUntil(deadline time.Time, mode Mode) bool {
	if mode == NoWait {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.satisfies(mode) {
		return true
	}

	timer := time.AfterFunc(time.Until(deadline), func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer timer.Stop()

	for !g.satisfies(mode) {
		if !time.Now().Before(deadline) {
			return g.satisfies(mode)
		}
		g.cond.Wait()
	}
	return true
}
