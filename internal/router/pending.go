package router

import (
	"sync"
	"time"
)

// pendingCommand is a command that arrived before its target shard was
// ready for the requested role (spec.md §3's PendingCommand entity).
type pendingCommand struct {
	cmd          *Command
	hint         Hint
	submittedAt  time.Time
	prevInstance int
}

// pendingQueue is mutated by any goroutine (Append) and emptied by DrainAll
// (from the Controller's loop via DrainPending, and from Stop via
// FailAllPending), under one mutex, bounding lock-holding to O(1) per
// append per spec.md §5.
type pendingQueue struct {
	mu    sync.Mutex
	items []pendingCommand
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{}
}

func (q *pendingQueue) Append(p pendingCommand) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
}

// DrainAll removes and returns every queued command in FIFO order, so a
// command is never dispatched twice concurrently and queue order is
// preserved across a single drain.
func (q *pendingQueue) DrainAll() []pendingCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
