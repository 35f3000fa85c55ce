// Package router implements spec.md §4.6: translating a (command,
// shard-hint, key) into a dispatch decision, including the retry,
// redirection, and pending-queue logic needed when the topology moves
// underfoot.
package router

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
	"github.com/NogameNo-life/redis-sentinel/internal/routerr"
	"github.com/NogameNo-life/redis-sentinel/internal/shardset"
	"github.com/NogameNo-life/redis-sentinel/internal/stats"
	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// KeyShardFunc, if installed, overrides the built-in CRC16 hashing for
// by-key resolution (spec.md §4.6 step 1).
type KeyShardFunc func(key string) topology.ShardID

// Router dispatches commands against a Set of shards, consulting SlotMap
// and HostIndex to resolve targets and to recover from MOVED/ASK.
type Router struct {
	shards    *shardset.Set
	slotMap   *topology.SlotMap
	hostIndex *topology.HostIndex
	keyShard  KeyShardFunc
	pending   *pendingQueue
	log       zerolog.Logger

	// stats records per-(shard, instance) traffic so
	// Controller.AvailableServersWeighted (spec.md §6, SPEC_FULL.md §12)
	// has real counters to weight against instead of the flat baseline.
	stats *stats.Statistics

	// Wake is called whenever a command is appended to the pending queue,
	// so the Controller's event loop can post itself a wakeup rather than
	// the caller's goroutine blocking (spec.md §5 point 1).
	Wake func()

	// RequestClusterRefresh is called when a MOVED reply is seen, so the
	// Controller can ask the TopologyPoller to re-issue a full CLUSTER
	// SLOTS (spec.md §4.6 step 5, "UpdateClusterSlots(shard)").
	RequestClusterRefresh func(shard topology.ShardID)
}

// New builds a Router over the given topology views and shard set. st may
// be nil in tests that don't care about traffic counters.
func New(shards *shardset.Set, slotMap *topology.SlotMap, hostIndex *topology.HostIndex, st *stats.Statistics, log zerolog.Logger) *Router {
	return &Router{
		shards:    shards,
		slotMap:   slotMap,
		hostIndex: hostIndex,
		pending:   newPendingQueue(),
		stats:     st,
		log:       log.With().Str("component", "router").Logger(),
	}
}

func (r *Router) recordCommand(shard topology.ShardID, addr string) {
	if r.stats != nil {
		r.stats.RecordCommand(stats.ServerID{Shard: shard, Addr: addr})
	}
}

func (r *Router) recordError(shard topology.ShardID, addr string) {
	if r.stats != nil {
		r.stats.RecordError(stats.ServerID{Shard: shard, Addr: addr})
	}
}

func (r *Router) recordRedirect(shard topology.ShardID, addr string) {
	if r.stats != nil {
		r.stats.RecordRedirect(stats.ServerID{Shard: shard, Addr: addr})
	}
}

func (r *Router) recordReconnect(shard topology.ShardID, addr string) {
	if r.stats != nil {
		r.stats.RecordReconnect(stats.ServerID{Shard: shard, Addr: addr})
	}
}

// SetKeyShardFunc installs a user-supplied key->shard override.
func (r *Router) SetKeyShardFunc(fn KeyShardFunc) { r.keyShard = fn }

// ShardByKey is the pure function of the current SlotMap and key-shard
// policy exposed as part of the public API (spec.md §6).
func (r *Router) ShardByKey(key string) topology.ShardID {
	if r.keyShard != nil {
		return r.keyShard(key)
	}
	return r.slotMap.ShardOf(Slot(key))
}

func preferenceFor(role Role) shardset.Preference {
	if role == RoleMustPrimary {
		return shardset.PreferPrimary
	}
	return shardset.PreferAny
}

// Submit resolves hint to a target shard and either dispatches cmd
// immediately or enqueues it, never blocking the caller (spec.md §4.6).
func (r *Router) Submit(cmd *Command, hint Hint) {
	defaultedCommand(cmd)
	if cmd.expired(time.Now()) {
		cmd.complete(redisx.Reply{}, routerr.ErrTimeout)
		return
	}

	targetID, sh, ok := r.resolveShard(hint)
	if !ok {
		// Unknown slot: queue it, the next topology update may resolve it.
		r.enqueue(cmd, hint)
		return
	}

	pref := preferenceFor(hint.Role)
	if !sh.ReadyFor(pref) {
		r.enqueue(cmd, hint)
		return
	}

	conn, idx, ok := sh.PickConnection(pref, cmd.prevInstance)
	if !ok {
		r.enqueue(cmd, hint)
		return
	}
	cmd.prevInstance = idx

	r.dispatch(cmd, hint, targetID, conn)
}

func (r *Router) resolveShard(hint Hint) (topology.ShardID, *shardset.Shard, bool) {
	switch hint.Kind {
	case HintByShard:
		sh, ok := r.shards.Shard(hint.Shard)
		return hint.Shard, sh, ok
	case HintToSentinel:
		return -1, r.shards.Sentinel(), true
	default: // HintByKey
		id := r.ShardByKey(hint.Key)
		if id == topology.UnknownShard {
			return id, nil, false
		}
		sh, ok := r.shards.Shard(id)
		return id, sh, ok
	}
}

func (r *Router) enqueue(cmd *Command, hint Hint) {
	r.pending.Append(pendingCommand{cmd: cmd, hint: hint, submittedAt: time.Now(), prevInstance: cmd.prevInstance})
	if r.Wake != nil {
		r.Wake()
	}
}

// DrainPending is called by the Controller after a readiness or topology
// change; every queued command is resubmitted exactly once in FIFO order
// (spec.md §8 property), and anything still not ready goes right back on
// the queue for the next drain.
func (r *Router) DrainPending() {
	items := r.pending.DrainAll()
	now := time.Now()
	for _, p := range items {
		if p.cmd.expired(now) {
			p.cmd.complete(redisx.Reply{}, routerr.ErrTimeout)
			continue
		}
		r.Submit(p.cmd, p.hint)
	}
}

// PendingLen reports the current queue depth, for statistics/tests.
func (r *Router) PendingLen() int { return r.pending.Len() }

// FailAllPending completes every queued command with err, used during
// graceful shutdown (spec.md §4.8 Stopping state).
func (r *Router) FailAllPending(err error) {
	items := r.pending.DrainAll()
	for _, p := range items {
		p.cmd.complete(redisx.Reply{}, err)
	}
}

func (r *Router) dispatch(cmd *Command, hint Hint, targetID topology.ShardID, conn redisx.Connection) {
	ctx := context.Background()
	if !cmd.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, cmd.Deadline)
		defer cancel()
	}

	addr := conn.Addr()
	r.recordCommand(targetID, addr)

	conn.Send(ctx, redisx.Command{Args: cmd.Args}, func(reply redisx.Reply, err error) {
		r.handleReply(cmd, hint, targetID, addr, reply, err)
	})
}

func (r *Router) handleReply(cmd *Command, hint Hint, targetID topology.ShardID, addr string, reply redisx.Reply, err error) {
	if err != nil {
		r.handleConnectionError(cmd, hint, targetID, addr, err)
		return
	}

	if reply.Kind != redisx.ReplyError {
		cmd.complete(reply, nil)
		return
	}

	redirect, ok := parseRedirect(reply.Err)
	if !ok {
		r.recordError(targetID, addr)
		cmd.complete(reply, nil) // a plain application error, not a redirect
		return
	}

	r.recordRedirect(targetID, addr)
	switch redirect.Kind {
	case RedirectMoved:
		r.handleMoved(cmd, hint, targetID, redirect)
	case RedirectAsk:
		r.handleAsk(cmd, hint, redirect)
	}
}

func (r *Router) handleMoved(cmd *Command, hint Hint, fromShard topology.ShardID, redirect Redirect) {
	if cmd.redirects >= cmd.MaxRedirects {
		cmd.complete(redisx.Reply{}, routerr.ErrRetryBudgetExhausted)
		return
	}
	cmd.redirects++

	host, port, err := splitHostPort(redirect.HostPort)
	if err != nil {
		cmd.complete(redisx.Reply{}, routerr.ErrParseFailed)
		return
	}

	newShard, found := r.hostIndex.ShardOf(host, port)
	if !found {
		// Unknown host: ask for a full refresh and park the command;
		// DrainPending will retry once the refresh lands.
		if r.RequestClusterRefresh != nil {
			r.RequestClusterRefresh(fromShard)
		}
		r.enqueue(cmd, hint)
		return
	}

	r.slotMap.ApplyMoved(redirect.Slot, newShard)
	if r.RequestClusterRefresh != nil {
		r.RequestClusterRefresh(newShard)
	}

	cmd.prevInstance = -1
	r.Submit(cmd, ByShard(newShard, hint.Role))
}

// handleAsk is the one-shot redirect: resubmit to the named host without
// touching SlotMap (spec.md §4.6). Since the full RESP ASKING/MULTI/EXEC
// dance belongs to the pipeline API this core explicitly excludes
// (spec.md §1 Out of scope), the redirect is honored by routing to
// whichever shard currently owns that address and letting that shard's
// normal connection selection take over.
func (r *Router) handleAsk(cmd *Command, hint Hint, redirect Redirect) {
	host, port, err := splitHostPort(redirect.HostPort)
	if err != nil {
		cmd.complete(redisx.Reply{}, routerr.ErrParseFailed)
		return
	}
	shardID, found := r.hostIndex.ShardOf(host, port)
	if !found {
		r.enqueue(cmd, hint)
		return
	}
	cmd.prevInstance = -1
	r.Submit(cmd, ByShard(shardID, hint.Role))
}

// handleConnectionError handles a transport-level Send failure, distinct
// from a Redis-reported application error: the instance at addr needs
// reconnecting, so it's counted against that instance's reconnect rate
// rather than its error rate (spec.md §12's per-instance weighting treats
// them as separate signals).
func (r *Router) handleConnectionError(cmd *Command, hint Hint, targetID topology.ShardID, addr string, err error) {
	r.recordReconnect(targetID, addr)
	if cmd.retries >= cmd.RetryBudget {
		cmd.complete(redisx.Reply{}, err)
		return
	}
	cmd.retries++
	r.Submit(cmd, hint)
}
