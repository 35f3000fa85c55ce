// Package controller wires SlotMap, HostIndex, ReadinessGates, ShardSet,
// Router, KeyGeneration, Statistics and one TopologyPoller into the
// single-threaded event-loop owner spec.md §4.8 describes, grounded on
// SentinelImpl::Init/Start/Stop in the original implementation and on
// the teacher's Manager.Run/Manager.Stop ticker-driven lifecycle.
package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/NogameNo-life/redis-sentinel/internal/keygen"
	"github.com/NogameNo-life/redis-sentinel/internal/poller"
	"github.com/NogameNo-life/redis-sentinel/internal/readiness"
	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
	"github.com/NogameNo-life/redis-sentinel/internal/router"
	"github.com/NogameNo-life/redis-sentinel/internal/routerr"
	"github.com/NogameNo-life/redis-sentinel/internal/shardset"
	"github.com/NogameNo-life/redis-sentinel/internal/stats"
	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// Mode selects sentinel-based or cluster-slots-based discovery, mirroring
// poller.Mode one layer up so callers configuring a Controller don't need
// to import internal/poller directly.
type Mode int

const (
	ModeSentinel Mode = iota
	ModeCluster
)

// Config is everything Init needs to build the initial Shards and wire
// the discovery loop (spec.md §4.8 "build initial Shards from seed
// connection info").
type Config struct {
	Mode Mode

	// Sentinel mode.
	SentinelClients []redisx.DiscoveryClient
	ShardNames      []string

	// Cluster mode.
	ClusterSeeds []redisx.DiscoveryClient

	// SentinelEndpoints, if set, are dialed into the dedicated sentinel
	// Shard (spec.md §2 component 5) so Router can submit
	// router.ToSentinel commands straight through to SENTINEL itself.
	SentinelEndpoints []topology.Endpoint

	PollInterval        time.Duration
	ClusterSlotsTimeout time.Duration

	// TrackReplicas gates whether replica connections are dialed at all
	// (spec.md §12's track_slaves_ supplement): when false, replica
	// endpoints are dropped before reconciliation, so a shard's replica
	// bit stays false and wait modes that require it never succeed.
	// Primaries are always tracked; there is no TrackMasters option.
	TrackReplicas bool

	// Dial builds a Connection for a newly seen endpoint. Defaults to a
	// redisx.GoRedisConnection.
	Dial shardset.DialFunc

	// ConnectPassword/ConnectDB configure the default Dial when Dial is
	// left nil.
	ConnectPassword string
	ConnectDB       int
	DialTimeout     time.Duration

	// StopGrace bounds how long Stop waits for outstanding Connection
	// replies before abandoning them (spec.md §5 "implicit grace
	// deadline").
	StopGrace time.Duration

	// StatsDecayInterval paces Statistics' counter decay. Defaults to
	// stats.DefaultDecayInterval.
	StatsDecayInterval time.Duration
}

// Controller is the event-loop owner described by spec.md §4.8. Submit,
// ShardByKey, and the other read-mostly public methods are safe to call
// from any goroutine without routing through the loop: Router, SlotMap,
// HostIndex, and Shard already provide their own concurrency safety
// (spec.md §5 point 2), so only topology mutation and lifecycle
// transitions are serialized onto the loop goroutine.
type Controller struct {
	cfg Config
	log zerolog.Logger

	mu    sync.Mutex
	state State

	slotMap   *topology.SlotMap
	hostIndex *topology.HostIndex
	shards    *shardset.Set
	router    *router.Router
	keygen    *keygen.Generator
	stats     *stats.Statistics
	poller    *poller.Poller

	dial shardset.DialFunc

	events  chan controllerEvent
	wakeCh  chan struct{}
	doneCh  chan struct{}
	pollCtx context.Context
	cancel  context.CancelFunc

	stopping atomic.Bool
}

// New constructs a Controller in the Created state; Init must be called
// before Start.
func New(cfg Config, log zerolog.Logger) *Controller {
	c := &Controller{
		cfg:       cfg,
		log:       log.With().Str("component", "controller").Logger(),
		state:     Created,
		slotMap:   topology.NewSlotMap(),
		hostIndex: topology.NewHostIndex(),
		shards:    shardset.New(),
		stats:     stats.New(),
		events:    make(chan controllerEvent, 32),
		wakeCh:    make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
	}
	c.dial = cfg.Dial
	if c.dial == nil {
		c.dial = c.defaultDial
	}
	c.keygen = keygen.New(func(key string) int { return router.Slot(key) })
	c.router = router.New(c.shards, c.slotMap, c.hostIndex, c.stats, c.log)
	c.router.Wake = c.postWake
	c.router.RequestClusterRefresh = func(topology.ShardID) { c.ForceUpdateHosts() }
	c.shards.OnReadinessChange(c.postWake)
	return c
}

func (c *Controller) defaultDial(ep topology.Endpoint) redisx.Connection {
	return redisx.NewGoRedisConnection(redisx.Options{
		Addr:        ep.HostPort(),
		Password:    c.cfg.ConnectPassword,
		DB:          c.cfg.ConnectDB,
		DialTimeout: c.cfg.DialTimeout,
	})
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the Controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Init builds the Poller for cfg.Mode, dials the sentinel Shard's
// endpoints if any, and transitions Created -> Initialized (spec.md
// §4.8). It does not start polling or the event loop — Start does.
func (c *Controller) Init(ctx context.Context) error {
	if c.State() != Created {
		return fmt.Errorf("controller: Init called in state %s", c.State())
	}

	switch c.cfg.Mode {
	case ModeSentinel:
		if len(c.cfg.SentinelClients) == 0 || len(c.cfg.ShardNames) == 0 {
			return fmt.Errorf("%w: sentinel mode requires SentinelClients and ShardNames", routerr.ErrInitFailed)
		}
		c.poller = poller.NewSentinelPoller(c.cfg.SentinelClients, c.cfg.ShardNames, c.cfg.PollInterval, c.log)
	case ModeCluster:
		if len(c.cfg.ClusterSeeds) == 0 {
			return fmt.Errorf("%w: cluster mode requires ClusterSeeds", routerr.ErrInitFailed)
		}
		c.poller = poller.NewClusterPoller(c.cfg.ClusterSeeds, c.cfg.PollInterval, c.cfg.ClusterSlotsTimeout, c.log)
	default:
		return fmt.Errorf("%w: unknown mode %d", routerr.ErrInitFailed, c.cfg.Mode)
	}
	c.poller.OnSnapshot = func(snap poller.Snapshot) { c.events <- controllerEvent{kind: evSnapshot, snapshot: snap} }
	c.poller.OnError = func(err error) { c.log.Warn().Err(err).Msg("topology poll failed") }

	if len(c.cfg.SentinelEndpoints) > 0 {
		c.shards.ReconcileSentinel(c.cfg.SentinelEndpoints, c.dial)
		c.hostIndex.Replace(c.shards.AllEndpoints())
	}

	c.setState(Initialized)
	return nil
}

// Start launches the Poller and the event loop, and transitions
// Initialized -> Running. It returns immediately; both run on their own
// goroutines until Stop is called or ctx is canceled.
func (c *Controller) Start(ctx context.Context) error {
	if c.State() != Initialized {
		return fmt.Errorf("controller: Start called in state %s", c.State())
	}

	c.pollCtx, c.cancel = context.WithCancel(ctx)
	go c.poller.Run(c.pollCtx)
	go c.stats.Run(c.pollCtx, c.cfg.StatsDecayInterval)
	go c.loop()

	c.setState(Running)
	return nil
}

// loop is the single dispatch routine spec.md §9 calls for: it owns every
// mutation of SlotMap/HostIndex/ShardSet/ReadinessGate and is the only
// goroutine that ever calls shardset.Set.Reconcile.
func (c *Controller) loop() {
	defer close(c.doneCh)
	for {
		select {
		case ev := <-c.events:
			switch ev.kind {
			case evSnapshot:
				c.applyTopology(ev.snapshot)
				c.router.DrainPending()
			case evReconfigureSeeds:
				c.applyReconfigureSeeds(ev.seeds)
			case evStop:
				return
			}
		case <-c.wakeCh:
			c.router.DrainPending()
		}
	}
}

func (c *Controller) postWake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// applyTopology reconciles every shard named in snap against the
// ShardSet, rebuilds HostIndex, updates SlotMap (synthesizing equal-width
// slot intervals in sentinel mode, since there is no CLUSTER SLOTS to
// source them from — see DESIGN.md), closes drained connections only
// after the new views are published (spec.md §4.5's ordering guarantee),
// and regenerates sample keys.
//
// A shard whose entry is empty in a Partial snapshot is skipped rather
// than reconciled: Partial means at least one source failed to answer
// this poll, so an empty endpoint list for that shard may just mean its
// sentinels didn't respond, not that the shard is actually gone (spec.md
// §4.4 "do not clear topology on transient failure"). Reconciling it
// anyway would read as "every endpoint removed" and drain live
// connections on a failure that the next poll would have retried.
func (c *Controller) applyTopology(snap poller.Snapshot) {
	for id, eps := range snap.Endpoints {
		name := snap.ShardNames[id]
		eps = c.filterByTracking(eps)
		if snap.Partial && len(eps) == 0 {
			c.log.Warn().Int("shard", int(id)).Str("name", name).
				Msg("partial snapshot has no endpoints for shard, retaining previous topology")
			continue
		}
		c.shards.Reconcile(id, name, eps, c.dial)
	}

	c.hostIndex.Replace(c.shards.AllEndpoints())

	intervals := snap.Intervals
	if len(intervals) == 0 {
		intervals = synthesizeIntervals(snap.ShardNames)
	}
	if err := c.slotMap.Update(intervals); err != nil {
		c.log.Warn().Err(err).Msg("rejected invalid slot intervals, keeping previous SlotMap")
	}

	c.shards.CloseDrained()
	c.keygen.Regenerate(c.slotMap.Epoch(), intervals)
}

// filterByTracking drops replica endpoints when TrackReplicas is false
// (spec.md §12's track_slaves_ supplement).
func (c *Controller) filterByTracking(eps []topology.Endpoint) []topology.Endpoint {
	if c.cfg.TrackReplicas {
		return eps
	}
	out := make([]topology.Endpoint, 0, len(eps))
	for _, e := range eps {
		if e.Role == topology.RolePrimary {
			out = append(out, e)
		}
	}
	return out
}

// synthesizeIntervals assigns each sentinel-mode shard an equal-width
// slice of the 16384-slot space, in ShardID order, so the default CRC16
// key->shard resolution and KeyGeneration work identically whether the
// topology came from CLUSTER SLOTS or from SENTINEL MASTERS (spec.md §1:
// "route ... using either a user-supplied key->shard function OR a
// 16384-slot CRC hash" — this resolves the otherwise-silent question of
// how that CRC hash partitions sentinel-tracked shards; see DESIGN.md).
func synthesizeIntervals(names map[topology.ShardID]string) []topology.Interval {
	if len(names) == 0 {
		return nil
	}
	ids := make([]topology.ShardID, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	n := len(ids)
	width := topology.SlotCount / n
	out := make([]topology.Interval, 0, n)
	min := 0
	for i, id := range ids {
		max := min + width - 1
		if i == n-1 {
			max = topology.SlotCount - 1
		}
		out = append(out, topology.Interval{Min: min, Max: max, Shard: id})
		min = max + 1
	}
	return out
}

func (c *Controller) applyReconfigureSeeds(seeds reconfigureSeeds) {
	switch c.cfg.Mode {
	case ModeSentinel:
		c.poller.UpdateSentinelTargets(seeds.sentinelClients, seeds.shardNames)
	case ModeCluster:
		c.poller.UpdateClusterSeeds(seeds.clusterSeeds)
	}
	c.poller.ForceRefresh()
}

// UpdateConnectionInfo replaces the discovery connections the Poller
// queries, live, without a restart (spec.md §12's OnModifyConnectionInfo
// / ev_async watch_create_ supplement).
func (c *Controller) UpdateConnectionInfo(sentinelClients []redisx.DiscoveryClient, shardNames []string, clusterSeeds []redisx.DiscoveryClient) {
	c.events <- controllerEvent{kind: evReconfigureSeeds, seeds: reconfigureSeeds{
		sentinelClients: sentinelClients,
		shardNames:      shardNames,
		clusterSeeds:    clusterSeeds,
	}}
}

// ForceUpdateHosts signals the Poller to run a topology query immediately
// without waiting for the next tick (spec.md §4.8 force_refresh).
func (c *Controller) ForceUpdateHosts() {
	if c.poller != nil {
		c.poller.ForceRefresh()
	}
}

// Submit resolves and dispatches cmd, failing it immediately with
// ShuttingDown once Stop has begun (spec.md §4.8 Stopping: "stop
// accepting submissions").
func (c *Controller) Submit(cmd *router.Command, hint router.Hint) {
	if c.stopping.Load() {
		router.FailCommand(cmd, routerr.ErrShuttingDown)
		return
	}
	c.router.Submit(cmd, hint)
}

// ShardByKey is the pure function of the current SlotMap and key-shard
// policy (spec.md §6).
func (c *Controller) ShardByKey(key string) topology.ShardID { return c.router.ShardByKey(key) }

// SetKeyShardFunc installs a user-supplied key->shard override.
func (c *Controller) SetKeyShardFunc(fn router.KeyShardFunc) { c.router.SetKeyShardFunc(fn) }

// ShardsCount returns the number of tracked shards.
func (c *Controller) ShardsCount() int { return c.shards.ShardsCount() }

// AnyKeyForShard returns a sample key whose slot falls inside shard's
// current range, for diagnostics and keyslot probes (spec.md §4.7).
func (c *Controller) AnyKeyForShard(shard topology.ShardID) (string, bool) { return c.keygen.KeyFor(shard) }

// AvailableServersWeighted returns per-instance load-balancing weights
// for shard's current endpoints, for upstream callers doing their own
// client-side balancing (spec.md §6).
func (c *Controller) AvailableServersWeighted(shard topology.ShardID, withPrimary bool) map[stats.ServerID]int {
	sh, ok := c.shards.Shard(shard)
	if !ok {
		return nil
	}
	return c.stats.AvailableServersWeighted(shard, withPrimary, sh.Endpoints())
}

// MasterShards returns a reference-counted snapshot of the tracked
// shards (spec.md §6 get_master_shards).
func (c *Controller) MasterShards() []*shardset.Shard { return c.shards.MasterShards() }

// WaitConnectedOnce blocks until every tracked shard's ReadinessGate
// satisfies mode, or deadline elapses (spec.md §4.8 wait_ready).
func (c *Controller) WaitConnectedOnce(mode readiness.Mode, deadline time.Time) bool {
	for _, sh := range c.shards.MasterShards() {
		if !sh.Gate().WaitUntil(deadline, mode) {
			return false
		}
	}
	return true
}

// WaitConnectedDebug is the relaxed variant accepting shards with zero
// live replicas (spec.md §4.8 wait_ready_debug).
func (c *Controller) WaitConnectedDebug(allowEmptySlaves bool, deadline time.Time) bool {
	mode := readiness.PrimaryAndReplica
	if allowEmptySlaves {
		mode = readiness.PrimaryOnly
	}
	return c.WaitConnectedOnce(mode, deadline)
}

// PendingLen reports the current pending-queue depth, for introspection
// and tests.
func (c *Controller) PendingLen() int { return c.router.PendingLen() }

// Statistics returns an immutable snapshot of per-instance counters
// (spec.md §6).
func (c *Controller) Statistics() stats.Snapshot { return c.stats.Snapshot() }

// Stop transitions Running -> Stopping -> Stopped: stops accepting new
// submissions, fails every pending command with ShuttingDown, waits up to
// cfg.StopGrace (or ctx's deadline, if sooner) for outstanding Connection
// replies, then closes every Connection (spec.md §4.8).
func (c *Controller) Stop(ctx context.Context) error {
	if c.State() != Running {
		return fmt.Errorf("controller: Stop called in state %s", c.State())
	}
	c.setState(Stopping)
	c.stopping.Store(true)
	c.router.FailAllPending(routerr.ErrShuttingDown)

	grace := c.cfg.StopGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	// Outstanding Send calls deliver their own replies asynchronously and
	// never block on the loop; this window just bounds how long we leave
	// Connections open for those in-flight replies before closing them.
	graceCtx, cancel := context.WithTimeout(ctx, grace)
	<-graceCtx.Done()
	cancel()

	if c.poller != nil {
		c.poller.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.events <- controllerEvent{kind: evStop}
	<-c.doneCh
	// The loop may have been mid-drain during the first FailAllPending and
	// re-enqueued what it held; with the loop gone, fail whatever is left.
	c.router.FailAllPending(routerr.ErrShuttingDown)

	c.shards.CloseAll()
	c.setState(Stopped)
	return nil
}
