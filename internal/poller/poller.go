package poller

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// Mode selects which discovery mechanism a Poller uses.
type Mode int

const (
	ModeSentinel Mode = iota
	ModeCluster
)

// DefaultInterval is the periodic poll timer (spec.md §4.4 "default
// interval 3s").
const DefaultInterval = 3 * time.Second

// DefaultClusterSlotsTimeout bounds a single CLUSTER SLOTS issuance
// (spec.md §4.4 "4000 ms timeout per issuance").
const DefaultClusterSlotsTimeout = 4000 * time.Millisecond

// Poller runs the periodic topology discovery task described in
// spec.md §4.4. It never clears a previously published topology on a
// transient failure — pollOnce logs and keeps the last snapshot's
// fingerprint, leaving the Controller's view untouched until a poll
// actually succeeds.
type Poller struct {
	mode     Mode
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger

	sentinelClients []redisx.DiscoveryClient
	shardNames      []string

	clusterSeeds     []redisx.DiscoveryClient
	cursor           int
	shardIDByPrimary map[string]topology.ShardID
	nextShardID      int

	mu              sync.Mutex
	lastFingerprint uint64
	haveSnapshot    bool

	forceCh chan struct{}
	stopCh  chan struct{}
	once    sync.Once

	// OnSnapshot is invoked on the poller's own goroutine with every
	// snapshot whose fingerprint differs from the last one applied
	// (spec.md §11 "skip a no-op ShardSet.Reconcile").
	OnSnapshot func(Snapshot)

	// OnError is invoked with poll failures; the Controller logs them
	// without touching topology (spec.md §4.4 failure policy).
	OnError func(error)
}

// NewSentinelPoller builds a Poller that discovers topology from the
// named shards (sentinel master names, in shard-id order) via the given
// sentinel clients.
func NewSentinelPoller(clients []redisx.DiscoveryClient, shardNames []string, interval time.Duration, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		mode:            ModeSentinel,
		interval:        interval,
		sentinelClients: clients,
		shardNames:      shardNames,
		forceCh:         make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
		log:             log.With().Str("component", "poller").Str("mode", "sentinel").Logger(),
	}
}

// NewClusterPoller builds a Poller that discovers topology via
// CLUSTER SLOTS against a round-robin set of seed clients.
func NewClusterPoller(seeds []redisx.DiscoveryClient, interval, timeout time.Duration, log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultClusterSlotsTimeout
	}
	return &Poller{
		mode:             ModeCluster,
		interval:         interval,
		timeout:          timeout,
		clusterSeeds:     seeds,
		shardIDByPrimary: make(map[string]topology.ShardID),
		forceCh:          make(chan struct{}, 1),
		stopCh:           make(chan struct{}),
		log:              log.With().Str("component", "poller").Str("mode", "cluster").Logger(),
	}
}

// Run polls once immediately, then on every tick of interval, until ctx
// is canceled or Stop is called. Grounded on the teacher's
// Manager.Run ticker loop.
func (p *Poller) Run(ctx context.Context) {
	p.pollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-p.forceCh:
			p.pollOnce(ctx)
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// UpdateSentinelTargets replaces the sentinel clients and tracked shard
// names a sentinel-mode Poller queries, for externally-supplied connection
// info changing live (spec.md §12's OnModifyConnectionInfo supplement).
// Safe to call concurrently with Run.
func (p *Poller) UpdateSentinelTargets(clients []redisx.DiscoveryClient, shardNames []string) {
	p.mu.Lock()
	p.sentinelClients = clients
	p.shardNames = shardNames
	p.mu.Unlock()
}

// UpdateClusterSeeds replaces the seed clients a cluster-mode Poller
// round-robins CLUSTER SLOTS against.
func (p *Poller) UpdateClusterSeeds(seeds []redisx.DiscoveryClient) {
	p.mu.Lock()
	p.clusterSeeds = seeds
	p.cursor = 0
	p.mu.Unlock()
}

// Stop ends the Run loop.
func (p *Poller) Stop() {
	p.once.Do(func() { close(p.stopCh) })
}

// ForceRefresh requests an immediate poll without waiting for the next
// tick (spec.md §4.8 `force_refresh`).
func (p *Poller) ForceRefresh() {
	select {
	case p.forceCh <- struct{}{}:
	default:
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	pollCtx := ctx
	var cancel context.CancelFunc
	if p.mode == ModeCluster && p.timeout > 0 {
		pollCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var (
		snap Snapshot
		err  error
	)
	if p.mode == ModeSentinel {
		snap, err = p.pollSentinel(pollCtx)
	} else {
		snap, err = p.pollClusterAdapted(pollCtx)
	}

	if err != nil {
		p.log.Warn().Err(err).Msg("topology poll failed, keeping previous snapshot")
		if p.OnError != nil {
			p.OnError(err)
		}
		return
	}

	snap.Fingerprint = fingerprint(snap.Endpoints, snap.Intervals)

	p.mu.Lock()
	unchanged := p.haveSnapshot && snap.Fingerprint == p.lastFingerprint
	p.lastFingerprint = snap.Fingerprint
	p.haveSnapshot = true
	p.mu.Unlock()

	if unchanged {
		p.log.Debug().Msg("topology poll unchanged, skipping reconcile")
		return
	}

	if p.OnSnapshot != nil {
		p.OnSnapshot(snap)
	}
}

// pollClusterAdapted bridges go-redis's []redis.ClusterSlot result to the
// package-local clusterSlot shape pollCluster's parser consumes, so the
// parsing logic is testable against plain structs without a live client.
func (p *Poller) pollClusterAdapted(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	seeds := append([]redisx.DiscoveryClient(nil), p.clusterSeeds...)
	cursor := p.cursor
	p.mu.Unlock()

	n := len(seeds)
	if n == 0 {
		return Snapshot{}, errNoClusterSeeds
	}

	var lastErr error
	for i := 0; i < n; i++ {
		idx := (cursor + i) % n
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		}
		raw, err := seeds[idx].ClusterSlots(callCtx)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		p.mu.Lock()
		p.cursor = (idx + 1) % n
		p.mu.Unlock()
		return p.snapshotFromSlots(adaptClusterSlots(raw)), nil
	}
	return Snapshot{}, lastErr
}

func adaptClusterSlots(raw []redis.ClusterSlot) []clusterSlot {
	out := make([]clusterSlot, 0, len(raw))
	for _, sl := range raw {
		nodes := make([]clusterNode, 0, len(sl.Nodes))
		for _, n := range sl.Nodes {
			nodes = append(nodes, clusterNode{Addr: n.Addr})
		}
		out = append(out, clusterSlot{Start: sl.Start, End: sl.End, Nodes: nodes})
	}
	return out
}
