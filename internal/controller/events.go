package controller

import (
	"github.com/NogameNo-life/redis-sentinel/internal/poller"
	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
)

// eventKind tags which typed loop event a controllerEvent carries, so the
// loop's single dispatch routine (spec.md §9 "event-loop-specific
// callbacks... re-expressed as typed loop events") switches on it rather
// than juggling a family of bespoke callbacks.
type eventKind int

const (
	evSnapshot eventKind = iota
	evReconfigureSeeds
	evStop
)

type controllerEvent struct {
	kind eventKind

	snapshot poller.Snapshot
	seeds    reconfigureSeeds
}

// reconfigureSeeds carries a live update to the discovery connections the
// Poller queries (spec.md §12's OnModifyConnectionInfo supplement): a new
// sentinel client set and shard name ordering for sentinel mode, or a new
// cluster seed set for cluster mode.
type reconfigureSeeds struct {
	sentinelClients []redisx.DiscoveryClient
	shardNames      []string
	clusterSeeds    []redisx.DiscoveryClient
}
