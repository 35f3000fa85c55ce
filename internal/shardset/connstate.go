package shardset

import (
	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// connStatus is a connection's place in the lifecycle spec.md §4.5
// describes: created pending, flips to live once it signals ready, and
// transitions to draining when its endpoint is removed from the shard.
type connStatus int

const (
	statusPending connStatus = iota
	statusLive
	statusDraining
)

type connState struct {
	endpoint topology.Endpoint
	conn     redisx.Connection
	status   connStatus
}
