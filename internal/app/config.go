package app

import "time"

// Config describes one sentinelctl run: how to discover topology, how to
// dial the backends it finds, and how to serve the HTTP introspection
// surface while the Controller is running. Flags are bound onto the
// matching field the `Luit-rcp`-grounded way (spec.md §10/§13): cobra
// flags -> viper keys -> this struct.
type Config struct {
	// Mode selects sentinel or cluster discovery. One of "sentinel",
	// "cluster".
	Mode string

	// Seeds are the initial discovery endpoints: sentinel addresses in
	// sentinel mode, cluster node addresses in cluster mode.
	Seeds []string

	// ShardNames lists the sentinel master names to track, in shard-ID
	// order. Required in sentinel mode; ignored in cluster mode, where
	// shard identity comes from CLUSTER SLOTS.
	ShardNames []string

	RedisPassword string
	RedisDB       int
	DialTimeout   time.Duration

	PollInterval        time.Duration
	ClusterSlotsTimeout time.Duration
	TrackReplicas       bool

	HTTPAddr  string
	StopGrace time.Duration

	LogLevel string
}
