package router

import "github.com/NogameNo-life/redis-sentinel/internal/topology"

// Role selects whether a command must land on a primary or may land on
// any ready connection for its shard.
type Role int

const (
	RoleMustPrimary Role = iota
	RoleAny
)

// HintKind tags which of the three resolution strategies a Hint uses
// (spec.md §4.6 step 1).
type HintKind int

const (
	HintByKey HintKind = iota
	HintByShard
	HintToSentinel
)

// Hint tells Submit how to resolve the target shard for a command.
type Hint struct {
	Kind  HintKind
	Key   string
	Shard topology.ShardID
	Role  Role
}

func ByKey(key string, role Role) Hint {
	return Hint{Kind: HintByKey, Key: key, Role: role}
}

func ByShard(shard topology.ShardID, role Role) Hint {
	return Hint{Kind: HintByShard, Shard: shard, Role: role}
}

func ToSentinel(role Role) Hint {
	return Hint{Kind: HintToSentinel, Role: role}
}
