package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// TestCRCSlotMappingKnownVector exercises spec.md §8 scenario 1: "foo"
// hashes to slot 12182, the standard Redis Cluster test vector, and a
// SlotMap built from the canonical three-shard split resolves it to
// shard 2.
func TestCRCSlotMappingKnownVector(t *testing.T) {
	require.Equal(t, 12182, Slot("foo"))

	r, _, sm, _ := newTestRig(t)
	require.NoError(t, sm.Update([]topology.Interval{
		{Min: 0, Max: 5460, Shard: 0},
		{Min: 5461, Max: 10922, Shard: 1},
		{Min: 10923, Max: 16383, Shard: 2},
	}))

	require.Equal(t, topology.ShardID(2), r.ShardByKey("foo"))
}

// TestHashTagRoutesToSharedShard exercises spec.md §8 scenario 2: two
// keys sharing a `{user1000}` hash tag route to the same shard as a bare
// key equal to the tag contents.
func TestHashTagRoutesToSharedShard(t *testing.T) {
	require.Equal(t, Slot("user1000"), Slot("{user1000}.followers"))
	require.Equal(t, Slot("user1000"), Slot("{user1000}.profile"))

	r, _, sm, _ := newTestRig(t)
	require.NoError(t, sm.Update([]topology.Interval{
		{Min: 0, Max: 5460, Shard: 0},
		{Min: 5461, Max: 10922, Shard: 1},
		{Min: 10923, Max: 16383, Shard: 2},
	}))

	want := r.ShardByKey("{user1000}.followers")
	require.Equal(t, want, r.ShardByKey("{user1000}.profile"))
	require.Equal(t, topology.ShardID(1), want)
}
