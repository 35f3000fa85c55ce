package keygen

import (
	"testing"

	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

func slotOf(key string) int {
	sum := 0
	for i := 0; i < len(key); i++ {
		sum += int(key[i])
	}
	return sum % topology.SlotCount
}

func TestRegenerateProducesOneKeyPerShard(t *testing.T) {
	g := New(slotOf)
	intervals := []topology.Interval{
		{Min: 0, Max: 100, Shard: 0},
		{Min: 101, Max: 200, Shard: 1},
	}
	g.Regenerate(1, intervals)

	for _, iv := range intervals {
		key, ok := g.KeyFor(iv.Shard)
		if !ok {
			t.Fatalf("expected a sample key for shard %d", iv.Shard)
		}
		s := slotOf(key)
		if s < iv.Min || s > iv.Max {
			t.Fatalf("sample key %q for shard %d has slot %d outside [%d,%d]", key, iv.Shard, s, iv.Min, iv.Max)
		}
	}
}

func TestRegenerateSkipsUnchangedEpoch(t *testing.T) {
	g := New(slotOf)
	intervals := []topology.Interval{{Min: 0, Max: 100, Shard: 0}}
	g.Regenerate(1, intervals)
	first, _ := g.KeyFor(0)

	g.Regenerate(1, []topology.Interval{{Min: 5000, Max: 5100, Shard: 0}})
	second, _ := g.KeyFor(0)

	if first != second {
		t.Fatalf("expected Regenerate to no-op on an unchanged epoch, got %q then %q", first, second)
	}
}

func TestRegenerateResearchesWhenIntervalBoundsChange(t *testing.T) {
	g := New(slotOf)
	g.Regenerate(1, []topology.Interval{{Min: 0, Max: 100, Shard: 0}})
	first, _ := g.KeyFor(0)

	g.Regenerate(2, []topology.Interval{{Min: 5000, Max: 5100, Shard: 0}})
	second, _ := g.KeyFor(0)

	if first == second {
		t.Fatalf("expected a new key once shard 0's bounds moved, got %q both times", first)
	}
	s := slotOf(second)
	if s < 5000 || s > 5100 {
		t.Fatalf("sample key %q has slot %d outside the new bounds [5000,5100]", second, s)
	}
}

func TestRegenerateReusesValidKeyAcrossEpochs(t *testing.T) {
	g := New(slotOf)
	intervals := []topology.Interval{{Min: 0, Max: 16383, Shard: 0}}
	g.Regenerate(1, intervals)
	first, _ := g.KeyFor(0)

	g.Regenerate(2, intervals)
	second, _ := g.KeyFor(0)

	if first != second {
		t.Fatalf("expected a still-valid key to be reused across epochs, got %q then %q", first, second)
	}
}
