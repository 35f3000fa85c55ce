// Package keygen implements the per-shard sample-key service
// (spec.md §4.7), grounded on SentinelImpl::GenerateKeysForShards in
// the original implementation: for diagnostics and keyslot probes,
// every shard needs one short ASCII key whose slot falls inside it.
package keygen

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// MaxLen is the default brute-force search bound (spec.md §4.7).
const MaxLen = 4

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// SlotFunc computes a key's cluster slot; installed so this package
// doesn't import router and create a cycle.
type SlotFunc func(key string) int

// Snapshot is the immutable, atomically-published result of one
// generation pass: one key per known shard.
type Snapshot struct {
	KeyByShard map[topology.ShardID]string
}

// Generator owns the published Snapshot and regenerates it whenever the
// SlotMap's epoch advances (spec.md §4.7 "regenerate when slot topology
// changes"), mirroring the teacher's atomic-swap-on-refresh discipline.
type Generator struct {
	slot      SlotFunc
	maxLen    int
	cur       atomic.Pointer[Snapshot]
	lastEpoch atomic.Uint64
	everRun   atomic.Bool

	fpMu sync.Mutex
	fp   map[topology.ShardID]uint64
}

// New builds a Generator using slot as the slot-hashing function.
func New(slot SlotFunc) *Generator {
	g := &Generator{slot: slot, maxLen: MaxLen, fp: make(map[topology.ShardID]uint64)}
	empty := Snapshot{KeyByShard: map[topology.ShardID]string{}}
	g.cur.Store(&empty)
	return g
}

// intervalFingerprint is the xxhash digest of an interval's bounds, the
// same cheap-change-detection technique poller.fingerprint uses for whole
// topology snapshots, scoped here to one shard's interval so a shard
// whose bounds haven't moved skips the brute-force search entirely even
// when other shards in the same poll did change.
func intervalFingerprint(iv topology.Interval) uint64 {
	return xxhash.Sum64String(strconv.Itoa(iv.Min) + ":" + strconv.Itoa(iv.Max))
}

// Current returns the most recently generated snapshot.
func (g *Generator) Current() Snapshot {
	return *g.cur.Load()
}

// KeyFor returns the cached sample key for shard, if one has been
// generated.
func (g *Generator) KeyFor(shard topology.ShardID) (string, bool) {
	snap := g.cur.Load()
	k, ok := snap.KeyByShard[shard]
	return k, ok
}

// Regenerate brute-forces a sample key for every shard in intervals that
// doesn't already have a valid one, and publishes the result. epoch
// gates against running the (non-trivial) search twice for the same
// topology version.
func (g *Generator) Regenerate(epoch uint64, intervals []topology.Interval) {
	if g.everRun.Load() && epoch == g.lastEpoch.Load() {
		return
	}
	g.everRun.Store(true)
	g.lastEpoch.Store(epoch)

	prev := g.cur.Load()
	next := make(map[topology.ShardID]string, len(intervals))

	g.fpMu.Lock()
	defer g.fpMu.Unlock()
	nextFP := make(map[topology.ShardID]uint64, len(intervals))

	for _, iv := range intervals {
		if iv.Shard == topology.UnknownShard {
			continue
		}

		fp := intervalFingerprint(iv)
		nextFP[iv.Shard] = fp
		if existing, ok := prev.KeyByShard[iv.Shard]; ok && g.fp[iv.Shard] == fp {
			next[iv.Shard] = existing
			continue
		}
		if key, ok := g.search(iv); ok {
			next[iv.Shard] = key
		}
	}

	g.fp = nextFP
	g.cur.Store(&Snapshot{KeyByShard: next})
}

func (g *Generator) slotInRange(key string, iv topology.Interval) bool {
	s := g.slot(key)
	return s >= iv.Min && s <= iv.Max
}

// search brute-forces ASCII keys of increasing length up to maxLen over
// the alphabet [a-z0-9], accepting the first whose slot falls in iv
// (spec.md §4.7).
func (g *Generator) search(iv topology.Interval) (string, bool) {
	maxLen := g.maxLen
	if maxLen <= 0 {
		maxLen = MaxLen
	}
	for l := 1; l <= maxLen; l++ {
		if key, ok := g.searchLen(l, iv); ok {
			return key, true
		}
	}
	return "", false
}

func (g *Generator) searchLen(l int, iv topology.Interval) (string, bool) {
	buf := make([]byte, l)
	for i := range buf {
		buf[i] = alphabet[0]
	}

	for {
		key := string(buf)
		if g.slotInRange(key, iv) {
			return key, true
		}
		if !increment(buf) {
			return "", false
		}
	}
}

// increment advances buf to the next combination over alphabet,
// odometer-style; returns false once every combination has been tried.
func increment(buf []byte) bool {
	for i := len(buf) - 1; i >= 0; i-- {
		idx := indexOf(buf[i])
		if idx+1 < len(alphabet) {
			buf[i] = alphabet[idx+1]
			return true
		}
		buf[i] = alphabet[0]
	}
	return false
}

func indexOf(b byte) int {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == b {
			return i
		}
	}
	return 0
}
