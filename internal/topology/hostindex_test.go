package topology

import "testing"

func TestHostIndexReplaceAndLookup(t *testing.T) {
	h := NewHostIndex()
	old := []Endpoint{
		{Host: "10.0.0.1", Port: 6379, ShardID: 0},
		{Host: "10.0.0.2", Port: 6379, ShardID: 1},
	}
	h.Replace(old)

	if id, ok := h.ShardOf("10.0.0.1", 6379); !ok || id != 0 {
		t.Fatalf("shard of 10.0.0.1: got %d,%v", id, ok)
	}

	next := []Endpoint{
		{Host: "10.0.0.1", Port: 6379, ShardID: 0},
		{Host: "10.0.0.3", Port: 6379, ShardID: 1},
	}
	h.Replace(next)

	if id, ok := h.ShardOf("10.0.0.1", 6379); !ok || id != 0 {
		t.Fatalf("retained endpoint: got %d,%v", id, ok)
	}
	if _, ok := h.ShardOf("10.0.0.2", 6379); ok {
		t.Fatalf("removed endpoint should be NotFound")
	}
	if id, ok := h.ShardOf("10.0.0.3", 6379); !ok || id != 1 {
		t.Fatalf("added endpoint: got %d,%v", id, ok)
	}
}

func TestHostIndexIPv6(t *testing.T) {
	h := NewHostIndex()
	h.Replace([]Endpoint{{Host: "::1", Port: 6380, ShardID: 5}})
	id, ok := h.ShardOf("::1", 6380)
	if !ok || id != 5 {
		t.Fatalf("ipv6 lookup failed: %d,%v", id, ok)
	}
}
