package controller

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/NogameNo-life/redis-sentinel/internal/readiness"
	"github.com/NogameNo-life/redis-sentinel/internal/topology"
)

// NewHTTPHandler provides the introspection surface SPEC_FULL.md §13
// names: /healthz and /shards as laid out by the teacher's
// internal/shards/http.go, extended with /ready, /statistics, /topology.
func NewHTTPHandler(c *Controller) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/shards", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, shardsSnapshot(c))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		mode := parseMode(r.URL.Query().Get("mode"))
		ready := c.WaitConnectedOnce(mode, time.Now())
		writeJSON(w, readyResponse{Ready: ready, Mode: modeString(mode), State: c.State().String()})
	})

	mux.HandleFunc("/statistics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, c.Statistics())
	})

	mux.HandleFunc("/topology", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, topologySnapshot{
			Epoch:     c.slotMap.Epoch(),
			Intervals: c.slotMap.Intervals(),
		})
	})

	return mux
}

type readyResponse struct {
	Ready bool   `json:"ready"`
	Mode  string `json:"mode"`
	State string `json:"state"`
}

type topologySnapshot struct {
	Epoch     uint64              `json:"epoch"`
	Intervals []topology.Interval `json:"intervals"`
}

type shardView struct {
	ID            int                 `json:"id"`
	Name          string              `json:"name"`
	PrimaryReady  bool                `json:"primaryReady"`
	ReplicaReady  bool                `json:"replicaReady"`
	Endpoints     []topology.Endpoint `json:"endpoints"`
	SampleKey     string              `json:"sampleKey,omitempty"`
}

type shardsResponse struct {
	Now    string      `json:"now"`
	Shards []shardView `json:"shards"`
}

func shardsSnapshot(c *Controller) shardsResponse {
	shards := c.MasterShards()
	out := make([]shardView, 0, len(shards))
	for _, sh := range shards {
		primary, replica := sh.Gate().Snapshot()
		key, _ := c.AnyKeyForShard(sh.ID())
		out = append(out, shardView{
			ID:           int(sh.ID()),
			Name:         sh.Name(),
			PrimaryReady: primary,
			ReplicaReady: replica,
			Endpoints:    sh.Endpoints(),
			SampleKey:    key,
		})
	}
	return shardsResponse{Now: time.Now().Format(time.RFC3339Nano), Shards: out}
}

func parseMode(raw string) readiness.Mode {
	switch raw {
	case "replica":
		return readiness.ReplicaOnly
	case "any":
		return readiness.PrimaryOrReplica
	case "all":
		return readiness.PrimaryAndReplica
	case "primary", "":
		return readiness.PrimaryOnly
	default:
		return readiness.PrimaryOnly
	}
}

func modeString(m readiness.Mode) string {
	switch m {
	case readiness.ReplicaOnly:
		return "replica"
	case readiness.PrimaryOrReplica:
		return "any"
	case readiness.PrimaryAndReplica:
		return "all"
	case readiness.PrimaryOnly:
		return "primary"
	default:
		return strconv.Itoa(int(m))
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
