package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type readyStatus struct {
	Ready bool   `json:"ready"`
	Mode  string `json:"mode"`
	State string `json:"state"`
}

// WaitReady polls a running instance's /ready endpoint until it reports
// ready, or deadline elapses. Grounded on the Controller's own
// WaitConnectedOnce, re-expressed as an HTTP poll since sentinelctl
// wait-ready runs as a separate process against a live control surface
// (spec.md §13).
func WaitReady(ctx context.Context, baseURL, mode string, deadline time.Time) (bool, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	url := fmt.Sprintf("%s/ready?mode=%s", baseURL, mode)

	for {
		status, err := fetchReadyStatus(ctx, client, url)
		if err == nil && status.Ready {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			if err != nil {
				return false, err
			}
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func fetchReadyStatus(ctx context.Context, client *http.Client, url string) (readyStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return readyStatus{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return readyStatus{}, err
	}
	defer resp.Body.Close()

	var status readyStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return readyStatus{}, err
	}
	return status, nil
}

// TopologySnapshot mirrors controller.topologySnapshot's JSON shape, read
// back by "sentinelctl topology" from a running instance's /topology
// endpoint.
type TopologySnapshot struct {
	Epoch     uint64 `json:"epoch"`
	Intervals []struct {
		Min, Max int
		Shard    int
	} `json:"intervals"`
}

// FetchTopology retrieves the current slot-to-shard mapping from a
// running instance's control surface.
func FetchTopology(ctx context.Context, baseURL string) (TopologySnapshot, error) {
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/topology", nil)
	if err != nil {
		return TopologySnapshot{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return TopologySnapshot{}, err
	}
	defer resp.Body.Close()

	var snap TopologySnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return TopologySnapshot{}, err
	}
	return snap, nil
}
