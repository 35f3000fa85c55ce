// Package redisx is the collaborator layer the core core depends on but
// does not own: wire-level RESP access via go-redis/v9. spec.md §6 treats
// Connection and the per-shard connection pool as external collaborators;
// this package gives them a concrete, swappable implementation so the rest
// of the module has something real to dial against.
package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options describes how to reach one backend instance.
type Options struct {
	Addr     string
	Password string
	DB       int

	// DialTimeout bounds the initial connectivity probe. Defaults to 3s.
	DialTimeout time.Duration
}

// DiscoveryClient is the minimal surface the TopologyPoller needs against
// either a sentinel or a cluster-mode primary: SENTINEL MASTERS/SLAVES and
// CLUSTER SLOTS, plus a generic Do for anything else the Router needs to
// pass straight through to the backend.
type DiscoveryClient interface {
	Close() error
	Ping(ctx context.Context) error

	SentinelMasters(ctx context.Context) ([]map[string]string, error)
	SentinelReplicas(ctx context.Context, masterName string) ([]map[string]string, error)

	ClusterSlots(ctx context.Context) ([]redis.ClusterSlot, error)

	Do(ctx context.Context, args ...interface{}) (interface{}, error)
}

type goRedisDiscoveryClient struct {
	addr string
	plain *redis.Client
	sentinel *redis.SentinelClient
}

// NewDiscoveryClient dials addr and verifies connectivity with a
// short-timeout PING, mirroring the teacher's NewUniversalClient probe.
func NewDiscoveryClient(ctx context.Context, opt Options) (DiscoveryClient, error) {
	if opt.Addr == "" {
		return nil, errors.New("redisx: addr is empty")
	}
	timeout := opt.DialTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	plain := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	sentinel := redis.NewSentinelClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := plain.Ping(pingCtx).Err(); err != nil {
		_ = plain.Close()
		_ = sentinel.Close()
		return nil, err
	}

	return &goRedisDiscoveryClient{addr: opt.Addr, plain: plain, sentinel: sentinel}, nil
}

func (c *goRedisDiscoveryClient) Close() error {
	err1 := c.plain.Close()
	err2 := c.sentinel.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (c *goRedisDiscoveryClient) Ping(ctx context.Context) error {
	return c.plain.Ping(ctx).Err()
}

func (c *goRedisDiscoveryClient) SentinelMasters(ctx context.Context) ([]map[string]string, error) {
	res, err := c.sentinel.Masters(ctx).Result()
	if err != nil {
		return nil, err
	}
	return decodeSentinelRows(res), nil
}

func (c *goRedisDiscoveryClient) SentinelReplicas(ctx context.Context, masterName string) ([]map[string]string, error) {
	res, err := c.sentinel.Replicas(ctx, masterName).Result()
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *goRedisDiscoveryClient) ClusterSlots(ctx context.Context) ([]redis.ClusterSlot, error) {
	return c.plain.ClusterSlots(ctx).Result()
}

func (c *goRedisDiscoveryClient) Do(ctx context.Context, args ...interface{}) (interface{}, error) {
	return c.plain.Do(ctx, args...).Result()
}

// decodeSentinelRows normalizes go-redis's []interface{} rows (each itself
// a flat key/value []interface{}) into plain string maps.
func decodeSentinelRows(rows []interface{}) []map[string]string {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		fields, ok := row.([]interface{})
		if !ok {
			continue
		}
		m := make(map[string]string, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			k, _ := fields[i].(string)
			v, _ := fields[i+1].(string)
			m[k] = v
		}
		out = append(out, m)
	}
	return out
}
