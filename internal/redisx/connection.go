package redisx

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplyKind tags which variant a Reply carries (spec.md §6: Array,
// BulkString, Integer, Status, Error).
type ReplyKind int

const (
	ReplyArray ReplyKind = iota
	ReplyBulkString
	ReplyInteger
	ReplyStatus
	ReplyError
)

// Reply is the typed decoded response Connection.Send delivers.
type Reply struct {
	Kind  ReplyKind
	Str   string
	Int   int64
	Array []Reply
	Err   string // set when Kind == ReplyError; the raw server error text
}

// Command is one RESP command to issue: name plus positional arguments.
type Command struct {
	Args []interface{}
}

// Connection is the collaborator interface the Router/Shard depend on
// (spec.md §6). It is event-driven: Send never blocks the caller, and
// readiness/disconnection are reported through registered callbacks rather
// than polled, so the Connection's own goroutine is the only one touching
// the underlying socket.
type Connection interface {
	Send(ctx context.Context, cmd Command, onReply func(Reply, error))
	IsReady() bool
	Close() error

	OnReady(func())
	OnDisconnect(func(error))

	Addr() string
}

// GoRedisConnection is a Connection backed by a single go-redis/v9 client
// pointed at one backend instance. Connectivity is probed once in the
// background at construction; IsReady reflects the result.
type GoRedisConnection struct {
	addr string
	rdb  *redis.Client

	mu           sync.Mutex
	ready        bool
	closed       bool
	onReadyFns   []func()
	onDisconnect []func(error)
}

// NewGoRedisConnection starts dialing addr in the background and returns
// immediately; the caller observes readiness via OnReady/IsReady.
func NewGoRedisConnection(opt Options) *GoRedisConnection {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opt.Addr,
		Password: opt.Password,
		DB:       opt.DB,
	})
	c := &GoRedisConnection{addr: opt.Addr, rdb: rdb}
	go c.probe(opt.DialTimeout)
	return c
}

func (c *GoRedisConnection) probe(timeout time.Duration) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.fireDisconnect(err)
		return
	}

	c.mu.Lock()
	c.ready = true
	fns := append([]func(){}, c.onReadyFns...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *GoRedisConnection) fireDisconnect(err error) {
	c.mu.Lock()
	wasReady := c.ready
	c.ready = false
	fns := append([]func(error){}, c.onDisconnect...)
	c.mu.Unlock()
	_ = wasReady
	for _, fn := range fns {
		fn(err)
	}
}

func (c *GoRedisConnection) Addr() string { return c.addr }

func (c *GoRedisConnection) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready && !c.closed
}

func (c *GoRedisConnection) OnReady(fn func()) {
	c.mu.Lock()
	alreadyReady := c.ready
	c.onReadyFns = append(c.onReadyFns, fn)
	c.mu.Unlock()
	if alreadyReady {
		fn()
	}
}

func (c *GoRedisConnection) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, fn)
	c.mu.Unlock()
}

// Send issues cmd against the underlying client on its own goroutine so the
// caller (the Controller's event loop) is never blocked on socket I/O, and
// decodes the raw go-redis reply into a typed Reply before invoking onReply.
func (c *GoRedisConnection) Send(ctx context.Context, cmd Command, onReply func(Reply, error)) {
	go func() {
		res, err := c.rdb.Do(ctx, cmd.Args...).Result()
		if err != nil {
			if err == redis.Nil {
				onReply(Reply{Kind: ReplyBulkString}, nil)
				return
			}
			if redisErr, ok := err.(redis.Error); ok {
				onReply(Reply{Kind: ReplyError, Err: redisErr.Error()}, nil)
				return
			}
			c.fireDisconnect(err)
			onReply(Reply{}, err)
			return
		}
		onReply(decodeReply(res), nil)
	}()
}

func decodeReply(v interface{}) Reply {
	switch t := v.(type) {
	case int64:
		return Reply{Kind: ReplyInteger, Int: t}
	case string:
		return Reply{Kind: ReplyBulkString, Str: t}
	case []interface{}:
		arr := make([]Reply, 0, len(t))
		for _, e := range t {
			arr = append(arr, decodeReply(e))
		}
		return Reply{Kind: ReplyArray, Array: arr}
	default:
		return Reply{Kind: ReplyStatus, Str: ""}
	}
}

func (c *GoRedisConnection) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.rdb.Close()
}
