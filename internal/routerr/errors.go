// Package routerr defines the small sentinel-error vocabulary every core
// component returns instead of throwing (spec.md §7). Every operation that
// can fail returns a tagged outcome; callers see these arrive as the
// command's reply variant.
package routerr

import "errors"

// Routing errors — surfaced to the caller, never retried internally.
var (
	ErrUnknownShard      = errors.New("routing: unknown shard")
	ErrNoReadyConnection = errors.New("routing: no ready connection")
	ErrShuttingDown      = errors.New("routing: shutting down")
)

// Redirections — recovered internally.
var (
	ErrMoved = errors.New("redirect: moved")
	ErrAsk   = errors.New("redirect: ask")
)

// Connection errors — retried up to the caller's retry budget.
var (
	ErrDisconnected  = errors.New("connection: disconnected")
	ErrTimeout       = errors.New("connection: timeout")
	ErrProtocolError = errors.New("connection: protocol error")
)

// Topology errors — logged internally by the poller and Controller. The
// Router also completes a command with ErrParseFailed when a MOVED/ASK
// target cannot be parsed.
var (
	ErrSentinelUnreachable  = errors.New("topology: sentinel unreachable")
	ErrParseFailed          = errors.New("topology: parse failed")
	ErrInconsistentSnapshot = errors.New("topology: inconsistent snapshot")
)

// ErrInitFailed is fatal: it only occurs during Init and aborts startup.
var ErrInitFailed = errors.New("controller: init failed")

// ErrRetryBudgetExhausted is the terminal error delivered once a command's
// redirect/retry cap (spec.md §4.6) is spent.
var ErrRetryBudgetExhausted = errors.New("routing: retry budget exhausted")
