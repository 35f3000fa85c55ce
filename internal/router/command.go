package router

import (
	"time"

	"github.com/NogameNo-life/redis-sentinel/internal/redisx"
)

// Command is one user-facing command plus its control block (spec.md §5
// "Cancellation and timeouts": every command carries a deadline).
type Command struct {
	Args []interface{}

	// Deadline is checked before dispatch and before each retry; an
	// expired command completes with ErrTimeout.
	Deadline time.Time

	// MaxRedirects caps MOVED resubmissions (default 3, spec.md §4.6).
	MaxRedirects int

	// RetryBudget caps connection-level-error resubmissions on different
	// instances (spec.md §7).
	RetryBudget int

	// OnComplete is invoked exactly once with the command's terminal
	// outcome: a successful Reply, or an error from routerr.
	OnComplete func(redisx.Reply, error)

	redirects    int
	retries      int
	prevInstance int
}

// FailCommand completes cmd with err without ever touching a Connection,
// for callers (e.g. Controller.Submit during Stopping) that must reject a
// command before Router.Submit would have a chance to.
func FailCommand(cmd *Command, err error) {
	cmd.complete(redisx.Reply{}, err)
}

func (c *Command) expired(now time.Time) bool {
	return !c.Deadline.IsZero() && now.After(c.Deadline)
}

func (c *Command) complete(reply redisx.Reply, err error) {
	if c.OnComplete != nil {
		c.OnComplete(reply, err)
	}
}

func defaultedCommand(c *Command) {
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 3
	}
}
