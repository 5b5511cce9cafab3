package cluster

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kinosuke01/renoir/adapter"
)

// Call routes a single command by the slot of its first key (or all of its
// keys, when the command touches more than one; they must agree on a
// single slot). Any unrecognized command name is dispatched the same way;
// there's no separate surface for "known" commands.
func (c *Cluster) Call(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	cmd := adapter.Command{Name: name, Args: args}
	slot, err := c.slotOf(cmd)
	if err != nil {
		return nil, err
	}
	return c.dispatch(ctx, slot, []adapter.Command{cmd})
}

// slotOf derives the single slot a command's keys agree on.
func (c *Cluster) slotOf(cmd adapter.Command) (int, error) {
	keys := c.ad.KeysOf(cmd)
	if len(keys) == 0 {
		return 0, &RoutingError{Reason: "command carries no key"}
	}
	slot := Slot(keys[0])
	for _, k := range keys[1:] {
		if Slot(k) != slot {
			return 0, &RoutingError{Reason: "command keys span more than one slot"}
		}
	}
	return slot, nil
}

// dispatch is the redirection/retry state machine: one call's worth of
// candidates, current node, ASKING flag, and the redirect/connection-error
// budgets, all scoped to this invocation and discarded when it returns.
func (c *Cluster) dispatch(ctx context.Context, slot int, cmds []adapter.Command) (interface{}, error) {
	topo := c.topo.Load()
	candidates := map[string]bool{}
	for _, n := range topo.Nodes() {
		candidates[n.Name()] = true
	}

	current, ok := topo.SlotOwner(slot)
	if !ok {
		current = randomCandidate(candidates)
	}
	if current == "" {
		return nil, &ConnectionError{Cause: errNoKnownNodes}
	}

	var (
		asking         bool
		redirectCount  int
		connErrorCount int
		connRetryCount int
	)

	for {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}

		delete(candidates, current)

		conn, err := c.pool.Fetch(ctx, current)
		var reply adapter.Reply
		if err != nil {
			reply = adapter.Reply{Kind: adapter.ReplyConnError, Err: err}
		} else {
			reply = conn.Execute(ctx, cmds, asking)
		}
		asking = false

		switch reply.Kind {
		case adapter.ReplyValue:
			return reply.Value, reply.Err

		case adapter.ReplyRedirect:
			redirectCount++
			c.opts.Logger.WithFields(logrus.Fields{
				"kind": redirectKindName(reply.Redirect.Kind),
				"slot": reply.Redirect.Slot,
				"addr": reply.Redirect.Addr,
			}).Debug("renoir: redirect observed")
			select {
			case c.MissCh <- struct{}{}:
			default:
			}
			if redirectCount > c.opts.MaxRedirection {
				return nil, &RedirectionError{Redirects: redirectCount}
			}
			c.ensureNode(reply.Redirect.Addr)
			current = reply.Redirect.Addr
			if reply.Redirect.Kind == adapter.Moved {
				c.refreshFlag.Store(true)
			} else {
				asking = true
			}
			continue

		case adapter.ReplyConnError:
			connErrorCount++
			if connErrorCount > c.opts.MaxConnectionError {
				return nil, &ConnectionError{Cause: reply.Err, Attempts: connErrorCount}
			}
			if len(candidates) > 0 {
				current = randomCandidate(candidates)
				continue
			}
			connRetryCount++
			sleepCtx(ctx, backoff(c.opts.ConnectRetryInterval, c.opts.ConnectRetryRandomFactor, connRetryCount))
			continue
		}
	}
}

func redirectKindName(k adapter.RedirectKind) string {
	if k == adapter.Moved {
		return "MOVED"
	}
	return "ASK"
}

func randomCandidate(candidates map[string]bool) string {
	n := len(candidates)
	if n == 0 {
		return ""
	}
	i := rand.Intn(n)
	for name := range candidates {
		if i == 0 {
			return name
		}
		i--
	}
	return ""
}

// backoff computes the n-th exponential backoff sleep with jitter: a base
// of interval*2^(n-1), scaled by a uniform factor in [1-randomFactor,
// 1+randomFactor].
func backoff(interval time.Duration, randomFactor float64, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	base := float64(interval) * math.Pow(2, float64(n-1))
	jitter := 1 + (rand.Float64()*2-1)*randomFactor
	d := base * jitter
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
