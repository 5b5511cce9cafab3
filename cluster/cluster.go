// Package cluster implements a client for a sharded in-memory key/value
// store organized as a ring of nodes, each owning a contiguous range of a
// 16384-slot hash space. It transparently follows MOVED/ASK redirects,
// keeps a cached view of slot ownership, and refreshes that view whenever a
// redirect suggests it's stale.
//
// All methods on a Cluster are safe for concurrent use. Connections are
// multiplexed one per node through the pool package; the wire protocol
// itself is delegated to a pluggable adapter.Adapter, selected by
// Options.ConnectionAdapter.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kinosuke01/renoir/adapter"
	"github.com/kinosuke01/renoir/pool"
)

// Cluster wraps an adapter.Adapter and accounts for all slot routing and
// redirection logic.
type Cluster struct {
	opts  Options
	ad    adapter.Adapter
	pool  *pool.Pool
	topo  atomic.Pointer[Topology]
	ready atomic.Bool

	callCh chan func(*Cluster)
	stopCh chan struct{}
	closed sync.Once

	refreshFlag    atomic.Bool
	refreshMu      sync.Mutex
	refreshLimiter *rate.Limiter

	// MissCh is written to (non-blocking) whenever a redirect is observed.
	// Informational only; nothing is actionable from the message itself.
	MissCh chan struct{}

	// ChangeCh is written to (non-blocking) whenever a refresh discovers
	// the set of known nodes has changed.
	ChangeCh chan struct{}
}

// New initializes a Cluster: it seeds a topology from Options.ClusterNodes,
// spins up the mutation actor, and performs the first CLUSTER SLOTS probe
// synchronously. If no node answers the probe, the failure is logged and New
// still returns the Cluster, routing from the seed topology, with Ready
// reporting false until a later refresh succeeds. New returns an error for
// invalid Options or a protocol assertion during the probe.
func New(opts Options) (*Cluster, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	ctor, ok := adapter.Lookup(opts.ConnectionAdapter)
	if !ok {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown connection_adapter %q", opts.ConnectionAdapter)}
	}

	c := &Cluster{
		opts:           opts,
		ad:             ctor(),
		callCh:         make(chan func(*Cluster)),
		stopCh:         make(chan struct{}),
		refreshLimiter: rate.NewLimiter(rate.Every(10*time.Millisecond), 1),
		MissCh:         make(chan struct{}),
		ChangeCh:       make(chan struct{}),
	}
	c.pool = pool.New(c.dial)

	seed := newTopology()
	for _, addr := range opts.ClusterNodes {
		host, port, err := splitAddr(addr)
		if err != nil {
			return nil, &ConfigurationError{Reason: err.Error()}
		}
		seed.addNode(host, port)
	}
	c.topo.Store(seed)

	go c.spin()

	c.refreshFlag.Store(true)
	if err := c.Refresh(context.Background()); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// splitAddr parses a "host:port" seed address. A bare host with no port
// defaults to defaultClusterPort, matching how cluster_nodes entries may be
// given in config.
func splitAddr(addr string) (string, int, error) {
	if !strings.Contains(addr, ":") {
		return addr, defaultClusterPort, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("bad cluster node address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("bad cluster node address %q: %w", addr, err)
	}
	return host, port, nil
}

// spin is the actor loop: every store of a new topology snapshot
// (ensureNode's redirect targets, doRefresh's reloads) funnels through
// callCh so those stores never race with each other. Reads of the published
// topology snapshot bypass it entirely (a lock-free atomic pointer load),
// since spin serializes writers, not readers. The pool does not go through
// spin; it guards its own map with its own lock.
func (c *Cluster) spin() {
	for {
		select {
		case f := <-c.callCh:
			f(c)
		case <-c.stopCh:
			return
		}
	}
}

// mutate runs fn on the actor goroutine and waits for it to finish.
func (c *Cluster) mutate(fn func(*Cluster)) {
	done := make(chan struct{})
	select {
	case c.callCh <- func(cl *Cluster) {
		fn(cl)
		close(done)
	}:
		<-done
	case <-c.stopCh:
	}
}

func (c *Cluster) dial(ctx context.Context, addr string) (adapter.Connection, error) {
	host, port, err := splitAddr(addr)
	if err != nil {
		return nil, err
	}
	return c.ad.Open(ctx, host, port, adapter.Options{
		DialTimeout:  c.opts.DialTimeout,
		ReadTimeout:  c.opts.ReadTimeout,
		WriteTimeout: c.opts.WriteTimeout,
		Password:     c.opts.Password,
	})
}

// ensureNode registers addr in the published topology if it isn't already
// known, without disturbing any existing slot ownership. Used when a
// redirect points at a node the last CLUSTER SLOTS reply didn't mention.
func (c *Cluster) ensureNode(addr string) {
	host, port, err := splitAddr(addr)
	if err != nil {
		return
	}
	c.mutate(func(cl *Cluster) {
		cur := cl.topo.Load()
		if _, ok := cur.nodeByName(addr); ok {
			return
		}
		next := cur.clone()
		next.addNode(host, port)
		cl.topo.Store(next)
	})
}

// Refresh runs the CLUSTER SLOTS reload protocol if (and only if) the
// refresh flag is currently set, collapsing concurrently-observed refresh
// requests into a single in-flight probe. A refresh that fails to reach any
// node is logged and swallowed, never returned to the caller that happened
// to trigger it. Per-call retry/backoff is the router's job, not
// Refresh's.
func (c *Cluster) Refresh(ctx context.Context) error {
	if !c.refreshFlag.CompareAndSwap(true, false) {
		return nil
	}
	if !c.refreshLimiter.Allow() {
		// The request was real, just throttled: re-arm the flag so it
		// isn't lost, rather than silently dropping it on the floor.
		c.refreshFlag.Store(true)
		return nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.doRefresh(ctx)
}

func (c *Cluster) doRefresh(ctx context.Context) error {
	topo := c.topo.Load()
	nodes := topo.Nodes()
	if len(nodes) == 0 {
		return &ProtocolAssertionError{Detail: "no nodes known, nothing to refresh from"}
	}

	var lastErr error
	for _, n := range nodes {
		name := n.Name()
		conn, err := c.pool.Fetch(ctx, name)
		if err != nil {
			c.opts.Logger.WithField("node", name).WithError(err).Warn("renoir: refresh probe connect failed")
			lastErr = err
			continue
		}

		reply := conn.Execute(ctx, []adapter.Command{{Name: "CLUSTER", Args: []interface{}{"SLOTS"}}}, false)
		switch reply.Kind {
		case adapter.ReplyConnError:
			c.opts.Logger.WithField("node", name).WithError(reply.Err).Warn("renoir: refresh probe command failed")
			lastErr = reply.Err
			continue
		case adapter.ReplyRedirect:
			return &ProtocolAssertionError{Detail: "CLUSTER SLOTS answered with a redirect"}
		case adapter.ReplyValue:
			if reply.Err != nil {
				lastErr = reply.Err
				continue
			}
			records, err := parseClusterSlots(reply.Value, n.Host)
			if err != nil {
				lastErr = err
				continue
			}
			next := loadSlots(records)
			changed := !sameNodeSet(topo, next)
			c.mutate(func(cl *Cluster) { cl.topo.Store(next) })
			c.ready.Store(true)
			evicted := c.pool.EvictMissing(next.nameSet())
			for _, name := range evicted {
				c.opts.Logger.WithField("node", name).Debug("renoir: pool evicted stale node")
			}
			c.opts.Logger.WithFields(logrus.Fields{"nodes": len(next.nodes)}).Info("renoir: refresh succeeded")
			if changed {
				select {
				case c.ChangeCh <- struct{}{}:
				default:
				}
			}
			return nil
		}
	}

	c.opts.Logger.WithError(lastErr).Warn("renoir: refresh failed on every known node")
	return nil
}

// Close drains the connection pool and stops the actor goroutine. Safe to
// call more than once.
func (c *Cluster) Close() error {
	c.closed.Do(func() {
		c.pool.CloseAll()
		close(c.stopCh)
	})
	return nil
}

// Ready reports whether the Cluster has completed its first topology load.
func (c *Cluster) Ready() bool { return c.ready.Load() }

// Nodes returns the currently known node descriptors.
func (c *Cluster) Nodes() []Node { return c.topo.Load().Nodes() }

// SlotOwner returns the node name owning slot, if known.
func (c *Cluster) SlotOwner(slot int) (string, bool) { return c.topo.Load().SlotOwner(slot) }

// PoolNodes returns the node names with a live pooled connection.
func (c *Cluster) PoolNodes() []string { return c.pool.Names() }

// Reconnect closes every pooled connection and forces a fresh topology
// load, as if the client had just started up. Useful after a prolonged
// network partition a caller knows has healed.
func (c *Cluster) Reconnect(ctx context.Context) error {
	c.pool.CloseAll()
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.refreshFlag.Store(false)
	return c.doRefresh(ctx)
}

var errNoKnownNodes = errors.New("renoir: no known cluster nodes")
