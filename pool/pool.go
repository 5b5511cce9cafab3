// Package pool keeps at most one adapter.Connection open per cluster node.
// It is a lazily-built registry rather than a checkin/checkout pool: the
// router fetches the connection for a node and holds onto it for the
// duration of one batch, and eviction is driven entirely by topology
// reloads rather than idle-timeout churn.
package pool

import (
	"context"
	"sync"

	"github.com/kinosuke01/renoir/adapter"
)

// Dialer opens a fresh Connection to the node named addr ("host:port"). The
// Pool calls it only when no connection for that name is pooled: on first
// use, on a Fetch after a failed dial, or after eviction.
type Dialer func(ctx context.Context, addr string) (adapter.Connection, error)

// Pool is safe for concurrent use. Reads take the fast path under an RLock;
// only the first caller to see a given node missing pays the dial cost,
// guarded by a full Lock with a second look at the map (double-checked
// locking) so concurrent first-callers don't all dial at once.
type Pool struct {
	mu    sync.RWMutex
	conns map[string]adapter.Connection
	dial  Dialer
}

func New(dial Dialer) *Pool {
	return &Pool{
		conns: make(map[string]adapter.Connection),
		dial:  dial,
	}
}

// Fetch returns the Connection for addr, dialing it on first use.
func (p *Pool) Fetch(ctx context.Context, addr string) (adapter.Connection, error) {
	p.mu.RLock()
	conn, ok := p.conns[addr]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.conns[addr]; ok {
		return conn, nil
	}

	conn, err := p.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	p.conns[addr] = conn
	return conn, nil
}

// EvictMissing closes and drops every connection whose node name is not in
// keep. Called after a topology reload so a node removed from the cluster
// doesn't keep its socket open forever. Returns the evicted names for
// logging.
func (p *Pool) EvictMissing(keep map[string]bool) []string {
	p.mu.Lock()
	var stale []adapter.Connection
	var names []string
	for name, conn := range p.conns {
		if !keep[name] {
			stale = append(stale, conn)
			names = append(names, name)
			delete(p.conns, name)
		}
	}
	p.mu.Unlock()

	for _, conn := range stale {
		conn.Close()
	}
	return names
}

// CloseAll closes every pooled connection and empties the pool. Safe to call
// more than once.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]adapter.Connection)
	p.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// Names returns the node names currently pooled, for introspection only.
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.conns))
	for name := range p.conns {
		names = append(names, name)
	}
	return names
}
