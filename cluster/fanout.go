package cluster

import (
	"context"
	"fmt"

	"github.com/kinosuke01/renoir/adapter"
)

// EachNode forces a topology refresh, then runs visitor once per known
// node, in a stable order. It stops at the first error.
func (c *Cluster) EachNode(ctx context.Context, visitor func(name string, conn adapter.Connection) error) error {
	c.refreshMu.Lock()
	c.refreshFlag.Store(false)
	err := c.doRefresh(ctx)
	c.refreshMu.Unlock()
	if err != nil {
		return err
	}
	for _, n := range c.topo.Load().Nodes() {
		name := n.Name()
		conn, err := c.pool.Fetch(ctx, name)
		if err != nil {
			return err
		}
		if err := visitor(name, conn); err != nil {
			return err
		}
	}
	return nil
}

// Keys runs KEYS pattern against every node and concatenates the results.
// There's no cluster-wide ordering guarantee beyond node iteration order.
func (c *Cluster) Keys(ctx context.Context, pattern string) ([]string, error) {
	var all []string
	err := c.EachNode(ctx, func(name string, conn adapter.Connection) error {
		reply := conn.Execute(ctx, []adapter.Command{{Name: "KEYS", Args: []interface{}{pattern}}}, false)
		if reply.Kind != adapter.ReplyValue {
			return fmt.Errorf("renoir: keys: unexpected reply from %s", name)
		}
		if reply.Err != nil {
			return reply.Err
		}
		keys, err := toStringSlice(reply.Value)
		if err != nil {
			return err
		}
		all = append(all, keys...)
		return nil
	})
	return all, err
}

// Info runs INFO [section] against every node and returns the raw reply
// keyed by node name.
func (c *Cluster) Info(ctx context.Context, section string) (map[string]string, error) {
	out := map[string]string{}
	var args []interface{}
	if section != "" {
		args = []interface{}{section}
	}
	err := c.EachNode(ctx, func(name string, conn adapter.Connection) error {
		reply := conn.Execute(ctx, []adapter.Command{{Name: "INFO", Args: args}}, false)
		if reply.Kind != adapter.ReplyValue {
			return fmt.Errorf("renoir: info: unexpected reply from %s", name)
		}
		if reply.Err != nil {
			return reply.Err
		}
		s, _ := reply.Value.(string)
		out[name] = s
		return nil
	})
	return out, err
}

// FlushDB runs FLUSHDB against every node.
func (c *Cluster) FlushDB(ctx context.Context) error {
	return c.EachNode(ctx, func(_ string, conn adapter.Connection) error {
		reply := conn.Execute(ctx, []adapter.Command{{Name: "FLUSHDB"}}, false)
		if reply.Kind != adapter.ReplyValue {
			return fmt.Errorf("renoir: flushdb: connection error")
		}
		return reply.Err
	})
}

// MGet fetches keys one at a time through Call, so each key gets the full
// redirect/retry treatment regardless of which node(s) it lives on, and
// assembles the results back in request order. It is a convenience
// wrapper, not a single round trip: keys spanning multiple slots can't be
// sent to the server as one MGET the way same-slot keys could.
func (c *Cluster) MGet(ctx context.Context, keys ...string) ([]interface{}, error) {
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		v, err := c.Call(ctx, "GET", k)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func toStringSlice(v interface{}) ([]string, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("renoir: expected array reply, got %T", v)
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("renoir: expected string element, got %T", e)
		}
		out = append(out, s)
	}
	return out, nil
}
