package cluster

import (
	"context"

	"github.com/kinosuke01/renoir/adapter"
)

// Pipeline accumulates commands for a single batch. It has no behavior of
// its own beyond recording; Cluster.Pipelined/Multi decide how the
// recorded commands are framed and dispatched.
type Pipeline struct {
	cmds []adapter.Command
}

// Command appends name/args to the batch.
func (p *Pipeline) Command(name string, args ...interface{}) {
	p.cmds = append(p.cmds, adapter.Command{Name: name, Args: args})
}

// Pipelined runs fn to accumulate a batch, then dispatches every command in
// it to a single node in one round trip. Every key across the batch must
// hash to the same slot, or it's rejected with a RoutingError before
// anything is sent.
func (c *Cluster) Pipelined(ctx context.Context, fn func(p *Pipeline)) (interface{}, error) {
	p := &Pipeline{}
	fn(p)
	return c.sendBatch(ctx, p.cmds)
}

// Multi is Pipelined wrapped in MULTI/EXEC, for atomic execution of the
// batch on its owning node. Cross-slot transactions remain out of scope:
// the same single-slot requirement applies to the wrapped commands.
func (c *Cluster) Multi(ctx context.Context, fn func(p *Pipeline)) (interface{}, error) {
	p := &Pipeline{}
	fn(p)

	batch := make([]adapter.Command, 0, len(p.cmds)+2)
	batch = append(batch, adapter.Command{Name: "MULTI"})
	batch = append(batch, p.cmds...)
	batch = append(batch, adapter.Command{Name: "EXEC"})
	return c.sendBatch(ctx, batch)
}

func (c *Cluster) sendBatch(ctx context.Context, cmds []adapter.Command) (interface{}, error) {
	slot, err := c.slotOfBatch(cmds)
	if err != nil {
		return nil, err
	}
	return c.dispatch(ctx, slot, cmds)
}

// slotOfBatch dedupes keys across every command in the batch (MULTI/EXEC
// themselves carry none) and requires they resolve to exactly one slot.
func (c *Cluster) slotOfBatch(cmds []adapter.Command) (int, error) {
	seenKeys := map[string]bool{}
	seenSlots := map[int]bool{}
	for _, cmd := range cmds {
		if cmd.Name == "MULTI" || cmd.Name == "EXEC" {
			continue
		}
		for _, k := range c.ad.KeysOf(cmd) {
			if seenKeys[k] {
				continue
			}
			seenKeys[k] = true
			seenSlots[Slot(k)] = true
		}
	}
	switch len(seenSlots) {
	case 0:
		return 0, &RoutingError{Reason: "batch carries no key"}
	case 1:
		for s := range seenSlots {
			return s, nil
		}
	}
	return 0, &RoutingError{Reason: "batch keys span more than one slot"}
}
