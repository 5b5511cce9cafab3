package cluster

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kinosuke01/renoir/adapter"
)

// fakeAdapter is a scriptable adapter.Adapter used to drive the router
// through MOVED/ASK/connection-error scenarios without a real server.
type fakeAdapter struct {
	mu           sync.Mutex
	openErr      map[string]error
	openCount    map[string]int32
	scripts      map[string][]adapter.Reply
	clusterSlots map[string]adapter.Reply
	executions   []execution
	closed       map[string]int
}

type execution struct {
	addr   string
	cmd    string
	asking bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		openErr:      map[string]error{},
		openCount:    map[string]int32{},
		scripts:      map[string][]adapter.Reply{},
		clusterSlots: map[string]adapter.Reply{},
		closed:       map[string]int{},
	}
}

func (a *fakeAdapter) Open(ctx context.Context, host string, port int, opts adapter.Options) (adapter.Connection, error) {
	addr := host + ":" + strconv.Itoa(port)
	a.mu.Lock()
	a.openCount[addr]++
	err := a.openErr[addr]
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fakeConn{addr: addr, owner: a}, nil
}

func (a *fakeAdapter) KeysOf(cmd adapter.Command) []string {
	switch strings.ToUpper(cmd.Name) {
	case "PING", "CLUSTER", "FLUSHDB", "MULTI", "EXEC", "INFO", "ASKING":
		return nil
	}
	if len(cmd.Args) == 0 {
		return nil
	}
	if s, ok := cmd.Args[0].(string); ok {
		return []string{s}
	}
	return nil
}

func (a *fakeAdapter) openCalls(addr string) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openCount[addr]
}

func (a *fakeAdapter) lastExecution() (execution, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.executions) == 0 {
		return execution{}, false
	}
	return a.executions[len(a.executions)-1], true
}

type fakeConn struct {
	addr  string
	owner *fakeAdapter
}

func (c *fakeConn) Raw() interface{} { return nil }

func (c *fakeConn) Close() error {
	c.owner.mu.Lock()
	c.owner.closed[c.addr]++
	c.owner.mu.Unlock()
	return nil
}

func (c *fakeConn) Execute(ctx context.Context, cmds []adapter.Command, asking bool) adapter.Reply {
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()

	name := ""
	if len(cmds) > 0 {
		name = cmds[0].Name
	}
	c.owner.executions = append(c.owner.executions, execution{addr: c.addr, cmd: name, asking: asking})

	if len(cmds) == 1 && strings.ToUpper(cmds[0].Name) == "CLUSTER" {
		if r, ok := c.owner.clusterSlots[c.addr]; ok {
			return r
		}
		return adapter.Reply{Kind: adapter.ReplyConnError, Err: fmt.Errorf("fake: no CLUSTER SLOTS scripted for %s", c.addr)}
	}

	q := c.owner.scripts[c.addr]
	if len(q) == 0 {
		return adapter.Reply{Kind: adapter.ReplyValue, Value: "OK"}
	}
	next := q[0]
	if len(q) > 1 {
		c.owner.scripts[c.addr] = q[1:]
	} else {
		c.owner.scripts[c.addr] = nil
	}
	return next
}

// slotsReplyAllTo builds a CLUSTER SLOTS-shaped reply assigning every slot
// to a single master, the common case for these tests.
func slotsReplyAllTo(host string, port int) adapter.Reply {
	return adapter.Reply{
		Kind: adapter.ReplyValue,
		Value: []interface{}{
			[]interface{}{
				int64(0), int64(numSlots - 1),
				[]interface{}{host, int64(port), "fake-id"},
			},
		},
	}
}
