package adapter

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

func init() {
	Register("redis", func() Adapter { return redisAdapter{} })
}

// redisAdapter speaks the wire protocol through go-redis/v9. It is
// stateless; all per-node state lives in the *redis.Client a Connection
// wraps.
type redisAdapter struct{}

func (redisAdapter) Open(ctx context.Context, host string, port int, opts Options) (Connection, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: net.JoinHostPort(host, strconv.Itoa(port)),
		Password: opts.Password,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		// One socket per Connection: the Pool above us is what gives "at
		// most one connection per node", not go-redis's own pool.
		PoolSize:        1,
		MinIdleConns:    0,
		DisableIdentity: true,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, err
	}
	return &redisConnection{client: cli}, nil
}

// isProtocolError reports whether err came back from the server (a RESP
// error reply) as opposed to a dial/timeout/network failure. redis.Error is
// go-redis's own marker interface for this distinction.
func isProtocolError(err error) bool {
	if err == nil {
		return false
	}
	var re redis.Error
	return errors.As(err, &re)
}

func parseRedirect(msg string) (Redirect, bool) {
	fields := strings.Fields(msg)
	if len(fields) < 3 {
		return Redirect{}, false
	}
	var kind RedirectKind
	switch fields[0] {
	case "MOVED":
		kind = Moved
	case "ASK":
		kind = Ask
	default:
		return Redirect{}, false
	}
	slot, err := strconv.Atoi(fields[1])
	if err != nil {
		return Redirect{}, false
	}
	return Redirect{Kind: kind, Addr: fields[2], Slot: slot}, true
}

type redisConnection struct {
	client *redis.Client
}

func (c *redisConnection) Raw() interface{} { return c.client }

func (c *redisConnection) Close() error { return c.client.Close() }

func (c *redisConnection) Execute(ctx context.Context, cmds []Command, asking bool) Reply {
	pipe := c.client.Pipeline()

	var askCmd *redis.Cmd
	if asking {
		askCmd = pipe.Do(ctx, "ASKING")
	}
	cmders := make([]*redis.Cmd, len(cmds))
	for i, cmd := range cmds {
		args := make([]interface{}, 0, len(cmd.Args)+1)
		args = append(args, cmd.Name)
		args = append(args, cmd.Args...)
		cmders[i] = pipe.Do(ctx, args...)
	}

	// Exec's own returned error is redundant with the per-command errors
	// below; pipeline execution never fails independently of its commands.
	_, _ = pipe.Exec(ctx)

	if askCmd != nil {
		if err := askCmd.Err(); err != nil && err != redis.Nil {
			if !isProtocolError(err) {
				return Reply{Kind: ReplyConnError, Err: err}
			}
			// A server-level failure of ASKING itself is unexpected but
			// not a redirect; surface it like any other application error.
			return Reply{Kind: ReplyValue, Err: err}
		}
	}

	for _, cmder := range cmders {
		err := cmder.Err()
		if err == nil || err == redis.Nil {
			continue
		}
		if !isProtocolError(err) {
			return Reply{Kind: ReplyConnError, Err: err}
		}
		if redirect, ok := parseRedirect(err.Error()); ok {
			return Reply{Kind: ReplyRedirect, Redirect: redirect}
		}
		return Reply{Kind: ReplyValue, Err: err}
	}

	if len(cmders) == 1 {
		return Reply{Kind: ReplyValue, Value: cmders[0].Val()}
	}
	vals := make([]interface{}, len(cmders))
	for i, cmder := range cmders {
		vals[i] = cmder.Val()
	}
	return Reply{Kind: ReplyValue, Value: vals}
}

// noKeyCommands never carry a routable key.
var noKeyCommands = map[string]bool{
	"PING": true, "INFO": true, "TIME": true, "CLUSTER": true,
	"ASKING": true, "MULTI": true, "EXEC": true, "DISCARD": true,
	"FLUSHDB": true, "FLUSHALL": true, "COMMAND": true, "CLIENT": true,
	"SUBSCRIBE": true, "UNSUBSCRIBE": true, "PSUBSCRIBE": true,
	"SCAN": true, "RANDOMKEY": true, "DBSIZE": true, "SHUTDOWN": true,
}

// allArgsAreKeys commands treat every argument as an independent key.
var allArgsAreKeys = map[string]bool{
	"DEL": true, "UNLINK": true, "EXISTS": true, "MGET": true,
	"TOUCH": true, "WATCH": true,
}

func (redisAdapter) KeysOf(cmd Command) []string {
	name := strings.ToUpper(cmd.Name)
	if noKeyCommands[name] {
		return nil
	}

	switch name {
	case "MSET", "MSETNX":
		keys := make([]string, 0, len(cmd.Args)/2+1)
		for i := 0; i < len(cmd.Args); i += 2 {
			if k, ok := stringArg(cmd.Args[i]); ok {
				keys = append(keys, k)
			}
		}
		return keys
	case "EVAL", "EVALSHA":
		if len(cmd.Args) < 2 {
			return nil
		}
		n, ok := toNumKeys(cmd.Args[1])
		if !ok || n <= 0 {
			return nil
		}
		keys := make([]string, 0, n)
		for i := 0; i < n && 2+i < len(cmd.Args); i++ {
			if k, ok := stringArg(cmd.Args[2+i]); ok {
				keys = append(keys, k)
			}
		}
		return keys
	}

	if allArgsAreKeys[name] {
		var keys []string
		for _, a := range cmd.Args {
			keys = append(keys, extractKeys(a)...)
		}
		return keys
	}

	if len(cmd.Args) == 0 {
		return nil
	}
	return extractKeys(cmd.Args[0])
}

func toNumKeys(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func stringArg(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

// extractKeys recurses into slices and rejects maps outright (no stable
// key ordering to route on).
func extractKeys(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []byte:
		return []string{string(val)}
	case []string:
		return append([]string(nil), val...)
	case []interface{}:
		var keys []string
		for _, e := range val {
			keys = append(keys, extractKeys(e)...)
		}
		return keys
	default:
		return nil
	}
}
