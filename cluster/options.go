package cluster

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures a Cluster. The zero value is valid except for
// ClusterNodes, which must name at least one seed "host:port" to connect
// through; New returns a ConfigurationError otherwise.
type Options struct {
	// ClusterNodes seeds the initial topology probe. Any reachable member
	// is enough; the first successful CLUSTER SLOTS reply replaces this
	// seed set with the cluster's actual membership.
	ClusterNodes []string

	// MaxRedirection bounds how many MOVED/ASK hops a single call will
	// chase before giving up with a RedirectionError. Default 10.
	MaxRedirection int

	// MaxConnectionError bounds how many connection errors (across
	// candidate rotation, then backoff rounds once candidates are exhausted)
	// a single call tolerates; the next one gives up with a ConnectionError.
	// Default 5.
	MaxConnectionError int

	// ConnectRetryInterval is the base sleep (before exponential backoff
	// and jitter) once a call has exhausted every candidate node without
	// success. Default 1ms.
	ConnectRetryInterval time.Duration

	// ConnectRetryRandomFactor is the jitter fraction applied on top of
	// the exponential backoff: sleep is drawn uniformly from
	// [base*(1-f), base*(1+f)]. Default 0.1.
	ConnectRetryRandomFactor float64

	// ConnectionAdapter names a registered adapter.Constructor. Default
	// "redis".
	ConnectionAdapter string

	// Logger receives structured diagnostics (refresh failures, redirect
	// observations, pool eviction). Nil installs a discard sink so call
	// sites never need to nil-check.
	Logger logrus.FieldLogger

	// Password, if set, authenticates every connection the adapter opens.
	Password string

	// DialTimeout, ReadTimeout, WriteTimeout bound adapter I/O per
	// connection. Zero means the adapter's own default.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const (
	defaultMaxRedirection         = 10
	defaultMaxConnectionError     = 5
	defaultConnectRetryInterval   = time.Millisecond
	defaultConnectRetryRandFactor = 0.1
	defaultConnectionAdapter      = "redis"
	defaultClusterPort            = 6379
)

// withDefaults returns a copy of o with every zero-valued tunable replaced
// by its documented default, validating ClusterNodes along the way.
func (o Options) withDefaults() (Options, error) {
	if len(o.ClusterNodes) == 0 {
		return o, &ConfigurationError{Reason: "cluster_nodes must name at least one seed node"}
	}
	if o.MaxRedirection == 0 {
		o.MaxRedirection = defaultMaxRedirection
	}
	if o.MaxConnectionError == 0 {
		o.MaxConnectionError = defaultMaxConnectionError
	}
	if o.ConnectRetryInterval == 0 {
		o.ConnectRetryInterval = defaultConnectRetryInterval
	}
	if o.ConnectRetryRandomFactor == 0 {
		o.ConnectRetryRandomFactor = defaultConnectRetryRandFactor
	}
	if o.ConnectionAdapter == "" {
		o.ConnectionAdapter = defaultConnectionAdapter
	}
	if o.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		o.Logger = discard
	}
	return o, nil
}
