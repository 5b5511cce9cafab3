// Package config loads cluster.Options from a YAML document, as an
// alternate entry point to building Options directly in Go. Field names
// match the external option table exactly (lower snake_case).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kinosuke01/renoir/cluster"
)

type document struct {
	ClusterNodes             []string `yaml:"cluster_nodes"`
	MaxRedirection           int      `yaml:"max_redirection"`
	MaxConnectionError       int      `yaml:"max_connection_error"`
	ConnectRetryInterval     float64  `yaml:"connect_retry_interval"`
	ConnectRetryRandomFactor float64  `yaml:"connect_retry_random_factor"`
	ConnectionAdapter        string   `yaml:"connection_adapter"`
	Password                 string   `yaml:"password"`
}

// Load reads and parses a YAML document at path into cluster.Options.
// Defaulting and validation (non-empty cluster_nodes, known adapter name)
// happen the same way they do for a programmatically-built Options: inside
// cluster.New. Load's own errors are limited to the file and the document
// shape.
func Load(path string) (cluster.Options, error) {
	var opts cluster.Options

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("renoir/config: reading %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return opts, &cluster.ConfigurationError{Reason: fmt.Sprintf("parsing %s: %v", path, err)}
	}

	opts = cluster.Options{
		ClusterNodes:             doc.ClusterNodes,
		MaxRedirection:           doc.MaxRedirection,
		MaxConnectionError:       doc.MaxConnectionError,
		ConnectRetryRandomFactor: doc.ConnectRetryRandomFactor,
		ConnectionAdapter:        doc.ConnectionAdapter,
		Password:                 doc.Password,
	}
	if doc.ConnectRetryInterval > 0 {
		opts.ConnectRetryInterval = time.Duration(doc.ConnectRetryInterval * float64(time.Second))
	}
	return opts, nil
}
