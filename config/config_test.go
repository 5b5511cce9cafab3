package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesClusterNodes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "renoir.yaml")
	doc := "cluster_nodes:\n  - \"10.0.0.1:6379\"\n  - \"10.0.0.2:6379\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"10.0.0.1:6379", "10.0.0.2:6379"}
	if len(opts.ClusterNodes) != len(want) {
		t.Fatalf("ClusterNodes = %v, want %v", opts.ClusterNodes, want)
	}
	for i, n := range want {
		if opts.ClusterNodes[i] != n {
			t.Errorf("ClusterNodes[%d] = %q, want %q", i, opts.ClusterNodes[i], n)
		}
	}
	// Tunables left unset in the document stay zero-valued; cluster.New
	// applies the documented defaults uniformly regardless of where
	// Options came from.
	if opts.MaxRedirection != 0 {
		t.Errorf("MaxRedirection = %d, want 0 (deferred to cluster.New)", opts.MaxRedirection)
	}
}

func TestLoadOverridesTunables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "renoir.yaml")
	doc := "cluster_nodes: [\"10.0.0.1:6379\"]\n" +
		"max_redirection: 3\n" +
		"max_connection_error: 7\n" +
		"connect_retry_interval: 0.5\n" +
		"connect_retry_random_factor: 0.2\n" +
		"connection_adapter: \"redis\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	opts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.MaxRedirection != 3 {
		t.Errorf("MaxRedirection = %d, want 3", opts.MaxRedirection)
	}
	if opts.MaxConnectionError != 7 {
		t.Errorf("MaxConnectionError = %d, want 7", opts.MaxConnectionError)
	}
	if opts.ConnectRetryRandomFactor != 0.2 {
		t.Errorf("ConnectRetryRandomFactor = %v, want 0.2", opts.ConnectRetryRandomFactor)
	}
	if opts.ConnectRetryInterval.Seconds() != 0.5 {
		t.Errorf("ConnectRetryInterval = %v, want 0.5s", opts.ConnectRetryInterval)
	}
	if opts.ConnectionAdapter != "redis" {
		t.Errorf("ConnectionAdapter = %q, want redis", opts.ConnectionAdapter)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadMalformedYAMLIsConfigurationError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "renoir.yaml")
	if err := os.WriteFile(path, []byte("cluster_nodes: [not, valid: yaml"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected a parse error")
	}
}
