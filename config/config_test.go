package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	body := []byte(`
addr: ":9090"
max_connections: 100
idle_sweep_interval: 30s
idle_timeout: 2m
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	opts, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", opts.Addr)
	require.Equal(t, 100, opts.MaxConnections)
	require.Equal(t, 30*time.Second, opts.IdleSweepInterval)
	require.Equal(t, 2*time.Minute, opts.IdleTimeout)
	// Unset fields keep their Defaults() values.
	require.Equal(t, 1<<20, opts.MaxHeadersSize)
	require.Equal(t, 128, opts.BacklogSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
