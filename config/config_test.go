package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xtaci/ntsock/resolve"
)

func TestLoadResolverOptionsDefaultsOnly(t *testing.T) {
	opts, err := LoadResolverOptions("")
	require.NoError(t, err)

	defaults := resolve.DefaultResolverOptions()
	require.Equal(t, defaults.Client.Attempts, opts.Client.Attempts)
	require.Equal(t, defaults.Client.Timeout, opts.Client.Timeout)
	require.Equal(t, defaults.System.MinThreads, opts.System.MinThreads)
	require.Equal(t, defaults.System.MaxThreads, opts.System.MaxThreads)
	require.True(t, opts.PositiveCache.Enabled)
}

func TestLoadResolverOptionsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolver.yaml")
	body := `
client:
  attempts: 4
  timeout: 2s
  remote_endpoints:
    - 10.0.0.1:53
    - 10.0.0.2:53
host_db:
  enabled: true
  path: /etc/hosts
system:
  max_threads: 8
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	opts, err := LoadResolverOptions(path)
	require.NoError(t, err)

	require.Equal(t, 4, opts.Client.Attempts)
	require.Equal(t, 2*time.Second, opts.Client.Timeout)
	require.Equal(t, []string{"10.0.0.1:53", "10.0.0.2:53"}, opts.Client.RemoteEndpoints)
	require.True(t, opts.HostDB.Enabled)
	require.Equal(t, "/etc/hosts", opts.HostDB.Path)
	require.Equal(t, 8, opts.System.MaxThreads)
	// Fields absent from the file keep their default.
	require.True(t, opts.PositiveCache.Enabled)
}

func TestLoadResolverOptionsEnvOverride(t *testing.T) {
	t.Setenv("NTSOCK_RESOLVER_CLIENT_ATTEMPTS", "3")
	t.Setenv("NTSOCK_RESOLVER_CLIENT_DOTS", "5")

	opts, err := LoadResolverOptions("")
	require.NoError(t, err)

	require.Equal(t, 3, opts.Client.Attempts)
	require.Equal(t, 5, opts.Client.Dots)
}

func TestLoadResolverOptionsMissingFile(t *testing.T) {
	_, err := LoadResolverOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
