package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	derror "github.com/distflow/localizer/pkg/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
log-level = "debug"
user = "alice"
metrics-addr = "0.0.0.0:9090"
cache-roots = ["/data/cache0", "/data/cache1"]

[cache]
max-files-per-directory = 4096

[deletion]
workers = 8
delay-sec = 30
`)

	cfg := NewConfig()
	require.NoError(t, cfg.FromFile(path))
	require.NoError(t, cfg.Adjust())

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "alice", cfg.User)
	require.Equal(t, "0.0.0.0:9090", cfg.MetricsAddr)
	require.Equal(t, []string{"/data/cache0", "/data/cache1"}, cfg.CacheRoots)
	require.Equal(t, 4096, cfg.Cache.MaxFilesPerDirectory)
	require.Equal(t, 8, cfg.Deletion.Workers)
	require.Equal(t, 30, cfg.Deletion.DelaySec)
}

func TestConfigRejectsUnknownItem(t *testing.T) {
	path := writeConfigFile(t, `
log-level = "info"
no-such-option = true
`)

	cfg := NewConfig()
	err := cfg.FromFile(path)
	require.Error(t, err)
	require.True(t, derror.ErrConfigUnknownItem.Equal(err))
}

func TestConfigAdjustDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Adjust())

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, defaultUser, cfg.User)
	require.Equal(t, defaultMetricsAddr, cfg.MetricsAddr)
	require.Equal(t, defaultDispatcherShards, cfg.DispatcherShards)
	require.Equal(t, []string{defaultCacheRoot}, cfg.CacheRoots)
	require.NotZero(t, cfg.Cache.MaxFilesPerDirectory)
	require.Equal(t, 4, cfg.Deletion.Workers)
}

func TestConfigRejectsBadCacheCapacity(t *testing.T) {
	cfg := NewConfig()
	cfg.Cache.MaxFilesPerDirectory = 10
	err := cfg.Adjust()
	require.Error(t, err)
	require.True(t, derror.ErrInvalidCacheCapacity.Equal(err))
}
