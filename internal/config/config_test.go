package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 25, cfg.Pipeline.MaxConcurrentCycles)
	assert.Equal(t, int64(10000), cfg.Pipeline.HighWatermark)
	assert.Equal(t, int64(5000), cfg.Pipeline.LowWatermark)
	assert.Equal(t, 60*time.Second, cfg.Fetch.CadenceFor("MLB"))
	assert.Equal(t, 45*time.Second, cfg.Fetch.CadenceFor("NBA"))
	assert.Equal(t, 60*time.Second, cfg.Fetch.CadenceFor("UNLISTED"))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "propline.yaml")
	content := `
server:
  addr: ":9090"
fetch:
  cadences:
    NBA: 15s
providers:
  prizepicks:
    requests_per_minute: 120
    burst: 10
pipeline:
  max_concurrent_cycles: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Fetch.CadenceFor("NBA"))
	assert.Equal(t, 10, cfg.Pipeline.MaxConcurrentCycles)
	assert.Equal(t, 120, cfg.Providers["prizepicks"].RequestsPerMinute)

	// Untouched sections keep their defaults
	assert.Equal(t, int64(10000), cfg.Pipeline.HighWatermark)
}

func TestLoad_DSNFromEnvironment(t *testing.T) {
	t.Setenv("PROPLINE_PG_DSN", "postgres://test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://test", cfg.Store.DSN)
}

func TestValidate_Rejections(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.MaxConcurrentCycles = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Pipeline.LowWatermark = cfg.Pipeline.HighWatermark + 1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.L1Capacity = 0
	assert.Error(t, cfg.Validate())
}
