package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL["movers"])
	assert.Equal(t, time.Minute, cfg.FreshnessWindow)
	assert.Equal(t, []string{"ZAR"}, cfg.RestPercentQuotes)
}

func TestLoadMergesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
server_port: 9001
freshness_window: 30s
cache:
  ttl:
    movers: 2m
streams:
  - name: fx
    path: forex
    refresh_reference: true
    instruments:
      - {symbol: EURUSD, name: EUR/USD, category: forex, rest_symbol: EURUSD.FOREX}
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("PORT", "")
	t.Setenv("EODHD_API_KEY", "  demo ")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.ServerPort)
	assert.Equal(t, 30*time.Second, cfg.FreshnessWindow)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL["movers"])
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL["heatmap"], "unset TTLs keep their defaults")
	require.Len(t, cfg.Streams, 1)
	assert.Equal(t, "fx", cfg.Streams[0].Name)
	assert.Equal(t, "demo", cfg.EODHDKey)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "7070")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.ServerPort)
	assert.Len(t, cfg.Streams, 3)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*AppConfig){
		"no streams":      func(c *AppConfig) { c.Streams = nil },
		"empty stream":    func(c *AppConfig) { c.Streams[0].Instruments = nil },
		"bad backend":     func(c *AppConfig) { c.Cache.Backend = "memcached" },
		"redis no addr":   func(c *AppConfig) { c.Cache.Backend = "redis"; c.Cache.RedisAddr = "" },
		"zero window":     func(c *AppConfig) { c.FreshnessWindow = 0 },
		"negative ttl":    func(c *AppConfig) { c.Cache.TTL["quotes"] = -time.Second },
		"duplicate":       func(c *AppConfig) { c.Instruments = append(c.Instruments, c.Streams[0].Instruments[0]) },
		"poller category": func(c *AppConfig) { c.Poller.Categories = []string{"bonds"} },
		"threshold":       func(c *AppConfig) { c.StrengthThreshold = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
