// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"marketfeed/internal/market"
	"marketfeed/internal/obs"
)

type AppConfig struct {
	ServerPort int           `yaml:"server_port"`
	Log        obs.LogConfig `yaml:"log"`
	Tracing    struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tracing"`
	Providers Providers `yaml:"providers"`

	Streams     []StreamConfig      `yaml:"streams"`
	Instruments []market.Instrument `yaml:"instruments"` // REST/chart only, no stream

	FreshnessWindow          time.Duration `yaml:"freshness_window"`
	ReconnectDelay           time.Duration `yaml:"reconnect_delay"`
	PingInterval             time.Duration `yaml:"ping_interval"`
	ReferenceRefreshInterval time.Duration `yaml:"reference_refresh_interval"`
	// Quote currencies whose streamed percent comes from the REST provider
	// instead of the reference close formula.
	RestPercentQuotes []string `yaml:"rest_percent_quotes"`

	Cache       CacheConfig       `yaml:"cache"`
	Poller      PollerConfig      `yaml:"poller"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Movers      struct {
		TopN       int `yaml:"top_n"`
		StockLimit int `yaml:"stock_limit"`
	} `yaml:"movers"`
	StrengthThreshold float64 `yaml:"strength_threshold"`

	// From the environment only.
	EODHDKey      string `yaml:"-"`
	TwelveDataKey string `yaml:"-"`
}

type Providers struct {
	EODHDStreamURL string        `yaml:"eodhd_stream_url"`
	EODHDRestURL   string        `yaml:"eodhd_rest_url"`
	YahooChartURL  string        `yaml:"yahoo_chart_url"`
	TwelveDataURL  string        `yaml:"twelvedata_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RequestDelay   time.Duration `yaml:"request_delay"`
	UserAgent      string        `yaml:"user_agent"`
}

type StreamConfig struct {
	Name string `yaml:"name"`
	// Path is appended to providers.eodhd_stream_url, e.g. "us" or "forex".
	Path             string              `yaml:"path"`
	RefreshReference bool                `yaml:"refresh_reference"`
	Instruments      []market.Instrument `yaml:"instruments"`
}

type CacheConfig struct {
	Backend        string                   `yaml:"backend"` // memory or redis
	RedisAddr      string                   `yaml:"redis_addr"`
	RedisDB        int                      `yaml:"redis_db"`
	StaleRetention time.Duration            `yaml:"stale_retention"`
	DefaultTTL     time.Duration            `yaml:"default_ttl"`
	TTL            map[string]time.Duration `yaml:"ttl"`
}

type PollerConfig struct {
	Interval   time.Duration `yaml:"interval"` // 0 disables
	Categories []string      `yaml:"categories"`
}

type CorrelationAsset struct {
	Name   string `yaml:"name"`
	Symbol string `yaml:"symbol"`
}

type CorrelationConfig struct {
	Assets        []CorrelationAsset `yaml:"assets"`
	DefaultPeriod int                `yaml:"default_period"`
	MinPoints     int                `yaml:"min_points"`
}

// AllInstruments returns stream instruments followed by REST-only ones.
func (c *AppConfig) AllInstruments() []market.Instrument {
	var out []market.Instrument
	for _, s := range c.Streams {
		out = append(out, s.Instruments...)
	}
	return append(out, c.Instruments...)
}

func (c *AppConfig) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port %d out of range", c.ServerPort)
	}
	if len(c.Streams) == 0 {
		return errors.New("streams cannot be empty")
	}
	for _, s := range c.Streams {
		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Path) == "" {
			return errors.New("stream name and path are required")
		}
		if len(s.Instruments) == 0 {
			return fmt.Errorf("stream %s: instruments cannot be empty", s.Name)
		}
	}
	if _, err := market.NewCatalog(c.AllInstruments()); err != nil {
		return fmt.Errorf("instruments: %w", err)
	}
	for name, d := range map[string]time.Duration{
		"freshness_window":           c.FreshnessWindow,
		"reconnect_delay":            c.ReconnectDelay,
		"ping_interval":              c.PingInterval,
		"reference_refresh_interval": c.ReferenceRefreshInterval,
		"providers.request_timeout":  c.Providers.RequestTimeout,
		"cache.default_ttl":          c.Cache.DefaultTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	for cat, d := range c.Cache.TTL {
		if d <= 0 {
			return fmt.Errorf("cache.ttl.%s must be positive, got %s", cat, d)
		}
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return errors.New("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q: must be memory or redis", c.Cache.Backend)
	}
	for _, cat := range c.Poller.Categories {
		if _, err := market.ParseCategory(cat); err != nil {
			return fmt.Errorf("poller.categories: %w", err)
		}
	}
	if c.StrengthThreshold <= 0 {
		return fmt.Errorf("strength_threshold must be positive, got %.2f", c.StrengthThreshold)
	}
	return nil
}

// Load reads the optional .env file and the YAML file at path on top of Default().
// A missing YAML file is not an error; the defaults stand alone.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	applyEnv(cfg)
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	cfg.EODHDKey = strings.TrimSpace(os.Getenv("EODHD_API_KEY"))
	cfg.TwelveDataKey = strings.TrimSpace(os.Getenv("TWELVEDATA_API_KEY"))
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		if v, _ := strconv.Atoi(p); v > 0 {
			cfg.ServerPort = v
		}
	}
}

// fillDefaults restores zero values a YAML file may have blanked.
func fillDefaults(cfg *AppConfig) {
	def := Default()
	if cfg.ServerPort == 0 {
		cfg.ServerPort = def.ServerPort
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = def.Cache.Backend
	}
	if cfg.Cache.TTL == nil {
		cfg.Cache.TTL = def.Cache.TTL
	}
	if cfg.Correlation.DefaultPeriod <= 0 {
		cfg.Correlation.DefaultPeriod = def.Correlation.DefaultPeriod
	}
	if cfg.Correlation.MinPoints <= 0 {
		cfg.Correlation.MinPoints = def.Correlation.MinPoints
	}
	if cfg.Movers.TopN <= 0 {
		cfg.Movers.TopN = def.Movers.TopN
	}
	if cfg.Movers.StockLimit <= 0 {
		cfg.Movers.StockLimit = def.Movers.StockLimit
	}
	if cfg.Providers.RequestDelay < 0 {
		cfg.Providers.RequestDelay = 0
	}
}
