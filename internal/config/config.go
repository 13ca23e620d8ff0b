package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oddsforge/propline/internal/provider"
	"github.com/oddsforge/propline/internal/store"
)

// Config is the full service configuration
type Config struct {
	Server    ServerConfig               `yaml:"server"`
	Providers map[string]provider.Config `yaml:"providers"`
	Fetch     FetchConfig                `yaml:"fetch"`
	Cache     CacheConfig                `yaml:"cache"`
	Store     store.Config               `yaml:"store"`
	Redis     RedisConfig                `yaml:"redis"`
	Pipeline  PipelineConfig             `yaml:"pipeline"`
	Taxonomy  TaxonomyConfig             `yaml:"taxonomy"`
	Logging   LoggingConfig              `yaml:"logging"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// FetchConfig sets per-sport fetch cadences; live sports poll faster
type FetchConfig struct {
	Cadences map[string]time.Duration `yaml:"cadences"`
	Default  time.Duration            `yaml:"default"`
}

// CadenceFor returns the fetch interval for a sport
func (f FetchConfig) CadenceFor(sport string) time.Duration {
	if d, ok := f.Cadences[sport]; ok && d > 0 {
		return d
	}
	if f.Default > 0 {
		return f.Default
	}
	return 60 * time.Second
}

// CacheConfig sets tier capacities and TTLs
type CacheConfig struct {
	L1Capacity int           `yaml:"l1_capacity"`
	L1TTL      time.Duration `yaml:"l1_ttl"`
	L2TTL      time.Duration `yaml:"l2_ttl"`
	WarmOnBoot bool          `yaml:"warm_on_boot"`
}

// RedisConfig configures the shared L2 tier
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// PipelineConfig bounds pipeline concurrency and queueing
type PipelineConfig struct {
	MaxConcurrentCycles int           `yaml:"max_concurrent_cycles"`
	HighWatermark       int64         `yaml:"high_watermark"`
	LowWatermark        int64         `yaml:"low_watermark"`
	CycleTimeout        time.Duration `yaml:"cycle_timeout"`
	StoreBufferCapacity int           `yaml:"store_buffer_capacity"`
	BoostFactor         float64       `yaml:"boost_factor"`
}

// TaxonomyConfig locates the mapping file and controls hot reload
type TaxonomyConfig struct {
	File      string `yaml:"file"`
	HotReload bool   `yaml:"hot_reload"`
}

// LoggingConfig controls zerolog output
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Providers: map[string]provider.Config{},
		Fetch: FetchConfig{
			Cadences: map[string]time.Duration{
				"MLB": 60 * time.Second,
				"NBA": 45 * time.Second,
				"NFL": 120 * time.Second,
				"NHL": 60 * time.Second,
			},
			Default: 60 * time.Second,
		},
		Cache: CacheConfig{
			L1Capacity: 50000,
			L1TTL:      5 * time.Minute,
			L2TTL:      15 * time.Minute,
			WarmOnBoot: true,
		},
		Store: store.DefaultConfig(),
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Enabled: false,
		},
		Pipeline: PipelineConfig{
			MaxConcurrentCycles: 25,
			HighWatermark:       10000,
			LowWatermark:        5000,
			CycleTimeout:        2 * time.Minute,
			StoreBufferCapacity: 5000,
			BoostFactor:         1.3,
		},
		Taxonomy: TaxonomyConfig{
			HotReload: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged. PROPLINE_PG_DSN overrides the store DSN so
// credentials stay out of config files.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if dsn := os.Getenv("PROPLINE_PG_DSN"); dsn != "" {
		cfg.Store.DSN = dsn
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Pipeline.MaxConcurrentCycles <= 0 {
		return fmt.Errorf("pipeline.max_concurrent_cycles must be positive")
	}
	if c.Pipeline.LowWatermark > c.Pipeline.HighWatermark {
		return fmt.Errorf("pipeline.low_watermark must not exceed high_watermark")
	}
	if c.Cache.L1Capacity <= 0 {
		return fmt.Errorf("cache.l1_capacity must be positive")
	}
	for name, p := range c.Providers {
		if p.RequestsPerMinute <= 0 {
			return fmt.Errorf("provider %s: requests_per_minute must be positive", name)
		}
	}
	return nil
}
