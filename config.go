package fingermatch

import (
	"github.com/arcspan/fingermatch/internal/metrics"
	"github.com/arcspan/fingermatch/internal/store"
	"github.com/arcspan/fingermatch/pkg/logger"
)

// Config holds the service's tunable parameters plus the collaborators it
// needs injected: Store, Logger, Metrics.
type Config struct {
	NumThreads           int
	CacheSize            int
	EnableCaching        bool
	DefaultMinSimilarity float64
	DefaultMaxResults    int

	Store   store.Store
	Logger  logger.Interface
	Metrics *metrics.Collector
}

// Option configures a Config; see With* functions below.
type Option func(*Config)

func WithNumThreads(n int) Option {
	return func(c *Config) { c.NumThreads = n }
}

func WithCacheSize(size int) Option {
	return func(c *Config) { c.CacheSize = size }
}

func WithEnableCaching(enabled bool) Option {
	return func(c *Config) { c.EnableCaching = enabled }
}

func WithDefaultMinSimilarity(v float64) Option {
	return func(c *Config) { c.DefaultMinSimilarity = v }
}

func WithDefaultMaxResults(n int) Option {
	return func(c *Config) { c.DefaultMaxResults = n }
}

func WithStore(s store.Store) Option {
	return func(c *Config) { c.Store = s }
}

func WithLogger(l logger.Interface) Option {
	return func(c *Config) { c.Logger = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Config) { c.Metrics = m }
}

// defaultConfig seeds the defaults: num_threads=8, cache_size=10000,
// enable_caching=true, default_min_similarity=0.7, default_max_results=10.
func defaultConfig() *Config {
	return &Config{
		NumThreads:           8,
		CacheSize:            10000,
		EnableCaching:        true,
		DefaultMinSimilarity: 0.7,
		DefaultMaxResults:    10,
	}
}

func buildConfig(opts ...Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.NumThreads < 1 {
		cfg.NumThreads = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return cfg
}
