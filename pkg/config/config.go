// Package config loads the retrieval core's configuration from a YAML
// file overlaid with environment variables, producing validated structs
// for each component's constructor. Config loading itself is out of the
// core's scope; this package is a thin, viper-backed layer in front of
// it. It reads a single YAML file; it does not merge a base file with
// per-environment files.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mhassan72/semantic-retrieval-core/pkg/errorkind"
)

// ServerConfig covers transport-only settings.
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// DurableConfig covers the durable (PostgreSQL + pgvector) backend.
type DurableConfig struct {
	URL              string        `mapstructure:"url"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// CacheConfig covers the Redis-backed cache tier.
type CacheConfig struct {
	URL      string `mapstructure:"url"`
	PoolSize int    `mapstructure:"pool_size"`
	LRUSize  int    `mapstructure:"lru_size"`
}

// EmbedderConfig covers the embedding model artifact.
type EmbedderConfig struct {
	ModelPath   string `mapstructure:"model_path"`
	Dimension   int    `mapstructure:"dimension"`
	MaxSequence int    `mapstructure:"max_sequence"`
	Region      string `mapstructure:"region"`
}

// RerankerConfig covers the reranker model artifact.
type RerankerConfig struct {
	ModelPath string `mapstructure:"model_path"`
	Region    string `mapstructure:"region"`
}

// BreakerConfig tunes the circuit breaker defaults applied per backend.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
}

// RetryConfig tunes the retry executor defaults.
type RetryConfig struct {
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	CapDelay   time.Duration `mapstructure:"cap_delay"`
	Jitter     float64       `mapstructure:"jitter"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// RerankServiceConfig tunes the bounded reranking stage.
type RerankServiceConfig struct {
	MaxToRerank         int           `mapstructure:"max_to_rerank"`
	Timeout             time.Duration `mapstructure:"timeout"`
	GracefulDegradation bool          `mapstructure:"graceful_degradation"`
}

// FallbackConfig tunes the fallback coordinator's per-backend deadlines
// and post-merge candidate cap.
type FallbackConfig struct {
	CacheDeadline   time.Duration `mapstructure:"cache_deadline"`
	DurableDeadline time.Duration `mapstructure:"durable_deadline"`
	MaxCandidates   int           `mapstructure:"max_candidates"`
}

// Config is the fully-loaded, validated configuration tree.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Durable       DurableConfig       `mapstructure:"durable"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Embedder      EmbedderConfig      `mapstructure:"embedder"`
	Reranker      RerankerConfig      `mapstructure:"reranker"`
	Breaker       BreakerConfig       `mapstructure:"breaker"`
	Retry         RetryConfig         `mapstructure:"retry"`
	RerankService RerankServiceConfig `mapstructure:"rerank_service"`
	Fallback      FallbackConfig      `mapstructure:"fallback"`
}

// Load reads configPath (a YAML file) and overlays environment variables
// (e.g. RETRIEVAL_DURABLE_URL overrides durable.url), returning a
// validated Config.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("retrieval")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errorkind.Wrap(err, errorkind.Config, "load_config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errorkind.Wrap(err, errorkind.Config, "unmarshal_config")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_grace", 10*time.Second)

	v.SetDefault("durable.max_open_conns", 20)
	v.SetDefault("durable.max_idle_conns", 5)
	v.SetDefault("durable.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("durable.statement_timeout", 500*time.Millisecond)

	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.lru_size", 1024)

	v.SetDefault("embedder.dimension", 384)
	v.SetDefault("embedder.max_sequence", 512)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.window", 60*time.Second)
	v.SetDefault("breaker.reset_timeout", 30*time.Second)
	v.SetDefault("breaker.success_threshold", 2)

	v.SetDefault("retry.base_delay", 100*time.Millisecond)
	v.SetDefault("retry.cap_delay", time.Second)
	v.SetDefault("retry.jitter", 0.1)
	v.SetDefault("retry.max_retries", 3)

	v.SetDefault("rerank_service.max_to_rerank", 50)
	v.SetDefault("rerank_service.timeout", time.Second)
	v.SetDefault("rerank_service.graceful_degradation", true)

	v.SetDefault("fallback.cache_deadline", 400*time.Millisecond)
	v.SetDefault("fallback.durable_deadline", 500*time.Millisecond)
	v.SetDefault("fallback.max_candidates", 130)
}

// Validate checks the invariants spec §6 requires a Config error for:
// non-empty durable/cache URLs, a positive server port, and a positive
// embedding dimension.
func Validate(cfg *Config) error {
	if cfg.Durable.URL == "" {
		return errorkind.New(errorkind.Config, "validate", "durable.url is required")
	}
	if cfg.Cache.URL == "" {
		return errorkind.New(errorkind.Config, "validate", "cache.url is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errorkind.New(errorkind.Config, "validate", "server.port must be in 1..=65535")
	}
	if cfg.Embedder.Dimension <= 0 {
		return errorkind.New(errorkind.Config, "validate", "embedder.dimension must be positive")
	}
	return nil
}
