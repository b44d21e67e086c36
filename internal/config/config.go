// Package config loads Fold's process configuration from the environment
// and an optional config file via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration surface (spec §6.4 plus the
// ambient collaborator settings needed to construct them).
type Config struct {
	DBPath   string `mapstructure:"db_path"`
	FoldRoot string `mapstructure:"fold_root"`

	Indexing IndexingConfig `mapstructure:"indexing"`
	Decay    DecayConfig    `mapstructure:"decay"`
	Queue    QueueConfig    `mapstructure:"queue"`

	VectorStore VectorStoreConfig `mapstructure:"vectorstore"`
	Embedder    EmbedderConfig    `mapstructure:"embedder"`
	LLM         LLMConfig         `mapstructure:"llm"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type IndexingConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	MaxFileBytes  int `mapstructure:"max_file_bytes"`
	LineChunkSize int `mapstructure:"line_chunk_size"`
	LineOverlap   int `mapstructure:"line_overlap"`
	MinChunkLines int `mapstructure:"min_chunk_lines"`
	MaxChunkLines int `mapstructure:"max_chunk_lines"`
}

type DecayConfig struct {
	StrengthWeight float64 `mapstructure:"strength_weight"`
	HalfLifeDays   float64 `mapstructure:"half_life_days"`
}

type QueueConfig struct {
	Workers            int           `mapstructure:"workers"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	StaleAfter         time.Duration `mapstructure:"stale_after"`
	MaxRetries         int           `mapstructure:"max_retries"`
	BaseBackoff        time.Duration `mapstructure:"base_backoff"`
	MaxBackoff         time.Duration `mapstructure:"max_backoff"`
	JobSoftTimeout     time.Duration `mapstructure:"job_soft_timeout"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
}

type VectorStoreConfig struct {
	Endpoint         string        `mapstructure:"endpoint"`
	APIKey           string        `mapstructure:"api_key"`
	CollectionPrefix string        `mapstructure:"collection_prefix"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type EmbedderConfig struct {
	IndexEndpoint  string        `mapstructure:"index_endpoint"`
	IndexModel     string        `mapstructure:"index_model"`
	IndexAPIKey    string        `mapstructure:"index_api_key"`
	SearchEndpoint string        `mapstructure:"search_endpoint"`
	SearchModel    string        `mapstructure:"search_model"`
	SearchAPIKey   string        `mapstructure:"search_api_key"`
	Dimension      int           `mapstructure:"dimension"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type LLMProviderConfig struct {
	Name     string `mapstructure:"name"`
	Priority int    `mapstructure:"priority"`
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

type LLMConfig struct {
	Providers      []LLMProviderConfig `mapstructure:"providers"`
	RequestTimeout time.Duration       `mapstructure:"request_timeout"`
	MaxContentLen  int                 `mapstructure:"max_content_len"`
}

// Load reads configuration from FOLD_-prefixed environment variables and
// an optional fold.yaml/fold.toml in the working directory, applying
// defaults that match spec §6.4 before unmarshalling.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("fold")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("fold")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fold")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_path", "fold.db")
	v.SetDefault("fold_root", ".")

	v.SetDefault("indexing.concurrency", 4)
	v.SetDefault("indexing.max_file_bytes", 100_000)
	v.SetDefault("indexing.line_chunk_size", 50)
	v.SetDefault("indexing.line_overlap", 10)
	v.SetDefault("indexing.min_chunk_lines", 5)
	v.SetDefault("indexing.max_chunk_lines", 200)

	v.SetDefault("decay.strength_weight", 0.3)
	v.SetDefault("decay.half_life_days", 30.0)

	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.heartbeat_interval", 30*time.Second)
	v.SetDefault("queue.sweep_interval", 60*time.Second)
	v.SetDefault("queue.stale_after", 5*time.Minute)
	v.SetDefault("queue.max_retries", 5)
	v.SetDefault("queue.base_backoff", time.Minute)
	v.SetDefault("queue.max_backoff", 2*time.Hour)
	v.SetDefault("queue.job_soft_timeout", 15*time.Minute)
	v.SetDefault("queue.shutdown_grace_period", 30*time.Second)

	v.SetDefault("vectorstore.collection_prefix", "fold_")
	v.SetDefault("vectorstore.timeout", 10*time.Second)

	v.SetDefault("embedder.dimension", 768)
	v.SetDefault("embedder.timeout", 30*time.Second)

	v.SetDefault("llm.request_timeout", 60*time.Second)
	v.SetDefault("llm.max_content_len", 4000)

	v.SetDefault("log_level", "info")
}

// Validate checks invariants that defaults alone can't guarantee (spec
// §6.4's numeric bounds).
func (c *Config) Validate() error {
	if c.Indexing.Concurrency < 1 || c.Indexing.Concurrency > 64 {
		return fmt.Errorf("indexing.concurrency must be 1-64, got %d", c.Indexing.Concurrency)
	}
	if c.Decay.StrengthWeight < 0 || c.Decay.StrengthWeight > 1 {
		return fmt.Errorf("decay.strength_weight must be 0.0-1.0, got %f", c.Decay.StrengthWeight)
	}
	if c.Decay.HalfLifeDays <= 0 {
		return fmt.Errorf("decay.half_life_days must be > 0, got %f", c.Decay.HalfLifeDays)
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be >= 1, got %d", c.Queue.Workers)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must be >= 0, got %d", c.Queue.MaxRetries)
	}
	return nil
}
