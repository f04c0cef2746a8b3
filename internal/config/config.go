// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/entityscope/entityscope/internal/scoring"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Gate       GateConfig       `mapstructure:"gate"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Store      StoreConfig      `mapstructure:"store"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Datasets   DatasetsConfig   `mapstructure:"datasets"`
	Scoring    scoring.Config   `mapstructure:"scoring"`
	Escalation EscalationConfig `mapstructure:"escalation"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlConfig governs the static fetch path.
type CrawlConfig struct {
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxRedirects   int      `mapstructure:"max_redirects"`
	UserAgent      string   `mapstructure:"user_agent"`
	UserAgents     []string `mapstructure:"user_agents"`
	ArchivePrefix  string   `mapstructure:"archive_prefix"`
}

// HeadlessConfig configures the rendered-fetch subsystem.
type HeadlessConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	MaxParallel       int     `mapstructure:"max_parallel"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	DomainQPS         float64 `mapstructure:"domain_qps"`
}

// EscalationConfig holds the static-to-rendered promotion thresholds.
type EscalationConfig struct {
	MinWordCount   int `mapstructure:"min_word_count"`
	MaxScriptCount int `mapstructure:"max_script_count"`
}

// DiscoveryConfig bounds the identity-surface walk.
type DiscoveryConfig struct {
	MaxSurfaces    int `mapstructure:"max_surfaces"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// GateConfig tunes the lite-crawl promotion gate.
type GateConfig struct {
	MinSchemaObjects int `mapstructure:"min_schema_objects"`
}

// BatchConfig controls the chunked batch executor.
type BatchConfig struct {
	ChunkSize            int    `mapstructure:"chunk_size"`
	TimeBudgetSeconds    int    `mapstructure:"time_budget_seconds"`
	EntityTimeoutSeconds int    `mapstructure:"entity_timeout_seconds"`
	CooldownMillis       int    `mapstructure:"cooldown_ms"`
	LiteFirst            bool   `mapstructure:"lite_first"`
	CompletionTopic      string `mapstructure:"completion_topic"`
}

// PoolConfig bounds the ad-hoc multi-URL audit pool.
type PoolConfig struct {
	Size int `mapstructure:"size"`
}

// StoreConfig selects and parameterizes the job store backend.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	TTLHours int    `mapstructure:"ttl_hours"`
	BoltPath string `mapstructure:"bolt_path"`
	DSN      string `mapstructure:"dsn"`
}

// ArchiveConfig selects the evidence archive backend.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
}

// PubSubConfig holds metadata for batch-completion notifications. Emulate
// swaps in the in-memory publisher for local runs.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Emulate   bool   `mapstructure:"emulate"`
}

// DatasetsConfig points at the vertical dataset catalog.
type DatasetsConfig struct {
	Dir string `mapstructure:"dir"`
}

// Store providers.
const (
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
)

// Archive providers.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENTITYSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{Scoring: scoring.DefaultConfig()}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("crawl.timeout_seconds", 20)
	v.SetDefault("crawl.max_redirects", 5)
	v.SetDefault("crawl.archive_prefix", "evidence")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.domain_qps", 1.0)
	v.SetDefault("escalation.min_word_count", 200)
	v.SetDefault("escalation.max_script_count", 60)
	v.SetDefault("discovery.max_surfaces", 4)
	v.SetDefault("discovery.timeout_seconds", 20)
	v.SetDefault("gate.min_schema_objects", 2)
	v.SetDefault("batch.chunk_size", 5)
	v.SetDefault("batch.time_budget_seconds", 50)
	v.SetDefault("batch.entity_timeout_seconds", 25)
	v.SetDefault("batch.cooldown_ms", 1000)
	v.SetDefault("batch.lite_first", false)
	v.SetDefault("pool.size", 4)
	v.SetDefault("store.provider", StoreMemory)
	v.SetDefault("store.ttl_hours", 24)
	v.SetDefault("archive.provider", ArchiveNone)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.timeout_seconds must be > 0")
	}
	if c.Batch.TimeBudgetSeconds <= 0 {
		return fmt.Errorf("batch.time_budget_seconds must be > 0")
	}
	if c.Batch.EntityTimeoutSeconds >= c.Batch.TimeBudgetSeconds {
		return fmt.Errorf("batch.entity_timeout_seconds must be below the time budget")
	}
	if c.Pool.Size <= 0 {
		return fmt.Errorf("pool.size must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Store.Provider {
	case StoreMemory:
	case StoreBolt:
		if c.Store.BoltPath == "" {
			return fmt.Errorf("store.bolt_path must be set for the bolt provider")
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown store.provider %q", c.Store.Provider)
	}
	switch c.Archive.Provider {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local provider")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	if c.Batch.CompletionTopic != "" && !c.PubSub.Emulate && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when batch.completion_topic is configured")
	}
	if len(c.Scoring.Weights) == 0 {
		return fmt.Errorf("scoring.weights must not be empty")
	}
	return nil
}

// TimeBudget returns the per-invocation wall-clock fence.
func (c Config) TimeBudget() time.Duration {
	return time.Duration(c.Batch.TimeBudgetSeconds) * time.Second
}

// EntityTimeout returns the per-URL pipeline cap.
func (c Config) EntityTimeout() time.Duration {
	return time.Duration(c.Batch.EntityTimeoutSeconds) * time.Second
}

// Cooldown returns the inter-URL sleep.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Batch.CooldownMillis) * time.Millisecond
}

// StoreTTL returns the job record TTL.
func (c Config) StoreTTL() time.Duration {
	return time.Duration(c.Store.TTLHours) * time.Hour
}
