// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/crawlkit/internal/engine"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Engine   engine.Args    `mapstructure:"engine"`
	Identity IdentityConfig `mapstructure:"identity"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Acquire  AcquireConfig  `mapstructure:"acquire"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the status/metrics HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// IdentityConfig is the read-only identity pool loaded at startup.
type IdentityConfig struct {
	UserAgents []string `mapstructure:"user_agents"`
}

// PolicyConfig parameterizes the built-in static crawl policy.
type PolicyConfig struct {
	SeedURLs        []string      `mapstructure:"seed_urls"`
	ProfileEndpoint string        `mapstructure:"profile_endpoint"`
	MaxDepth        int           `mapstructure:"max_depth"`
	SameHostOnly    bool          `mapstructure:"same_host_only"`
	RequestDelay    time.Duration `mapstructure:"request_delay"`
	DedupeBodies    bool          `mapstructure:"dedupe_bodies"`
}

// FetchConfig selects and tunes the fetch client.
type FetchConfig struct {
	Client         string        `mapstructure:"client"`
	Parallelism    int           `mapstructure:"parallelism"`
	Timeout        time.Duration `mapstructure:"timeout"`
	IgnoreRobots   bool          `mapstructure:"ignore_robots"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	HeadlessMaxTab int           `mapstructure:"headless_max_tabs"`
}

// AcquireConfig tunes the HTTP profile acquirer.
type AcquireConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// PipelineConfig selects the output pipeline provider.
type PipelineConfig struct {
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	GCS      GCSConfig      `mapstructure:"gcs"`
}

// PostgresConfig controls the Postgres pipeline.
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	EntityTable string `mapstructure:"entity_table"`
	ErrorTable  string `mapstructure:"error_table"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
}

// PubSubConfig controls the Pub/Sub pipeline.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// GCSConfig controls the GCS pipeline.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)

	args := engine.DefaultArgs()
	v.SetDefault("engine.ready_batch", args.ReadyBatch)
	v.SetDefault("engine.ready_low_water", args.ReadyLowWater)
	v.SetDefault("engine.ready_high_water", args.ReadyHighWater)
	v.SetDefault("engine.task_batch", args.TaskBatch)
	v.SetDefault("engine.min_profiles_per_round", args.MinProfilesPerRound)
	v.SetDefault("engine.response_batch", args.ResponseBatch)
	v.SetDefault("engine.profile_low_water", args.ProfileLowWater)
	v.SetDefault("engine.profile_high_water", args.ProfileHighWater)
	v.SetDefault("engine.error_flush_threshold", args.ErrorFlushThreshold)
	v.SetDefault("engine.result_flush_threshold", args.ResultFlushThreshold)
	v.SetDefault("engine.skip_seed", args.SkipSeed)
	v.SetDefault("engine.profile_throttle", args.ProfileThrottle)
	v.SetDefault("engine.profile_concurrency", args.ProfileConcurrency)
	v.SetDefault("engine.tick_interval", "100ms")

	v.SetDefault("identity.user_agents", []string{
		"crawlkit/1.0 (+https://github.com/JakeFAU/crawlkit)",
	})

	v.SetDefault("policy.max_depth", 2)
	v.SetDefault("policy.same_host_only", true)
	v.SetDefault("policy.request_delay", "0s")
	v.SetDefault("policy.dedupe_bodies", true)

	v.SetDefault("fetch.client", "colly")
	v.SetDefault("fetch.parallelism", 8)
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.ignore_robots", false)
	v.SetDefault("fetch.nav_timeout", "45s")
	v.SetDefault("fetch.headless_max_tabs", 2)

	v.SetDefault("acquire.timeout", "15s")

	v.SetDefault("pipeline.provider", "noop")
	v.SetDefault("pipeline.postgres.entity_table", "crawl_entities")
	v.SetDefault("pipeline.postgres.error_table", "crawl_errors")
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Engine.ReadyBatch <= 0 || c.Engine.TaskBatch <= 0 || c.Engine.ResponseBatch <= 0 {
		return fmt.Errorf("engine batch sizes must be positive")
	}
	if c.Engine.ReadyLowWater >= c.Engine.ReadyHighWater {
		return fmt.Errorf("engine.ready_low_water must be below engine.ready_high_water")
	}
	if c.Engine.ProfileLowWater >= c.Engine.ProfileHighWater {
		return fmt.Errorf("engine.profile_low_water must be below engine.profile_high_water")
	}
	if c.Engine.ProfileThrottle <= 0 {
		return fmt.Errorf("engine.profile_throttle must be positive")
	}
	if len(c.Identity.UserAgents) == 0 {
		return fmt.Errorf("identity.user_agents must not be empty")
	}
	switch c.Fetch.Client {
	case "colly", "headless":
	default:
		return fmt.Errorf("unknown fetch client: %s", c.Fetch.Client)
	}
	switch c.Pipeline.Provider {
	case "noop", "postgres", "pubsub", "gcs":
	default:
		return fmt.Errorf("unknown pipeline provider: %s", c.Pipeline.Provider)
	}
	return nil
}
