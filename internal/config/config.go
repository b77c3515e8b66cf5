package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/efebarandurmaz/impactgraph/internal/graph"
)

// Config holds all application configuration.
type Config struct {
	Source   SourceConfig     `mapstructure:"source"`
	Cache    CacheConfig      `mapstructure:"cache"`
	Redis    RedisConfig      `mapstructure:"redis"`
	Graph    GraphConfig      `mapstructure:"graph"`
	Vector   VectorConfig     `mapstructure:"vector"`
	Ledger   LedgerConfig     `mapstructure:"ledger"`
	Links    LinksConfig      `mapstructure:"links"`
	Temporal TemporalConfig   `mapstructure:"temporal"`
	Scoring  ScoringConfig    `mapstructure:"scoring"`
	Server   ServerConfig     `mapstructure:"server"`
	Tracing  TracingConfig    `mapstructure:"tracing"`
	Log      LogConfig        `mapstructure:"log"`
	Tables   graph.TableNames `mapstructure:"tables"`
	Fields   graph.FieldNames `mapstructure:"fields"`
}

// SourceConfig selects where table snapshots come from: "airtable" or a
// directory of JSON exports ("file").
type SourceConfig struct {
	Kind     string         `mapstructure:"kind"`
	Dir      string         `mapstructure:"dir"`
	Airtable AirtableConfig `mapstructure:"airtable"`
}

type AirtableConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	BaseID            string        `mapstructure:"base_id"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxRetries        uint          `mapstructure:"max_retries"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds the snapshot cache. Backend is "memory", "redis" or
// "none"; a zero TTL disables caching.
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// GraphConfig is the Neo4j mirror. An empty URI disables it.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// VectorConfig is the Qdrant project index. An empty host disables it.
type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	TopK       int    `mapstructure:"top_k"`
}

// LedgerConfig is the applied-link history. Driver is "sqlite" or
// "postgres"; an empty DSN disables it.
type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// LinksConfig selects the store apply writes to: "airtable" or "neo4j".
type LinksConfig struct {
	Writer string `mapstructure:"writer"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type ScoringConfig struct {
	// TaxonomyPath overrides the embedded taxonomy.
	TaxonomyPath string `mapstructure:"taxonomy_path"`
	// Cap overrides the taxonomy cap when positive.
	Cap int `mapstructure:"cap"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
	RetryAfter      time.Duration `mapstructure:"retry_after"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Mode  string `mapstructure:"mode"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.kind", "airtable")
	v.SetDefault("source.dir", "")
	v.SetDefault("source.airtable.base_url", "https://api.airtable.com")
	v.SetDefault("source.airtable.api_key", "")
	v.SetDefault("source.airtable.base_id", "")
	v.SetDefault("source.airtable.requests_per_second", 5.0)
	v.SetDefault("source.airtable.max_retries", 5)
	v.SetDefault("source.airtable.timeout", 30*time.Second)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "impactgraph:")

	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "neo4j")

	v.SetDefault("vector.host", "")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "impactgraph_projects")
	v.SetDefault("vector.top_k", 50)

	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.dsn", "")

	v.SetDefault("links.writer", "airtable")

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "impactgraph-links")

	v.SetDefault("scoring.taxonomy_path", "")
	v.SetDefault("scoring.cap", 0)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allow_origins", []string{})
	v.SetDefault("server.retry_after", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.mode", "dev")

	tables := graph.DefaultTableNames()
	v.SetDefault("tables.worldviews", tables.Worldviews)
	v.SetDefault("tables.outcomes", tables.Outcomes)
	v.SetDefault("tables.problem_categories", tables.ProblemCategories)
	v.SetDefault("tables.problems", tables.Problems)
	v.SetDefault("tables.projects", tables.Projects)
	v.SetDefault("tables.organizations", tables.Organizations)
	v.SetDefault("tables.people", tables.People)
	v.SetDefault("tables.programs", tables.Programs)
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	switch c.Source.Kind {
	case "airtable":
		if c.Source.Airtable.APIKey == "" || c.Source.Airtable.BaseID == "" {
			warnings = append(warnings, "source 'airtable' needs source.airtable.api_key and source.airtable.base_id")
		}
	case "file":
		if c.Source.Dir == "" {
			warnings = append(warnings, "source 'file' needs source.dir")
		}
	case "":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown source kind '%s'", c.Source.Kind))
	}

	switch c.Cache.Backend {
	case "", "memory", "none":
	case "redis":
		if c.Redis.Addr == "" {
			warnings = append(warnings, "cache backend 'redis' is configured but redis.addr is empty")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown cache backend '%s'", c.Cache.Backend))
	}
	if c.Cache.TTL < 0 {
		warnings = append(warnings, fmt.Sprintf("cache ttl %s is negative; caching is disabled", c.Cache.TTL))
	}

	switch c.Ledger.Driver {
	case "", "sqlite", "postgres":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown ledger driver '%s'", c.Ledger.Driver))
	}

	switch c.Links.Writer {
	case "", "airtable":
	case "neo4j":
		if c.Graph.URI == "" {
			warnings = append(warnings, "links writer 'neo4j' is configured but graph.uri is empty")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown links writer '%s'", c.Links.Writer))
	}

	if c.Vector.Host != "" && c.Vector.Collection == "" {
		warnings = append(warnings, "vector.host is set but vector.collection is empty")
	}
	if c.Scoring.Cap < 0 {
		warnings = append(warnings, fmt.Sprintf("scoring cap %d is negative", c.Scoring.Cap))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}
	switch strings.ToLower(c.Log.Mode) {
	case "", "dev", "development", "prod", "production":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown log mode '%s'", c.Log.Mode))
	}

	return warnings
}

// Load reads configuration from file and environment. An empty path, or a
// path that does not exist, yields defaults plus IMPACTGRAPH_* overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("IMPACTGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.Fields = cfg.Fields.WithDefaults()

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
