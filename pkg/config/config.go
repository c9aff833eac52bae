// Package config loads reportd settings from a YAML file, REPORTCORE_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/opsinsight/reportcore/pkg/audit"
	"github.com/opsinsight/reportcore/pkg/database"
	"github.com/opsinsight/reportcore/pkg/jobs"
	"github.com/opsinsight/reportcore/pkg/retrieval"
)

// EnvPrefix is prepended to every environment override, e.g.
// REPORTCORE_DATABASE_DSN.
const EnvPrefix = "REPORTCORE"

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// ResultCacheSize bounds the number of cached job result bodies.
	ResultCacheSize int `mapstructure:"result_cache_size"`
}

// Config is the full reportd configuration.
type Config struct {
	Database  database.Config  `mapstructure:"database"`
	Jobs      jobs.JobConfig   `mapstructure:"jobs"`
	Retrieval retrieval.Config `mapstructure:"retrieval"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	Audit     audit.Config     `mapstructure:"audit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:  *database.DefaultConfig(),
		Jobs:      *jobs.DefaultJobConfig(),
		Retrieval: retrieval.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
			ResultCacheSize: 256,
		},
		Audit: *audit.DefaultConfig(),
	}
}

// Load reads the configuration. Precedence from lowest to highest is
// defaults, the file at path (optional), environment variables, then any
// flags in fs that were set explicitly.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if fs != nil {
		for key, name := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Jobs.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Retrieval.Mode {
	case retrieval.ModeVector, retrieval.ModeKeyword, retrieval.ModeHybrid:
	default:
		errs = append(errs, fmt.Errorf("retrieval.mode %q is not one of vector, keyword, hybrid", c.Retrieval.Mode))
	}
	switch c.Retrieval.Embedder {
	case "hash":
	case "genai":
		if c.Retrieval.APIKey == "" {
			errs = append(errs, errors.New("retrieval.api_key is required for the genai embedder"))
		}
	default:
		errs = append(errs, fmt.Errorf("retrieval.embedder %q is not one of hash, genai", c.Retrieval.Embedder))
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, errors.New("audit.retention_days must not be negative"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	return errors.Join(errs...)
}

// flagKeys maps config keys to the flag names that may override them.
var flagKeys = map[string]string{
	"database.driver":  "db-driver",
	"database.dsn":     "db-dsn",
	"http.addr":        "listen",
	"jobs.concurrency": "concurrency",
	"jobs.enabled":     "workers",
}

// setDefaults registers every leaf key so AutomaticEnv can resolve it
// during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.slow_threshold", d.Database.SlowThreshold)

	v.SetDefault("jobs.concurrency", d.Jobs.Concurrency)
	v.SetDefault("jobs.poll_interval", d.Jobs.PollInterval)
	v.SetDefault("jobs.claim_timeout", d.Jobs.ClaimTimeout)
	v.SetDefault("jobs.retention_days", d.Jobs.RetentionDays)
	v.SetDefault("jobs.enabled", d.Jobs.Enabled)

	v.SetDefault("retrieval.mode", string(d.Retrieval.Mode))
	v.SetDefault("retrieval.embedder", d.Retrieval.Embedder)
	v.SetDefault("retrieval.model", d.Retrieval.Model)
	v.SetDefault("retrieval.api_key", d.Retrieval.APIKey)
	v.SetDefault("retrieval.dimensions", d.Retrieval.Dimensions)
	v.SetDefault("retrieval.max_per_doc", d.Retrieval.MaxPerDoc)
	v.SetDefault("retrieval.candidate_factor", d.Retrieval.CandidateFactor)
	v.SetDefault("retrieval.rrf_k", d.Retrieval.RRFK)
	v.SetDefault("retrieval.chunk_chars", d.Retrieval.ChunkChars)
	v.SetDefault("retrieval.cache_size", d.Retrieval.CacheSize)
	v.SetDefault("retrieval.cache_ttl", d.Retrieval.CacheTTL)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("http.result_cache_size", d.HTTP.ResultCacheSize)

	v.SetDefault("audit.retention_days", d.Audit.RetentionDays)
	v.SetDefault("audit.log_denied", d.Audit.LogDenied)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
}
