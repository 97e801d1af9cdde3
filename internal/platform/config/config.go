// Package config loads LineageForge settings. Sources, highest priority first:
// LINEAGEFORGE_* environment variables (a .env file is loaded into the
// environment first), an optional YAML file, then built-in defaults.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	dErrors "lineageforge/pkg/domain-errors"
)

const EnvPrefix = "LINEAGEFORGE"

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka" yaml:"kafka"`
	Resolution ResolutionConfig `mapstructure:"resolution" yaml:"resolution"`
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation"`
	LogLevel   string           `mapstructure:"log_level" yaml:"log_level"`
	LogFormat  string           `mapstructure:"log_format" yaml:"log_format"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DatabaseConfig points at Postgres. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// RedisConfig is used for the resolution lock. An empty URL selects the
// in-process lock.
type RedisConfig struct {
	URL          string        `mapstructure:"url" yaml:"url"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	LockTTL      time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
}

// KafkaConfig drives the audit outbox relay. No brokers disables the relay.
type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers" yaml:"brokers"`
	AuditTopic    string        `mapstructure:"audit_topic" yaml:"audit_topic"`
	RelayInterval time.Duration `mapstructure:"relay_interval" yaml:"relay_interval"`
	RelayBatch    int           `mapstructure:"relay_batch" yaml:"relay_batch"`
	ConsumerGroup string        `mapstructure:"consumer_group" yaml:"consumer_group"`
}

type ResolutionConfig struct {
	MergeThreshold         float64 `mapstructure:"merge_threshold" yaml:"merge_threshold"`
	MinNameTokenOverlap    int     `mapstructure:"min_name_token_overlap" yaml:"min_name_token_overlap"`
	MaxCandidatesPerPerson int     `mapstructure:"max_candidates_per_person" yaml:"max_candidates_per_person"`
	Workers                int     `mapstructure:"workers" yaml:"workers"`
}

type ValidationConfig struct {
	LifespanMaxYears     int `mapstructure:"lifespan_max_years" yaml:"lifespan_max_years"`
	GenerationalMinYears int `mapstructure:"generational_min_years" yaml:"generational_min_years"`
	GenerationalMaxYears int `mapstructure:"generational_max_years" yaml:"generational_max_years"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.lock_ttl", 10*time.Minute)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.audit_topic", "lineageforge.audit")
	v.SetDefault("kafka.relay_interval", time.Second)
	v.SetDefault("kafka.relay_batch", 100)
	v.SetDefault("kafka.consumer_group", "lineageforge-audit")
	v.SetDefault("resolution.merge_threshold", 0.75)
	v.SetDefault("resolution.min_name_token_overlap", 2)
	v.SetDefault("resolution.max_candidates_per_person", 100)
	v.SetDefault("resolution.workers", 0)
	v.SetDefault("validation.lifespan_max_years", 120)
	v.SetDefault("validation.generational_min_years", 10)
	v.SetDefault("validation.generational_max_years", 60)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads configuration. path may be empty; a missing .env is ignored.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// AutomaticEnv does not split list values.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects out-of-range engine options.
func (c *Config) Validate() error {
	r := c.Resolution
	if math.IsNaN(r.MergeThreshold) || r.MergeThreshold <= 0 || r.MergeThreshold > 1 {
		return dErrors.New(dErrors.CodeValidation, "resolution.merge_threshold must be in (0,1]")
	}
	if r.MinNameTokenOverlap < 1 {
		return dErrors.New(dErrors.CodeValidation, "resolution.min_name_token_overlap must be at least 1")
	}
	if r.MaxCandidatesPerPerson < 0 || r.Workers < 0 {
		return dErrors.New(dErrors.CodeValidation, "resolution limits cannot be negative")
	}
	val := c.Validation
	if val.LifespanMaxYears <= 0 {
		return dErrors.New(dErrors.CodeValidation, "validation.lifespan_max_years must be positive")
	}
	if val.GenerationalMinYears < 0 || val.GenerationalMaxYears <= val.GenerationalMinYears {
		return dErrors.New(dErrors.CodeValidation, "validation generational bounds must satisfy 0 <= min < max")
	}
	if c.Server.Addr == "" {
		return dErrors.New(dErrors.CodeValidation, "server.addr is required")
	}
	return nil
}
