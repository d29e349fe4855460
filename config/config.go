package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Anchoring AnchoringConfig `mapstructure:"anchoring"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// AnchoringConfig tunes ledger submission retries and the confirmation poll.
type AnchoringConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
}

type LedgerConfig struct {
	Driver        string        `mapstructure:"driver"` // memory, http
	Endpoint      string        `mapstructure:"endpoint"`
	APIKey        string        `mapstructure:"api_key"`
	Secret        string        `mapstructure:"secret"` // HMAC key for gateway request signatures
	Timeout       time.Duration `mapstructure:"timeout"`
	FinalityDelay time.Duration `mapstructure:"finality_delay"`
}

type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: BCR_ (Blue Carbon Registry).
// Nested keys use underscore: BCR_DATABASE_HOST, BCR_ANCHORING_MAX_ATTEMPTS, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "bluecarbon_registry")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "bluecarbon-registry")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("anchoring.max_attempts", 3)
	v.SetDefault("anchoring.initial_backoff", "500ms")
	v.SetDefault("anchoring.max_backoff", "30s")
	v.SetDefault("anchoring.poll_interval", "5s")
	v.SetDefault("anchoring.submit_timeout", "10s")
	v.SetDefault("anchoring.workers", 4)
	v.SetDefault("anchoring.queue_size", 256)
	v.SetDefault("ledger.driver", "memory")
	v.SetDefault("ledger.endpoint", "")
	v.SetDefault("ledger.api_key", "")
	v.SetDefault("ledger.secret", "")
	v.SetDefault("ledger.timeout", "10s")
	v.SetDefault("ledger.finality_delay", "2s")
	v.SetDefault("ratelimit.limit", 100)
	v.SetDefault("ratelimit.window", "1m")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: BCR_DATABASE_HOST -> database.host
	v.SetEnvPrefix("BCR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The file is optional; env vars and defaults can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error

	a := c.Anchoring
	if a.MaxAttempts < 1 {
		errs = append(errs, errors.New("anchoring.max_attempts must be at least 1"))
	}
	if a.InitialBackoff <= 0 || a.MaxBackoff < a.InitialBackoff {
		errs = append(errs, errors.New("anchoring backoff must satisfy 0 < initial_backoff <= max_backoff"))
	}
	if a.PollInterval <= 0 {
		errs = append(errs, errors.New("anchoring.poll_interval must be positive"))
	}
	if a.Workers < 1 {
		errs = append(errs, errors.New("anchoring.workers must be at least 1"))
	}
	if a.QueueSize < 1 {
		errs = append(errs, errors.New("anchoring.queue_size must be at least 1"))
	}

	switch c.Ledger.Driver {
	case "memory":
	case "http":
		if c.Ledger.Endpoint == "" {
			errs = append(errs, errors.New("ledger.endpoint is required for the http driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger.driver %q", c.Ledger.Driver))
	}

	if c.RateLimit.Limit < 0 {
		errs = append(errs, errors.New("ratelimit.limit must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
