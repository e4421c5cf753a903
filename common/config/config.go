// Package config provides centralized configuration management for all AirHawk services.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigDir names the directory holding config.yaml.
const EnvConfigDir = "AIRHAWK_CONFIG_DIR"

// DefaultConfigDir is used when EnvConfigDir is unset.
const DefaultConfigDir = "/etc/airhawk"

// Config is the master configuration struct containing all service configs and shared infrastructure.
type Config struct {
	// Service-specific configurations
	Enforcer EnforcerConfig `mapstructure:"enforcer"`
	Detector DetectorConfig `mapstructure:"detector"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`

	// Shared infrastructure configurations
	Database   DatabaseConfig   `mapstructure:"database"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// EnforcerConfig holds blocklist server configuration
type EnforcerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	SnapshotPath   string        `mapstructure:"snapshot_path"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxLineBytes   int           `mapstructure:"max_line_bytes"`
	MetricsPort    int           `mapstructure:"metrics_port"`
	PublishChanges bool          `mapstructure:"publish_changes"`
}

// DetectorConfig holds detection pipeline and reporting API configuration
type DetectorConfig struct {
	Server     ServerConfig  `mapstructure:"server"`
	Enforcer   GatewayConfig `mapstructure:"enforcer"`
	Source     SourceConfig  `mapstructure:"source"`
	LocalStore string        `mapstructure:"local_store"` // "memory", "postgres" or "opensearch"
	Stats      StatsConfig   `mapstructure:"stats"`
}

// GatewayConfig holds how the detector reaches the enforcer
type GatewayConfig struct {
	Addr             string        `mapstructure:"addr"`
	Timeout          time.Duration `mapstructure:"timeout"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"` // 0 disables the breaker
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// SourceConfig selects where captured frames come from
type SourceConfig struct {
	Kind string `mapstructure:"kind"` // "nats", "file" or "stdin"
	Path string `mapstructure:"path"` // only used for kind=file
}

// StatsConfig toggles Redis sighting statistics
type StatsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// LedgerConfig holds ledger recorder configuration
type LedgerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Stream        string        `mapstructure:"stream"`
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	Attempts      int           `mapstructure:"attempts"`
	BackoffUnit   time.Duration `mapstructure:"backoff_unit"`
	SigningSecret string        `mapstructure:"signing_secret"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// URL builds a postgres connection URL from the settings.
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

// OpenSearchConfig holds OpenSearch connection settings
type OpenSearchConfig struct {
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	Index         string `mapstructure:"index"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads $AIRHAWK_CONFIG_DIR/config.yaml, then merges
// $AIRHAWK_CONFIG_DIR/<serviceName>.yaml over it when that file exists.
// Environment variables override both. Neither file is required.
func Load(serviceName string) (*Config, error) {
	configDir := os.Getenv(EnvConfigDir)
	if configDir == "" {
		configDir = DefaultConfigDir
	}

	v, err := read(filepath.Join(configDir, "config.yaml"), false)
	if err != nil {
		return nil, err
	}
	if serviceName != "" {
		override := filepath.Join(configDir, serviceName+".yaml")
		v.SetConfigFile(override)
		if err := v.MergeInConfig(); err != nil && !isMissing(err) {
			return nil, fmt.Errorf("failed to read %s config: %w", serviceName, err)
		}
	}
	return unmarshal(v)
}

// LoadFile reads configuration from an explicit path. Unlike Load, a missing
// file is an error.
func LoadFile(path string) (*Config, error) {
	v, err := read(path, true)
	if err != nil {
		return nil, err
	}
	return unmarshal(v)
}

func read(path string, required bool) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Environment variables override with NO prefix (empty string)
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if required || !isMissing(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found - continue with defaults and env vars
	}
	return v, nil
}

func isMissing(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	// Enforcer defaults
	v.SetDefault("enforcer.listen_addr", "127.0.0.1:9000")
	v.SetDefault("enforcer.snapshot_path", "logs/blocked_macs.json")
	v.SetDefault("enforcer.idle_timeout", "30s")
	v.SetDefault("enforcer.max_line_bytes", 1024)
	v.SetDefault("enforcer.metrics_port", 9100)
	v.SetDefault("enforcer.publish_changes", false)

	// Detector defaults
	v.SetDefault("detector.server.port", 8090)
	v.SetDefault("detector.server.read_timeout", "15s")
	v.SetDefault("detector.server.write_timeout", "15s")
	v.SetDefault("detector.server.idle_timeout", "60s")
	v.SetDefault("detector.enforcer.addr", "127.0.0.1:9000")
	v.SetDefault("detector.enforcer.timeout", "3s")
	v.SetDefault("detector.enforcer.breaker_threshold", 5)
	v.SetDefault("detector.enforcer.breaker_cooldown", "10s")
	v.SetDefault("detector.source.kind", "nats")
	v.SetDefault("detector.source.path", "")
	v.SetDefault("detector.local_store", "memory")
	v.SetDefault("detector.stats.enabled", false)
	v.SetDefault("detector.stats.ttl", "168h")

	// Ledger defaults
	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.stream", "DEAUTH_LEDGER")
	v.SetDefault("ledger.workers", 4)
	v.SetDefault("ledger.queue_size", 256)
	v.SetDefault("ledger.attempts", 3)
	v.SetDefault("ledger.backoff_unit", "1s")
	v.SetDefault("ledger.signing_secret", "change-this-in-production")

	// Database defaults
	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "airhawk")
	v.SetDefault("database.postgres.user", "airhawk")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")

	// OpenSearch defaults
	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "admin")
	v.SetDefault("opensearch.tls_skip_verify", true)
	v.SetDefault("opensearch.index", "airhawk-deauth-logs")

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Redis defaults
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
