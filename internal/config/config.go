// Package config handles loading and parsing of Stoxy configuration from
// YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for Stoxy.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Auth          AuthConfig          `yaml:"auth"`
	Metadata      MetadataConfig      `yaml:"metadata"`
	Storage       StorageConfig       `yaml:"storage"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is the graceful shutdown timeout in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
	// MaxObjectSize caps request bodies in bytes.
	MaxObjectSize int64 `yaml:"max_object_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// AuthConfig maps request tokens to principals and names the principals with
// every permission.
type AuthConfig struct {
	// Tokens maps an X-Auth-Token value to a principal name.
	Tokens map[string]string `yaml:"tokens"`
	// Admins lists principals allowed every action.
	Admins []string `yaml:"admins"`
	// Anonymous is the principal assigned to requests without a known token.
	Anonymous string `yaml:"anonymous"`
	// AnonymousRead lets the anonymous principal view every entity.
	AnonymousRead bool `yaml:"anonymous_read"`
}

// MetadataConfig holds settings for the hierarchy persistence engine.
type MetadataConfig struct {
	Engine string       `yaml:"engine"` // "sqlite" or "memory"
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig holds settings for backend stores.
type StorageConfig struct {
	// DefaultRoot is the base directory for file:// URIs when no ancestor
	// container names a backend_base.
	DefaultRoot string `yaml:"default_root"`
	// Roots lists extra directories file:// URIs may point into. DefaultRoot
	// is always permitted.
	Roots []string `yaml:"roots"`
	// ChunkSize is the streaming chunk size in bytes.
	ChunkSize int                     `yaml:"chunk_size"`
	S3        S3Config                `yaml:"s3"`
	GCS       GCSConfig               `yaml:"gcs"`
	Azure     AzureConfig             `yaml:"azure"`
	Remotes   map[string]RemoteConfig `yaml:"remotes"`
}

// S3Config configures the shared S3 client.
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// GCSConfig configures GCS clients.
type GCSConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// AzureConfig configures Azure Blob clients. Without an account URL the
// azure scheme is not registered.
type AzureConfig struct {
	AccountURL string `yaml:"account_url"`
}

// RemoteConfig places content for a compound scheme+subscheme:// URI.
type RemoteConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// AuditConfig configures the optional Redis stream audit sink.
type AuditConfig struct {
	RedisURL string `yaml:"redis_url"`
	Stream   string `yaml:"stream"`
}

// ObservabilityConfig holds observability feature toggles.
type ObservabilityConfig struct {
	Metrics     bool `yaml:"metrics"`
	HealthCheck bool `yaml:"health_check"`
}

// Load reads and parses a YAML configuration file at the given path. A
// missing file falls back to stoxy.example.yaml beside it; if that is
// missing too the defaults are used.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		data, err = os.ReadFile(filepath.Join(filepath.Dir(path), "stoxy.example.yaml"))
		if err != nil {
			return cfg, nil
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that cannot be served.
func (c *Config) Validate() error {
	switch c.Metadata.Engine {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown metadata engine %q", c.Metadata.Engine)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Storage.ChunkSize < 0 {
		return fmt.Errorf("invalid storage chunk_size %d", c.Storage.ChunkSize)
	}
	for name, r := range c.Storage.Remotes {
		if r.Bucket == "" {
			return fmt.Errorf("storage remote %q has no bucket", name)
		}
	}
	return nil
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30,
			MaxObjectSize:   5 * 1024 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Auth: AuthConfig{
			Anonymous: "anonymous",
		},
		Metadata: MetadataConfig{
			Engine: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/hierarchy.db",
			},
		},
		Storage: StorageConfig{
			DefaultRoot: "./data/objects",
			ChunkSize:   64 * 1024,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Audit: AuditConfig{
			Stream: "stoxy:audit",
		},
		Observability: ObservabilityConfig{
			Metrics:     true,
			HealthCheck: true,
		},
	}
}

// applyDefaults fills in zero-value fields left empty by the YAML file.
func applyDefaults(cfg *Config) {
	d := defaultConfig()
	if cfg.Server.Host == "" {
		cfg.Server.Host = d.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if cfg.Server.MaxObjectSize == 0 {
		cfg.Server.MaxObjectSize = d.Server.MaxObjectSize
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
	if cfg.Auth.Anonymous == "" {
		cfg.Auth.Anonymous = d.Auth.Anonymous
	}
	if cfg.Metadata.Engine == "" {
		cfg.Metadata.Engine = d.Metadata.Engine
	}
	if cfg.Metadata.SQLite.Path == "" {
		cfg.Metadata.SQLite.Path = d.Metadata.SQLite.Path
	}
	if cfg.Storage.DefaultRoot == "" {
		cfg.Storage.DefaultRoot = d.Storage.DefaultRoot
	}
	if cfg.Storage.ChunkSize == 0 {
		cfg.Storage.ChunkSize = d.Storage.ChunkSize
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = d.Storage.S3.Region
	}
	if cfg.Audit.Stream == "" {
		cfg.Audit.Stream = d.Audit.Stream
	}
}
