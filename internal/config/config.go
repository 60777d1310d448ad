// Package config loads batchd's YAML service configuration, validates
// it against a JSON Schema, and hot-reloads everything except the
// immutable batcher settings whenever the file changes on disk.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Batcher BatcherConfig `yaml:"batcher" json:"batcher"`
	Adapter AdapterConfig `yaml:"adapter" json:"adapter"`
}

// ServerConfig configures the HTTP listener. Watcher reloads these
// fields when the file changes, but cmd/batchd reads them once at
// startup: the running listener, logger, auth and rate limiter keep
// their startup values until the process is restarted.
type ServerConfig struct {
	Port        int    `yaml:"port" json:"port" default:"8080"`
	MetricsPort int    `yaml:"metrics_port" json:"metrics_port" default:"9090"`
	LogLevel    string `yaml:"log_level" json:"log_level" default:"info"`
	LogFormat   string `yaml:"log_format" json:"log_format" default:"json"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps" json:"rate_limit_rps" default:"100"`
	RateLimitBurst int     `yaml:"rate_limit_burst" json:"rate_limit_burst" default:"50"`

	JWTSigningKey string `yaml:"jwt_signing_key" json:"jwt_signing_key"`
}

// BatcherConfig mirrors batcher.Config's fields. It is read once at
// startup to build the Engine and is NEVER reloaded — spec.md's
// invariant that Config is immutable once passed to New extends to the
// service layer: changing these values requires restarting batchd.
type BatcherConfig struct {
	MaxBatchSize int           `yaml:"max_batch_size" json:"max_batch_size" default:"100"`
	MaxQueueTime time.Duration `yaml:"max_queue_time" json:"max_queue_time" default:"10ms"`
	MaxQueueSize int           `yaml:"max_queue_size" json:"max_queue_size" default:"10000"`
	Concurrency  int           `yaml:"concurrency" json:"concurrency" default:"4"`
}

// AdapterConfig selects and configures the one adapter cmd/batchd wires
// the engine to.
type AdapterConfig struct {
	Kind string `yaml:"kind" json:"kind"` // "objectstore", "sqlbulk", "inference", or "webhook"

	ObjectStore ObjectStoreConfig `yaml:"objectstore" json:"objectstore"`
	SQLBulk     SQLBulkConfig     `yaml:"sqlbulk" json:"sqlbulk"`
	Inference   InferenceConfig   `yaml:"inference" json:"inference"`
	Webhook     WebhookConfig     `yaml:"webhook" json:"webhook"`
}

type ObjectStoreConfig struct {
	Endpoint         string `yaml:"endpoint" json:"endpoint"`
	Region           string `yaml:"region" json:"region"`
	AccessKeyID      string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key" json:"secret_access_key"`
	CompressionLevel int    `yaml:"compression_level" json:"compression_level" default:"3"`
}

type SQLBulkConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port" default:"5432"`
	Database string `yaml:"database" json:"database"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode" default:"disable"`
}

type InferenceConfig struct {
	ModulePath string `yaml:"module_path" json:"module_path"`
	Entrypoint string `yaml:"entrypoint" json:"entrypoint" default:"infer"`
}

type WebhookConfig struct {
	TokenURL     string   `yaml:"token_url" json:"token_url"`
	ClientID     string   `yaml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"client_secret" json:"client_secret"`
	Scopes       []string `yaml:"scopes" json:"scopes"`
	CompressBody bool     `yaml:"compress_body" json:"compress_body"`
}

// Load reads and parses the YAML file at path. It does not validate
// against the JSON Schema or apply defaults — callers should follow it
// with Validate and ApplyDefaults, which is exactly what Watcher does.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return &cfg, nil
}

// ApplyDefaults fills in the zero-valued fields this package assigns a
// default for.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "json"
	}
	if c.Server.RateLimitRPS == 0 {
		c.Server.RateLimitRPS = 100
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = 50
	}
	if c.Batcher.MaxBatchSize == 0 {
		c.Batcher.MaxBatchSize = 100
	}
	if c.Batcher.MaxQueueTime == 0 {
		c.Batcher.MaxQueueTime = 10 * time.Millisecond
	}
	if c.Batcher.MaxQueueSize == 0 {
		c.Batcher.MaxQueueSize = 10000
	}
	if c.Batcher.Concurrency == 0 {
		c.Batcher.Concurrency = 4
	}
	if c.Adapter.ObjectStore.CompressionLevel == 0 {
		c.Adapter.ObjectStore.CompressionLevel = 3
	}
	if c.Adapter.SQLBulk.Port == 0 {
		c.Adapter.SQLBulk.Port = 5432
	}
	if c.Adapter.SQLBulk.SSLMode == "" {
		c.Adapter.SQLBulk.SSLMode = "disable"
	}
	if c.Adapter.Inference.Entrypoint == "" {
		c.Adapter.Inference.Entrypoint = "infer"
	}
}

// ReplaceReloadable copies every reloadable field of next into c,
// leaving c.Batcher untouched. It is what Watcher calls on every
// fsnotify event instead of swapping the whole *Config.
func (c *Config) ReplaceReloadable(next *Config) {
	c.Server = next.Server
	c.Adapter = next.Adapter
}
