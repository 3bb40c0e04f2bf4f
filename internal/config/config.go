package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppInfo holds basic information about the application.
type AppInfo struct {
	Name        string `yaml:"name"`        // Application name
	Version     string `yaml:"version"`     // Application version
	Environment string `yaml:"environment"` // Runtime environment (e.g. "development", "production")
}

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	Level string `yaml:"level"` // Log level (e.g. "info", "debug", "warn", "error")
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Address string `yaml:"address"` // Listen address (e.g. ":8082")
}

// RedisConfig holds the connection settings for Redis, used as the optional
// shared backend for the bridge result cache.
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis server address (e.g. "localhost:6379")
	Password string `yaml:"password"` // Redis password
	DB       int    `yaml:"db"`       // Redis database number
}

// KafkaConfig holds the connection settings for Kafka, used for publishing
// task lifecycle events.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka broker address list
	Topic   string   `yaml:"topic"`   // Topic for task lifecycle events
}

// DatabaseConfigs groups all external backend configurations.
type DatabaseConfigs struct {
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// CircuitBreakerConfig configures the breaker wrapped around toolchain
// handler execution.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"` // Consecutive failures to open the circuit
	SuccessThreshold uint32 `yaml:"successThreshold"` // Consecutive half-open successes to close it
	Timeout          string `yaml:"timeout"`          // Open-state duration before half-open (e.g. "30s")
}

// BridgeConfig configures one ToolchainBridge instance.
type BridgeConfig struct {
	ShutdownTimeout string               `yaml:"shutdownTimeout"` // Max wait for the worker to drain on shutdown (e.g. "10s")
	CacheTTL        string               `yaml:"cacheTTL"`        // Freshness window for cached results (e.g. "10m")
	CacheBackend    string               `yaml:"cacheBackend"`    // "memory" or "redis"
	AwaitTimeout    string               `yaml:"awaitTimeout"`    // Max wait on a bridge future before the orchestrator gives up (e.g. "120s")
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// OrchestratorConfig configures task state retention.
type OrchestratorConfig struct {
	RetentionTTL string `yaml:"retentionTTL"` // How long completed/failed tasks stay readable (e.g. "1h")
}

// RateLimiterConfig configures the API rate limiting middleware.
type RateLimiterConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Algorithm string  `yaml:"algorithm"` // "tokenBucket" or "fixedWindow"
	Rate      float64 `yaml:"rate"`      // Tokens per second (tokenBucket)
	Capacity  int     `yaml:"capacity"`  // Burst size (tokenBucket)
	Limit     int     `yaml:"limit"`     // Requests per window (fixedWindow)
	Window    string  `yaml:"window"`    // Window duration (fixedWindow, e.g. "1s")
}

// MiddlewareConfig groups HTTP middleware settings.
type MiddlewareConfig struct {
	RateLimiter RateLimiterConfig `yaml:"rateLimiter"`
}

// EventsConfig controls publication of task lifecycle events.
type EventsConfig struct {
	KafkaEnabled bool `yaml:"kafkaEnabled"` // Publish lifecycle events to Kafka
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App          AppInfo            `yaml:"app"`
	Logger       LoggerConfig       `yaml:"logger"`
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Bridge       BridgeConfig       `yaml:"bridge"`
	Databases    DatabaseConfigs    `yaml:"databases"`
	Events       EventsConfig       `yaml:"events"`
	Middleware   MiddlewareConfig   `yaml:"middleware"`
}

// LoadConfig reads and parses the YAML configuration file at the given path.
func LoadConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills in values the file may omit.
func applyDefaults(cfg *AppConfig) {
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8082"
	}
	if cfg.Orchestrator.RetentionTTL == "" {
		cfg.Orchestrator.RetentionTTL = "1h"
	}
	if cfg.Bridge.ShutdownTimeout == "" {
		cfg.Bridge.ShutdownTimeout = "10s"
	}
	if cfg.Bridge.CacheTTL == "" {
		cfg.Bridge.CacheTTL = "10m"
	}
	if cfg.Bridge.CacheBackend == "" {
		cfg.Bridge.CacheBackend = "memory"
	}
	if cfg.Bridge.AwaitTimeout == "" {
		cfg.Bridge.AwaitTimeout = "120s"
	}
}

// Duration parses a duration field, returning an error naming the field so
// misconfigurations are easy to track down.
func Duration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", field, err)
	}
	return d, nil
}
