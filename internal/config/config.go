// Package config provides loading and environment overlay for the
// superstream runtime configuration. It exposes a Default() baseline,
// file loading (JSON or YAML by extension), and a FromEnv overlay.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// Storage selects the backend: "pebble", "memory", or "redis".
	Storage string `json:"storage" yaml:"storage"`
	// Fsync selects WAL durability for the pebble backend: "always",
	// "interval", or "never".
	Fsync string `json:"fsync" yaml:"fsync"`

	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat"` // "json" or "text"

	Redis  RedisConfig  `json:"redis" yaml:"redis"`
	Queue  QueueConfig  `json:"queue" yaml:"queue"`
	Feed   FeedConfig   `json:"feed" yaml:"feed"`
	Worker WorkerConfig `json:"worker" yaml:"worker"`
}

// RedisConfig configures the redis storage backend.
type RedisConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	DB   int    `json:"db" yaml:"db"`
}

// QueueConfig selects the fanout job transport.
type QueueConfig struct {
	// Transport is "local" (durable pebble queue) or "nats".
	Transport     string `json:"transport" yaml:"transport"`
	NATSURL       string `json:"natsUrl" yaml:"natsUrl"`
	SubjectPrefix string `json:"subjectPrefix" yaml:"subjectPrefix"`
}

// FeedConfig captures per-feed baseline limits.
type FeedConfig struct {
	MaxLength  int     `json:"maxLength" yaml:"maxLength"`
	TrimChance float64 `json:"trimChance" yaml:"trimChance"`
}

// WorkerConfig tunes the fanout worker loop.
type WorkerConfig struct {
	BatchSize    int `json:"batchSize" yaml:"batchSize"`
	LeaseSeconds int `json:"leaseSeconds" yaml:"leaseSeconds"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:   DefaultDataDir(),
		Storage:   "pebble",
		Fsync:     "interval",
		LogLevel:  "info",
		LogFormat: "text",
		Redis:     RedisConfig{Addr: "localhost:6379"},
		Queue:     QueueConfig{Transport: "local", NATSURL: "nats://localhost:4222", SubjectPrefix: "superstream.fanout"},
		Feed:      FeedConfig{MaxLength: 300, TrimChance: 0.01},
		Worker:    WorkerConfig{BatchSize: 16, LeaseSeconds: 30},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) over
// the defaults. An empty path returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate rejects values the runtime cannot wire.
func (c Config) Validate() error {
	switch c.Storage {
	case "pebble", "memory", "redis":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage)
	}
	switch c.Fsync {
	case "always", "interval", "never":
	default:
		return fmt.Errorf("config: unknown fsync mode %q", c.Fsync)
	}
	switch c.Queue.Transport {
	case "local", "nats":
	default:
		return fmt.Errorf("config: unknown queue transport %q", c.Queue.Transport)
	}
	if c.Feed.MaxLength <= 0 {
		return fmt.Errorf("config: feed maxLength must be positive")
	}
	if c.Feed.TrimChance < 0 || c.Feed.TrimChance > 1 {
		return fmt.Errorf("config: feed trimChance must be in [0, 1]")
	}
	return nil
}
