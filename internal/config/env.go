package config

import (
	"os"
	"strconv"
)

// FromEnv overlays SUPERSTREAM_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("SUPERSTREAM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SUPERSTREAM_STORAGE"); v != "" {
		cfg.Storage = v
	}
	if v := os.Getenv("SUPERSTREAM_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("SUPERSTREAM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SUPERSTREAM_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("SUPERSTREAM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SUPERSTREAM_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("SUPERSTREAM_QUEUE_TRANSPORT"); v != "" {
		cfg.Queue.Transport = v
	}
	if v := os.Getenv("SUPERSTREAM_NATS_URL"); v != "" {
		cfg.Queue.NATSURL = v
	}
	if v := os.Getenv("SUPERSTREAM_SUBJECT_PREFIX"); v != "" {
		cfg.Queue.SubjectPrefix = v
	}
	if v := os.Getenv("SUPERSTREAM_FEED_MAX_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Feed.MaxLength = n
		}
	}
	if v := os.Getenv("SUPERSTREAM_FEED_TRIM_CHANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Feed.TrimChance = f
		}
	}
	if v := os.Getenv("SUPERSTREAM_WORKER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.BatchSize = n
		}
	}
	if v := os.Getenv("SUPERSTREAM_WORKER_LEASE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.LeaseSeconds = n
		}
	}
}
