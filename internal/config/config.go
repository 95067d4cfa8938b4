// Package config defines service configuration and its defaults.
package config

import (
	"context"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DatabasePath is the SQLite file backing the player table. ":memory:" is allowed.
	DatabasePath string `koanf:"database_path"`

	// WorkerCount bounds how many runs are normalized concurrently.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the pending normalization tasks.
	QueueSize int `koanf:"queue_size"`

	// SubmitBackoffMS is the wait before re-submitting a refused task.
	SubmitBackoffMS int `koanf:"submit_backoff_ms"`

	// UpstreamBaseURL is the speedrun.com API root.
	UpstreamBaseURL string `koanf:"upstream_base_url"`

	// UpstreamRateLimit is the global request budget per minute.
	UpstreamRateLimit int `koanf:"upstream_rate_limit"`

	// UpstreamTimeoutS is the per-request HTTP timeout in seconds.
	UpstreamTimeoutS int `koanf:"upstream_timeout_s"`

	// PageSize is the largest page requested from paginated endpoints.
	PageSize int `koanf:"page_size"`

	// MinUpdateIntervalDays is how long a stored player is protected from re-scoring.
	MinUpdateIntervalDays int `koanf:"min_update_interval_days"`

	// BypassUpdateRestrictions disables the interval and the in-flight guard.
	BypassUpdateRestrictions bool `koanf:"bypass_update_restrictions"`

	// UpdateLockMinutes is the in-flight guard window.
	UpdateLockMinutes int `koanf:"update_lock_minutes"`

	// DiminishingDecay is applied per extra counted run of the same game. 1 disables it.
	DiminishingDecay float64 `koanf:"diminishing_decay"`

	// MaxRunsPerPlayer rejects players with more personal bests than this. 0 means unlimited.
	MaxRunsPerPlayer int `koanf:"max_runs_per_player"`

	// UpdateRateLimit caps update requests per minute per client address. 0 disables it.
	UpdateRateLimit int `koanf:"update_rate_limit"`

	// MetricsNamespace prefixes every exported metric.
	MetricsNamespace string `koanf:"metrics_namespace"`

	// MetricsSubsystem names the scoring, queue and worker metrics.
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// StoreLatencyBucketsMS are the store latency histogram buckets. Empty keeps the defaults.
	StoreLatencyBucketsMS []float64 `koanf:"store_latency_buckets_ms"`
}

// New returns a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		DatabasePath:          "globalboard.db",
		WorkerCount:           32,
		QueueSize:             1024,
		SubmitBackoffMS:       250,
		UpstreamBaseURL:       "https://www.speedrun.com/api/v1",
		UpstreamRateLimit:     99,
		UpstreamTimeoutS:      30,
		PageSize:              200,
		MinUpdateIntervalDays: 7,
		UpdateLockMinutes:     5,
		DiminishingDecay:      1.0,
		UpdateRateLimit:       20,
		MetricsNamespace:      "globalboard",
		MetricsSubsystem:      "scoring",
	}
}

// SubmitBackoff returns SubmitBackoffMS as a duration.
func (c *Config) SubmitBackoff() time.Duration {
	return time.Duration(c.SubmitBackoffMS) * time.Millisecond
}

// UpstreamTimeout returns UpstreamTimeoutS as a duration.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutS) * time.Second
}

// MinUpdateInterval returns MinUpdateIntervalDays as a duration.
func (c *Config) MinUpdateInterval() time.Duration {
	return time.Duration(c.MinUpdateIntervalDays) * 24 * time.Hour
}

// UpdateLock returns UpdateLockMinutes as a duration.
func (c *Config) UpdateLock() time.Duration {
	return time.Duration(c.UpdateLockMinutes) * time.Minute
}
