// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat snake_case names, the same in YAML and after the env prefix.
// - New builds a Config with defaults; Load layers file and env on top.
// - Validate reports every problem wrapped in ErrInvalidConfig.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// HTTP server timeouts.
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string `koanf:"cors_origins"`

	// StoreDriver selects the persistence backend: memory, sqlite, postgres.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the driver data source; ignored for memory. For sqlite a
	// bare path is accepted and defaults to catador.db.
	StoreDSN string `koanf:"store_dsn"`

	// QueueSize bounds the autosave queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of autosave workers.
	WorkerCount int `koanf:"worker_count"`

	// AutosaveRetries is how often a failed autosave is retried.
	AutosaveRetries int `koanf:"autosave_retries"`

	// DedupeSize bounds the expiry idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// TimerResync is how often timer streams resend the server time.
	TimerResync time.Duration `koanf:"timer_resync"`

	// TimerMax caps a single countdown or extension.
	TimerMax time.Duration `koanf:"timer_max"`

	// NATSURL enables cross-instance timer fan-out when set.
	NATSURL string `koanf:"nats_url"`

	// NATSSubjectPrefix is the subject root for timer snapshots.
	NATSSubjectPrefix string `koanf:"nats_subject_prefix"`

	// Prometheus metric name prefix: <namespace>_<subsystem>_<name>.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsBuckets are the latency histogram bounds in seconds, e.g.
	// "0.01,0.1,1". Empty keeps the prometheus defaults.
	MetricsBuckets []float64 `koanf:"metrics_buckets"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		CORSOrigins:       []string{"*"},
		StoreDriver:       DriverMemory,
		QueueSize:         4096,
		WorkerCount:       runtime.NumCPU(),
		AutosaveRetries:   2,
		DedupeSize:        50_000,
		TimerResync:       60 * time.Second,
		TimerMax:          24 * time.Hour,
		NATSSubjectPrefix: "catador.timer",
		MetricsNamespace:  "catador",
		MetricsSubsystem:  "game",
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(c.Addr) != "", "addr must not be empty")
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	check(c.LogFormat == "text" || c.LogFormat == "json", "log_format must be text or json, got %q", c.LogFormat)
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		check(c.StoreDSN != "", "store_dsn is required for the %s driver", c.StoreDriver)
	default:
		errs = append(errs, fmt.Errorf("unknown store_driver %q", c.StoreDriver))
	}
	check(c.QueueSize > 0, "queue_size must be positive")
	check(c.WorkerCount > 0, "worker_count must be positive")
	check(c.AutosaveRetries >= 0, "autosave_retries must not be negative")
	check(c.DedupeSize > 0, "dedupe_size must be positive")
	check(c.TimerResync > 0, "timer_resync must be positive")
	check(c.TimerMax > 0, "timer_max must be positive")
	check(c.ReadTimeout > 0 && c.WriteTimeout > 0, "read_timeout and write_timeout must be positive")
	check(metricName(c.MetricsNamespace), "metrics_namespace %q is not a valid metric name", c.MetricsNamespace)
	check(c.MetricsSubsystem == "" || metricName(c.MetricsSubsystem), "metrics_subsystem %q is not a valid metric name", c.MetricsSubsystem)
	for _, b := range c.MetricsBuckets {
		check(b > 0, "metrics_buckets must be positive, got %v", b)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// metricName reports whether s can prefix a Prometheus metric name.
func metricName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
