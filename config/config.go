// Package config loads the engine configuration. The loaded value is
// immutable and passed explicitly into the orchestrator and the safety gate;
// nothing in the engine reads ambient state. Idle thresholds are fixed per
// resource type in the evaluator and are deliberately absent here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration.
type Config struct {
	Version string   `yaml:"version"`
	Regions []string `yaml:"regions"`

	Store     StoreConfig     `yaml:"store"`
	Scan      ScanConfig      `yaml:"scan"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Retry     RetryConfig     `yaml:"retry"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Journal   JournalConfig   `yaml:"journal"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// StoreConfig selects and parameterizes the record-store backend.
type StoreConfig struct {
	// Backend is "bolt" or "dynamodb".
	Backend string `yaml:"backend"`
	// Path is the data directory for the bolt backend.
	Path string `yaml:"path,omitempty"`
	// Table is the DynamoDB table name.
	Table string `yaml:"table,omitempty"`
	// Region is the DynamoDB table region.
	Region string `yaml:"region,omitempty"`
}

// ScanConfig controls scan passes.
type ScanConfig struct {
	Interval time.Duration `yaml:"interval"`
	// EvaluationWindow is how far back metrics are fetched. Resources
	// younger than the window are skipped as too young to judge.
	EvaluationWindow time.Duration `yaml:"evaluation_window"`
	// MaxConcurrentPasses bounds parallel region x resource-type passes.
	MaxConcurrentPasses int `yaml:"max_concurrent_passes"`
	// MaxConcurrentResources bounds per-resource parallelism within one
	// pass, to respect metric-source throttling.
	MaxConcurrentResources int `yaml:"max_concurrent_resources"`
}

// LifecycleConfig controls the state machine and the safety gate.
type LifecycleConfig struct {
	GracePeriod          time.Duration `yaml:"grace_period"`
	IdlePassesToSchedule int           `yaml:"idle_passes_to_schedule"`
	MaxConflictRetries   int           `yaml:"max_conflict_retries"`
	MaxDeleteAttempts    int           `yaml:"max_delete_attempts"`
}

// RetryConfig bounds retries of external calls.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
}

// NotifyConfig routes owner notices and operator summaries.
type NotifyConfig struct {
	// SummaryTopicARN receives the per-pass operator summary.
	SummaryTopicARN string `yaml:"summary_topic_arn"`
	// Sender is the from-address for owner email.
	Sender string `yaml:"sender"`
	// OpsFallbackAddress receives notices for resources whose owner could
	// not be resolved.
	OpsFallbackAddress string `yaml:"ops_fallback_address"`
}

// SchedulerConfig parameterizes the external deletion-trigger substrate.
type SchedulerConfig struct {
	// TargetARN is invoked when a schedule fires (typically the sweep
	// entry point).
	TargetARN string `yaml:"target_arn"`
	RoleARN   string `yaml:"role_arn"`
	GroupName string `yaml:"group_name,omitempty"`
}

// JournalConfig locates the append-only audit journal.
type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// TelemetryConfig configures OTEL export and the metrics endpoint.
type TelemetryConfig struct {
	OTELEndpoint string `yaml:"otel_endpoint,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
	MetricsAddr  string `yaml:"metrics_addr,omitempty"`
	Environment  string `yaml:"environment,omitempty"`
}

// LoadConfig loads and validates configuration from a file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Scan.Interval == 0 {
		c.Scan.Interval = 24 * time.Hour
	}
	if c.Scan.EvaluationWindow == 0 {
		c.Scan.EvaluationWindow = 7 * 24 * time.Hour
	}
	if c.Scan.MaxConcurrentPasses == 0 {
		c.Scan.MaxConcurrentPasses = 4
	}
	if c.Scan.MaxConcurrentResources == 0 {
		c.Scan.MaxConcurrentResources = 8
	}
	if c.Lifecycle.GracePeriod == 0 {
		c.Lifecycle.GracePeriod = 7 * 24 * time.Hour
	}
	if c.Lifecycle.IdlePassesToSchedule == 0 {
		c.Lifecycle.IdlePassesToSchedule = 1
	}
	if c.Lifecycle.MaxConflictRetries == 0 {
		c.Lifecycle.MaxConflictRetries = 3
	}
	if c.Lifecycle.MaxDeleteAttempts == 0 {
		c.Lifecycle.MaxDeleteAttempts = 3
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 4
	}
	if c.Retry.InitialInterval == 0 {
		c.Retry.InitialInterval = time.Second
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "bolt"
	}
	if c.Store.Path == "" {
		c.Store.Path = "."
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "audit"
	}
	if c.Telemetry.MetricsAddr == "" {
		c.Telemetry.MetricsAddr = ":9090"
	}
}

// Validate ensures config has required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("at least one region is required")
	}
	switch c.Store.Backend {
	case "bolt":
	case "dynamodb":
		if c.Store.Table == "" {
			return fmt.Errorf("store.table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Lifecycle.IdlePassesToSchedule < 1 {
		return fmt.Errorf("lifecycle.idle_passes_to_schedule must be at least 1")
	}
	if c.Lifecycle.GracePeriod < 0 {
		return fmt.Errorf("lifecycle.grace_period must not be negative")
	}
	return nil
}
