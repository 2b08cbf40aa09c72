// Package config loads and validates node configuration, following the
// same JSON-file-plus-environment-override shape the teacher's own
// infrastructure/config package uses.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// IsolatedProcessorKind selects which C2 variant the node runs children as.
type IsolatedProcessorKind string

const (
	ProcessorLocal        IsolatedProcessorKind = "local"
	ProcessorBrokerBacked IsolatedProcessorKind = "broker_backed"
	ProcessorSubprocess   IsolatedProcessorKind = "subprocess"
)

// IsolatedProcessorConfig configures C2.
type IsolatedProcessorConfig struct {
	Kind       IsolatedProcessorKind `json:"kind"`
	BrokerURL  string                `json:"broker_url,omitempty"`
	ChildBinary string               `json:"child_binary,omitempty"`
}

// SidecarConfig describes one MESSAGE_BROKER_MANAGERS entry (C4).
type SidecarConfig struct {
	Name      string `json:"name"`
	BrokerURL string `json:"broker_url"`
	TaskQueue string `json:"task_queue"`
}

// Config holds all recognized node configuration (spec.md §6).
type Config struct {
	HTTPPort              int                      `json:"http_port"`
	AcceptedModelClasses   []string                `json:"accepted_model_classes"`
	IsolatedProcessor      IsolatedProcessorConfig `json:"isolated_processor"`
	MessageBrokerManagers  []SidecarConfig         `json:"message_broker_managers"`
	LogToStdout            bool                    `json:"log_to_stdout"`
	Debug                  bool                    `json:"debug"`
	ExternalLoggers        []string                `json:"external_loggers"`

	Logging     LoggingConfig     `json:"logging"`
	Performance PerformanceConfig `json:"performance"`
	Audit       AuditConfig       `json:"audit"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
	File   string `json:"file"`
}

// PerformanceConfig configures governor/pool tuning knobs.
type PerformanceConfig struct {
	MaxConcurrentTasks   int `json:"max_concurrent_tasks"`
	PreviousTasksCapacity int `json:"previous_tasks_capacity"`
	SubtaskRetries        int `json:"subtask_retries"`
	InactivityTimeoutMS   int `json:"inactivity_timeout_ms"`
	DeadmanTimeoutMS      int `json:"deadman_timeout_ms"`
}

// AuditConfig configures the optional Postgres EXTERNAL_LOGGERS sink.
type AuditConfig struct {
	ConnectionString string `json:"connection_string"`
	MigrationsPath   string `json:"migrations_path"`
}

// DefaultConfig returns sensible defaults: local processor, no sidecars,
// max_concurrent_tasks left at 0 (callers should use identity.DefaultMaxConcurrentTasks).
func DefaultConfig() *Config {
	return &Config{
		HTTPPort:             8080,
		AcceptedModelClasses: nil,
		IsolatedProcessor:    IsolatedProcessorConfig{Kind: ProcessorLocal},
		LogToStdout:          true,
		Debug:                false,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "console",
		},
		Performance: PerformanceConfig{
			MaxConcurrentTasks:    0,
			PreviousTasksCapacity: 1000,
			SubtaskRetries:        1,
			InactivityTimeoutMS:   3000,
			DeadmanTimeoutMS:      0,
		},
	}
}

// Load loads configuration from a JSON file (if configPath is non-empty and
// exists), applies FOSSA_* environment overrides, then validates.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	if val := os.Getenv("FOSSA_HTTP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.HTTPPort = port
		}
	}
	if val := os.Getenv("FOSSA_LOG_TO_STDOUT"); val != "" {
		c.LogToStdout = strings.EqualFold(val, "true")
	}
	if val := os.Getenv("FOSSA_DEBUG"); val != "" {
		c.Debug = strings.EqualFold(val, "true")
	}
	if val := os.Getenv("FOSSA_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("FOSSA_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	if val := os.Getenv("FOSSA_LOG_FILE"); val != "" {
		c.Logging.File = val
		if c.Logging.Output == "console" {
			c.Logging.Output = "both"
		}
	}
	if val := os.Getenv("FOSSA_MAX_CONCURRENT_TASKS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Performance.MaxConcurrentTasks = n
		}
	}
	if val := os.Getenv("FOSSA_SUBTASK_RETRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Performance.SubtaskRetries = n
		}
	}
	if val := os.Getenv("FOSSA_AUDIT_DSN"); val != "" {
		c.Audit.ConnectionString = val
	}
}

// Validate returns a descriptive error for any configuration value the
// node cannot safely start with.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", c.HTTPPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	validOutputs := map[string]bool{"console": true, "file": true, "both": true}
	if !validOutputs[strings.ToLower(c.Logging.Output)] {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	if c.Performance.MaxConcurrentTasks < 0 {
		return fmt.Errorf("max_concurrent_tasks cannot be negative")
	}
	if c.Performance.SubtaskRetries < 0 {
		return fmt.Errorf("subtask_retries cannot be negative")
	}
	if c.Performance.InactivityTimeoutMS <= 0 {
		return fmt.Errorf("inactivity_timeout_ms must be positive")
	}

	switch c.IsolatedProcessor.Kind {
	case ProcessorLocal:
	case ProcessorBrokerBacked:
		if c.IsolatedProcessor.BrokerURL == "" {
			return fmt.Errorf("isolated_processor.broker_url is required for broker_backed processor")
		}
	case ProcessorSubprocess:
		if c.IsolatedProcessor.ChildBinary == "" {
			return fmt.Errorf("isolated_processor.child_binary is required for subprocess processor")
		}
	default:
		return fmt.Errorf("invalid isolated_processor.kind: %s", c.IsolatedProcessor.Kind)
	}

	for _, sc := range c.MessageBrokerManagers {
		if sc.Name == "" || sc.BrokerURL == "" || sc.TaskQueue == "" {
			return fmt.Errorf("message_broker_managers entries require name, broker_url and task_queue")
		}
	}

	return nil
}

// SaveToFile writes the configuration back out as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
