package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"gosplit/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig  `validate:"required"`
	Admin     AdminConfig   `validate:"required"`
	Archive   ArchiveConfig `validate:"required"`
	Engine    EngineConfig  `validate:"required"`
	Monitor   MonitorConfig `validate:"required"`
	Executor  ExecutorConfig
	Policy    PolicyConfig
	Templates TemplateConfig
	Tasks     TaskConfig
	LogLevel  string
}

// ServerConfig holds public API settings
type ServerConfig struct {
	Port    string `validate:"required"`
	GinMode string `validate:"oneof=debug release test"`
}

// AdminConfig holds the metrics/health/pprof listener
type AdminConfig struct {
	Port    string `validate:"required"`
	Enabled bool
}

// ArchiveConfig selects where completed experiments are persisted.
// An empty DatabaseURL disables the archive.
type ArchiveConfig struct {
	Driver      string `validate:"oneof=postgres sqlite"`
	DatabaseURL string
}

// EngineConfig holds lifecycle and statistics defaults
type EngineConfig struct {
	BatchSize     int           `validate:"gte=1"`
	BatchPause    time.Duration `validate:"gte=0"`
	DefaultAlpha  float64       `validate:"gt=0,lt=1"`
	DefaultPower  float64       `validate:"gt=0,lt=1"`
	MinSampleSize int           `validate:"gte=2"`
	MinGroupSize  int           `validate:"gte=2"`
	MaxDuration   time.Duration `validate:"gt=0"`
	// Tails names the p-value strategy: approximate or exact
	Tails string `validate:"oneof=approximate exact"`
	// MaxConcurrent is the active experiment count above which the overview
	// recommends finishing tests before starting new ones
	MaxConcurrent int `validate:"gte=1"`
	Seed          int64
}

// MonitorConfig holds evaluator thresholds
type MonitorConfig struct {
	Enabled       bool
	Schedule      string  `validate:"required"`
	QualityFloor  float64 `validate:"gt=0,lte=1"`
	QualityWindow int     `validate:"gte=1"`
}

// ExecutorConfig points at a remote trial executor. Empty URL disables it.
type ExecutorConfig struct {
	URL     string        `validate:"omitempty,url"`
	RPS     float64       `validate:"gte=0"`
	Timeout time.Duration `validate:"gte=0"`
}

// PolicyConfig holds the creation-time content checks
type PolicyConfig struct {
	BlockedTerms    []string
	MaxPayloadBytes int `validate:"gte=0"`
}

// TemplateConfig points at an optional template file overriding the built-ins
type TemplateConfig struct {
	File string
}

// TaskConfig selects where tasks come from when a start request carries none.
// An empty File falls back to Count generated tasks.
type TaskConfig struct {
	File  string
	Sheet string
	Count int `validate:"gte=0"`
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:    loadServerConfig(),
		Admin:     loadAdminConfig(),
		Archive:   loadArchiveConfig(),
		Engine:    loadEngineConfig(),
		Monitor:   loadMonitorConfig(),
		Executor:  loadExecutorConfig(),
		Policy:    loadPolicyConfig(),
		Templates: TemplateConfig{File: getEnvOrDefault("TEMPLATES_FILE", "")},
		Tasks: TaskConfig{
			File:  getEnvOrDefault("TASKS_FILE", ""),
			Sheet: getEnvOrDefault("TASKS_SHEET", ""),
			Count: getEnvIntOrDefault("TASK_COUNT", 200),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadAdminConfig() AdminConfig {
	return AdminConfig{
		Port:    getEnvOrDefault("ADMIN_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("ADMIN_ENABLED", true),
	}
}

func loadArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Driver:      getEnvOrDefault("ARCHIVE_DRIVER", "postgres"),
		DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),
	}
}

func loadEngineConfig() EngineConfig {
	return EngineConfig{
		BatchSize:     getEnvIntOrDefault("BATCH_SIZE", 5),
		BatchPause:    getEnvDurationOrDefault("BATCH_PAUSE", 100*time.Millisecond),
		DefaultAlpha:  getEnvFloatOrDefault("DEFAULT_ALPHA", 0.05),
		DefaultPower:  getEnvFloatOrDefault("DEFAULT_POWER", 0.80),
		MinSampleSize: getEnvIntOrDefault("MIN_SAMPLE_SIZE", 30),
		MinGroupSize:  getEnvIntOrDefault("MIN_GROUP_SIZE", 10),
		MaxDuration:   getEnvDurationOrDefault("MAX_DURATION", 720*time.Hour),
		Tails:         strings.ToLower(getEnvOrDefault("TAIL_STRATEGY", "approximate")),
		MaxConcurrent: getEnvIntOrDefault("MAX_CONCURRENT_EXPERIMENTS", 10),
		Seed:          int64(getEnvIntOrDefault("SEED", int(time.Now().UnixNano()%(1<<31)))),
	}
}

func loadMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:       getEnvBoolOrDefault("MONITOR_ENABLED", true),
		Schedule:      getEnvOrDefault("MONITOR_SCHEDULE", "@every 1m"),
		QualityFloor:  getEnvFloatOrDefault("QUALITY_FLOOR", 0.70),
		QualityWindow: getEnvIntOrDefault("QUALITY_WINDOW", 100),
	}
}

func loadExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		URL:     getEnvOrDefault("EXECUTOR_URL", ""),
		RPS:     getEnvFloatOrDefault("EXECUTOR_RPS", 10),
		Timeout: getEnvDurationOrDefault("EXECUTOR_TIMEOUT", 30*time.Second),
	}
}

func loadPolicyConfig() PolicyConfig {
	return PolicyConfig{
		BlockedTerms:    getEnvListOrDefault("POLICY_BLOCKED_TERMS", nil),
		MaxPayloadBytes: getEnvIntOrDefault("POLICY_MAX_PAYLOAD_BYTES", 64*1024),
	}
}

func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(errors.ConfigInvalid(err.Error()), "invalid configuration")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// comma separated, blanks dropped
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
