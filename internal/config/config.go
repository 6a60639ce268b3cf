// Package config loads treelog's process configuration from YAML plus
// environment variable overrides, via a LoadConfig / applyDefaults /
// applyEnvironmentOverrides pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// AppConfig carries identity fields used in logs and metrics labels.
type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// LoggerConfig configures the TreeLogger worker.
type LoggerConfig struct {
	RootName      string `yaml:"root_name"`
	Debounce      string `yaml:"debounce"`
	MaxBatchSize  int    `yaml:"max_batch_size"`
	QueueCapacity int    `yaml:"queue_capacity"`
	Silent        bool   `yaml:"silent"`
}

// BackendConfig configures the partitioned file Writer/Reader.
type BackendConfig struct {
	BasePath             string `yaml:"base_path"`
	NumFlowsPerPartition int    `yaml:"num_flows_per_partition"`
	NumConcurrentWrites  int    `yaml:"num_concurrent_writes"`
	Compress             bool   `yaml:"compress"`
}

// HTTPAPIConfig configures the read-only branch query API.
type HTTPAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MetricsConfig holds the Prometheus exposition endpoint settings. They are
// defaulted and validated here; cmd/treelogd does not start a metrics
// endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Port    int    `yaml:"port"`
}

// Config is the root configuration object for cmd/treelogd.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Logger  LoggerConfig  `yaml:"logger"`
	Backend BackendConfig `yaml:"backend"`
	HTTPAPI HTTPAPIConfig `yaml:"http_api"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoadConfig reads configFile (if non-empty), applies defaults for
// anything left unset, then applies environment variable overrides.
// A missing or unparseable config file is non-fatal: it falls back to
// defaults rather than aborting startup.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := loadConfigFile(configFile, cfg); err != nil {
			fmt.Printf("Warning: failed to load config file %s: %v\n", configFile, err)
		} else {
			fmt.Printf("Loaded configuration from file: %s\n", configFile)
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "treelogd"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "production"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.LogFormat == "" {
		cfg.App.LogFormat = "json"
	}

	if cfg.Logger.RootName == "" {
		cfg.Logger.RootName = "root"
	}
	if cfg.Logger.Debounce == "" {
		cfg.Logger.Debounce = "250ms"
	}
	if cfg.Logger.MaxBatchSize == 0 {
		cfg.Logger.MaxBatchSize = 50
	}

	if cfg.Backend.BasePath == "" {
		cfg.Backend.BasePath = "/var/lib/treelog"
	}
	if cfg.Backend.NumFlowsPerPartition == 0 {
		cfg.Backend.NumFlowsPerPartition = 1000
	}
	if cfg.Backend.NumConcurrentWrites == 0 {
		cfg.Backend.NumConcurrentWrites = 16
	}

	if cfg.HTTPAPI.Host == "" {
		cfg.HTTPAPI.Host = "0.0.0.0"
	}
	if cfg.HTTPAPI.Port == 0 {
		cfg.HTTPAPI.Port = 8401
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 8001
	}
	cfg.Metrics.Enabled = true
}

func applyEnvironmentOverrides(cfg *Config) {
	cfg.App.Name = getEnvString("TREELOG_APP_NAME", cfg.App.Name)
	cfg.App.Environment = getEnvString("TREELOG_ENVIRONMENT", cfg.App.Environment)
	cfg.App.LogLevel = getEnvString("TREELOG_LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.LogFormat = getEnvString("TREELOG_LOG_FORMAT", cfg.App.LogFormat)

	cfg.Logger.RootName = getEnvString("TREELOG_ROOT_NAME", cfg.Logger.RootName)
	cfg.Logger.Debounce = getEnvString("TREELOG_DEBOUNCE", cfg.Logger.Debounce)
	cfg.Logger.MaxBatchSize = getEnvInt("TREELOG_MAX_BATCH_SIZE", cfg.Logger.MaxBatchSize)
	cfg.Logger.QueueCapacity = getEnvInt("TREELOG_QUEUE_CAPACITY", cfg.Logger.QueueCapacity)
	cfg.Logger.Silent = getEnvBool("TREELOG_SILENT", cfg.Logger.Silent)

	cfg.Backend.BasePath = getEnvString("TREELOG_BASE_PATH", cfg.Backend.BasePath)
	cfg.Backend.NumFlowsPerPartition = getEnvInt("TREELOG_FLOWS_PER_PARTITION", cfg.Backend.NumFlowsPerPartition)
	cfg.Backend.NumConcurrentWrites = getEnvInt("TREELOG_CONCURRENT_WRITES", cfg.Backend.NumConcurrentWrites)
	cfg.Backend.Compress = getEnvBool("TREELOG_COMPRESS", cfg.Backend.Compress)

	cfg.HTTPAPI.Enabled = getEnvBool("TREELOG_HTTP_API_ENABLED", cfg.HTTPAPI.Enabled)
	cfg.HTTPAPI.Host = getEnvString("TREELOG_HTTP_API_HOST", cfg.HTTPAPI.Host)
	cfg.HTTPAPI.Port = getEnvInt("TREELOG_HTTP_API_PORT", cfg.HTTPAPI.Port)

	cfg.Metrics.Enabled = getEnvBool("TREELOG_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Port = getEnvInt("TREELOG_METRICS_PORT", cfg.Metrics.Port)
	cfg.Metrics.Path = getEnvString("TREELOG_METRICS_PATH", cfg.Metrics.Path)
}

// ValidateConfig checks a loaded Config for internally inconsistent or
// out-of-range values.
func ValidateConfig(cfg *Config) error {
	var errs []string

	validLogLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}
	if !validLogLevels[cfg.App.LogLevel] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s", cfg.App.LogLevel))
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[cfg.App.LogFormat] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s", cfg.App.LogFormat))
	}

	if _, err := time.ParseDuration(cfg.Logger.Debounce); err != nil {
		errs = append(errs, fmt.Sprintf("invalid logger.debounce: %s", cfg.Logger.Debounce))
	}
	if cfg.Logger.MaxBatchSize <= 0 {
		errs = append(errs, "logger.max_batch_size must be positive")
	}

	if cfg.Backend.BasePath == "" {
		errs = append(errs, "backend.base_path cannot be empty")
	}
	if cfg.Backend.NumFlowsPerPartition <= 0 {
		errs = append(errs, "backend.num_flows_per_partition must be positive")
	}
	if cfg.Backend.NumConcurrentWrites <= 0 {
		errs = append(errs, "backend.num_concurrent_writes must be positive")
	}

	if cfg.HTTPAPI.Enabled && (cfg.HTTPAPI.Port <= 0 || cfg.HTTPAPI.Port > 65535) {
		errs = append(errs, fmt.Sprintf("invalid http_api.port: %d", cfg.HTTPAPI.Port))
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535 {
			errs = append(errs, fmt.Sprintf("invalid metrics.port: %d", cfg.Metrics.Port))
		}
		if cfg.HTTPAPI.Enabled && cfg.HTTPAPI.Port == cfg.Metrics.Port {
			errs = append(errs, "metrics.port conflicts with http_api.port")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return fmt.Errorf("%s", errs[0])
	}
	msg := errs[0]
	for _, e := range errs[1:] {
		msg += "; " + e
	}
	return fmt.Errorf("multiple validation errors: %s", msg)
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
