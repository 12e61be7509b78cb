package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (ERLGRAPH_*)
// 2. Config file (.erlgraph/config.yml or .erlgraph/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".erlgraph")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	// Enable environment variable overrides
	v.SetEnvPrefix("ERLGRAPH")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., ERLGRAPH_PIPELINE_WORKERS)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables to config keys
	v.BindEnv("limits.max_file_size")
	v.BindEnv("limits.min_file_size")
	v.BindEnv("limits.max_function_lines")
	v.BindEnv("limits.min_function_lines")

	v.BindEnv("pipeline.workers")
	v.BindEnv("pipeline.file_timeout")
	v.BindEnv("pipeline.fail_fast")

	v.BindEnv("flow.recursive_edges")

	v.BindEnv("output.path")
	v.BindEnv("output.base_url")

	v.BindEnv("docs.path")
	v.BindEnv("docs.cache_size")

	v.BindEnv("manifest.path")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("paths.include", defaults.Paths.Include)
	v.SetDefault("paths.ignore", defaults.Paths.Ignore)

	v.SetDefault("limits.max_file_size", defaults.Limits.MaxFileSize)
	v.SetDefault("limits.min_file_size", defaults.Limits.MinFileSize)
	v.SetDefault("limits.max_function_lines", defaults.Limits.MaxFunctionLines)
	v.SetDefault("limits.min_function_lines", defaults.Limits.MinFunctionLines)

	v.SetDefault("pipeline.workers", defaults.Pipeline.Workers)
	v.SetDefault("pipeline.file_timeout", defaults.Pipeline.FileTimeout)
	v.SetDefault("pipeline.fail_fast", defaults.Pipeline.FailFast)

	v.SetDefault("flow.recursive_edges", defaults.Flow.RecursiveEdges)

	v.SetDefault("output.path", defaults.Output.Path)
	v.SetDefault("output.base_url", defaults.Output.BaseURL)

	v.SetDefault("docs.path", defaults.Docs.Path)
	v.SetDefault("docs.cache_size", defaults.Docs.CacheSize)

	v.SetDefault("manifest.path", defaults.Manifest.Path)
}

// LoadConfig is a convenience function that creates a loader and loads
// config from the current working directory.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
