package config

import "fmt"

// Validate checks a configuration for internal consistency.
func Validate(cfg *Config) error {
	if len(cfg.Paths.Include) == 0 {
		return fmt.Errorf("paths.include must name at least one pattern")
	}
	if cfg.Limits.MaxFileSize > 0 && cfg.Limits.MinFileSize > cfg.Limits.MaxFileSize {
		return fmt.Errorf("limits.min_file_size (%d) exceeds limits.max_file_size (%d)",
			cfg.Limits.MinFileSize, cfg.Limits.MaxFileSize)
	}
	if cfg.Limits.MaxFunctionLines > 0 && cfg.Limits.MinFunctionLines > cfg.Limits.MaxFunctionLines {
		return fmt.Errorf("limits.min_function_lines (%d) exceeds limits.max_function_lines (%d)",
			cfg.Limits.MinFunctionLines, cfg.Limits.MaxFunctionLines)
	}
	if cfg.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.FileTimeout < 0 {
		return fmt.Errorf("pipeline.file_timeout must not be negative")
	}
	if cfg.Output.Path == "" {
		return fmt.Errorf("output.path must not be empty")
	}
	if cfg.Docs.CacheSize < 1 {
		return fmt.Errorf("docs.cache_size must be at least 1, got %d", cfg.Docs.CacheSize)
	}
	return nil
}
