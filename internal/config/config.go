package config

import "time"

// Config is the complete erlgraph configuration. It can be loaded from
// .erlgraph/config.yml with environment variable overrides.
type Config struct {
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	Limits   LimitsConfig   `yaml:"limits" mapstructure:"limits"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Flow     FlowConfig     `yaml:"flow" mapstructure:"flow"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Docs     DocsConfig     `yaml:"docs" mapstructure:"docs"`
	Manifest ManifestConfig `yaml:"manifest" mapstructure:"manifest"`
}

// PathsConfig defines which files to extract and which to ignore.
type PathsConfig struct {
	Include []string `yaml:"include" mapstructure:"include"` // glob patterns for source files
	Ignore  []string `yaml:"ignore" mapstructure:"ignore"`   // glob patterns to ignore
}

// LimitsConfig bounds what counts as an extractable unit.
type LimitsConfig struct {
	MaxFileSize      int64 `yaml:"max_file_size" mapstructure:"max_file_size"`           // bytes; larger files are skipped
	MinFileSize      int64 `yaml:"min_file_size" mapstructure:"min_file_size"`           // bytes; smaller files are skipped
	MaxFunctionLines int   `yaml:"max_function_lines" mapstructure:"max_function_lines"` // groups spanning more lines are skipped
	MinFunctionLines int   `yaml:"min_function_lines" mapstructure:"min_function_lines"` // groups spanning fewer lines are skipped
}

// PipelineConfig controls the per-file fan-out.
type PipelineConfig struct {
	Workers     int           `yaml:"workers" mapstructure:"workers"`
	FileTimeout time.Duration `yaml:"file_timeout" mapstructure:"file_timeout"`
	FailFast    bool          `yaml:"fail_fast" mapstructure:"fail_fast"`
}

// FlowConfig controls data-flow analysis output.
type FlowConfig struct {
	// RecursiveEdges includes the approximate edges linking recursive
	// call arguments to parameter bindings.
	RecursiveEdges bool `yaml:"recursive_edges" mapstructure:"recursive_edges"`
}

// OutputConfig defines the corpus sink.
type OutputConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"` // prefix for record source URLs
}

// DocsConfig points at the external docstring table.
type DocsConfig struct {
	Path      string `yaml:"path" mapstructure:"path"` // JSON table keyed "module:fun/arity"
	CacheSize int    `yaml:"cache_size" mapstructure:"cache_size"`
}

// ManifestConfig defines the run manifest database used for resume and
// run summaries.
type ManifestConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Include: []string{
				"**/*.erl",
			},
			Ignore: []string{
				"deps/**",
				"_build/**",
				"ebin/**",
				"priv/**",
				".git/**",
				".erlgraph/**",
			},
		},
		Limits: LimitsConfig{
			MaxFileSize:      1024 * 1024,
			MinFileSize:      50,
			MaxFunctionLines: 200,
			MinFunctionLines: 2,
		},
		Pipeline: PipelineConfig{
			Workers:     8,
			FileTimeout: 30 * time.Second,
			FailFast:    false,
		},
		Flow: FlowConfig{
			RecursiveEdges: true,
		},
		Output: OutputConfig{
			Path:    "functions.jsonl",
			BaseURL: "",
		},
		Docs: DocsConfig{
			Path:      "",
			CacheSize: 4096,
		},
		Manifest: ManifestConfig{
			Path: ".erlgraph/manifest.db",
		},
	}
}
