package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for config loading:
// - Defaults apply when no config file exists
// - .erlgraph/config.yml values override defaults
// - Environment variables override the config file
// - Malformed config files fail loading
// - Validation rejects inconsistent limits

func TestLoader_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromDir(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []string{"**/*.erl"}, cfg.Paths.Include)
	assert.Contains(t, cfg.Paths.Ignore, "deps/**")
	assert.Contains(t, cfg.Paths.Ignore, "_build/**")
	assert.Equal(t, int64(1024*1024), cfg.Limits.MaxFileSize)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.FileTimeout)
	assert.True(t, cfg.Flow.RecursiveEdges)
	assert.Equal(t, "functions.jsonl", cfg.Output.Path)
	assert.Equal(t, ".erlgraph/manifest.db", cfg.Manifest.Path)
}

func TestLoader_ConfigFile(t *testing.T) {
	root := t.TempDir()
	configDir := filepath.Join(root, ".erlgraph")
	require.NoError(t, os.MkdirAll(configDir, 0755))

	configContent := `
paths:
  include:
    - "src/**/*.erl"
limits:
  max_function_lines: 120
pipeline:
  workers: 4
flow:
  recursive_edges: false
output:
  path: corpus/out.jsonl
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yml"), []byte(configContent), 0644))

	cfg, err := LoadConfigFromDir(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"src/**/*.erl"}, cfg.Paths.Include)
	assert.Equal(t, 120, cfg.Limits.MaxFunctionLines)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.False(t, cfg.Flow.RecursiveEdges)
	assert.Equal(t, "corpus/out.jsonl", cfg.Output.Path)

	// Untouched keys keep their defaults.
	assert.Equal(t, int64(1024*1024), cfg.Limits.MaxFileSize)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("ERLGRAPH_PIPELINE_WORKERS", "3")
	t.Setenv("ERLGRAPH_OUTPUT_PATH", "env.jsonl")

	cfg, err := LoadConfigFromDir(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.Equal(t, "env.jsonl", cfg.Output.Path)
}

func TestLoader_MalformedConfig(t *testing.T) {
	root := t.TempDir()
	configDir := filepath.Join(root, ".erlgraph")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yml"), []byte("paths: ["), 0644))

	_, err := LoadConfigFromDir(root)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"no include patterns", func(c *Config) { c.Paths.Include = nil }, "paths.include"},
		{"min file size above max", func(c *Config) { c.Limits.MinFileSize = 2048; c.Limits.MaxFileSize = 1024 }, "min_file_size"},
		{"min lines above max", func(c *Config) { c.Limits.MinFunctionLines = 300 }, "min_function_lines"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "workers"},
		{"negative timeout", func(c *Config) { c.Pipeline.FileTimeout = -time.Second }, "file_timeout"},
		{"empty output path", func(c *Config) { c.Output.Path = "" }, "output.path"},
		{"zero cache size", func(c *Config) { c.Docs.CacheSize = 0 }, "cache_size"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	assert.NoError(t, Validate(Default()))
}
