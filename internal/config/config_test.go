package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docproc-mcp/internal/chunker"
	"github.com/dshills/docproc-mcp/internal/llm"
	"github.com/dshills/docproc-mcp/pkg/types"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, llm.ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, chunker.DefaultChunkSize, cfg.Chunking.DefaultSize)
	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.Equal(t, 85.0, cfg.Pipeline.MergeThreshold)
	assert.Empty(t, cfg.Storage.DBPath)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"OLLAMA_HOST":                      "http://gpu-box:11434",
		"OLLAMA_MODEL":                     "mistral",
		"OLLAMA_TIMEOUT":                   "30",
		"CHUNKING_DEFAULT_CHUNK_SIZE":      "1500",
		"CHUNKING_DEFAULT_CHUNK_OVERLAP":   " 100 ",
		"CHUNKING_AUTO_MODE_ENABLED":       "false",
		"CHUNKING_AUTO_MODE_SAFETY_FACTOR": "0.7",
		"PIPELINE_WORKERS":                 "4",
		"MERGE_THRESHOLD":                  "90",
		"DEFAULT_EXTRACTION_METHOD":        "json_schema",
		"DOCPROC_DB_PATH":                  "/tmp/docproc.db",
		"LOG_LEVEL":                        "debug",
		"LOG_FORMAT":                       "",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "mistral", cfg.LLM.Model)
	assert.Equal(t, 1500, cfg.Chunking.DefaultSize)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.False(t, cfg.Chunking.AutoMode)
	assert.Equal(t, 0.7, cfg.Chunking.SafetyFactor)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "/tmp/docproc.db", cfg.Storage.DBPath)
	assert.Equal(t, "text", cfg.Log.Format, "empty values do not override")

	lc := cfg.LLMClientConfig()
	assert.Equal(t, 30*time.Second, lc.Timeout)
	assert.Equal(t, "mistral", lc.Model)
}

func TestApplyEnv_OpenAI(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(mapLookup(map[string]string{
		"LLM_PROVIDER":   "openai",
		"OPENAI_API_KEY": "sk-test",
		"OLLAMA_HOST":    "http://ignored:11434",
	})))
	require.NoError(t, cfg.Validate())

	assert.Empty(t, cfg.LLM.BaseURL, "ollama defaults are not sent to openai")
	assert.Empty(t, cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestApplyEnv_ParseErrors(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"PIPELINE_WORKERS":           "many",
		"CHUNKING_AUTO_MODE_ENABLED": "sometimes",
		"MERGE_THRESHOLD":            "high",
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "PIPELINE_WORKERS")
	assert.Contains(t, err.Error(), "CHUNKING_AUTO_MODE_ENABLED")
	assert.Contains(t, err.Error(), "MERGE_THRESHOLD")
	assert.Equal(t, 1, cfg.Pipeline.Workers, "bad values leave defaults")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }, "unknown LLM provider"},
		{"openai without key", func(c *Config) { c.LLM.Provider = "openai"; c.LLM.APIKey = "" }, "OPENAI_API_KEY"},
		{"zero timeout", func(c *Config) { c.LLM.TimeoutSeconds = 0 }, "timeout"},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = c.Chunking.DefaultSize }, "overlap"},
		{"size below min", func(c *Config) { c.Chunking.DefaultSize = 50 }, "chunk"},
		{"inverted limits", func(c *Config) { c.Chunking.MaxSize = 10 }, "limits"},
		{"safety factor", func(c *Config) { c.Chunking.SafetyFactor = 1.5 }, "safety factor"},
		{"no workers", func(c *Config) { c.Pipeline.Workers = 0 }, "workers"},
		{"threshold", func(c *Config) { c.Pipeline.MergeThreshold = 0 }, "merge threshold"},
		{"mode", func(c *Config) { c.Pipeline.DefaultMode = "magic" }, "magic"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"strategy", func(c *Config) { c.Chunking.Strategy = "random" }, "strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docproc.toml")
	content := `
[llm]
model = "qwen2.5"
rate_per_minute = 30

[chunking]
default_chunk_size = 2000
auto_mode_enabled = false

[pipeline]
workers = 3

[storage]
db_path = "results.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "qwen2.5", cfg.LLM.Model)
	assert.Equal(t, 30, cfg.LLM.RatePerMinute)
	assert.Equal(t, llm.DefaultOllamaHost, cfg.LLM.BaseURL, "absent keys keep defaults")
	assert.Equal(t, 2000, cfg.Chunking.DefaultSize)
	assert.False(t, cfg.Chunking.AutoMode)
	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.Equal(t, "results.db", cfg.Storage.DBPath)
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.toml")))

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[llm\nmodel = "), 0o600))
	assert.ErrorIs(t, cfg.LoadFile(path), ErrInvalidConfig)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docproc.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pipeline]\nworkers = 2\n"), 0o600))

	t.Chdir(dir)
	t.Setenv(EnvConfigFile, path)
	t.Setenv("PIPELINE_WORKERS", "5")
	t.Setenv("OLLAMA_MODEL", "phi3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Pipeline.Workers, "env overrides file")
	assert.Equal(t, "phi3", cfg.LLM.Model)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHUNKING_THRESHOLD=4000\n"), 0o600))

	t.Chdir(dir)
	t.Setenv(EnvConfigFile, "")
	// Registered so the value loaded from .env is cleared after the test
	t.Setenv("CHUNKING_THRESHOLD", "")
	require.NoError(t, os.Unsetenv("CHUNKING_THRESHOLD"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Chunking.Threshold)
}

func TestAutoSizer(t *testing.T) {
	cfg := Default()
	cfg.Chunking.AutoMode = false
	cfg.Chunking.DefaultSize = 1234

	a := cfg.AutoSizer(nil, nil)
	assert.False(t, a.Enabled)
	assert.Equal(t, 1234, a.DefaultSize)
	assert.Equal(t, cfg.Limits(), a.Limits)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"trace", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, err == nil)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	logger := cfg.NewLogger(&buf)
	logger.Info("pipeline.process.start")
	assert.Empty(t, buf.String(), "info is below warn")

	logger.Warn("pipeline.process.failed", "reason", "x")
	assert.Contains(t, buf.String(), `"msg":"pipeline.process.failed"`)
	assert.Contains(t, buf.String(), `"reason":"x"`)
}

func TestPipelineSettings(t *testing.T) {
	cfg := Default()
	cfg.Chunking.Strategy = "smart"
	cfg.Chunking.Threshold = 3000
	cfg.Pipeline.Workers = 3
	cfg.Pipeline.DefaultMode = "prompt_parsing"
	require.NoError(t, cfg.Validate())

	pc := cfg.PipelineSettings()
	assert.Equal(t, 3, pc.Workers)
	assert.Equal(t, 3000, pc.ChunkThreshold)
	assert.Equal(t, chunker.StrategySmart, pc.Strategy)
	assert.Equal(t, chunker.DefaultOverlap, pc.Overlap)
	assert.Equal(t, cfg.Limits(), pc.Limits)
	assert.Equal(t, types.ModeFreeformOnly, pc.DefaultMode)
	assert.Equal(t, 85.0, pc.MergeThreshold)
}

func TestPipelineTimeout(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 300*time.Second, cfg.PipelineTimeout())
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, string(types.ModeHybrid), cfg.Pipeline.DefaultMode)
}
