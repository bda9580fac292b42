package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/docproc-mcp/internal/chunker"
	"github.com/dshills/docproc-mcp/internal/llm"
	"github.com/dshills/docproc-mcp/internal/pipeline"
	"github.com/dshills/docproc-mcp/internal/similarity"
	"github.com/dshills/docproc-mcp/pkg/types"
)

// EnvConfigFile names the optional TOML config file
const EnvConfigFile = "DOCPROC_CONFIG"

// ErrInvalidConfig is returned by Validate and by unparsable overrides
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full runtime configuration
type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Chunking ChunkingConfig `toml:"chunking"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Storage  StorageConfig  `toml:"storage"`
	Log      LogConfig      `toml:"log"`
}

// LLMConfig selects the backend
type LLMConfig struct {
	Provider       string `toml:"provider"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RatePerMinute  int    `toml:"rate_per_minute"`
	CacheSize      int    `toml:"cache_size"`
}

// ChunkingConfig tunes the chunker and auto-sizing
type ChunkingConfig struct {
	Strategy     string  `toml:"strategy"`
	DefaultSize  int     `toml:"default_chunk_size"`
	Overlap      int     `toml:"default_chunk_overlap"`
	MinSize      int     `toml:"min_chunk_size"`
	MaxSize      int     `toml:"max_chunk_size"`
	AutoMode     bool    `toml:"auto_mode_enabled"`
	SafetyFactor float64 `toml:"auto_mode_safety_factor"`
	Threshold    int     `toml:"threshold"`
}

// PipelineConfig tunes per-document processing
type PipelineConfig struct {
	Workers        int     `toml:"workers"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MergeThreshold float64 `toml:"merge_threshold"`
	DefaultMode    string  `toml:"default_extraction_method"`
}

// StorageConfig locates the result database. An empty path disables it.
type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       llm.ProviderOllama,
			BaseURL:        llm.DefaultOllamaHost,
			Model:          llm.DefaultOllamaModel,
			TimeoutSeconds: 120,
			RatePerMinute:  0,
			CacheSize:      llm.DefaultCacheSize,
		},
		Chunking: ChunkingConfig{
			Strategy:     string(chunker.StrategyRecursive),
			DefaultSize:  chunker.DefaultChunkSize,
			Overlap:      chunker.DefaultOverlap,
			MinSize:      chunker.MinChunkSize,
			MaxSize:      chunker.MaxChunkSize,
			AutoMode:     true,
			SafetyFactor: chunker.DefaultSafetyFactor,
			Threshold:    chunker.DefaultThreshold,
		},
		Pipeline: PipelineConfig{
			Workers:        1,
			TimeoutSeconds: 300,
			MergeThreshold: similarity.DefaultThreshold,
			DefaultMode:    string(types.ModeHybrid),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then a .env file in the working
// directory, then the TOML file named by DOCPROC_CONFIG, then environment
// variables. The result is validated.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := Default()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges a TOML file over the current values. Keys absent from
// the file keep their values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

// ApplyEnv overrides values from environment variables looked up through
// lookup. Unparsable numbers and booleans are reported, not ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("LLM_PROVIDER", &c.LLM.Provider)
	e.str("LLM_MODEL", &c.LLM.Model)
	e.str("OLLAMA_MODEL", &c.LLM.Model)
	e.intVal("OLLAMA_TIMEOUT", &c.LLM.TimeoutSeconds)
	e.intVal("LLM_TIMEOUT", &c.LLM.TimeoutSeconds)
	e.intVal("LLM_RATE_PER_MINUTE", &c.LLM.RatePerMinute)
	e.intVal("LLM_CACHE_SIZE", &c.LLM.CacheSize)
	e.str("OPENAI_API_KEY", &c.LLM.APIKey)
	if strings.EqualFold(c.LLM.Provider, llm.ProviderOpenAI) {
		if c.LLM.BaseURL == llm.DefaultOllamaHost {
			c.LLM.BaseURL = ""
		}
		if c.LLM.Model == llm.DefaultOllamaModel {
			c.LLM.Model = ""
		}
		e.str("OPENAI_BASE_URL", &c.LLM.BaseURL)
		e.str("OPENAI_MODEL", &c.LLM.Model)
	} else {
		e.str("OLLAMA_HOST", &c.LLM.BaseURL)
	}

	e.str("CHUNKING_STRATEGY", &c.Chunking.Strategy)
	e.intVal("CHUNKING_DEFAULT_CHUNK_SIZE", &c.Chunking.DefaultSize)
	e.intVal("CHUNKING_DEFAULT_CHUNK_OVERLAP", &c.Chunking.Overlap)
	e.intVal("CHUNKING_MIN_CHUNK_SIZE", &c.Chunking.MinSize)
	e.intVal("CHUNKING_MAX_CHUNK_SIZE", &c.Chunking.MaxSize)
	e.boolVal("CHUNKING_AUTO_MODE_ENABLED", &c.Chunking.AutoMode)
	e.floatVal("CHUNKING_AUTO_MODE_SAFETY_FACTOR", &c.Chunking.SafetyFactor)
	e.intVal("CHUNKING_THRESHOLD", &c.Chunking.Threshold)

	e.intVal("PIPELINE_WORKERS", &c.Pipeline.Workers)
	e.intVal("PIPELINE_TIMEOUT", &c.Pipeline.TimeoutSeconds)
	e.floatVal("MERGE_THRESHOLD", &c.Pipeline.MergeThreshold)
	e.str("DEFAULT_EXTRACTION_METHOD", &c.Pipeline.DefaultMode)

	e.str("DOCPROC_DB_PATH", &c.Storage.DBPath)

	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(e.errs...)
}

// Validate rejects values no component can work with
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderOllama:
	case llm.ProviderOpenAI:
		if c.LLM.APIKey == "" {
			add("OPENAI_API_KEY is required for the openai provider")
		}
	default:
		add("unknown LLM provider %q", c.LLM.Provider)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		add("LLM timeout must be positive, got %d", c.LLM.TimeoutSeconds)
	}
	if c.LLM.RatePerMinute < 0 {
		add("LLM rate limit must not be negative")
	}
	if c.LLM.CacheSize < 0 {
		add("LLM cache size must not be negative")
	}

	if _, err := chunker.ParseStrategy(c.Chunking.Strategy); err != nil {
		add("%v", err)
	}
	if c.Chunking.MinSize <= 0 || c.Chunking.MaxSize < c.Chunking.MinSize {
		add("chunk size limits [%d, %d] are invalid", c.Chunking.MinSize, c.Chunking.MaxSize)
	} else if err := chunker.ValidateConfig(c.Chunking.DefaultSize, c.Chunking.Overlap, c.Limits()); err != nil {
		add("%v", err)
	}
	if c.Chunking.SafetyFactor <= 0 || c.Chunking.SafetyFactor > 1 {
		add("auto mode safety factor must be in (0, 1], got %g", c.Chunking.SafetyFactor)
	}
	if c.Chunking.Threshold <= 0 {
		add("chunking threshold must be positive")
	}

	if c.Pipeline.Workers < 1 {
		add("pipeline workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.TimeoutSeconds < 0 {
		add("pipeline timeout must not be negative")
	}
	if c.Pipeline.MergeThreshold <= 0 || c.Pipeline.MergeThreshold > 100 {
		add("merge threshold must be in (0, 100], got %g", c.Pipeline.MergeThreshold)
	}
	if _, err := types.ParseExtractionMode(c.Pipeline.DefaultMode); err != nil {
		add("%v", err)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		add("unknown log format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// LLMClientConfig maps the LLM section onto the client factory's config
func (c *Config) LLMClientConfig() llm.Config {
	return llm.Config{
		Provider:      strings.ToLower(c.LLM.Provider),
		BaseURL:       c.LLM.BaseURL,
		Model:         c.LLM.Model,
		APIKey:        c.LLM.APIKey,
		Timeout:       time.Duration(c.LLM.TimeoutSeconds) * time.Second,
		RatePerMinute: c.LLM.RatePerMinute,
		CacheSize:     c.LLM.CacheSize,
	}
}

// Limits returns the configured chunk size range
func (c *Config) Limits() chunker.Limits {
	return chunker.Limits{Min: c.Chunking.MinSize, Max: c.Chunking.MaxSize}
}

// AutoSizer builds the chunk auto-sizer over source
func (c *Config) AutoSizer(source chunker.ContextWindowSource, logger *slog.Logger) *chunker.AutoSizer {
	a := chunker.NewAutoSizer(source)
	a.Enabled = c.Chunking.AutoMode
	a.DefaultSize = c.Chunking.DefaultSize
	a.SafetyFactor = c.Chunking.SafetyFactor
	a.Limits = c.Limits()
	a.Logger = logger
	return a
}

// PipelineSettings maps the chunking and pipeline sections onto the
// coordinator's config. Call Validate first.
func (c *Config) PipelineSettings() pipeline.Config {
	strategy, err := chunker.ParseStrategy(c.Chunking.Strategy)
	if err != nil {
		strategy = chunker.StrategyRecursive
	}
	mode, err := types.ParseExtractionMode(c.Pipeline.DefaultMode)
	if err != nil {
		mode = types.ModeHybrid
	}
	return pipeline.Config{
		Workers:        c.Pipeline.Workers,
		ChunkThreshold: c.Chunking.Threshold,
		Strategy:       strategy,
		Overlap:        c.Chunking.Overlap,
		Limits:         c.Limits(),
		DefaultMode:    mode,
		MergeThreshold: c.Pipeline.MergeThreshold,
	}
}

// PipelineTimeout is the per-document deadline; zero means none
func (c *Config) PipelineTimeout() time.Duration {
	return time.Duration(c.Pipeline.TimeoutSeconds) * time.Second
}

// ParseLevel converts a LOG_LEVEL value
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
	}
}

// NewLogger builds the slog handler selected by the Log section. The MCP
// server passes os.Stderr since stdout carries the protocol.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// envReader applies environment overrides and collects parse errors
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) intVal(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v))
		return
	}
	*dst = n
}

func (e *envReader) floatVal(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, v))
		return
	}
	*dst = f
}

func (e *envReader) boolVal(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, v))
		return
	}
	*dst = b
}
