package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/docproc-mcp/internal/config"
	"github.com/dshills/docproc-mcp/internal/llm"
	"github.com/dshills/docproc-mcp/internal/metrics"
	"github.com/dshills/docproc-mcp/internal/pipeline"
	"github.com/dshills/docproc-mcp/internal/registry"
	"github.com/dshills/docproc-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// Persistent flags
var (
	configPath string
	logLevel   string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "docproc",
	Short: "Classify documents and extract structured data with an LLM",
	Long: `docproc classifies invoices and CVs, extracts structured records with a
local or hosted LLM, and serves the pipeline to AI assistants over MCP.

Configuration comes from a .env file, the TOML file named by DOCPROC_CONFIG
(or --config), and environment variables, in that order.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file (overrides DOCPROC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Result database path (overrides DOCPROC_DB_PATH)")
}

// loadConfig resolves the configuration and the stderr logger
func loadConfig() (*config.Config, *slog.Logger, error) {
	if configPath != "" {
		if err := os.Setenv(config.EnvConfigFile, configPath); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	// stdout is reserved for command output and the MCP protocol
	log.SetOutput(os.Stderr)
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// app holds the wired pipeline for one command invocation
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	client   llm.Client
	store    storage.Storage
	registry *registry.Registry
	pipeline *pipeline.Pipeline
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	collector, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	client, err := llm.NewFromConfig(cfg.LLMClientConfig(), collector, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  collector,
		client:   client,
		registry: registry.NewDefault(registry.WithLogger(logger)),
	}

	opts := []pipeline.Option{
		pipeline.WithConfig(cfg.PipelineSettings()),
		pipeline.WithAutoSizer(cfg.AutoSizer(client, logger)),
		pipeline.WithRecorder(collector),
		pipeline.WithLogger(logger),
	}
	if cfg.Storage.DBPath != "" {
		store, err := openStore(cfg.Storage.DBPath)
		if err != nil {
			return nil, err
		}
		a.store = store
		opts = append(opts, pipeline.WithStore(store))
	}

	a.pipeline = pipeline.New(a.registry, client, opts...)
	return a, nil
}

func openStore(path string) (*storage.SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// Close releases the store
func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
