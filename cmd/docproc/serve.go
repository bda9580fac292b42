package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/docproc-mcp/internal/mcp"
	"github.com/dshills/docproc-mcp/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol server. The server reads JSON-RPC
requests on stdin and writes responses on stdout; logs go to stderr.

MCP client configuration:
  {
    "mcpServers": {
      "docproc": {
        "command": "/path/to/docproc",
        "args": ["serve"]
      }
    }
  }`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("server.start",
		"version", version,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	server := mcp.NewServer(a.pipeline,
		mcp.WithMetrics(a.metrics),
		mcp.WithLogger(logger),
		mcp.WithTimeout(cfg.PipelineTimeout()),
	)

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx, os.Stdin, os.Stdout, os.Stderr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("server.shutdown", "reason", context.Cause(ctx))
		return nil
	case err := <-errChan:
		if err != nil {
			logger.Error("server.error", "error", err)
		}
		logger.Info("server.stop")
		return err
	}
}
