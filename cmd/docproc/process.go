package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/docproc-mcp/pkg/types"
)

var (
	processMethod string
	processModel  string
)

var processCmd = &cobra.Command{
	Use:   "process [file...]",
	Short: "Process documents and print the results as JSON",
	Long: `Process one or more .pdf, .txt or .md files. Use "-" to read text from
stdin. Each result is printed as one JSON document; processing failures are
results with "status": "failed", not command errors.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processMethod, "method", "m", "", "Extraction method: hybrid, schema_only, freeform_only")
	processCmd.Flags().StringVar(&processModel, "model", "", "Model override")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	// Empty leaves the configured default in place
	var mode types.ExtractionMode
	if processMethod != "" {
		m, err := types.ParseExtractionMode(processMethod)
		if err != nil {
			return err
		}
		mode = m
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	for _, path := range args {
		res, err := a.processOne(cmd.Context(), cmd.InOrStdin(), path, mode)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) processOne(ctx context.Context, stdin io.Reader, path string, mode types.ExtractionMode) (*types.ProcessingResult, error) {
	if timeout := a.cfg.PipelineTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if path == "-" {
		text, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return a.pipeline.Process(ctx, types.RawDocument{
			Text:   string(text),
			Mode:   mode,
			Source: "stdin",
			Model:  processModel,
		}), nil
	}
	return a.pipeline.ProcessFile(ctx, path, mode, processModel)
}
