package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dshills/docproc-mcp/internal/export"
	"github.com/dshills/docproc-mcp/internal/storage"
	"github.com/dshills/docproc-mcp/pkg/types"
)

var (
	exportType  string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export [output.xlsx]",
	Short: "Write stored successful results to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportType, "type", "t", "", "Only export this document type")
	exportCmd.Flags().IntVarP(&exportLimit, "limit", "n", 1000, "Maximum number of results")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.DBPath == "" {
		return errors.New("no result database: set DOCPROC_DB_PATH or --db")
	}

	store, err := openStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	results, err := store.ListResults(cmd.Context(), storage.ResultFilter{
		DocumentType: exportType,
		Status:       types.StatusSuccess,
		Limit:        exportLimit,
	})
	if err != nil {
		return err
	}

	summary, err := export.New(logger).ExportToFile(results, args[0])
	if err != nil {
		return err
	}
	cmd.Printf("Exported %d documents to %s (%d invoices, %d line items, %d CVs)\n",
		len(results), args[0], summary.Invoices, summary.LineItems, summary.CVs)
	return nil
}
