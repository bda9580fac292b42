package main

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/docproc-mcp/internal/registry"
	"github.com/dshills/docproc-mcp/internal/textextract"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [file]",
	Short: "Print the document type of a file (or stdin with \"-\")",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	_, logger, err := loadConfig()
	if err != nil {
		return err
	}

	var text string
	if args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		text = string(b)
	} else {
		text, err = textextract.ExtractFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(text) == "" {
		cmd.Printf("%s\t%.0f\n", registry.UnknownType, 0.0)
		return nil
	}

	reg := registry.NewDefault(registry.WithLogger(logger))
	res, err := reg.Classify(cmd.Context(), text)
	if err != nil {
		return err
	}
	cmd.Printf("%s\t%.0f\n", res.TypeID, res.Confidence)
	return nil
}
