package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docproc-mcp/internal/storage"
)

// runCLI executes the root command with args in a clean working directory
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("DOCPROC_CONFIG", "")
	t.Setenv("DOCPROC_DB_PATH", "")
	t.Cleanup(func() {
		configPath, logLevel, dbPath = "", "", ""
		exportType, exportLimit = "", 1000
		processMethod, processModel = "", ""
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
	assert.Contains(t, out, "Build Mode: "+storage.BuildMode)
	assert.Contains(t, out, "SQLite Driver: "+storage.DriverName)
}

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		want  string
	}{
		{
			name:  "invoice",
			stdin: "FACTUUR\nFactuurnummer: INV-1\nBTW 21%\nTotaal: EUR 121,00\nVervaldatum: 2024-02-01",
			want:  "invoice",
		},
		{
			name:  "cv",
			stdin: "Curriculum Vitae\nWerkervaring\nOpleiding\nVaardigheden: Go, SQL",
			want:  "cv",
		},
		{"blank", "   ", "unknown"},
		{"unrelated", "The quick brown fox jumps over the lazy dog.", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, tt.stdin, "classify", "-")
			require.NoError(t, err)
			fields := strings.Fields(out)
			require.Len(t, fields, 2)
			assert.Equal(t, tt.want, fields[0])
		})
	}
}

func TestClassifyCommand_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cv.md")
	require.NoError(t, os.WriteFile(path, []byte("# Curriculum Vitae\n\n## Werkervaring\n\n## Opleiding\n\nVaardigheden"), 0o600))

	out, err := runCLI(t, "", "classify", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "cv\t"), out)

	_, err = runCLI(t, "", "classify", filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestExportCommand_RequiresDatabase(t *testing.T) {
	_, err := runCLI(t, "", "export", "out.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOCPROC_DB_PATH")
}

func TestExportCommand_EmptyDatabase(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "data", "docproc.db")
	out := filepath.Join(dir, "out.xlsx")

	stdout, err := runCLI(t, "", "export", "--db", db, "--type", "invoice", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Exported 0 documents")
	assert.FileExists(t, out)
}

func TestProcessCommand_InvalidMethod(t *testing.T) {
	_, err := runCLI(t, "text", "process", "--method", "magic", "-")
	assert.Error(t, err)
}
