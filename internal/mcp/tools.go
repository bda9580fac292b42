package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docproc-mcp/internal/llm"
	"github.com/dshills/docproc-mcp/internal/metrics"
	"github.com/dshills/docproc-mcp/internal/storage"
	"github.com/dshills/docproc-mcp/internal/textextract"
	"github.com/dshills/docproc-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeFileNotFound    = -32001 // File does not exist
	ErrorCodeUnsupportedFile = -32002 // File type or size not accepted
	ErrorCodeNotFound        = -32003 // Document result or type not found
	ErrorCodeBusy            = -32004 // Another export is running
)

// Export limits
const (
	defaultExportLimit = 1000
	maxExportLimit     = 10000
)

// handleProcessDocumentText handles the process_document_text tool invocation
func (s *Server) handleProcessDocumentText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	mode, err := parseMode(args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result := s.pipeline.Process(ctx, types.RawDocument{
		Text:   text,
		Mode:   mode,
		Source: "text",
		Model:  getStringDefault(args, "model", ""),
	})
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleProcessDocumentFile handles the process_document_file tool invocation
func (s *Server) handleProcessDocumentFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["file_path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "file_path parameter is required", map[string]interface{}{
			"param":  "file_path",
			"reason": "missing or empty",
		})
	}

	mode, err := parseMode(args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.pipeline.ProcessFile(ctx, path, mode, getStringDefault(args, "model", ""))
	if err != nil {
		return nil, fileError(path, err)
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleClassifyDocumentType handles the classify_document_type tool invocation
func (s *Server) handleClassifyDocumentType(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	text, ok := args["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "text parameter is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	res, err := s.registry.Classify(ctx, text)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "classification interrupted", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"document_type":   res.TypeID,
		"confidence":      res.Confidence,
		"recognized":      res.Known(),
		"supported_types": s.registry.Types(),
	}
	if res.Known() {
		response["display_name"] = res.Processor.DisplayName()
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetMetrics handles the get_metrics tool invocation
func (s *Server) handleGetMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	response := map[string]interface{}{
		"processors": s.registry.AllStatistics(),
	}
	if s.metrics != nil {
		snap := s.metrics.Snapshot()
		response["system"] = snap.System
		response["processing"] = snap.Processing
		response["llm"] = snap.LLM
		response["extraction_errors"] = snap.ExtractionErrors
	}

	if s.store != nil {
		stats, err := s.store.DocumentStats(ctx)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to read stored statistics", map[string]interface{}{
				"error": err.Error(),
			})
		}
		totals, err := s.store.ExtractionErrorTotals(ctx)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to read stored error totals", map[string]interface{}{
				"error": err.Error(),
			})
		}
		response["stored"] = map[string]interface{}{
			"document_types":    stats,
			"extraction_errors": totals,
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleHealthCheck handles the health_check tool invocation
func (s *Server) handleHealthCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := "healthy"

	llmHealth := map[string]interface{}{
		"provider": s.gen.Provider(),
		"model":    s.gen.Model(),
	}
	if lister, ok := s.gen.(llm.ModelLister); ok {
		probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		models, err := lister.ListModels(probeCtx)
		cancel()
		if err != nil {
			status = "degraded"
			llmHealth["reachable"] = false
			llmHealth["error"] = err.Error()
		} else {
			llmHealth["reachable"] = true
			llmHealth["available_models"] = models
		}
	} else {
		llmHealth["reachable"] = "unknown"
	}

	response := map[string]interface{}{
		"status":     status,
		"server":     map[string]interface{}{"name": ServerName, "version": ServerVersion},
		"llm":        llmHealth,
		"processors": s.registry.Types(),
	}

	if s.metrics != nil {
		up := s.metrics.Uptime()
		response["uptime"] = metrics.FormatUptime(up)
		response["uptime_seconds"] = up.Seconds()
	}

	if s.store != nil {
		h := s.store.Health(ctx)
		if !h.DatabaseAccessible {
			status = "degraded"
		}
		response["storage"] = h
	} else {
		response["storage"] = map[string]interface{}{"enabled": false}
	}
	response["status"] = status

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListDocumentTypes handles the list_document_types tool invocation
func (s *Server) handleListDocumentTypes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	descs := s.registry.DescribeAll()
	entries := make([]map[string]interface{}, 0, len(descs))
	for _, d := range descs {
		entry := map[string]interface{}{
			"type_id":      d.TypeID,
			"display_name": d.DisplayName,
			"description":  d.Description,
			"keywords":     d.Keywords,
			"fields":       schemaFields(d.Schema),
		}
		if stats, err := s.registry.Statistics(d.TypeID); err == nil {
			entry["statistics"] = stats
		}
		entries = append(entries, entry)
	}

	response := map[string]interface{}{
		"document_types": entries,
		"count":          len(entries),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetDocumentResult handles the get_document_result tool invocation
func (s *Server) handleGetDocumentResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["document_id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "document_id parameter is required", map[string]interface{}{
			"param":  "document_id",
			"reason": "missing or empty",
		})
	}

	if s.store == nil {
		return nil, errStorageDisabled()
	}

	result, err := s.store.GetResult(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotFound, "document result not found", map[string]interface{}{
			"document_id": id,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to load result", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleExportResults handles the export_results tool invocation
func (s *Server) handleExportResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["output_path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "output_path parameter is required", map[string]interface{}{
			"param":  "output_path",
			"reason": "missing or empty",
		})
	}
	if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return nil, newMCPError(ErrorCodeInvalidParams, "output_path must end in .xlsx", map[string]interface{}{
			"param": "output_path",
			"value": path,
		})
	}

	limit := getIntDefault(args, "limit", defaultExportLimit)
	if limit < 1 || limit > maxExportLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxExportLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	docType := getStringDefault(args, "document_type", "")
	if docType != "" {
		if _, err := s.registry.Get(docType); err != nil {
			return nil, newMCPError(ErrorCodeNotFound, "unknown document type", map[string]interface{}{
				"document_type": docType,
				"supported":     s.registry.Types(),
			})
		}
	}

	if s.store == nil {
		return nil, errStorageDisabled()
	}

	if !s.exporting.TryAcquire() {
		return nil, newMCPError(ErrorCodeBusy, "an export is already in progress", map[string]interface{}{
			"output_path": path,
		})
	}
	defer s.exporting.Release()

	results, err := s.store.ListResults(ctx, storage.ResultFilter{
		DocumentType: docType,
		Status:       types.StatusSuccess,
		Limit:        limit,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list results", map[string]interface{}{
			"error": err.Error(),
		})
	}

	summary, err := s.exporter.ExportToFile(results, path)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "export failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"output_path": path,
		"documents":   len(results),
		"sheets":      summary,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func errStorageDisabled() error {
	return newMCPError(ErrorCodeInternalError, "result storage is disabled", map[string]interface{}{
		"hint": "set DOCPROC_DB_PATH to enable persistence",
	})
}

// fileError maps text extraction failures onto MCP error codes
func fileError(path string, err error) error {
	data := map[string]interface{}{
		"file_path": path,
		"reason":    err.Error(),
	}
	switch {
	case errors.Is(err, textextract.ErrFileNotFound):
		return newMCPError(ErrorCodeFileNotFound, "file not found", data)
	case errors.Is(err, textextract.ErrUnsupportedFileType):
		data["supported"] = textextract.SupportedExtensions
		return newMCPError(ErrorCodeUnsupportedFile, "unsupported file type", data)
	case errors.Is(err, textextract.ErrFileTooLarge):
		return newMCPError(ErrorCodeUnsupportedFile, "file too large", data)
	default:
		return newMCPError(ErrorCodeInternalError, "text extraction failed", data)
	}
}

// parseMode reads the optional extraction_method argument
func parseMode(args map[string]interface{}) (types.ExtractionMode, error) {
	raw := getStringDefault(args, "extraction_method", "")
	if raw == "" {
		return "", nil
	}
	mode, err := types.ParseExtractionMode(raw)
	if err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid extraction_method", map[string]interface{}{
			"param":   "extraction_method",
			"value":   raw,
			"allowed": []string{string(types.ModeHybrid), string(types.ModeSchemaOnly), string(types.ModeFreeformOnly)},
		})
	}
	return mode, nil
}

// schemaFields lists the top-level property names of a JSON schema
func schemaFields(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	fields := make([]string, 0, len(props))
	for name := range props {
		fields = append(fields, name)
	}
	slices.Sort(fields)
	return fields
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
