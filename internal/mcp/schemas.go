package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// extractionMethodProperty is shared by the two process tools
func extractionMethodProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Extraction method: hybrid (schema first, free-form fallback), schema_only or freeform_only. Aliases json_schema and prompt_parsing are accepted.",
		"enum":        []string{"hybrid", "schema_only", "freeform_only", "json_schema", "prompt_parsing"},
		"default":     "hybrid",
	}
}

func modelProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Optional model override for this request",
	}
}

// processDocumentTextTool returns the tool definition for process_document_text
func processDocumentTextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "process_document_text",
		Description: "Classify a document, extract structured data with the LLM, and validate the merged record",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Full document text",
				},
				"extraction_method": extractionMethodProperty(),
				"model":             modelProperty(),
			},
			Required: []string{"text"},
		},
	}
}

// processDocumentFileTool returns the tool definition for process_document_file
func processDocumentFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "process_document_file",
		Description: "Read a PDF, TXT or Markdown file and process its text like process_document_text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to a .pdf, .txt or .md file",
				},
				"extraction_method": extractionMethodProperty(),
				"model":             modelProperty(),
			},
			Required: []string{"file_path"},
		},
	}
}

// classifyDocumentTypeTool returns the tool definition for classify_document_type
func classifyDocumentTypeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "classify_document_type",
		Description: "Determine the document type of a text without extracting data",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Document text to classify",
				},
			},
			Required: []string{"text"},
		},
	}
}

// getMetricsTool returns the tool definition for get_metrics
func getMetricsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_metrics",
		Description: "Processing, LLM and per-type statistics since start-up, plus stored totals",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// healthCheckTool returns the tool definition for health_check
func healthCheckTool() mcp.Tool {
	return mcp.Tool{
		Name:        "health_check",
		Description: "Report LLM reachability, available models, registered processors and storage health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// listDocumentTypesTool returns the tool definition for list_document_types
func listDocumentTypesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_document_types",
		Description: "List the supported document types with their keywords and statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getDocumentResultTool returns the tool definition for get_document_result
func getDocumentResultTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_document_result",
		Description: "Fetch a stored processing result by document id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": map[string]interface{}{
					"type":        "string",
					"description": "Id returned by a process tool",
				},
			},
			Required: []string{"document_id"},
		},
	}
}

// exportResultsTool returns the tool definition for export_results
func exportResultsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "export_results",
		Description: "Write stored successful results to an Excel workbook",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"output_path": map[string]interface{}{
					"type":        "string",
					"description": "Destination .xlsx path",
				},
				"document_type": map[string]interface{}{
					"type":        "string",
					"description": "Only export this document type",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results (1-10000)",
					"default":     1000,
					"minimum":     1,
					"maximum":     10000,
				},
			},
			Required: []string{"output_path"},
		},
	}
}
