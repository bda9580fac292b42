// Package mcp implements the Model Context Protocol (MCP) server for docproc.
//
// The MCP server exposes the document pipeline to AI assistants:
//   - process_document_text: Classify, extract and validate a document's text
//   - process_document_file: Same for a .pdf, .txt or .md file
//   - classify_document_type: Classification only
//   - get_metrics: Processing, LLM and per-type statistics
//   - health_check: LLM reachability, processors and storage health
//   - list_document_types: Registered types with keywords and fields
//   - get_document_result: A stored result by document id
//   - export_results: Stored results written to an Excel workbook
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	docproc serve
//
// # Tool: process_document_text
//
//	Request:
//	{
//	  "name": "process_document_text",
//	  "arguments": {
//	    "text": "FACTUUR ... Totaal: €121,00",
//	    "extraction_method": "hybrid",
//	    "model": "llama3.2"
//	  }
//	}
//
//	Response:
//	{
//	  "document_id": "5d0c...",
//	  "status": "success",
//	  "document_type": "invoice",
//	  "confidence": 40,
//	  "completeness": 63.2,
//	  "data": {"invoice_id": "INV-1", "total_amount": 121, ...},
//	  "issues": ["no line items found"],
//	  "chunks": 1,
//	  "extraction_mode": "hybrid",
//	  "duration_ms": 2140
//	}
//
// Processing failures are not protocol errors: they come back as a result
// with "status": "failed" and a "reason".
//
// # Resources and Prompts
//
//	examples://document-types     Markdown overview of every type
//	stats://all                   Statistics of every type
//	stats://{document_type}       Statistics of one type
//	schema://{document_type}      Extraction JSON schema
//	keywords://{document_type}    Classification keywords
//
// The document-processing-guide prompt takes an optional document_type.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "docproc": {
//	      "command": "/usr/local/bin/docproc",
//	      "args": ["serve"],
//	      "env": {
//	        "OLLAMA_HOST": "http://localhost:11434",
//	        "DOCPROC_DB_PATH": "/var/lib/docproc/results.db"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (storage, export, etc.)
//   - -32001: File not found
//   - -32002: Unsupported file type or file too large
//   - -32003: Document result or document type not found
//
// # Logging
//
// The server logs to stderr; stdout is reserved for the MCP protocol.
package mcp
