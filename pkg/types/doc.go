// Package types provides shared type definitions for the docproc MCP server.
//
// These types flow between the pipeline stages: a RawDocument is classified,
// optionally split into Chunks, each chunk yields a PartialExtraction, and the
// partials are merged into a MergedRecord. The outcome of one pipeline run is
// reported as a ProcessingResult.
//
// # Records
//
// Extracted data travels as a Record (map[string]any) so that every document
// type can share the extraction and merge machinery. Typed views are
// available for the built-in document types:
//
//	var inv types.InvoiceData
//	if err := types.DecodeRecord(result.Data, &inv); err != nil {
//	    return err
//	}
//	fmt.Println(inv.TotalAmount)
//
// # Extraction Modes
//
// ParseExtractionMode accepts hybrid, schema_only and freeform_only, plus the
// aliases json_schema and prompt_parsing:
//
//	mode, err := types.ParseExtractionMode("prompt_parsing") // ModeFreeformOnly
//
// # Errors
//
// The error taxonomy is defined as sentinel errors (ErrLLMCall,
// ErrJSONExtraction, ErrJSONDecode, ErrSchemaValidation, ...). Components
// wrap them with context, so callers test with errors.Is.
package types
