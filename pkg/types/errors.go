package types

import "errors"

// Domain errors shared by the pipeline components
var (
	// Classification
	ErrClassificationFailure = errors.New("classification failed")
	ErrDuplicateType         = errors.New("document type already registered")
	ErrUnknownType           = errors.New("unknown document type")

	// Chunking
	ErrChunkingConfig = errors.New("invalid chunking configuration")

	// Extraction
	ErrLLMCall          = errors.New("llm call failed")
	ErrJSONExtraction   = errors.New("no JSON object found in response")
	ErrJSONDecode       = errors.New("malformed JSON")
	ErrSchemaValidation = errors.New("data does not match schema")
	ErrNoResult         = errors.New("no extraction result")

	// Merge
	ErrMergeInputEmpty = errors.New("merge called with no partial extractions")

	// Validation of shared types
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrInvalidMode     = errors.New("invalid extraction mode")
	ErrInvalidChunk    = errors.New("invalid chunk")
	ErrInvalidTypeID   = errors.New("type id cannot be empty")
	ErrInvalidDocument = errors.New("invalid document")
)
