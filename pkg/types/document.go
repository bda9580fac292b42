package types

import (
	"fmt"
	"strings"
	"time"
)

// ExtractionMode selects which extraction techniques are attempted
type ExtractionMode string

const (
	ModeHybrid       ExtractionMode = "hybrid"        // Schema first, free-form fallback
	ModeSchemaOnly   ExtractionMode = "schema_only"   // Schema-constrained call only
	ModeFreeformOnly ExtractionMode = "freeform_only" // Free-form call + JSON location only
)

// ParseExtractionMode accepts the canonical mode names plus the legacy
// aliases json_schema and prompt_parsing. Empty input means hybrid.
func ParseExtractionMode(s string) (ExtractionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeHybrid):
		return ModeHybrid, nil
	case string(ModeSchemaOnly), "json_schema", "schema":
		return ModeSchemaOnly, nil
	case string(ModeFreeformOnly), "prompt_parsing", "freeform":
		return ModeFreeformOnly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Technique identifies how a partial extraction was obtained
type Technique string

const (
	TechniqueSchema   Technique = "schema"
	TechniqueFreeform Technique = "freeform"
)

// Record is a structured payload shaped like a document type's schema.
// Values follow encoding/json conventions (float64, string, []any, map[string]any).
type Record map[string]any

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies JSON-shaped values (maps, slices, scalars)
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, inner := range t {
			m[k] = CloneValue(inner)
		}
		return m
	case Record:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = CloneValue(inner)
		}
		return s
	default:
		return v
	}
}

// RawDocument is the immutable input for one pipeline run
type RawDocument struct {
	ID     string
	Text   string
	Mode   ExtractionMode
	Source string // File path or "text" for inline input
	Model  string // Optional model override
}

// Validate checks that the document can be processed
func (d *RawDocument) Validate() error {
	if strings.TrimSpace(d.Text) == "" {
		return ErrEmptyText
	}
	if d.Mode != "" {
		if _, err := ParseExtractionMode(string(d.Mode)); err != nil {
			return err
		}
	}
	return nil
}

// PartialExtraction is one chunk's validated extraction result
type PartialExtraction struct {
	ChunkIndex   int
	Technique    Technique
	Completeness float64 // 0-100
	Data         Record
}

// MergedRecord is the canonical output for a whole document
type MergedRecord struct {
	TypeID       string
	Data         Record
	Sources      int // Number of partials merged
	Completeness float64
}

// Status values reported by the pipeline
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ProcessingResult is the per-document outcome. Failures are reported through
// Status and Reason rather than as Go errors.
type ProcessingResult struct {
	DocumentID       string         `json:"document_id"`
	Status           string         `json:"status"`
	Reason           string         `json:"reason,omitempty"`
	DocumentType     string         `json:"document_type"`
	Confidence       float64        `json:"confidence"`
	Completeness     float64        `json:"completeness"`
	Data             Record         `json:"data,omitempty"`
	Issues           []string       `json:"issues,omitempty"`
	Metrics          map[string]any `json:"metrics,omitempty"`
	// ExtractionErrors counts caught per-chunk failures by kind
	ExtractionErrors map[string]int `json:"extraction_errors,omitempty"`
	Chunks           int            `json:"chunks"`
	Partials         int            `json:"partials"`
	ModelUsed        string         `json:"model_used"`
	Mode             ExtractionMode `json:"extraction_mode"`
	Source           string         `json:"source,omitempty"`
	Duration         time.Duration  `json:"-"`
	DurationMS       int64          `json:"duration_ms"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Succeeded reports whether the document produced a record
func (r *ProcessingResult) Succeeded() bool {
	return r.Status == StatusSuccess
}
