package processor

import (
	"context"
	"slices"
	"strings"

	"github.com/dshills/docproc-mcp/internal/merge"
	"github.com/dshills/docproc-mcp/pkg/types"
)

// Processor is the capability set of one document type
type Processor interface {
	// Identity and introspection
	TypeID() string
	DisplayName() string
	Description() string
	Keywords() []string
	Schema() map[string]any

	// Classify returns a 0-100 confidence that text is of this type
	Classify(ctx context.Context, text string) (float64, error)

	// Prompts for the two extraction techniques
	SchemaPrompt(text string) string
	FreeformPrompt(text string) string

	// Normalize converts parsed JSON into the canonical record shape
	Normalize(data map[string]any) (types.Record, error)

	// Completeness returns the 0-100 share of populated fields
	Completeness(r types.Record) float64

	// MergePolicy describes list dedup and aggregate recomputation
	MergePolicy() merge.Policy

	// Validate checks business rules on a merged record
	Validate(r types.Record) Validation

	// Metrics returns type-specific figures about a record
	Metrics(r types.Record) map[string]any
}

// Validation is the outcome of Processor.Validate
type Validation struct {
	Valid        bool     `json:"valid"`
	Completeness float64  `json:"completeness"`
	Issues       []string `json:"issues,omitempty"`
}

// Base implements the identity and keyword classification parts of Processor
type Base struct {
	typeID      string
	displayName string
	description string
	keywords    []string
	schema      map[string]any
}

// NewBase creates a Base
func NewBase(typeID, displayName, description string, keywords []string, schema map[string]any) Base {
	return Base{
		typeID:      typeID,
		displayName: displayName,
		description: description,
		keywords:    keywords,
		schema:      schema,
	}
}

func (b *Base) TypeID() string      { return b.typeID }
func (b *Base) DisplayName() string { return b.displayName }
func (b *Base) Description() string { return b.description }

// Keywords returns a sorted copy of the keyword set
func (b *Base) Keywords() []string {
	out := slices.Clone(b.keywords)
	slices.Sort(out)
	return out
}

// Schema returns a copy of the JSON schema
func (b *Base) Schema() map[string]any {
	return types.Record(b.schema).Clone()
}

// Classify scores the text with KeywordConfidence
func (b *Base) Classify(ctx context.Context, text string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return KeywordConfidence(text, b.keywords), nil
}

// Completeness delegates to the package-level Completeness
func (b *Base) Completeness(r types.Record) float64 {
	return Completeness(r)
}

// KeywordConfidence counts the distinct keywords present in the lower-cased
// text and returns min(hits*10, 100).
func KeywordConfidence(text string, keywords []string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	return min(float64(hits)*10, 100)
}

// Completeness returns filled/total*100 over the record's fields. A list
// counts as one field (filled when non-empty) and every object inside it
// adds its own fields to both counts.
func Completeness(r types.Record) float64 {
	total, filled := 0, 0
	for _, v := range r {
		total++
		if !merge.IsEmpty(v) {
			filled++
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, inner := range obj {
				total++
				if !merge.IsEmpty(inner) {
					filled++
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(filled) / float64(total) * 100
}

// normalizeInto decodes data into target, lets fix patch the typed value,
// and re-encodes it so every schema field is present.
func normalizeInto[T any](data map[string]any, fix func(*T)) (types.Record, error) {
	var v T
	if err := types.DecodeRecord(types.Record(data), &v); err != nil {
		return nil, err
	}
	if fix != nil {
		fix(&v)
	}
	return types.ToRecord(v)
}

// Defaults returns the built-in processors in registration order
func Defaults() []Processor {
	return []Processor{NewInvoice(), NewCV()}
}
