// Package merge combines per-chunk partial extractions into one canonical
// record.
//
// Scalar fields follow a first-wins policy: the first partial in chunk order
// with a non-empty value for a field supplies it, later values are ignored.
// List fields named in a Policy are concatenated in chunk order and
// deduplicated on an identity key with a similarity.Scorer; a duplicate is
// folded into the entry it matched (e.g. quantities summed) instead of being
// appended. Policy.Finalize then recomputes derived aggregates.
package merge

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/docproc-mcp/internal/similarity"
	"github.com/dshills/docproc-mcp/pkg/types"
)

// MergeInputEmptyError is returned when Merge receives no partials
type MergeInputEmptyError struct {
	TypeID string
}

func (e *MergeInputEmptyError) Error() string {
	return fmt.Sprintf("merge %s: no partial extractions", e.TypeID)
}

// Unwrap allows errors.Is(err, types.ErrMergeInputEmpty)
func (e *MergeInputEmptyError) Unwrap() error {
	return types.ErrMergeInputEmpty
}

// ListPolicy describes how one list-valued field is deduplicated
type ListPolicy struct {
	// Field is the record key holding the list
	Field string

	// Key builds the identity key of an item; it is lower-cased and trimmed
	// before comparison
	Key func(item any) string

	// Fold merges a duplicate into the kept entry. Nil drops duplicates.
	Fold func(kept, duplicate map[string]any)
}

// Policy is the per-document-type merge behavior
type Policy struct {
	Lists []ListPolicy

	// Finalize recomputes derived fields after list merging. Optional.
	Finalize func(r types.Record)
}

// Engine merges partial extractions
type Engine struct {
	scorer    similarity.Scorer
	threshold float64
	logger    *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithScorer replaces the similarity function
func WithScorer(s similarity.Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithThreshold sets the duplicate threshold (0-100)
func WithThreshold(t float64) Option {
	return func(e *Engine) { e.threshold = t }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine using Levenshtein similarity and a threshold of 85
func New(opts ...Option) *Engine {
	e := &Engine{
		scorer:    similarity.Default(),
		threshold: similarity.DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scorer == nil {
		e.scorer = similarity.Default()
	}
	if e.threshold <= 0 || e.threshold > 100 {
		e.threshold = similarity.DefaultThreshold
	}
	return e
}

// Threshold returns the duplicate threshold
func (e *Engine) Threshold() float64 { return e.threshold }

// Scorer returns the similarity function
func (e *Engine) Scorer() similarity.Scorer { return e.scorer }

// Merge combines partials (in chunk order) into one record
func (e *Engine) Merge(typeID string, partials []types.PartialExtraction, policy Policy) (*types.MergedRecord, error) {
	if len(partials) == 0 {
		return nil, &MergeInputEmptyError{TypeID: typeID}
	}

	ordered := make([]types.PartialExtraction, len(partials))
	copy(ordered, partials)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ChunkIndex < ordered[j].ChunkIndex
	})

	listFields := make(map[string]bool, len(policy.Lists))
	for _, lp := range policy.Lists {
		listFields[lp.Field] = true
	}

	merged := ordered[0].Data.Clone()
	if merged == nil {
		merged = types.Record{}
	}

	for _, p := range ordered[1:] {
		for k, v := range p.Data {
			if listFields[k] {
				continue
			}
			if IsEmpty(merged[k]) && !IsEmpty(v) {
				merged[k] = types.CloneValue(v)
			}
		}
	}

	for _, lp := range policy.Lists {
		var (
			items   []any
			present bool
		)
		for _, p := range ordered {
			raw, ok := p.Data[lp.Field]
			if !ok {
				continue
			}
			present = true
			if list, ok := raw.([]any); ok {
				for _, item := range list {
					items = append(items, types.CloneValue(item))
				}
			}
		}
		if !present {
			continue
		}

		before := len(items)
		deduped := e.Dedup(items, lp)
		merged[lp.Field] = deduped

		if before != len(deduped) {
			e.logger.Debug("merge.dedup",
				"type", typeID,
				"field", lp.Field,
				"before", before,
				"after", len(deduped),
			)
		}
	}

	if policy.Finalize != nil {
		policy.Finalize(merged)
	}

	return &types.MergedRecord{
		TypeID:  typeID,
		Data:    merged,
		Sources: len(ordered),
	}, nil
}

// Dedup removes near-duplicate items, folding duplicates into the first
// matching kept entry. No two returned items score at or above the threshold.
func (e *Engine) Dedup(items []any, lp ListPolicy) []any {
	kept := make([]any, 0, len(items))
	keys := make([]string, 0, len(items))

	for _, item := range items {
		key := normalizeKey(lp.Key(item))

		dup := -1
		for i, k := range keys {
			if e.scorer.Score(key, k) >= e.threshold {
				dup = i
				break
			}
		}

		if dup < 0 {
			kept = append(kept, item)
			keys = append(keys, key)
			continue
		}

		if lp.Fold == nil {
			continue
		}
		keptMap, ok1 := kept[dup].(map[string]any)
		dupMap, ok2 := item.(map[string]any)
		if ok1 && ok2 {
			lp.Fold(keptMap, dupMap)
		}
	}
	return kept
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FieldsKey builds a Key function joining the named fields with a space
func FieldsKey(fields ...string) func(item any) string {
	return func(item any) string {
		m, ok := item.(map[string]any)
		if !ok {
			return StringValue(item)
		}
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = StringValue(m[f])
		}
		return strings.Join(parts, " ")
	}
}

// StringKey uses the item itself as its identity key
func StringKey(item any) string {
	return StringValue(item)
}

// StringValue renders scalars for identity keys; numbers use the shortest
// decimal form (12.5, not 12.500000).
func StringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	}
	if f, ok := Number(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// AddNumbers adds the numeric fields of src into dst
func AddNumbers(dst, src map[string]any, fields ...string) {
	for _, f := range fields {
		a, _ := Number(dst[f])
		b, ok := Number(src[f])
		if !ok {
			continue
		}
		dst[f] = a + b
	}
}

// Number converts JSON-ish numeric values to float64
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	default:
		return 0, false
	}
}

// IsEmpty reports whether a value counts as absent: nil, blank string, zero
// number, false, or an empty list/object.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return !t
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case types.Record:
		return len(t) == 0
	}
	if f, ok := Number(v); ok {
		return f == 0
	}
	return false
}
