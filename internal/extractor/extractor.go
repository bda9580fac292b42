package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/docproc-mcp/internal/llm"
	"github.com/dshills/docproc-mcp/internal/metrics"
	"github.com/dshills/docproc-mcp/internal/processor"
	"github.com/dshills/docproc-mcp/pkg/types"
)

// Extraction parameters
const (
	// HybridThreshold is the schema completeness that skips the free-form attempt
	HybridThreshold = 90.0

	DefaultTemperature = 0.1
	DefaultMaxTokens   = 2048
)

// FreeformStops end free-form generation at code fences or long gaps
var FreeformStops = []string{"```", "```json", "```\n", "\n\n\n"}

// Error kinds reported to the metrics recorder
const (
	KindLLMCall          = "llm_call"
	KindJSONExtraction   = "json_extraction"
	KindJSONDecode       = "json_decode"
	KindSchemaValidation = "schema_validation"
)

// ErrorKind maps an extraction error to its reporting kind
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, types.ErrSchemaValidation):
		return KindSchemaValidation
	case errors.Is(err, types.ErrJSONDecode):
		return KindJSONDecode
	case errors.Is(err, types.ErrJSONExtraction):
		return KindJSONExtraction
	default:
		return KindLLMCall
	}
}

// Orchestrator runs the per-chunk extraction state machine
type Orchestrator struct {
	gen         llm.Generator
	validator   *SchemaValidator
	recorder    metrics.Recorder
	logger      *slog.Logger
	threshold   float64
	temperature float64
	maxTokens   int
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRecorder counts caught errors by kind
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithThreshold overrides the hybrid completeness threshold
func WithThreshold(t float64) Option {
	return func(o *Orchestrator) { o.threshold = t }
}

// WithValidator shares a compiled-schema cache between orchestrators
func WithValidator(sv *SchemaValidator) Option {
	return func(o *Orchestrator) {
		if sv != nil {
			o.validator = sv
		}
	}
}

// WithSampling overrides temperature and token budget
func WithSampling(temperature float64, maxTokens int) Option {
	return func(o *Orchestrator) {
		o.temperature = temperature
		o.maxTokens = maxTokens
	}
}

// New creates an Orchestrator over gen
func New(gen llm.Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:         gen,
		validator:   NewSchemaValidator(),
		logger:      slog.Default(),
		threshold:   HybridThreshold,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Extract produces one partial extraction for chunk. In hybrid mode the
// schema technique runs first and is accepted outright at HybridThreshold
// completeness; otherwise free-form runs once and the more complete result
// wins, ties going to schema. When no technique yields a valid record the
// error wraps types.ErrNoResult and never a backend error.
func (o *Orchestrator) Extract(ctx context.Context, proc processor.Processor, chunk types.Chunk, mode types.ExtractionMode, model string) (*types.PartialExtraction, error) {
	if mode == "" {
		mode = types.ModeHybrid
	}
	log := o.logger.With("type", proc.TypeID(), "chunk", chunk.Index, "mode", string(mode))

	var (
		best *types.PartialExtraction
		err  error
	)
	switch mode {
	case types.ModeSchemaOnly:
		best, _ = o.attempt(ctx, log, proc, chunk, types.TechniqueSchema, model)
	case types.ModeFreeformOnly:
		best, _ = o.attempt(ctx, log, proc, chunk, types.TechniqueFreeform, model)
	case types.ModeHybrid:
		best = o.hybrid(ctx, log, proc, chunk, model)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidMode, mode)
	}

	if best == nil {
		err = types.ErrNoResult
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", types.ErrNoResult, ctxErr)
		}
		log.Warn("extract.no_result")
		return nil, err
	}

	log.Debug("extract.done", "technique", string(best.Technique), "completeness", best.Completeness)
	return best, nil
}

func (o *Orchestrator) hybrid(ctx context.Context, log *slog.Logger, proc processor.Processor, chunk types.Chunk, model string) *types.PartialExtraction {
	schemaRes, _ := o.attempt(ctx, log, proc, chunk, types.TechniqueSchema, model)
	if schemaRes != nil && schemaRes.Completeness >= o.threshold {
		return schemaRes
	}
	if ctx.Err() != nil {
		return schemaRes
	}

	freeRes, _ := o.attempt(ctx, log, proc, chunk, types.TechniqueFreeform, model)
	switch {
	case freeRes == nil:
		return schemaRes
	case schemaRes == nil:
		return freeRes
	case freeRes.Completeness > schemaRes.Completeness:
		return freeRes
	default:
		return schemaRes
	}
}

// attempt runs one technique end to end. Errors are logged and counted
// here; callers only need the result.
func (o *Orchestrator) attempt(ctx context.Context, log *slog.Logger, proc processor.Processor, chunk types.Chunk, technique types.Technique, model string) (*types.PartialExtraction, error) {
	res, err := o.run(ctx, proc, chunk, technique, model)
	if err != nil {
		kind := ErrorKind(err)
		if o.recorder != nil {
			o.recorder.RecordExtractionError(kind)
		}
		log.Info("extract.attempt.failed", "technique", string(technique), "kind", kind, "error", err)
		return nil, err
	}
	log.Debug("extract.attempt", "technique", string(technique), "completeness", res.Completeness)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, proc processor.Processor, chunk types.Chunk, technique types.Technique, model string) (*types.PartialExtraction, error) {
	schema := proc.Schema()
	req := llm.Request{
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
		Model:       model,
	}
	if technique == types.TechniqueSchema {
		req.Prompt = proc.SchemaPrompt(chunk.Text)
		req.Schema = schema
	} else {
		req.Prompt = proc.FreeformPrompt(chunk.Text)
		req.Stop = FreeformStops
	}

	resp, err := o.gen.Generate(ctx, req)
	if err != nil {
		if !errors.Is(err, types.ErrLLMCall) {
			err = fmt.Errorf("%w: %w", types.ErrLLMCall, err)
		}
		return nil, err
	}

	var data map[string]any
	if technique == types.TechniqueSchema {
		data, err = decodeObject(resp.Text)
	} else {
		data, err = parseFreeform(resp.Text)
	}
	if err != nil {
		return nil, err
	}

	projected, _ := Project(schema, data).(map[string]any)
	if err := o.validator.Validate(proc.TypeID(), schema, projected); err != nil {
		return nil, err
	}

	rec, err := proc.Normalize(projected)
	if err != nil {
		if !errors.Is(err, types.ErrJSONDecode) {
			err = fmt.Errorf("%w: %w", types.ErrJSONDecode, err)
		}
		return nil, err
	}

	return &types.PartialExtraction{
		ChunkIndex:   chunk.Index,
		Technique:    technique,
		Completeness: proc.Completeness(rec),
		Data:         rec,
	}, nil
}

// parseFreeform locates the JSON in a free-form answer and parses it,
// retrying once after RepairJSON.
func parseFreeform(text string) (map[string]any, error) {
	candidate, ok := LocateJSON(text)
	if !ok {
		return nil, types.ErrJSONExtraction
	}
	data, err := decodeObject(candidate)
	if err == nil {
		return data, nil
	}
	repaired, _ := RepairJSON(candidate)
	if data, rerr := decodeObject(repaired); rerr == nil {
		return data, nil
	}
	return nil, err
}

// decodeObject parses s as a single JSON object
func decodeObject(s string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrJSONDecode, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", types.ErrJSONDecode, v)
	}
	return obj, nil
}
