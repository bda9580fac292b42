package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docproc-mcp/internal/chunker"
	"github.com/dshills/docproc-mcp/internal/extractor"
	"github.com/dshills/docproc-mcp/internal/llm"
	"github.com/dshills/docproc-mcp/internal/merge"
	"github.com/dshills/docproc-mcp/internal/metrics"
	"github.com/dshills/docproc-mcp/internal/processor"
	"github.com/dshills/docproc-mcp/internal/registry"
	"github.com/dshills/docproc-mcp/internal/storage"
	"github.com/dshills/docproc-mcp/internal/textextract"
	"github.com/dshills/docproc-mcp/pkg/types"
)

// Failure reason codes reported to the metrics recorder
const (
	ReasonInvalidInput   = "invalid_input"
	ReasonUnknownType    = "unknown_type"
	ReasonCanceled       = "canceled"
	ReasonChunkingConfig = "chunking_config"
	ReasonNoData         = "no_structured_data"
	ReasonMerge          = "merge_failed"
)

// Failure messages placed in ProcessingResult.Reason
const (
	MsgUnknownType = "could not determine document type"
	MsgNoData      = "no structured data extracted"
)

// Recorder receives per-document outcomes and extraction error kinds.
// *metrics.Collector implements it.
type Recorder interface {
	metrics.Recorder
	RecordDocument(docType string, success bool, elapsed time.Duration, reason string)
}

var _ Recorder = (*metrics.Collector)(nil)

// Config tunes a Pipeline
type Config struct {
	Workers        int // Concurrent chunk extractions (default: 1, sequential)
	ChunkThreshold int // Texts longer than this (runes) are chunked
	Strategy       chunker.Strategy
	Overlap        int
	Limits         chunker.Limits
	DefaultMode    types.ExtractionMode
	MergeThreshold float64
}

// DefaultConfig returns the standard pipeline settings
func DefaultConfig() Config {
	return Config{
		Workers:        1,
		ChunkThreshold: chunker.DefaultThreshold,
		Strategy:       chunker.StrategyRecursive,
		Overlap:        chunker.DefaultOverlap,
		Limits:         chunker.DefaultLimits(),
		DefaultMode:    types.ModeHybrid,
	}
}

// Pipeline coordinates classify -> chunk -> extract -> merge -> validate
type Pipeline struct {
	registry  *registry.Registry
	gen       llm.Generator
	validator *extractor.SchemaValidator
	merger    *merge.Engine
	sizer     *chunker.AutoSizer
	recorder  Recorder
	store     storage.Storage
	files     *textextract.Extractor
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
	newID     func() string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithConfig replaces the default configuration
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// WithAutoSizer enables chunk auto-sizing against the model's context window
func WithAutoSizer(a *chunker.AutoSizer) Option {
	return func(p *Pipeline) { p.sizer = a }
}

// WithRecorder reports outcomes and extraction errors
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithStore persists every result
func WithStore(s storage.Storage) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithFileExtractor overrides the file reader used by ProcessFile
func WithFileExtractor(e *textextract.Extractor) Option {
	return func(p *Pipeline) { p.files = e }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator replaces the uuid document id generator
func WithIDGenerator(f func() string) Option {
	return func(p *Pipeline) { p.newID = f }
}

// New creates a Pipeline over a registry and an LLM generator
func New(reg *registry.Registry, gen llm.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:  reg,
		gen:       gen,
		validator: extractor.NewSchemaValidator(),
		files:     textextract.New(),
		logger:    slog.Default(),
		cfg:       DefaultConfig(),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.cfg.Workers < 1 {
		p.cfg.Workers = 1
	}
	if p.cfg.Limits.Min <= 0 || p.cfg.Limits.Max < p.cfg.Limits.Min {
		p.cfg.Limits = chunker.DefaultLimits()
	}
	if p.cfg.DefaultMode == "" {
		p.cfg.DefaultMode = types.ModeHybrid
	}
	mergeOpts := []merge.Option{merge.WithLogger(p.logger)}
	if p.cfg.MergeThreshold > 0 {
		mergeOpts = append(mergeOpts, merge.WithThreshold(p.cfg.MergeThreshold))
	}
	p.merger = merge.New(mergeOpts...)
	return p
}

// Registry returns the classification registry
func (p *Pipeline) Registry() *registry.Registry { return p.registry }

// Store returns the result store, nil when persistence is disabled
func (p *Pipeline) Store() storage.Storage { return p.store }

// Generator returns the LLM generator
func (p *Pipeline) Generator() llm.Generator { return p.gen }

// ProcessFile reads path and processes its text. Only file access errors
// are returned; processing failures are reported in the result.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, mode types.ExtractionMode, model string) (*types.ProcessingResult, error) {
	text, err := p.files.ExtractFile(ctx, path)
	if err != nil {
		p.logger.Warn("pipeline.file.error", "path", path, "error", err)
		return nil, err
	}
	return p.Process(ctx, types.RawDocument{Text: text, Mode: mode, Source: path, Model: model}), nil
}

// Process runs one document through the pipeline. It never returns an
// error: failures come back with Status "failed" and a Reason.
func (p *Pipeline) Process(ctx context.Context, doc types.RawDocument) *types.ProcessingResult {
	run := p.newRun(doc)
	log := p.logger.With("document_id", run.result.DocumentID)
	log.Info("pipeline.process.start", "source", run.result.Source, "chars", len(doc.Text))

	p.execute(ctx, log, run, doc)
	p.finish(ctx, log, run)
	return run.result
}

// run carries the state of one Process call
type run struct {
	start  time.Time
	result *types.ProcessingResult
	code   string

	mu     sync.Mutex
	errors map[string]int
}

// runRecorder counts caught failures for one document and forwards them
// to the pipeline recorder.
type runRecorder struct {
	run  *run
	next metrics.Recorder
}

func (r runRecorder) RecordExtractionError(kind string) {
	r.run.mu.Lock()
	if r.run.errors == nil {
		r.run.errors = make(map[string]int)
	}
	r.run.errors[kind]++
	r.run.mu.Unlock()
	if r.next != nil {
		r.next.RecordExtractionError(kind)
	}
}

func (p *Pipeline) newRun(doc types.RawDocument) *run {
	id := doc.ID
	if id == "" {
		id = p.newID()
	}
	source := doc.Source
	if source == "" {
		source = "text"
	}
	model := doc.Model
	if model == "" && p.gen != nil {
		model = p.gen.Model()
	}
	start := p.now()
	return &run{
		start: start,
		result: &types.ProcessingResult{
			DocumentID:   id,
			DocumentType: registry.UnknownType,
			Mode:         doc.Mode,
			Source:       source,
			ModelUsed:    model,
			CreatedAt:    start,
		},
	}
}

func (p *Pipeline) execute(ctx context.Context, log *slog.Logger, r *run, doc types.RawDocument) {
	res := r.result

	if err := doc.Validate(); err != nil {
		r.fail(ReasonInvalidInput, err.Error())
		return
	}
	mode := doc.Mode
	if mode == "" {
		mode = p.cfg.DefaultMode
	}
	mode, err := types.ParseExtractionMode(string(mode))
	if err != nil {
		r.fail(ReasonInvalidInput, err.Error())
		return
	}
	res.Mode = mode

	// 1. classify
	cls, err := p.registry.Classify(ctx, doc.Text)
	if err != nil {
		r.fail(ReasonCanceled, fmt.Sprintf("classification interrupted: %v", err))
		return
	}
	res.Confidence = cls.Confidence
	if !cls.Known() {
		r.fail(ReasonUnknownType, MsgUnknownType)
		return
	}
	res.DocumentType = cls.TypeID
	proc := cls.Processor
	log.Info("pipeline.classified", "type", cls.TypeID, "confidence", cls.Confidence)

	// 2. chunk
	chunks, err := p.chunk(ctx, doc.Text, res.ModelUsed)
	if err != nil {
		r.fail(ReasonChunkingConfig, err.Error())
		return
	}
	res.Chunks = len(chunks)
	log.Debug("pipeline.chunked", "chunks", len(chunks))

	// 3. extract
	partials := p.extractAll(ctx, r, proc, chunks, mode, doc.Model)
	res.Partials = len(partials)
	if len(partials) == 0 {
		reason := MsgNoData
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.fail(ReasonCanceled, fmt.Sprintf("%s: %v", reason, ctxErr))
			return
		}
		r.fail(ReasonNoData, reason)
		return
	}

	// 4. merge
	merged, err := p.merger.Merge(proc.TypeID(), partials, proc.MergePolicy())
	if err != nil {
		r.fail(ReasonMerge, err.Error())
		return
	}

	// 5. validate
	v := proc.Validate(merged.Data)
	res.Data = merged.Data
	res.Completeness = v.Completeness
	res.Issues = v.Issues
	res.Metrics = proc.Metrics(merged.Data)
	res.Status = types.StatusSuccess
}

func (r *run) fail(code, reason string) {
	r.code = code
	r.result.Status = types.StatusFailed
	r.result.Reason = reason
}

// chunk splits text when it exceeds the threshold. The chunk size comes
// from the auto-sizer when one is configured.
func (p *Pipeline) chunk(ctx context.Context, text, model string) ([]types.Chunk, error) {
	if !chunker.ShouldChunk(text, p.cfg.ChunkThreshold) {
		return []types.Chunk{types.NewChunk(0, text, 0, len([]rune(text)))}, nil
	}

	size := chunker.DefaultChunkSize
	if p.sizer != nil {
		size = p.sizer.Size(ctx, model, p.cfg.Overlap)
	}
	c := chunker.New(
		chunker.WithStrategy(p.cfg.Strategy),
		chunker.WithSize(size),
		chunker.WithOverlap(p.cfg.Overlap),
		chunker.WithLimits(p.cfg.Limits),
	)
	return c.Chunk(text)
}

// extractAll runs the orchestrator over every chunk with at most
// cfg.Workers in flight. Partials are returned in chunk order whatever
// the completion order.
func (p *Pipeline) extractAll(ctx context.Context, r *run, proc processor.Processor, chunks []types.Chunk, mode types.ExtractionMode, model string) []types.PartialExtraction {
	orch := extractor.New(p.gen,
		extractor.WithValidator(p.validator),
		extractor.WithRecorder(runRecorder{run: r, next: p.recorder}),
		extractor.WithLogger(p.logger),
	)

	slots := make([]*types.PartialExtraction, len(chunks))
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i, ch := range chunks {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			part, err := orch.Extract(ctx, proc, ch, mode, model)
			if err != nil {
				if errors.Is(err, types.ErrInvalidMode) {
					p.logger.Error("pipeline.extract.mode", "mode", string(mode), "error", err)
				}
				return nil
			}
			slots[i] = part
			return nil
		})
	}
	_ = g.Wait()

	partials := make([]types.PartialExtraction, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			partials = append(partials, *s)
		}
	}
	return partials
}

// finish stamps timings and reports the outcome to the registry, the
// recorder and the store.
func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, r *run) {
	res := r.result
	elapsed := p.now().Sub(r.start)
	res.Duration = elapsed
	res.DurationMS = elapsed.Milliseconds()

	r.mu.Lock()
	if len(r.errors) > 0 {
		res.ExtractionErrors = make(map[string]int, len(r.errors))
		for k, v := range r.errors {
			res.ExtractionErrors[k] = v
		}
	}
	r.mu.Unlock()

	success := res.Succeeded()
	if res.DocumentType != registry.UnknownType {
		p.registry.RecordOutcome(res.DocumentType, success, res.Confidence, elapsed)
	}
	if p.recorder != nil {
		p.recorder.RecordDocument(res.DocumentType, success, elapsed, r.code)
	}
	if p.store != nil {
		// Saved even when the caller's deadline has passed
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := p.store.SaveResult(saveCtx, res); err != nil {
			log.Warn("pipeline.store.error", "error", err)
		}
		cancel()
	}

	if success {
		log.Info("pipeline.process.done",
			"type", res.DocumentType,
			"chunks", res.Chunks,
			"partials", res.Partials,
			"completeness", res.Completeness,
			"issues", len(res.Issues),
			"elapsed_ms", res.DurationMS,
		)
		return
	}
	log.Warn("pipeline.process.failed",
		"type", res.DocumentType,
		"code", r.code,
		"reason", res.Reason,
		"elapsed_ms", res.DurationMS,
	)
}
