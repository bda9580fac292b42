package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/docproc-mcp/internal/processor"
	"github.com/dshills/docproc-mcp/pkg/types"
)

// UnknownType is reported when no processor claims a document
const UnknownType = "unknown"

// Result is the outcome of Classify
type Result struct {
	TypeID     string
	Confidence float64
	Processor  processor.Processor // nil when TypeID is UnknownType
}

// Known reports whether a processor was selected
func (r Result) Known() bool {
	return r.Processor != nil
}

// Description is the introspection view of one processor
type Description struct {
	TypeID      string         `json:"type_id"`
	DisplayName string         `json:"display_name"`
	Description string         `json:"description"`
	Keywords    []string       `json:"keywords"`
	Schema      map[string]any `json:"schema"`
}

// Registry holds processors keyed by type id. Register processors during
// start-up; afterwards the registry is read-mostly and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]processor.Processor
	stats   map[string]*Stats
	logger  *slog.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]processor.Processor),
		stats:   make(map[string]*Stats),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDefault creates a registry holding the built-in processors
func NewDefault(opts ...Option) *Registry {
	r := New(opts...)
	for _, p := range processor.Defaults() {
		// Built-in ids are distinct
		_ = r.Register(p)
	}
	return r
}

// Register adds a processor. Duplicate type ids are rejected.
func (r *Registry) Register(p processor.Processor) error {
	if p == nil || p.TypeID() == "" || p.TypeID() == UnknownType {
		return types.ErrInvalidTypeID
	}
	id := p.TypeID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("%w: %s", types.ErrDuplicateType, id)
	}
	r.entries[id] = p
	r.order = append(r.order, id)
	r.stats[id] = &Stats{}

	r.logger.Info("registry.register", "type", id, "keywords", len(p.Keywords()))
	return nil
}

// Unregister removes a processor and its statistics
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	delete(r.stats, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Info("registry.unregister", "type", id)
	return true
}

// Get returns the processor for id
func (r *Registry) Get(id string) (processor.Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownType, id)
	}
	return p, nil
}

// Types returns the registered type ids in registration order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered processors
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) snapshot() []processor.Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]processor.Processor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

// Classify scores text with every processor concurrently and returns the
// processor with the strictly highest positive confidence. Ties go to the
// earliest registered. A processor that fails is logged and skipped.
// The only error returned is the context's.
func (r *Registry) Classify(ctx context.Context, text string) (Result, error) {
	procs := r.snapshot()
	unknown := Result{TypeID: UnknownType}
	if len(procs) == 0 {
		return unknown, ctx.Err()
	}

	scores := make([]float64, len(procs))
	var g errgroup.Group
	for i, p := range procs {
		g.Go(func() error {
			conf, err := classifyOne(ctx, p, text)
			if err != nil {
				r.logger.Warn("registry.classify.error", "type", p.TypeID(), "error", err)
				scores[i] = -1
				return nil
			}
			scores[i] = conf
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return unknown, err
	}

	best := -1
	for i, s := range scores {
		if s <= 0 {
			continue
		}
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	if best < 0 {
		r.logger.Debug("registry.classify.unknown", "candidates", len(procs))
		return unknown, nil
	}

	res := Result{
		TypeID:     procs[best].TypeID(),
		Confidence: scores[best],
		Processor:  procs[best],
	}
	r.logger.Debug("registry.classify", "type", res.TypeID, "confidence", res.Confidence)
	return res, nil
}

// classifyOne isolates panics in processor code
func classifyOne(ctx context.Context, p processor.Processor, text string) (conf float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic: %v", types.ErrClassificationFailure, rec)
		}
	}()
	conf, err = p.Classify(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", types.ErrClassificationFailure, err)
	}
	return min(max(conf, 0), 100), nil
}

// Describe returns the introspection view of one processor
func (r *Registry) Describe(id string) (Description, error) {
	p, err := r.Get(id)
	if err != nil {
		return Description{}, err
	}
	return describe(p), nil
}

// DescribeAll returns every processor's description in registration order
func (r *Registry) DescribeAll() []Description {
	procs := r.snapshot()
	out := make([]Description, 0, len(procs))
	for _, p := range procs {
		out = append(out, describe(p))
	}
	return out
}

func describe(p processor.Processor) Description {
	return Description{
		TypeID:      p.TypeID(),
		DisplayName: p.DisplayName(),
		Description: p.Description(),
		Keywords:    p.Keywords(),
		Schema:      p.Schema(),
	}
}

// RecordOutcome updates the statistics of a processor after a pipeline run.
// Unknown ids are ignored.
func (r *Registry) RecordOutcome(id string, success bool, confidence float64, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[id]
	if !ok {
		return
	}
	s.record(success, confidence, elapsed)
}

// Statistics returns a copy of one processor's statistics
func (r *Registry) Statistics(id string) (StatsSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stats[id]
	if !ok {
		return StatsSnapshot{}, fmt.Errorf("%w: %s", types.ErrUnknownType, id)
	}
	return s.snapshot(id), nil
}

// AllStatistics returns every processor's statistics in registration order
func (r *Registry) AllStatistics() []StatsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]StatsSnapshot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.stats[id].snapshot(id))
	}
	return out
}
