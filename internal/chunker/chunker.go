package chunker

import (
	"fmt"

	"github.com/dshills/docproc-mcp/pkg/types"
)

const (
	// DefaultChunkSize is the chunk size used when none is configured
	DefaultChunkSize = 1000

	// DefaultOverlap is the number of characters repeated between chunks
	DefaultOverlap = 200

	// MinChunkSize is the smallest accepted chunk size
	MinChunkSize = 100

	// MaxChunkSize is the largest accepted chunk size
	MaxChunkSize = 4000

	// DefaultThreshold is the text length above which documents are chunked
	DefaultThreshold = 2000
)

// Strategy selects the boundary hierarchy used to split text
type Strategy string

const (
	// StrategyRecursive splits on blank lines, then newlines, then spaces, then characters
	StrategyRecursive Strategy = "recursive"
	// StrategySmart splits on paragraphs, then sentences, then words, then characters
	StrategySmart Strategy = "smart"
)

// ParseStrategy converts a configuration string into a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyRecursive:
		return StrategyRecursive, nil
	case StrategySmart:
		return StrategySmart, nil
	default:
		return "", &ChunkingConfigError{Reason: fmt.Sprintf("unknown strategy %q", s)}
	}
}

// Limits bounds the accepted chunk size
type Limits struct {
	Min int
	Max int
}

// DefaultLimits returns the standard [MinChunkSize, MaxChunkSize] range
func DefaultLimits() Limits {
	return Limits{Min: MinChunkSize, Max: MaxChunkSize}
}

// Clamp forces size into the range
func (l Limits) Clamp(size int) int {
	if size < l.Min {
		return l.Min
	}
	if size > l.Max {
		return l.Max
	}
	return size
}

// ChunkingConfigError reports an invalid size/overlap combination.
// It is the only fatal error of the chunker.
type ChunkingConfigError struct {
	Size    int
	Overlap int
	Limits  Limits
	Reason  string
}

func (e *ChunkingConfigError) Error() string {
	if e.Size == 0 && e.Overlap == 0 {
		return fmt.Sprintf("chunking config: %s", e.Reason)
	}
	return fmt.Sprintf("chunking config (size=%d, overlap=%d): %s", e.Size, e.Overlap, e.Reason)
}

// Unwrap allows errors.Is(err, types.ErrChunkingConfig)
func (e *ChunkingConfigError) Unwrap() error {
	return types.ErrChunkingConfig
}

// ValidateConfig checks size and overlap against the limits
func ValidateConfig(size, overlap int, limits Limits) error {
	switch {
	case size < limits.Min:
		return &ChunkingConfigError{Size: size, Overlap: overlap, Limits: limits,
			Reason: fmt.Sprintf("size below minimum %d", limits.Min)}
	case size > limits.Max:
		return &ChunkingConfigError{Size: size, Overlap: overlap, Limits: limits,
			Reason: fmt.Sprintf("size above maximum %d", limits.Max)}
	case overlap < 0:
		return &ChunkingConfigError{Size: size, Overlap: overlap, Limits: limits,
			Reason: "overlap cannot be negative"}
	case overlap >= size:
		return &ChunkingConfigError{Size: size, Overlap: overlap, Limits: limits,
			Reason: "overlap must be smaller than size"}
	}
	return nil
}

// Chunker splits document text into overlapping, size-bounded chunks
type Chunker struct {
	strategy Strategy
	size     int
	overlap  int
	limits   Limits
}

// Option configures a Chunker
type Option func(*Chunker)

// WithStrategy sets the splitting strategy
func WithStrategy(s Strategy) Option {
	return func(c *Chunker) { c.strategy = s }
}

// WithSize sets the maximum chunk length in characters
func WithSize(size int) Option {
	return func(c *Chunker) { c.size = size }
}

// WithOverlap sets the number of characters carried into the next chunk
func WithOverlap(overlap int) Option {
	return func(c *Chunker) { c.overlap = overlap }
}

// WithLimits overrides the accepted size range
func WithLimits(l Limits) Option {
	return func(c *Chunker) { c.limits = l }
}

// New creates a Chunker with defaults (recursive, 1000/200)
func New(opts ...Option) *Chunker {
	c := &Chunker{
		strategy: StrategyRecursive,
		size:     DefaultChunkSize,
		overlap:  DefaultOverlap,
		limits:   DefaultLimits(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Size returns the configured chunk size
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text. Every chunk is at most Size runes long and chunk i+1
// starts with the last Overlap runes of chunk i.
func (c *Chunker) Chunk(text string) ([]types.Chunk, error) {
	if err := ValidateConfig(c.size, c.overlap, c.limits); err != nil {
		return nil, err
	}

	levels, ok := strategyLevels[c.strategy]
	if !ok {
		return nil, &ChunkingConfigError{Size: c.size, Overlap: c.overlap, Limits: c.limits,
			Reason: fmt.Sprintf("unknown strategy %q", c.strategy)}
	}

	if text == "" {
		return []types.Chunk{}, nil
	}

	runes := []rune(text)
	if len(runes) <= c.size {
		return []types.Chunk{types.NewChunk(0, text, 0, len(runes))}, nil
	}

	bodyMax := c.size - c.overlap
	atoms := atomize(runes, span{0, len(runes)}, levels, bodyMax, nil)
	bodies := pack(atoms, bodyMax)

	return buildChunks(runes, bodies, c.overlap), nil
}

// Chunk is a convenience wrapper around New(...).Chunk(text)
func Chunk(text string, strategy Strategy, size, overlap int) ([]types.Chunk, error) {
	return New(WithStrategy(strategy), WithSize(size), WithOverlap(overlap)).Chunk(text)
}

// buildChunks prefixes each body with the overlap taken from the preceding
// text. A chunk that would be fully contained in its successor is dropped.
func buildChunks(runes []rune, bodies []span, overlap int) []types.Chunk {
	spans := make([]span, 0, len(bodies))
	for i, b := range bodies {
		start := b.start
		if i > 0 {
			start = max(0, b.start-overlap)
		}
		s := span{start, b.end}
		for len(spans) > 0 && spans[len(spans)-1].start >= s.start {
			spans = spans[:len(spans)-1]
		}
		spans = append(spans, s)
	}

	chunks := make([]types.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = types.NewChunk(i, string(runes[s.start:s.end]), s.start, s.end)
		if i+1 < len(spans) {
			chunks[i].OverlapWithNext = s.end - spans[i+1].start
		}
	}
	return chunks
}

// ShouldChunk reports whether text is long enough to be chunked
func ShouldChunk(text string, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return len([]rune(text)) > threshold
}
