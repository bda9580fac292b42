// Package chunker divides long document text into overlapping, size-bounded
// chunks for per-chunk LLM extraction.
//
// # Basic Usage
//
//	c := chunker.New(
//	    chunker.WithStrategy(chunker.StrategySmart),
//	    chunker.WithSize(1000),
//	    chunker.WithOverlap(200),
//	)
//	chunks, err := c.Chunk(text)
//	if err != nil {
//	    var cfgErr *chunker.ChunkingConfigError
//	    errors.As(err, &cfgErr) // invalid size/overlap
//	}
//
// # Strategies
//
//   - recursive: blank lines, then newlines, then spaces, then raw characters
//   - smart: paragraphs, then sentences, then words, then raw characters
//
// Both strategies only descend to a finer boundary for a piece that is still
// too long, and then greedily pack adjacent pieces back together.
//
// # Guarantees
//
// Lengths are counted in runes. Every chunk is at most size runes long and
// chunk i+1 begins with exactly the last overlap runes of chunk i. Empty
// input yields no chunks; input no longer than size yields one chunk equal
// to the input.
//
// Size below MinChunkSize, above MaxChunkSize, or an overlap that is not
// smaller than size returns a *ChunkingConfigError.
//
// # Auto-sizing
//
// AutoSizer converts a model's context window into a chunk size:
//
//	tokens × CharsPerToken × SafetyFactor − overlap, clamped to [Min, Max]
//
// The context window comes from a ContextWindowSource (e.g. the Ollama
// /api/show endpoint), then a table of known model families, then
// FallbackContextWindow. Lookup never fails.
package chunker
