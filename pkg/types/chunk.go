package types

import (
	"fmt"
	"unicode/utf8"
)

// Chunk is a bounded span of a document's text. Offsets and lengths are
// measured in runes so that multi-byte characters are never split.
type Chunk struct {
	Index int
	Text  string

	// Location in the source text (rune offsets, End exclusive)
	Start int
	End   int

	// Length is the rune count of Text
	Length int

	// OverlapWithNext is how many trailing runes of this chunk are repeated
	// at the head of the following chunk. Zero for the last chunk.
	OverlapWithNext int
}

// NewChunk creates a chunk for text located at [start, end) of the source
func NewChunk(index int, text string, start, end int) Chunk {
	return Chunk{
		Index:  index,
		Text:   text,
		Start:  start,
		End:    end,
		Length: utf8.RuneCountInString(text),
	}
}

// Validate checks the chunk's structural invariants
func (c *Chunk) Validate() error {
	if c.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, c.Index)
	}
	if c.Text == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidChunk)
	}
	if c.Length != utf8.RuneCountInString(c.Text) {
		return fmt.Errorf("%w: length %d does not match text", ErrInvalidChunk, c.Length)
	}
	if c.End-c.Start != c.Length {
		return fmt.Errorf("%w: span [%d,%d) does not match length %d", ErrInvalidChunk, c.Start, c.End, c.Length)
	}
	if c.OverlapWithNext < 0 || (c.OverlapWithNext > 0 && c.OverlapWithNext >= c.Length) {
		return fmt.Errorf("%w: overlap %d must be smaller than length %d", ErrInvalidChunk, c.OverlapWithNext, c.Length)
	}
	return nil
}

// EstimateTokens returns a rough token count for the chunk (runes / 4)
func (c *Chunk) EstimateTokens() int {
	return c.Length / 4
}
