package chunker

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docproc-mcp/pkg/types"
)

func TestNew_Defaults(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultChunkSize, c.Size())
	assert.Equal(t, DefaultOverlap, c.Overlap())
}

func TestChunk_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"size below minimum", 50, 10},
		{"size above maximum", 5000, 100},
		{"overlap equals size", 500, 500},
		{"overlap above size", 500, 600},
		{"negative overlap", 500, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Chunk("some text", StrategyRecursive, tt.size, tt.overlap)
			require.Error(t, err)
			assert.Nil(t, chunks)
			assert.ErrorIs(t, err, types.ErrChunkingConfig)

			var cfgErr *ChunkingConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.size, cfgErr.Size)
		})
	}
}

func TestChunk_ConfigErrorRaisedEvenForEmptyText(t *testing.T) {
	_, err := Chunk("", StrategySmart, 50, 0)
	assert.ErrorIs(t, err, types.ErrChunkingConfig)
}

func TestChunk_UnknownStrategy(t *testing.T) {
	_, err := Chunk("text", Strategy("semantic"), 500, 50)
	assert.ErrorIs(t, err, types.ErrChunkingConfig)
}

func TestChunk_EmptyAndShortInput(t *testing.T) {
	for _, strategy := range []Strategy{StrategyRecursive, StrategySmart} {
		t.Run(string(strategy), func(t *testing.T) {
			chunks, err := Chunk("", strategy, 500, 50)
			require.NoError(t, err)
			assert.Empty(t, chunks)

			short := "Factuur 2024-001. Totaal: €121,00"
			chunks, err = Chunk(short, strategy, 500, 50)
			require.NoError(t, err)
			require.Len(t, chunks, 1)
			assert.Equal(t, short, chunks[0].Text)
			assert.Equal(t, 0, chunks[0].OverlapWithNext)
		})
	}
}

// assertChunkInvariants checks the size bound, exact overlap and that the
// chunks reassemble into the original text.
func assertChunkInvariants(t *testing.T, text string, chunks []types.Chunk, size, overlap int) {
	t.Helper()
	require.NotEmpty(t, chunks)

	var rebuilt strings.Builder
	for i, c := range chunks {
		require.NoError(t, c.Validate(), "chunk %d", i)
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), size, "chunk %d exceeds size", i)

		runes := []rune(c.Text)
		if i == 0 {
			assert.Equal(t, 0, c.Start)
			rebuilt.WriteString(c.Text)
		} else {
			prev := []rune(chunks[i-1].Text)
			require.Equal(t, overlap, chunks[i-1].OverlapWithNext, "chunk %d overlap", i-1)
			tail := string(prev[len(prev)-overlap:])
			assert.True(t, strings.HasPrefix(c.Text, tail), "chunk %d does not start with tail of chunk %d", i, i-1)
			rebuilt.WriteString(string(runes[overlap:]))
		}
	}
	assert.Equal(t, 0, chunks[len(chunks)-1].OverlapWithNext)
	assert.Equal(t, text, rebuilt.String())
}

func randomDocument(seed int64, words int) string {
	r := rand.New(rand.NewSource(seed))
	vocab := []string{"factuur", "totaal", "€121,00", "BTW", "klant", "levering", "artikel", "Software", "Engineer", "ervaring", "ñandú", "a", "bedrag"}
	var b strings.Builder
	for i := 0; i < words; i++ {
		b.WriteString(vocab[r.Intn(len(vocab))])
		switch n := r.Intn(40); {
		case n == 0:
			b.WriteString(".\n\n")
		case n < 3:
			b.WriteString(". ")
		case n == 3:
			b.WriteString("\n")
		default:
			b.WriteString(" ")
		}
	}
	return b.String()
}

func TestChunk_Invariants(t *testing.T) {
	tests := []struct {
		size    int
		overlap int
	}{
		{100, 0},
		{100, 20},
		{250, 99},
		{1000, 200},
		{400, 399},
		{4000, 1000},
	}

	for _, strategy := range []Strategy{StrategyRecursive, StrategySmart} {
		for _, tt := range tests {
			for seed := int64(1); seed <= 3; seed++ {
				text := randomDocument(seed, 1500)
				chunks, err := Chunk(text, strategy, tt.size, tt.overlap)
				require.NoError(t, err)
				assertChunkInvariants(t, text, chunks, tt.size, tt.overlap)
			}
		}
	}
}

func TestChunk_HardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("€", 1000)
	chunks, err := Chunk(text, StrategyRecursive, 300, 50)
	require.NoError(t, err)
	assertChunkInvariants(t, text, chunks, 300, 50)
	assert.Greater(t, len(chunks), 3)
}

func TestChunk_LeadingFragmentAbsorbed(t *testing.T) {
	// The first paragraph is shorter than the overlap, so its chunk would be
	// fully contained in the next one and must not be emitted on its own.
	text := "ab\n\n" + strings.Repeat("x", 500)
	chunks, err := Chunk(text, StrategyRecursive, 200, 100)
	require.NoError(t, err)
	assertChunkInvariants(t, text, chunks, 200, 100)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "ab\n\n"))
	assert.Greater(t, chunks[0].Length, 100)
}

func TestChunk_SmartPrefersSentences(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("This sentence describes one invoice line in detail. ")
	}
	text := b.String()

	chunks, err := Chunk(text, StrategySmart, 200, 0)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c.Text, ". "), "chunk should end at a sentence boundary: %q", c.Text)
	}
	assertChunkInvariants(t, text, chunks, 200, 0)
}

func TestChunk_RecursivePrefersParagraphs(t *testing.T) {
	paragraph := strings.Repeat("word ", 29) + "end"
	text := strings.Repeat(paragraph+"\n\n", 10)

	chunks, err := Chunk(text, StrategyRecursive, 400, 0)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, strings.HasSuffix(c.Text, "\n\n"), "chunk should end at a paragraph boundary: %q", c.Text)
	}
}

func TestShouldChunk(t *testing.T) {
	assert.False(t, ShouldChunk(strings.Repeat("a", 2000), 0))
	assert.True(t, ShouldChunk(strings.Repeat("a", 2001), 0))
	assert.True(t, ShouldChunk("abcdef", 5))
	assert.False(t, ShouldChunk(strings.Repeat("€", 2000), 2000), "threshold counts characters, not bytes")
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyRecursive, s)

	s, err = ParseStrategy("smart")
	require.NoError(t, err)
	assert.Equal(t, StrategySmart, s)

	_, err = ParseStrategy("semantic")
	assert.ErrorIs(t, err, types.ErrChunkingConfig)
}
