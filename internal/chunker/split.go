package chunker

import (
	"regexp"
	"unicode/utf8"
)

// span is a half-open rune range [start, end) of the source text
type span struct {
	start int
	end   int
}

func (s span) len() int { return s.end - s.start }

// Boundary patterns, coarsest first. A nil level means a hard character cut.
var (
	paragraphBoundary = regexp.MustCompile(`\n[ \t]*\n\s*`)
	lineBoundary      = regexp.MustCompile(`\n`)
	sentenceBoundary  = regexp.MustCompile(`[.!?…]+["'”’)\]]*\s+`)
	wordBoundary      = regexp.MustCompile(`\s+`)
	spaceBoundary     = regexp.MustCompile(` `)
	blankLine         = regexp.MustCompile(`\n\n`)
)

var strategyLevels = map[Strategy][]*regexp.Regexp{
	StrategyRecursive: {blankLine, lineBoundary, spaceBoundary},
	StrategySmart:     {paragraphBoundary, sentenceBoundary, wordBoundary},
}

// atomize breaks s into contiguous pieces no longer than limit, descending
// through the boundary levels only where a piece is still too long.
func atomize(runes []rune, s span, levels []*regexp.Regexp, limit int, out []span) []span {
	if s.len() <= limit {
		return append(out, s)
	}

	if len(levels) == 0 {
		for p := s.start; p < s.end; p += limit {
			out = append(out, span{p, min(p+limit, s.end)})
		}
		return out
	}

	pieces := cutAfter(runes, s, levels[0])
	if len(pieces) == 1 {
		return atomize(runes, s, levels[1:], limit, out)
	}
	for _, p := range pieces {
		out = atomize(runes, p, levels[1:], limit, out)
	}
	return out
}

// cutAfter splits s after every match of re; separators stay with the
// piece they terminate so the pieces reassemble to the original text.
func cutAfter(runes []rune, s span, re *regexp.Regexp) []span {
	text := string(runes[s.start:s.end])
	matches := re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []span{s}
	}

	pieces := make([]span, 0, len(matches)+1)
	prev := s.start
	bytePos, runePos := 0, s.start
	for _, m := range matches {
		runePos += utf8.RuneCountInString(text[bytePos:m[1]])
		bytePos = m[1]
		if runePos > prev {
			pieces = append(pieces, span{prev, runePos})
			prev = runePos
		}
	}
	if prev < s.end {
		pieces = append(pieces, span{prev, s.end})
	}
	return pieces
}

// pack greedily merges adjacent pieces while the merged length fits limit
func pack(atoms []span, limit int) []span {
	if len(atoms) == 0 {
		return nil
	}

	bodies := make([]span, 0, len(atoms))
	cur := atoms[0]
	for _, a := range atoms[1:] {
		if a.end-cur.start <= limit {
			cur.end = a.end
			continue
		}
		bodies = append(bodies, cur)
		cur = a
	}
	return append(bodies, cur)
}
