package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

const (
	// CharsPerToken is the characters-per-token heuristic used for sizing
	CharsPerToken = 4

	// DefaultSafetyFactor leaves room for prompt and response overhead
	DefaultSafetyFactor = 0.8

	// FallbackContextWindow is used when a model's window cannot be determined
	FallbackContextWindow = 8192
)

// ContextWindowSource reports a model's context window in tokens
type ContextWindowSource interface {
	ContextWindow(ctx context.Context, model string) (int, error)
}

// knownContextWindows maps model family prefixes to context windows (tokens)
var knownContextWindows = map[string]int{
	"llama2":        4096,
	"llama3":        8192,
	"llama3.1":      131072,
	"llama3.2":      131072,
	"llama3.3":      131072,
	"codellama":     16384,
	"mistral":       32768,
	"mistral-nemo":  131072,
	"mixtral":       32768,
	"qwen2":         32768,
	"qwen2.5":       32768,
	"qwen3":         40960,
	"gemma":         8192,
	"gemma2":        8192,
	"gemma3":        131072,
	"phi3":          4096,
	"phi4":          16384,
	"deepseek-r1":   131072,
	"gpt-3.5-turbo": 16385,
	"gpt-4":         8192,
	"gpt-4o":        128000,
	"gpt-4.1":       1047576,
}

// familyPrefixes holds the table keys, longest first, so "llama3.1" wins over "llama3"
var familyPrefixes = func() []string {
	keys := make([]string, 0, len(knownContextWindows))
	for k := range knownContextWindows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// LookupFamily returns the context window of a known model family
func LookupFamily(model string) (int, bool) {
	name := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	for _, prefix := range familyPrefixes {
		if strings.HasPrefix(name, prefix) {
			return knownContextWindows[prefix], true
		}
	}
	return 0, false
}

// AutoSizer derives a chunk size from a model's context window
type AutoSizer struct {
	Source        ContextWindowSource
	Enabled       bool
	DefaultSize   int
	CharsPerToken int
	SafetyFactor  float64
	Limits        Limits
	Logger        *slog.Logger
}

// NewAutoSizer creates an enabled AutoSizer with default parameters
func NewAutoSizer(source ContextWindowSource) *AutoSizer {
	return &AutoSizer{
		Source:        source,
		Enabled:       true,
		DefaultSize:   DefaultChunkSize,
		CharsPerToken: CharsPerToken,
		SafetyFactor:  DefaultSafetyFactor,
		Limits:        DefaultLimits(),
	}
}

// ContextWindow resolves the model's context window: model-info source,
// then the family table, then FallbackContextWindow. It never fails.
func (a *AutoSizer) ContextWindow(ctx context.Context, model string) int {
	if tokens, ok := a.fromSource(ctx, model); ok {
		return tokens
	}
	if tokens, ok := LookupFamily(model); ok {
		return tokens
	}
	a.logger().Debug("chunker.autosize.fallback", "model", model, "context_window", FallbackContextWindow)
	return FallbackContextWindow
}

func (a *AutoSizer) fromSource(ctx context.Context, model string) (tokens int, ok bool) {
	if a.Source == nil || model == "" {
		return 0, false
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger().Warn("chunker.autosize.source_panic", "model", model, "panic", fmt.Sprint(r))
			tokens, ok = 0, false
		}
	}()

	n, err := a.Source.ContextWindow(ctx, model)
	if err != nil {
		a.logger().Debug("chunker.autosize.source_failed", "model", model, "error", err)
		return 0, false
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}

// Size computes tokens × chars-per-token × safety − overlap, clamped into the
// limits. When auto mode is disabled the default size is returned.
func (a *AutoSizer) Size(ctx context.Context, model string, overlap int) int {
	if !a.Enabled {
		if a.DefaultSize > 0 {
			return a.DefaultSize
		}
		return DefaultChunkSize
	}

	cpt := a.CharsPerToken
	if cpt <= 0 {
		cpt = CharsPerToken
	}
	factor := a.SafetyFactor
	if factor <= 0 || factor > 1 {
		factor = DefaultSafetyFactor
	}
	limits := a.Limits
	if limits.Min <= 0 || limits.Max < limits.Min {
		limits = DefaultLimits()
	}

	tokens := a.ContextWindow(ctx, model)
	size := int(float64(tokens*cpt)*factor) - overlap
	size = limits.Clamp(size)

	a.logger().Debug("chunker.autosize",
		"model", model,
		"context_window", tokens,
		"overlap", overlap,
		"size", size,
	)
	return size
}

func (a *AutoSizer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
