package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	_ Generator   = (*Cached)(nil)
	_ ModelLister = (*Cached)(nil)
	_ ModelInfo   = (*Cached)(nil)
)

// DefaultCacheSize is the number of responses kept by Cached
const DefaultCacheSize = 512

// Cached memoizes successful completions in an LRU keyed by a hash of the
// model, prompt, schema and sampling options.
type Cached struct {
	inner Generator
	cache *lru.Cache[string, Response]
}

// NewCached wraps inner with an LRU of the given size
func NewCached(inner Generator, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Response](size)
	if err != nil {
		cache, _ = lru.New[string, Response](DefaultCacheSize)
	}
	return &Cached{inner: inner, cache: cache}
}

// Generate returns a cached response when the same request was answered before
func (c *Cached) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	key := RequestKey(c.inner.Provider(), modelOrDefault(req, c.inner.Model()), req)
	if resp, ok := c.cache.Get(key); ok {
		resp.Cached = true
		return &resp, nil
	}

	resp, err := c.inner.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, *resp)
	return resp, nil
}

// Len returns the number of cached responses
func (c *Cached) Len() int { return c.cache.Len() }

// Purge empties the cache
func (c *Cached) Purge() { c.cache.Purge() }

func (c *Cached) ListModels(ctx context.Context) ([]string, error) {
	if l, ok := c.inner.(ModelLister); ok {
		return l.ListModels(ctx)
	}
	return nil, fmt.Errorf("%w: %s cannot list models", ErrUnsupportedProvider, c.inner.Provider())
}

func (c *Cached) ContextWindow(ctx context.Context, model string) (int, error) {
	if m, ok := c.inner.(ModelInfo); ok {
		return m.ContextWindow(ctx, model)
	}
	return 0, fmt.Errorf("%w: %s reports no context window", ErrUnsupportedProvider, c.inner.Provider())
}

// Unwrap returns the wrapped generator
func (c *Cached) Unwrap() Generator { return c.inner }

func (c *Cached) Model() string    { return c.inner.Model() }
func (c *Cached) Provider() string { return c.inner.Provider() }

// RequestKey computes the SHA-256 cache key of a request
func RequestKey(provider, model string, req Request) string {
	schema := ""
	if req.Schema != nil {
		// encoding/json sorts map keys, so equal schemas encode identically
		if b, err := json.Marshal(req.Schema); err == nil {
			schema = string(b)
		}
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%g\x00%d\x00%s\x00%s\x00%s",
		provider, model, req.Temperature, req.MaxTokens,
		strings.Join(req.Stop, "\x01"), schema, req.Prompt)
	return hex.EncodeToString(h.Sum(nil))
}
