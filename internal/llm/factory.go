package llm

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config selects and tunes an LLM backend
type Config struct {
	Provider      string
	BaseURL       string
	Model         string
	APIKey        string
	Timeout       time.Duration
	RatePerMinute int
	CacheSize     int // Zero disables the response cache
}

// Client is the generator stack built by NewFromConfig, exposing the
// capabilities health checks and auto-sizing need.
type Client interface {
	Generator
	ModelLister
	ModelInfo
}

// NewFromConfig builds provider -> Guarded -> Cached (when CacheSize > 0)
func NewFromConfig(cfg Config, observer Observer, logger *slog.Logger) (Client, error) {
	var base Generator
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOllama:
		base = NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.Timeout)
	case ProviderOpenAI:
		c, err := NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		base = c
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}

	guarded := NewGuarded(base, GuardOptions{
		RatePerMinute: cfg.RatePerMinute,
		Observer:      observer,
		Logger:        logger,
	})
	if cfg.CacheSize <= 0 {
		return guarded, nil
	}
	return NewCached(guarded, cfg.CacheSize), nil
}
