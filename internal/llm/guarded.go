package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/dshills/docproc-mcp/pkg/types"
)

var (
	_ Generator   = (*Guarded)(nil)
	_ ModelLister = (*Guarded)(nil)
	_ ModelInfo   = (*Guarded)(nil)
)

// GuardOptions configures Guarded
type GuardOptions struct {
	// RatePerMinute caps outgoing calls. Zero disables limiting.
	RatePerMinute int

	// ConsecutiveFailures opens the breaker. Default 5.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open. Default 30s.
	OpenTimeout time.Duration

	Observer Observer
	Logger   *slog.Logger
}

// Guarded wraps a Generator with a client-side rate limiter and a circuit
// breaker. It does not retry.
type Guarded struct {
	inner    Generator
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	observer Observer
	logger   *slog.Logger
}

// NewGuarded wraps inner
func NewGuarded(inner Generator, opts GuardOptions) *Guarded {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	failures := opts.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	g := &Guarded{
		inner:    inner,
		observer: opts.Observer,
		logger:   logger,
	}
	if opts.RatePerMinute > 0 {
		burst := max(opts.RatePerMinute/10, 1)
		g.limiter = rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60.0), burst)
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-" + inner.Provider(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about backend health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm.breaker.state", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return g
}

// Generate waits for a rate token, then calls inner through the breaker
func (g *Guarded) Generate(ctx context.Context, req Request) (*Response, error) {
	model := modelOrDefault(req, g.inner.Model())
	start := time.Now()

	resp, err := g.generate(ctx, req)
	elapsed := time.Since(start)

	if g.observer != nil {
		g.observer.ObserveLLMCall(g.inner.Provider(), model, elapsed, err)
	}
	if err != nil {
		g.logger.Debug("llm.generate.error", "provider", g.inner.Provider(), "model", model, "error", err)
		return nil, err
	}
	g.logger.Debug("llm.generate", "provider", g.inner.Provider(), "model", resp.Model, "ms", elapsed.Milliseconds())
	return resp, nil
}

func (g *Guarded) generate(ctx context.Context, req Request) (*Response, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %w", types.ErrLLMCall, err)
		}
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w: %v", types.ErrLLMCall, ErrUnavailable, err)
		}
		return nil, err
	}
	return out.(*Response), nil
}

// State returns the breaker state name (closed, half-open, open)
func (g *Guarded) State() string {
	return g.breaker.State().String()
}

// ListModels forwards to inner when supported
func (g *Guarded) ListModels(ctx context.Context) ([]string, error) {
	if l, ok := g.inner.(ModelLister); ok {
		return l.ListModels(ctx)
	}
	return nil, fmt.Errorf("%w: %s cannot list models", ErrUnsupportedProvider, g.inner.Provider())
}

// ContextWindow forwards to inner when supported
func (g *Guarded) ContextWindow(ctx context.Context, model string) (int, error) {
	if m, ok := g.inner.(ModelInfo); ok {
		return m.ContextWindow(ctx, model)
	}
	return 0, fmt.Errorf("%w: %s reports no context window", ErrUnsupportedProvider, g.inner.Provider())
}

func (g *Guarded) Model() string    { return g.inner.Model() }
func (g *Guarded) Provider() string { return g.inner.Provider() }
