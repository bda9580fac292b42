package llm

import (
	"context"
	"errors"
	"time"
)

// Provider names
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Common errors. Transport failures additionally wrap types.ErrLLMCall.
var (
	ErrUnsupportedProvider = errors.New("unsupported llm provider")
	ErrMissingAPIKey       = errors.New("api key not configured")
	ErrUnavailable         = errors.New("llm backend unavailable")
	ErrEmptyPrompt         = errors.New("prompt cannot be empty")
	ErrEmptyResponse       = errors.New("llm returned an empty response")
)

// Request is one completion request
type Request struct {
	Prompt string

	// Schema constrains the output to a JSON document when the backend
	// supports structured output. Nil means free text.
	Schema map[string]any

	Temperature float64
	MaxTokens   int
	Stop        []string

	// Model overrides the client's default model. Optional.
	Model string
}

// Response is the completion text plus call metadata
type Response struct {
	Text     string
	Model    string
	Provider string
	Duration time.Duration
	Cached   bool
}

// Generator produces text completions
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Model returns the default model name
	Model() string

	// Provider returns the provider name
	Provider() string
}

// ModelLister is implemented by backends that can enumerate their models
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ModelInfo is implemented by backends that can report context windows
type ModelInfo interface {
	ContextWindow(ctx context.Context, model string) (int, error)
}

// Observer receives the outcome of every backend call
type Observer interface {
	ObserveLLMCall(provider, model string, elapsed time.Duration, err error)
}

// ValidateRequest checks a request before it is sent
func ValidateRequest(req Request) error {
	if req.Prompt == "" {
		return ErrEmptyPrompt
	}
	return nil
}

func modelOrDefault(req Request, def string) string {
	if req.Model != "" {
		return req.Model
	}
	return def
}
