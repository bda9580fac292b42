// Package llm is the language-model capability used for extraction.
//
// Generator is the minimal interface: one prompt in, one completion out,
// optionally constrained by a JSON schema. OllamaClient and OpenAIClient
// implement it over HTTP. Two decorators add operational behavior:
//
//   - Guarded applies a client-side rate limit (golang.org/x/time/rate) and a
//     circuit breaker (github.com/sony/gobreaker). It never retries.
//   - Cached memoizes successful completions in an LRU.
//
// NewFromConfig assembles the usual stack:
//
//	client, err := llm.NewFromConfig(llm.Config{
//	    Provider: llm.ProviderOllama,
//	    Model:    "llama3.2",
//	}, collector, logger)
//	resp, err := client.Generate(ctx, llm.Request{Prompt: prompt, Temperature: 0.1})
//
// Transport and status failures wrap types.ErrLLMCall.
package llm
