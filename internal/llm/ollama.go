package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/docproc-mcp/pkg/types"
)

// Ensure OllamaClient implements the capability interfaces
var (
	_ Generator   = (*OllamaClient)(nil)
	_ ModelLister = (*OllamaClient)(nil)
	_ ModelInfo   = (*OllamaClient)(nil)
)

// Ollama defaults
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
	DefaultTimeout     = 120 * time.Second
)

// OllamaClient talks to the Ollama HTTP API
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	windows    *lru.Cache[string, int]
}

// NewOllamaClient creates a client. Empty values take the defaults.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	windows, _ := lru.New[string, int](64)
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		windows:    windows,
	}
}

type ollamaOptions struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  map[string]any `json:"format,omitempty"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate calls /api/generate without streaming. A schema is passed as the
// structured-output format.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	model := modelOrDefault(req, c.model)

	body := ollamaGenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		Stream: false,
		Format: req.Schema,
		Options: &ollamaOptions{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
			Stop:        req.Stop,
		},
	}

	start := time.Now()
	var genResp ollamaGenerateResponse
	if err := c.postJSON(ctx, "/api/generate", body, &genResp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(genResp.Response) == "" {
		return nil, fmt.Errorf("%w: %w", types.ErrLLMCall, ErrEmptyResponse)
	}
	if genResp.Model != "" {
		model = genResp.Model
	}

	return &Response{
		Text:     genResp.Response,
		Model:    model,
		Provider: ProviderOllama,
		Duration: time.Since(start),
	}, nil
}

// ListModels returns the names reported by /api/tags
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.do(req, &tags); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// ContextWindow reads the model's context length from /api/show. Results are
// cached per model.
func (c *OllamaClient) ContextWindow(ctx context.Context, model string) (int, error) {
	if model == "" {
		model = c.model
	}
	if n, ok := c.windows.Get(model); ok {
		return n, nil
	}

	var show struct {
		ModelInfo  map[string]any `json:"model_info"`
		Parameters string         `json:"parameters"`
	}
	if err := c.postJSON(ctx, "/api/show", map[string]string{"model": model}, &show); err != nil {
		return 0, err
	}

	n := contextLengthFromShow(show.ModelInfo, show.Parameters)
	if n <= 0 {
		return 0, fmt.Errorf("%w: no context length reported for %s", types.ErrLLMCall, model)
	}
	c.windows.Add(model, n)
	return n, nil
}

// contextLengthFromShow prefers an explicit num_ctx parameter over the
// architecture's <arch>.context_length.
func contextLengthFromShow(info map[string]any, params string) int {
	for _, line := range strings.Split(params, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "num_ctx" {
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	for k, v := range info {
		if !strings.HasSuffix(k, ".context_length") {
			continue
		}
		if f, ok := v.(float64); ok && f > 0 {
			return int(f)
		}
	}
	return 0
}

func (c *OllamaClient) Model() string    { return c.model }
func (c *OllamaClient) Provider() string { return ProviderOllama }

// Close releases idle connections
func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *OllamaClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *OllamaClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama: %w", types.ErrLLMCall, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: ollama status %d: %s", types.ErrLLMCall, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode ollama response: %w", types.ErrLLMCall, err)
	}
	return nil
}
