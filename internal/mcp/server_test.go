package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docproc-mcp/internal/llm"
	"github.com/dshills/docproc-mcp/internal/metrics"
	"github.com/dshills/docproc-mcp/internal/pipeline"
	"github.com/dshills/docproc-mcp/internal/registry"
	"github.com/dshills/docproc-mcp/internal/storage"
)

const invoiceText = `FACTUUR
Factuurnummer: INV-1
Totaal: €121,00
BTW: €21,00`

// fakeLLM returns a fixed invoice and optionally fails model listing
type fakeLLM struct {
	listErr error
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: `{"invoice_id":"INV-1","supplier_name":"Acme BV","total_amount":121.0}`}, nil
}

func (f *fakeLLM) ListModels(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []string{"llama3.2", "mistral"}, nil
}

func (f *fakeLLM) Model() string    { return "llama3.2" }
func (f *fakeLLM) Provider() string { return llm.ProviderOllama }

type testServer struct {
	*Server
	gen *fakeLLM
}

func newTestServer(t *testing.T, withStore bool) *testServer {
	t.Helper()
	collector, err := metrics.New()
	require.NoError(t, err)

	gen := &fakeLLM{}
	opts := []pipeline.Option{pipeline.WithRecorder(collector)}
	if withStore {
		store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "docproc.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		opts = append(opts, pipeline.WithStore(store))
	}
	p := pipeline.New(registry.NewDefault(), gen, opts...)
	return &testServer{Server: NewServer(p, WithMetrics(collector)), gen: gen}
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

// decode unmarshals the text content of a tool result
func decode(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code, mcpErr.Message)
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := newTestServer(t, false)

	tools := s.MCPServer().ListTools()
	for _, name := range []string{
		"process_document_text", "process_document_file", "classify_document_type",
		"get_metrics", "health_check", "list_document_types",
		"get_document_result", "export_results",
	} {
		assert.Contains(t, tools, name)
	}
}

func TestProcessDocumentText(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	res, err := s.handleProcessDocumentText(ctx, toolRequest(map[string]interface{}{
		"text":              invoiceText,
		"extraction_method": "json_schema",
	}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "invoice", out["document_type"])
	assert.Equal(t, "schema_only", out["extraction_mode"])
	data := out["data"].(map[string]interface{})
	assert.Equal(t, 121.0, data["total_amount"])

	stored, err := s.handleGetDocumentResult(ctx, toolRequest(map[string]interface{}{
		"document_id": out["document_id"],
	}))
	require.NoError(t, err)
	assert.Equal(t, out["document_id"], decode(t, stored)["document_id"])
}

func TestProcessDocumentText_FailureIsAResult(t *testing.T) {
	s := newTestServer(t, false)

	res, err := s.handleProcessDocumentText(context.Background(), toolRequest(map[string]interface{}{
		"text": "zzz qqq xxx",
	}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, "failed", out["status"])
	assert.Equal(t, pipeline.MsgUnknownType, out["reason"])
}

func TestProcessDocumentText_InvalidParams(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()

	_, err := s.handleProcessDocumentText(ctx, toolRequest(map[string]interface{}{}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleProcessDocumentText(ctx, toolRequest(map[string]interface{}{
		"text":              invoiceText,
		"extraction_method": "magic",
	}))
	requireCode(t, err, ErrorCodeInvalidParams)

	var req mcp.CallToolRequest
	req.Params.Arguments = "not an object"
	_, err = s.handleProcessDocumentText(ctx, req)
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestProcessDocumentFile(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()
	dir := t.TempDir()

	txt := filepath.Join(dir, "invoice.txt")
	require.NoError(t, os.WriteFile(txt, []byte(invoiceText), 0o600))
	docx := filepath.Join(dir, "invoice.docx")
	require.NoError(t, os.WriteFile(docx, []byte("x"), 0o600))

	res, err := s.handleProcessDocumentFile(ctx, toolRequest(map[string]interface{}{"file_path": txt}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, txt, out["source"])

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing param", map[string]interface{}{}, ErrorCodeInvalidParams},
		{"not found", map[string]interface{}{"file_path": filepath.Join(dir, "nope.pdf")}, ErrorCodeFileNotFound},
		{"unsupported", map[string]interface{}{"file_path": docx}, ErrorCodeUnsupportedFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleProcessDocumentFile(ctx, toolRequest(tt.args))
			requireCode(t, err, tt.code)
		})
	}
}

func TestClassifyDocumentType(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()

	res, err := s.handleClassifyDocumentType(ctx, toolRequest(map[string]interface{}{"text": invoiceText}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, "invoice", out["document_type"])
	assert.Equal(t, true, out["recognized"])
	assert.GreaterOrEqual(t, out["confidence"].(float64), 10.0)

	res, err = s.handleClassifyDocumentType(ctx, toolRequest(map[string]interface{}{"text": "zzz qqq"}))
	require.NoError(t, err)
	out = decode(t, res)
	assert.Equal(t, registry.UnknownType, out["document_type"])
	assert.Equal(t, false, out["recognized"])
	assert.Nil(t, out["display_name"])

	_, err = s.handleClassifyDocumentType(ctx, toolRequest(map[string]interface{}{"text": " "}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestGetMetrics(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	_, err := s.handleProcessDocumentText(ctx, toolRequest(map[string]interface{}{"text": invoiceText}))
	require.NoError(t, err)

	res, err := s.handleGetMetrics(ctx, toolRequest(nil))
	require.NoError(t, err)
	out := decode(t, res)

	processing := out["processing"].(map[string]interface{})
	assert.Equal(t, 1.0, processing["total_documents"])
	assert.Equal(t, 1.0, processing["successful_documents"])

	stored := out["stored"].(map[string]interface{})
	types := stored["document_types"].([]interface{})
	require.Len(t, types, 1)

	procs := out["processors"].([]interface{})
	assert.Len(t, procs, 2)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	res, err := s.handleHealthCheck(ctx, toolRequest(nil))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, "healthy", out["status"])
	llmHealth := out["llm"].(map[string]interface{})
	assert.Equal(t, true, llmHealth["reachable"])
	assert.Len(t, llmHealth["available_models"], 2)
	assert.Len(t, out["processors"], 2)
	assert.Contains(t, out, "uptime")
	assert.Equal(t, true, out["storage"].(map[string]interface{})["database_accessible"])

	s.gen.listErr = errors.New("connection refused")
	res, err = s.handleHealthCheck(ctx, toolRequest(nil))
	require.NoError(t, err)
	out = decode(t, res)
	assert.Equal(t, "degraded", out["status"])
	assert.Equal(t, false, out["llm"].(map[string]interface{})["reachable"])
}

func TestListDocumentTypes(t *testing.T) {
	s := newTestServer(t, false)

	res, err := s.handleListDocumentTypes(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, 2.0, out["count"])

	first := out["document_types"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "invoice", first["type_id"])
	assert.Contains(t, first["fields"], "total_amount")
	assert.Contains(t, first["keywords"], "factuur")
}

func TestGetDocumentResult_Errors(t *testing.T) {
	ctx := context.Background()

	withStore := newTestServer(t, true)
	_, err := withStore.handleGetDocumentResult(ctx, toolRequest(map[string]interface{}{"document_id": "missing"}))
	requireCode(t, err, ErrorCodeNotFound)

	_, err = withStore.handleGetDocumentResult(ctx, toolRequest(map[string]interface{}{}))
	requireCode(t, err, ErrorCodeInvalidParams)

	noStore := newTestServer(t, false)
	_, err = noStore.handleGetDocumentResult(ctx, toolRequest(map[string]interface{}{"document_id": "x"}))
	requireCode(t, err, ErrorCodeInternalError)
}

func TestExportResults(t *testing.T) {
	s := newTestServer(t, true)
	ctx := context.Background()

	_, err := s.handleProcessDocumentText(ctx, toolRequest(map[string]interface{}{"text": invoiceText}))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "results.xlsx")
	res, err := s.handleExportResults(ctx, toolRequest(map[string]interface{}{
		"output_path":   path,
		"document_type": "invoice",
	}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, 1.0, out["documents"])
	assert.Equal(t, 1.0, out["sheets"].(map[string]interface{})["invoices"])
	assert.FileExists(t, path)

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing path", map[string]interface{}{}, ErrorCodeInvalidParams},
		{"wrong extension", map[string]interface{}{"output_path": "out.csv"}, ErrorCodeInvalidParams},
		{"limit", map[string]interface{}{"output_path": "out.xlsx", "limit": 0.0}, ErrorCodeInvalidParams},
		{"unknown type", map[string]interface{}{"output_path": "out.xlsx", "document_type": "receipt"}, ErrorCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleExportResults(ctx, toolRequest(tt.args))
			requireCode(t, err, tt.code)
		})
	}

	// Held by an export in flight
	require.True(t, s.exporting.TryAcquire())
	_, err = s.handleExportResults(ctx, toolRequest(map[string]interface{}{"output_path": path}))
	requireCode(t, err, ErrorCodeBusy)
	s.exporting.Release()

	_, err = s.handleExportResults(ctx, toolRequest(map[string]interface{}{"output_path": path}))
	require.NoError(t, err, "released after the rejected call")
}

func readResource(uri string) mcp.ReadResourceRequest {
	var req mcp.ReadResourceRequest
	req.Params.URI = uri
	return req
}

func resourceText(t *testing.T, contents []mcp.ResourceContents) string {
	t.Helper()
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	return text.Text
}

func TestResources(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()

	contents, err := s.handleDocumentTypesResource(ctx, readResource(documentTypesURI))
	require.NoError(t, err)
	md := resourceText(t, contents)
	assert.Contains(t, md, "## Invoice (invoice)")
	assert.Contains(t, md, "schema://cv")

	contents, err = s.handleStatsResource(ctx, readResource("stats://invoice"))
	require.NoError(t, err)
	assert.Contains(t, resourceText(t, contents), `"documents_processed": 0`)

	contents, err = s.handleSchemaResource(ctx, readResource("schema://cv"))
	require.NoError(t, err)
	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resourceText(t, contents)), &schema))
	assert.Equal(t, "object", schema["type"])

	contents, err = s.handleKeywordsResource(ctx, readResource("keywords://invoice"))
	require.NoError(t, err)
	assert.Contains(t, resourceText(t, contents), "factuur")

	contents, err = s.handleAllStatsResource(ctx, readResource(allStatsURI))
	require.NoError(t, err)
	assert.Contains(t, resourceText(t, contents), `"type_id": "cv"`)

	_, err = s.handleStatsResource(ctx, readResource("stats://receipt"))
	requireCode(t, err, ErrorCodeNotFound)

	_, err = s.handleSchemaResource(ctx, readResource("schema://"))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestProcessingGuidePrompt(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()

	guide := func(docType string) (string, error) {
		var req mcp.GetPromptRequest
		req.Params.Arguments = map[string]string{"document_type": docType}
		res, err := s.handleProcessingGuide(ctx, req)
		if err != nil {
			return "", err
		}
		require.Len(t, res.Messages, 1)
		return res.Messages[0].Content.(mcp.TextContent).Text, nil
	}

	text, err := guide("")
	require.NoError(t, err)
	assert.Contains(t, text, "Document Processing Guide")
	assert.Contains(t, text, "Invoice (invoice)")

	text, err = guide("CV")
	require.NoError(t, err)
	assert.Contains(t, text, "schema://cv")

	_, err = guide("receipt")
	requireCode(t, err, ErrorCodeNotFound)
}
