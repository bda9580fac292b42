package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docproc-mcp/internal/extractor"
	"github.com/dshills/docproc-mcp/internal/llm"
	"github.com/dshills/docproc-mcp/internal/processor"
	"github.com/dshills/docproc-mcp/internal/registry"
	"github.com/dshills/docproc-mcp/internal/storage"
	"github.com/dshills/docproc-mcp/internal/textextract"
	"github.com/dshills/docproc-mcp/pkg/types"
)

const invoiceText = `FACTUUR
Factuurnummer: INV-1
Leverancier: Acme BV
Totaal: €121,00
BTW: €21,00`

// funcGenerator answers every request with fn
type funcGenerator struct {
	fn    func(req llm.Request) (string, error)
	mu    sync.Mutex
	calls int
}

func (g *funcGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	text, err := g.fn(req)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Text: text, Model: "test-model", Provider: "test"}, nil
}

func (g *funcGenerator) Model() string    { return "test-model" }
func (g *funcGenerator) Provider() string { return "test" }

func staticGenerator(text string) *funcGenerator {
	return &funcGenerator{fn: func(llm.Request) (string, error) { return text, nil }}
}

// fakeRecorder captures document outcomes and error kinds
type fakeRecorder struct {
	mu        sync.Mutex
	documents []string
	reasons   []string
	kinds     map[string]int
}

func (r *fakeRecorder) RecordExtractionError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kinds == nil {
		r.kinds = map[string]int{}
	}
	r.kinds[kind]++
}

func (r *fakeRecorder) RecordDocument(docType string, success bool, elapsed time.Duration, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = append(r.documents, fmt.Sprintf("%s:%t", docType, success))
	r.reasons = append(r.reasons, reason)
}

func invoiceOnly(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register(processor.NewInvoice()))
	return reg
}

func TestProcess_Invoice(t *testing.T) {
	gen := staticGenerator(`{"invoice_id":"INV-1","supplier_name":"Acme BV","total_amount":121.0,"vat_amount":21.0}`)
	rec := &fakeRecorder{}
	reg := registry.NewDefault()
	p := New(reg, gen, WithRecorder(rec), WithIDGenerator(func() string { return "doc-1" }))

	res := p.Process(context.Background(), types.RawDocument{Text: invoiceText})

	require.Equal(t, types.StatusSuccess, res.Status, res.Reason)
	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Equal(t, processor.InvoiceTypeID, res.DocumentType)
	assert.GreaterOrEqual(t, res.Confidence, 10.0)
	assert.Equal(t, 121.0, res.Data["total_amount"])
	assert.Equal(t, "EUR", res.Data["currency"])
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, res.Partials)
	assert.Equal(t, types.ModeHybrid, res.Mode)
	assert.Equal(t, "text", res.Source)
	assert.Equal(t, "test-model", res.ModelUsed)
	assert.Contains(t, res.Issues, "no line items found")
	assert.Equal(t, 121.0, res.Metrics["total_amount"])
	assert.Greater(t, res.Completeness, 0.0)

	assert.Equal(t, []string{"invoice:true"}, rec.documents)
	assert.Equal(t, []string{""}, rec.reasons)

	stats, err := reg.Statistics(processor.InvoiceTypeID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.DocumentsProcessed)
}

func TestProcess_Failures(t *testing.T) {
	failing := &funcGenerator{fn: func(llm.Request) (string, error) { return "", errors.New("connection refused") }}
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		gen    llm.Generator
		cfg    *Config
		ctx    context.Context
		doc    types.RawDocument
		code   string
		reason string
	}{
		{
			name:   "empty text",
			gen:    staticGenerator("{}"),
			doc:    types.RawDocument{Text: "   "},
			code:   ReasonInvalidInput,
			reason: types.ErrEmptyText.Error(),
		},
		{
			name:   "bad mode",
			gen:    staticGenerator("{}"),
			doc:    types.RawDocument{Text: invoiceText, Mode: "magic"},
			code:   ReasonInvalidInput,
			reason: "invalid extraction mode",
		},
		{
			name:   "unknown type",
			gen:    staticGenerator("{}"),
			doc:    types.RawDocument{Text: "zzz qqq xxx"},
			code:   ReasonUnknownType,
			reason: MsgUnknownType,
		},
		{
			name:   "llm down",
			gen:    failing,
			doc:    types.RawDocument{Text: invoiceText},
			code:   ReasonNoData,
			reason: MsgNoData,
		},
		{
			name: "overlap not smaller than size",
			gen:  staticGenerator("{}"),
			cfg: &Config{
				ChunkThreshold: 50,
				Overlap:        5000,
			},
			doc:    types.RawDocument{Text: invoiceText},
			code:   ReasonChunkingConfig,
			reason: "overlap must be smaller than size",
		},
		{
			name:   "canceled",
			gen:    staticGenerator("{}"),
			ctx:    canceled,
			doc:    types.RawDocument{Text: invoiceText},
			code:   ReasonCanceled,
			reason: "interrupted",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			opts := []Option{WithRecorder(rec)}
			if tt.cfg != nil {
				opts = append(opts, WithConfig(*tt.cfg))
			}
			p := New(invoiceOnly(t), tt.gen, opts...)
			ctx := tt.ctx
			if ctx == nil {
				ctx = context.Background()
			}

			res := p.Process(ctx, tt.doc)

			assert.Equal(t, types.StatusFailed, res.Status)
			assert.Contains(t, res.Reason, tt.reason)
			assert.Nil(t, res.Data)
			assert.NotEmpty(t, res.DocumentID)
			require.Len(t, rec.reasons, 1)
			assert.Equal(t, tt.code, rec.reasons[0])
		})
	}
}

func TestProcess_ExtractionErrorsCounted(t *testing.T) {
	gen := &funcGenerator{fn: func(req llm.Request) (string, error) {
		if req.Schema != nil {
			return `{"invoice_id": "INV-1",,`, nil
		}
		return "   ", nil
	}}
	rec := &fakeRecorder{}
	p := New(invoiceOnly(t), gen, WithRecorder(rec))

	res := p.Process(context.Background(), types.RawDocument{Text: invoiceText})

	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, MsgNoData, res.Reason)
	assert.Equal(t, map[string]int{
		extractor.KindJSONDecode:     1,
		extractor.KindJSONExtraction: 1,
	}, res.ExtractionErrors)
	assert.Equal(t, res.ExtractionErrors, rec.kinds)
}

func TestProcess_SchemaOnlySkipsFreeform(t *testing.T) {
	gen := &funcGenerator{fn: func(req llm.Request) (string, error) {
		if req.Schema == nil {
			return "", errors.New("free-form called")
		}
		return `{"invoice_id":"INV-1","total_amount":121}`, nil
	}}
	p := New(invoiceOnly(t), gen)

	res := p.Process(context.Background(), types.RawDocument{Text: invoiceText, Mode: types.ModeSchemaOnly})

	require.Equal(t, types.StatusSuccess, res.Status, res.Reason)
	assert.Equal(t, types.ModeSchemaOnly, res.Mode)
	assert.Equal(t, 1, gen.calls)
	assert.Empty(t, res.ExtractionErrors)
}

var (
	sectionRe = regexp.MustCompile(`SECTION-(\d+)`)
	products  = []string{"Widget", "Ethernet cable", "Monitor stand", "Keyboard", "Laser printer", "Desk lamp"}
)

// sectionedInvoice builds an invoice long enough to be split, one marked
// paragraph per product.
func sectionedInvoice() string {
	var b strings.Builder
	for i := range products {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "SECTION-%d factuur regel %s. ", i, products[i])
		b.WriteString(strings.Repeat("lorem ipsum dolor sit amet ", 16))
	}
	return b.String()
}

// sectionGenerator answers with an invoice built from the first section
// marker in the prompt. Section 0 is the slowest to answer.
func sectionGenerator() *funcGenerator {
	return &funcGenerator{fn: func(req llm.Request) (string, error) {
		m := sectionRe.FindStringSubmatch(req.Prompt)
		if m == nil {
			return "", errors.New("no section in prompt")
		}
		k, _ := strconv.Atoi(m[1])
		if k == 0 {
			time.Sleep(30 * time.Millisecond)
		}
		return fmt.Sprintf(
			`{"invoice_id":"INV-%d","supplier_name":"Supplier %d","line_items":[{"description":%q,"quantity":1,"unit_price":%d,"line_total":%d}]}`,
			k, k, products[k], 10*(k+1), 10*(k+1),
		), nil
	}}
}

func TestProcess_MultiChunkOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 4
	cfg.ChunkThreshold = 500
	p := New(invoiceOnly(t), sectionGenerator(), WithConfig(cfg))

	res := p.Process(context.Background(), types.RawDocument{Text: sectionedInvoice()})

	require.Equal(t, types.StatusSuccess, res.Status, res.Reason)
	require.Greater(t, res.Chunks, 1)
	assert.Equal(t, res.Chunks, res.Partials)

	// First non-empty scalar wins in chunk order, not completion order
	assert.Equal(t, "INV-0", res.Data["invoice_id"])
	assert.Equal(t, "Supplier 0", res.Data["supplier_name"])

	lines, ok := res.Data["line_items"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, lines)
	var prev = -1
	for _, l := range lines {
		desc := l.(map[string]any)["description"].(string)
		idx := -1
		for i, name := range products {
			if name == desc {
				idx = i
			}
		}
		require.GreaterOrEqual(t, idx, 0, desc)
		assert.Greater(t, idx, prev, "line items keep chunk order")
		prev = idx
	}
	assert.Equal(t, "Widget", lines[0].(map[string]any)["description"])

	total, _ := res.Data["total_amount"].(float64)
	assert.Greater(t, total, 0.0, "totals recomputed from line items")
}

func TestProcess_WorkerCountDoesNotChangeResult(t *testing.T) {
	text := sectionedInvoice()
	run := func(workers int) *types.ProcessingResult {
		cfg := DefaultConfig()
		cfg.Workers = workers
		cfg.ChunkThreshold = 500
		p := New(invoiceOnly(t), sectionGenerator(), WithConfig(cfg))
		return p.Process(context.Background(), types.RawDocument{Text: text})
	}

	sequential := run(1)
	parallel := run(4)
	require.Equal(t, types.StatusSuccess, sequential.Status)
	assert.Equal(t, sequential.Chunks, parallel.Chunks)
	assert.Equal(t, sequential.Data, parallel.Data)
	assert.Equal(t, sequential.Issues, parallel.Issues)
}

func TestProcess_PersistsResult(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "docproc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	p := New(invoiceOnly(t), staticGenerator(`{"invoice_id":"INV-1","total_amount":121}`), WithStore(store))
	ctx := context.Background()

	ok := p.Process(ctx, types.RawDocument{Text: invoiceText})
	failed := p.Process(ctx, types.RawDocument{Text: "zzz qqq xxx"})

	got, err := store.GetResult(ctx, ok.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, got.Status)
	assert.Equal(t, 121.0, got.Data["total_amount"])

	got, err = store.GetResult(ctx, failed.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, registry.UnknownType, got.DocumentType)
	assert.Equal(t, MsgUnknownType, got.Reason)
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.txt")
	require.NoError(t, os.WriteFile(path, []byte(invoiceText), 0o600))

	p := New(invoiceOnly(t), staticGenerator(`{"invoice_id":"INV-1","total_amount":121}`))

	res, err := p.ProcessFile(context.Background(), path, types.ModeHybrid, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, res.Status)
	assert.Equal(t, path, res.Source)

	_, err = p.ProcessFile(context.Background(), filepath.Join(dir, "missing.txt"), "", "")
	assert.ErrorIs(t, err, textextract.ErrFileNotFound)

	bad := filepath.Join(dir, "invoice.docx")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o600))
	_, err = p.ProcessFile(context.Background(), bad, "", "")
	assert.ErrorIs(t, err, textextract.ErrUnsupportedFileType)
}

func TestProcess_ModelOverride(t *testing.T) {
	var seen []string
	var mu sync.Mutex
	gen := &funcGenerator{fn: func(req llm.Request) (string, error) {
		mu.Lock()
		seen = append(seen, req.Model)
		mu.Unlock()
		return `{"invoice_id":"INV-1","total_amount":121}`, nil
	}}
	p := New(invoiceOnly(t), gen)

	res := p.Process(context.Background(), types.RawDocument{Text: invoiceText, Model: "mistral"})

	assert.Equal(t, "mistral", res.ModelUsed)
	require.NotEmpty(t, seen)
	for _, m := range seen {
		assert.Equal(t, "mistral", m)
	}
}
