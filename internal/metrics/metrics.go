package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dshills/docproc-mcp/internal/llm"
)

// MeterName is the instrumentation scope of the collector's instruments
const MeterName = "github.com/dshills/docproc-mcp"

// windowSize is the number of recent durations kept for percentiles
const windowSize = 100

// Recorder counts extraction errors by kind
type Recorder interface {
	RecordExtractionError(kind string)
}

var (
	_ Recorder     = (*Collector)(nil)
	_ llm.Observer = (*Collector)(nil)
)

// Collector aggregates processing and LLM statistics in memory and mirrors
// them to OpenTelemetry instruments. Safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	start time.Time
	now   func() time.Time

	docs        counters
	docTypes    map[string]int64
	docErrors   map[string]int64
	docWindow   window
	docDuration time.Duration

	llmCalls    counters
	llmModels   map[string]int64
	llmErrors   map[string]int64
	llmWindow   window
	llmDuration time.Duration

	extractionErrors map[string]int64

	inst instruments
}

type counters struct {
	total, success, failed int64
}

type instruments struct {
	documents        metric.Int64Counter
	documentDuration metric.Float64Histogram
	llmRequests      metric.Int64Counter
	llmDuration      metric.Float64Histogram
	extractionErrors metric.Int64Counter
}

// Option configures a Collector
type Option func(*options)

type options struct {
	provider metric.MeterProvider
	now      func() time.Time
}

// WithMeterProvider sets the OTel meter provider (default: the global one)
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a Collector and registers its instruments
func New(opts ...Option) (*Collector, error) {
	o := options{provider: otel.GetMeterProvider(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	inst, err := newInstruments(o.provider.Meter(MeterName))
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}

	return &Collector{
		start:            o.now(),
		now:              o.now,
		docTypes:         make(map[string]int64),
		docErrors:        make(map[string]int64),
		llmModels:        make(map[string]int64),
		llmErrors:        make(map[string]int64),
		extractionErrors: make(map[string]int64),
		inst:             inst,
	}, nil
}

func newInstruments(meter metric.Meter) (instruments, error) {
	var (
		inst instruments
		err  error
	)
	inst.documents, err = meter.Int64Counter(
		"docproc.documents.processed",
		metric.WithDescription("Documents processed by type and status"),
	)
	if err != nil {
		return inst, err
	}
	inst.documentDuration, err = meter.Float64Histogram(
		"docproc.document.duration",
		metric.WithDescription("Document processing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return inst, err
	}
	inst.llmRequests, err = meter.Int64Counter(
		"docproc.llm.requests",
		metric.WithDescription("LLM backend calls by model and outcome"),
	)
	if err != nil {
		return inst, err
	}
	inst.llmDuration, err = meter.Float64Histogram(
		"docproc.llm.duration",
		metric.WithDescription("LLM call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return inst, err
	}
	inst.extractionErrors, err = meter.Int64Counter(
		"docproc.extraction.errors",
		metric.WithDescription("Extraction errors by kind"),
	)
	return inst, err
}

// RecordDocument records one pipeline run. reason is ignored on success.
func (c *Collector) RecordDocument(docType string, success bool, elapsed time.Duration, reason string) {
	status := "success"
	if !success {
		status = "failed"
	}

	c.mu.Lock()
	c.docs.total++
	if success {
		c.docs.success++
	} else {
		c.docs.failed++
		if reason == "" {
			reason = "unknown"
		}
		c.docErrors[reason]++
	}
	c.docTypes[docType]++
	c.docDuration += elapsed
	c.docWindow.add(elapsed)
	c.mu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("document.type", docType),
		attribute.String("status", status),
	)
	c.inst.documents.Add(context.Background(), 1, attrs)
	c.inst.documentDuration.Record(context.Background(), elapsed.Seconds(), attrs)
}

// ObserveLLMCall implements llm.Observer
func (c *Collector) ObserveLLMCall(provider, model string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = LLMErrorKind(err)
	}

	c.mu.Lock()
	c.llmCalls.total++
	if err == nil {
		c.llmCalls.success++
	} else {
		c.llmCalls.failed++
		c.llmErrors[outcome]++
	}
	c.llmModels[model]++
	c.llmDuration += elapsed
	c.llmWindow.add(elapsed)
	c.mu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
		attribute.String("outcome", outcome),
	)
	c.inst.llmRequests.Add(context.Background(), 1, attrs)
	c.inst.llmDuration.Record(context.Background(), elapsed.Seconds(), attrs)
}

// RecordExtractionError implements Recorder
func (c *Collector) RecordExtractionError(kind string) {
	c.mu.Lock()
	c.extractionErrors[kind]++
	c.mu.Unlock()

	c.inst.extractionErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("kind", kind)))
}

// LLMErrorKind buckets an LLM call error for reporting
func LLMErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, llm.ErrUnavailable):
		return "circuit_open"
	case errors.Is(err, llm.ErrEmptyResponse):
		return "empty_response"
	default:
		return "backend_error"
	}
}

// Uptime returns the time since the collector was created
func (c *Collector) Uptime() time.Duration {
	return c.now().Sub(c.start)
}

// window is a fixed-size ring of recent durations
type window struct {
	buf  [windowSize]time.Duration
	n    int
	next int
}

func (w *window) add(d time.Duration) {
	w.buf[w.next] = d
	w.next = (w.next + 1) % windowSize
	if w.n < windowSize {
		w.n++
	}
}

// percentile returns the value at index floor(n*p/100) of the sorted window
func (w *window) percentile(p float64) time.Duration {
	if w.n == 0 {
		return 0
	}
	sorted := make([]time.Duration, w.n)
	copy(sorted, w.buf[:w.n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(w.n) * p / 100)
	if idx >= w.n {
		idx = w.n - 1
	}
	return sorted[idx]
}
