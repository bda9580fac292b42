package export

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dshills/docproc-mcp/internal/merge"
	"github.com/dshills/docproc-mcp/internal/processor"
	"github.com/dshills/docproc-mcp/pkg/types"
)

// Sheet names
const (
	SheetInvoices  = "Invoices"
	SheetLineItems = "Line Items"
	SheetCVs       = "CVs"
)

var (
	invoiceHeaders = []string{
		"Document ID", "Invoice ID", "Invoice Date", "Due Date", "Supplier", "Customer",
		"Currency", "Subtotal", "VAT", "Total", "Line Items", "Completeness", "Issues", "Processed At",
	}
	lineItemHeaders = []string{
		"Document ID", "Invoice ID", "Description", "Quantity", "Unit", "Unit Price",
		"VAT Rate", "VAT Amount", "Line Total",
	}
	cvHeaders = []string{
		"Document ID", "Full Name", "Email", "Phone", "Positions", "Latest Position",
		"Education", "Skills", "Completeness", "Issues", "Processed At",
	}
)

// Summary counts the rows written per sheet
type Summary struct {
	Invoices  int `json:"invoices"`
	LineItems int `json:"line_items"`
	CVs       int `json:"cvs"`
	Skipped   int `json:"skipped"`
}

// Exporter writes processed documents to XLSX workbooks
type Exporter struct {
	logger *slog.Logger
}

// New creates an Exporter
func New(logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{logger: logger}
}

// WriteXLSX writes successful invoice and CV results as a workbook to w.
// Failed results and unknown document types are skipped.
func (e *Exporter) WriteXLSX(results []*types.ProcessingResult, w io.Writer) (Summary, error) {
	start := time.Now()

	f, summary, err := e.build(results)
	if err != nil {
		return summary, err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteTo(w); err != nil {
		return summary, fmt.Errorf("xlsx write: %w", err)
	}

	e.logger.Info("export.xlsx.ok",
		"invoices", summary.Invoices,
		"line_items", summary.LineItems,
		"cvs", summary.CVs,
		"skipped", summary.Skipped,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return summary, nil
}

// ExportToFile writes the workbook to path, which should end in .xlsx
func (e *Exporter) ExportToFile(results []*types.ProcessingResult, path string) (Summary, error) {
	if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return Summary{}, fmt.Errorf("export path %q must end in .xlsx", path)
	}
	out, err := os.Create(path)
	if err != nil {
		return Summary{}, fmt.Errorf("create %s: %w", path, err)
	}

	summary, err := e.WriteXLSX(results, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", path, cerr)
	}
	if err != nil {
		_ = os.Remove(path)
		return summary, err
	}
	return summary, nil
}

func (e *Exporter) build(results []*types.ProcessingResult) (*excelize.File, Summary, error) {
	var summary Summary

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetInvoices); err != nil {
		_ = f.Close()
		return nil, summary, err
	}
	for _, name := range []string{SheetLineItems, SheetCVs} {
		if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, summary, err
		}
	}

	invoices := newSheetWriter(f, SheetInvoices, invoiceHeaders)
	lines := newSheetWriter(f, SheetLineItems, lineItemHeaders)
	cvs := newSheetWriter(f, SheetCVs, cvHeaders)

	for _, r := range results {
		if r == nil || !r.Succeeded() || r.Data == nil {
			summary.Skipped++
			continue
		}
		switch r.DocumentType {
		case processor.InvoiceTypeID:
			writeInvoice(invoices, lines, r)
			summary.Invoices++
		case processor.CVTypeID:
			writeCV(cvs, r)
			summary.CVs++
		default:
			summary.Skipped++
		}
	}
	summary.LineItems = lines.row - 2

	_ = f.SetColWidth(SheetInvoices, "A", "A", 38)
	_ = f.SetColWidth(SheetInvoices, "B", "F", 20)
	_ = f.SetColWidth(SheetInvoices, "M", "M", 48)
	_ = f.SetColWidth(SheetLineItems, "C", "C", 40)
	_ = f.SetColWidth(SheetCVs, "A", "A", 38)
	_ = f.SetColWidth(SheetCVs, "B", "F", 24)
	_ = f.SetColWidth(SheetCVs, "H", "H", 60)

	return f, summary, nil
}

func writeInvoice(invoices, lines *sheetWriter, r *types.ProcessingResult) {
	d := r.Data
	items, _ := d["line_items"].([]any)
	invoiceID := merge.StringValue(d["invoice_id"])

	invoices.append(
		r.DocumentID,
		invoiceID,
		merge.StringValue(d["invoice_date"]),
		merge.StringValue(d["due_date"]),
		merge.StringValue(d["supplier_name"]),
		merge.StringValue(d["customer_name"]),
		merge.StringValue(d["currency"]),
		number(d["subtotal"]),
		number(d["vat_amount"]),
		number(d["total_amount"]),
		len(items),
		r.Completeness,
		strings.Join(r.Issues, "; "),
		r.CreatedAt.Format(time.RFC3339),
	)

	for _, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		lines.append(
			r.DocumentID,
			invoiceID,
			merge.StringValue(item["description"]),
			number(item["quantity"]),
			merge.StringValue(item["unit"]),
			number(item["unit_price"]),
			number(item["vat_rate"]),
			number(item["vat_amount"]),
			number(item["line_total"]),
		)
	}
}

func writeCV(cvs *sheetWriter, r *types.ProcessingResult) {
	d := r.Data
	work, _ := d["work_experience"].([]any)
	edu, _ := d["education"].([]any)

	latest := ""
	if len(work) > 0 {
		if w, ok := work[0].(map[string]any); ok {
			latest = joinNonEmpty(" @ ", merge.StringValue(w["job_title"]), merge.StringValue(w["company"]))
		}
	}

	var skills []string
	if list, ok := d["skills"].([]any); ok {
		for _, s := range list {
			if v := merge.StringValue(s); v != "" {
				skills = append(skills, v)
			}
		}
	}

	cvs.append(
		r.DocumentID,
		merge.StringValue(d["full_name"]),
		merge.StringValue(d["email"]),
		merge.StringValue(d["phone_number"]),
		len(work),
		latest,
		len(edu),
		strings.Join(skills, ", "),
		r.Completeness,
		strings.Join(r.Issues, "; "),
		r.CreatedAt.Format(time.RFC3339),
	)
}

// number returns the numeric value or an empty cell
func number(v any) any {
	if f, ok := merge.Number(v); ok {
		return f
	}
	return ""
}

// sheetWriter appends rows below a header row
type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func newSheetWriter(f *excelize.File, sheet string, headers []string) *sheetWriter {
	w := &sheetWriter{f: f, sheet: sheet, row: 1}
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	w.append(values...)
	return w
}

func (w *sheetWriter) append(values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, w.row)
		_ = w.f.SetCellValue(w.sheet, cell, v)
	}
	w.row++
}

// joinNonEmpty joins the non-blank parts with sep
func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
