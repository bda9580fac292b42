package processor

import (
	"math"

	"github.com/dshills/docproc-mcp/internal/merge"
	"github.com/dshills/docproc-mcp/pkg/types"
)

// InvoiceTypeID is the registry identifier of the invoice processor
const InvoiceTypeID = "invoice"

var invoiceKeywords = []string{
	"factuur", "invoice", "totaal", "total", "bedrag", "amount",
	"btw", "vat", "klant", "customer", "leverancier", "supplier",
	"artikel", "item", "prijs", "price", "kosten", "costs",
	"betaling", "payment", "factuurnummer", "nummer", "datum",
	"date", "€", "eur", "euro", "subtotaal", "subtotal",
	"vervaldatum", "due",
}

// Invoice extracts supplier invoices
type Invoice struct {
	Base
}

// NewInvoice creates the invoice processor
func NewInvoice() *Invoice {
	return &Invoice{
		Base: NewBase(
			InvoiceTypeID,
			"Invoice",
			"Supplier invoices: parties, dates, amounts, VAT and line items",
			invoiceKeywords,
			invoiceSchema(),
		),
	}
}

func invoiceSchema() map[string]any {
	lineItem := objectSchema("", map[string]any{
		"description": stringProp("Product or service name"),
		"quantity":    numberProp("Number of units"),
		"unit_price":  numberProp("Price per unit"),
		"unit":        stringProp("Unit of measure"),
		"line_total":  numberProp("Total for this line"),
		"vat_rate":    numberProp("VAT percentage"),
		"vat_amount":  numberProp("VAT amount for this line"),
	}, nil)

	return objectSchema("InvoiceData", map[string]any{
		"invoice_id":          stringProp("Unique invoice identifier"),
		"invoice_number":      stringProp("Invoice number as printed"),
		"invoice_date":        stringProp("Issue date"),
		"due_date":            stringProp("Payment due date"),
		"supplier_name":       stringProp("Supplier company name"),
		"supplier_address":    stringProp("Supplier address"),
		"supplier_vat_number": stringProp("Supplier VAT number"),
		"customer_name":       stringProp("Customer name"),
		"customer_address":    stringProp("Customer address"),
		"customer_vat_number": stringProp("Customer VAT number"),
		"subtotal":            numberProp("Amount before VAT"),
		"vat_amount":          numberProp("Total VAT"),
		"total_amount":        numberProp("Amount including VAT"),
		"currency":            stringProp("ISO currency code"),
		"line_items":          arrayProp("Every itemized product or service", lineItem),
		"payment_terms":       stringProp("Payment terms"),
		"payment_method":      stringProp("Payment method"),
		"notes":               stringProp("Additional notes"),
		"reference":           stringProp("Order or customer reference"),
	}, nil)
}

func (p *Invoice) SchemaPrompt(text string) string   { return invoiceSchemaPrompt(text) }
func (p *Invoice) FreeformPrompt(text string) string { return invoiceFreeformPrompt(text) }

// Normalize decodes into InvoiceData and fills missing line totals from
// quantity * unit_price. Record-level defaults wait for the merge so that a
// chunk without a value never outranks one that extracted it.
func (p *Invoice) Normalize(data map[string]any) (types.Record, error) {
	return normalizeInto(data, func(inv *types.InvoiceData) {
		if inv.LineItems == nil {
			inv.LineItems = []types.LineItem{}
		}
		for i := range inv.LineItems {
			li := &inv.LineItems[i]
			if li.LineTotal == 0 && li.Quantity != 0 && li.UnitPrice != 0 {
				li.LineTotal = roundCents(li.Quantity * li.UnitPrice)
			}
		}
	})
}

// MergePolicy deduplicates line items on description and unit price. A
// duplicate line adds its quantity, total and VAT to the kept line.
func (p *Invoice) MergePolicy() merge.Policy {
	return merge.Policy{
		Lists: []merge.ListPolicy{{
			Field: "line_items",
			Key:   merge.FieldsKey("description", "unit_price"),
			Fold: func(kept, dup map[string]any) {
				merge.AddNumbers(kept, dup, "quantity", "line_total", "vat_amount")
			},
		}},
		Finalize: finalizeInvoice,
	}
}

// DefaultCurrency is assumed when no chunk names a currency
const DefaultCurrency = "EUR"

// finalizeInvoice applies the record-level defaults to the merged invoice
// and recomputes its totals.
func finalizeInvoice(r types.Record) {
	if merge.IsEmpty(r["currency"]) {
		r["currency"] = DefaultCurrency
	}
	if merge.IsEmpty(r["invoice_id"]) && !merge.IsEmpty(r["invoice_number"]) {
		r["invoice_id"] = r["invoice_number"]
	}
	recomputeInvoiceTotals(r)
}

// recomputeInvoiceTotals sets subtotal, vat_amount and total_amount from the
// line items. Records without line items keep their extracted totals. The
// sums are not rounded, so subtotal always equals the sum of line totals.
func recomputeInvoiceTotals(r types.Record) {
	lines, _ := r["line_items"].([]any)
	if len(lines) == 0 {
		return
	}
	var subtotal, vat float64
	for _, l := range lines {
		m, ok := l.(map[string]any)
		if !ok {
			continue
		}
		lt, _ := merge.Number(m["line_total"])
		va, _ := merge.Number(m["vat_amount"])
		subtotal += lt
		vat += va
	}
	r["subtotal"] = subtotal
	r["vat_amount"] = vat
	r["total_amount"] = subtotal + vat
}

// Validate flags missing identity fields, non-positive totals and invoices
// without lines.
func (p *Invoice) Validate(r types.Record) Validation {
	var inv types.InvoiceData
	if err := types.DecodeRecord(r, &inv); err != nil {
		return Validation{Issues: []string{"record is not an invoice: " + err.Error()}}
	}

	var issues []string
	if inv.InvoiceID == "" {
		issues = append(issues, "invoice_id is empty")
	}
	if inv.SupplierName == "" {
		issues = append(issues, "supplier_name is empty")
	}
	if inv.CustomerName == "" {
		issues = append(issues, "customer_name is empty")
	}
	if inv.TotalAmount <= 0 {
		issues = append(issues, "total_amount is not positive")
	}
	if len(inv.LineItems) == 0 {
		issues = append(issues, "no line items found")
	}

	return Validation{
		Valid:        len(issues) == 0,
		Completeness: p.Completeness(r),
		Issues:       issues,
	}
}

// Metrics reports amounts and line item figures
func (p *Invoice) Metrics(r types.Record) map[string]any {
	var inv types.InvoiceData
	if err := types.DecodeRecord(r, &inv); err != nil {
		return map[string]any{}
	}
	avg := 0.0
	if n := len(inv.LineItems); n > 0 {
		var sum float64
		for _, li := range inv.LineItems {
			sum += li.LineTotal
		}
		avg = roundCents(sum / float64(n))
	}
	return map[string]any{
		"total_amount":        inv.TotalAmount,
		"subtotal":            inv.Subtotal,
		"vat_amount":          inv.VATAmount,
		"currency":            inv.Currency,
		"line_items_count":    len(inv.LineItems),
		"has_vat":             inv.VATAmount > 0,
		"has_line_items":      len(inv.LineItems) > 0,
		"avg_line_item_value": avg,
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
