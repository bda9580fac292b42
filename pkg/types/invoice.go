package types

import (
	"encoding/json"
	"fmt"
)

// InvoiceData is the canonical invoice record
type InvoiceData struct {
	InvoiceID         string     `json:"invoice_id"`
	InvoiceNumber     string     `json:"invoice_number"`
	InvoiceDate       string     `json:"invoice_date"`
	DueDate           string     `json:"due_date"`
	SupplierName      string     `json:"supplier_name"`
	SupplierAddress   string     `json:"supplier_address"`
	SupplierVATNumber string     `json:"supplier_vat_number"`
	CustomerName      string     `json:"customer_name"`
	CustomerAddress   string     `json:"customer_address"`
	CustomerVATNumber string     `json:"customer_vat_number"`
	Subtotal          float64    `json:"subtotal"`
	VATAmount         float64    `json:"vat_amount"`
	TotalAmount       float64    `json:"total_amount"`
	Currency          string     `json:"currency"`
	LineItems         []LineItem `json:"line_items"`
	PaymentTerms      string     `json:"payment_terms"`
	PaymentMethod     string     `json:"payment_method"`
	Notes             string     `json:"notes"`
	Reference         string     `json:"reference"`
}

// LineItem is one invoice line
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Unit        string  `json:"unit"`
	LineTotal   float64 `json:"line_total"`
	VATRate     float64 `json:"vat_rate"`
	VATAmount   float64 `json:"vat_amount"`
}

// ToRecord converts any JSON-serializable value into a Record
func ToRecord(v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, nil
}

// DecodeRecord converts a Record into the typed value pointed to by v.
// JSON nulls decode to zero values.
func DecodeRecord(r Record, v any) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %v", ErrJSONDecode, err)
	}
	return nil
}
