package processor

import "fmt"

const invoiceSchemaTmpl = `Extract ALL structured information from the following invoice text. Be thorough.

The line_items array is mandatory: extract every product or service from any
table, list or itemized section, with description, quantity (default 1),
unit_price, line_total, vat_rate and vat_amount as numbers.

Fill these fields:
1. invoice_id and invoice_number (use the same value if only one number is present)
2. invoice_date and due_date
3. supplier_name, supplier_address, supplier_vat_number
4. customer_name, customer_address, customer_vat_number
5. subtotal, vat_amount, total_amount as plain numbers
6. currency as an ISO code
7. payment_terms, payment_method, notes, reference

Use null for anything not present in the text.

Text:
%s
`

const invoiceFreeformTmpl = `Extract structured information from the following invoice text.

Return ONLY a JSON object. No explanation, no comments, no markdown.
Use exactly these field names:

invoice_id, invoice_number, invoice_date, due_date,
supplier_name, supplier_address, supplier_vat_number,
customer_name, customer_address, customer_vat_number,
subtotal, vat_amount, total_amount, currency,
line_items (list of objects with description, quantity, unit_price, unit, line_total, vat_rate, vat_amount),
payment_terms, payment_method, notes, reference

Amounts are numbers without currency symbols. Use "" or [] for missing values.

Text:
%s

JSON:
`

const cvSchemaTmpl = `Extract ALL structured information from the following CV text. Be thorough.

Fill these fields:
1. full_name
2. email
3. phone_number
4. summary (professional summary or objective)
5. work_experience: every position with job_title, company, start_date, end_date, description
6. education: every entry with degree, institution, graduation_date
7. skills: every skill mentioned, one string each

Use null for anything not present in the text.

Text:
%s
`

const cvFreeformTmpl = `Extract structured information from the following CV text.

Return ONLY a JSON object. No explanation, no comments, no markdown.
Use exactly these field names:

full_name, email, phone_number, summary,
work_experience (list of objects with job_title, company, start_date, end_date, description),
education (list of objects with degree, institution, graduation_date),
skills (list of strings)

Use "" or [] for missing values.

Text:
%s

JSON:
`

func invoiceSchemaPrompt(text string) string   { return fmt.Sprintf(invoiceSchemaTmpl, text) }
func invoiceFreeformPrompt(text string) string { return fmt.Sprintf(invoiceFreeformTmpl, text) }
func cvSchemaPrompt(text string) string        { return fmt.Sprintf(cvSchemaTmpl, text) }
func cvFreeformPrompt(text string) string      { return fmt.Sprintf(cvFreeformTmpl, text) }
