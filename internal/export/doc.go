// Package export writes processed documents to XLSX workbooks with
// github.com/xuri/excelize/v2: one sheet of invoices, one of their line
// items and one of CVs.
package export
