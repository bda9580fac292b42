// Package textextract reads document text from files on disk.
//
// PDF files are read page by page with github.com/ledongthuc/pdf; plain
// text and Markdown files are read as UTF-8. Files larger than
// MaxFileSize are refused before they are read into memory.
package textextract
