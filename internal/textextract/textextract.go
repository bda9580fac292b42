package textextract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxFileSize is the largest file accepted for extraction
const MaxFileSize = 50 << 20

var (
	// ErrFileNotFound is returned when the path does not exist
	ErrFileNotFound = errors.New("file not found")
	// ErrUnsupportedFileType is returned for extensions other than .pdf, .txt and .md
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrFileTooLarge is returned when the file exceeds the size cap
	ErrFileTooLarge = errors.New("file too large")
	// ErrExtraction is returned when a file cannot be decoded
	ErrExtraction = errors.New("text extraction failed")
)

// SupportedExtensions lists the accepted file extensions
var SupportedExtensions = []string{".pdf", ".txt", ".md"}

// Extractor reads text from files
type Extractor struct {
	MaxBytes int64
}

// New creates an Extractor with the default size cap
func New() *Extractor {
	return &Extractor{MaxBytes: MaxFileSize}
}

// ExtractFile reads path with the default Extractor
func ExtractFile(ctx context.Context, path string) (string, error) {
	return New().ExtractFile(ctx, path)
}

// Supported reports whether path has an accepted extension
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// ExtractFile returns the text content of path
func (e *Extractor) ExtractFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !Supported(path) {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFileType,
			filepath.Ext(path), strings.Join(SupportedExtensions, ", "))
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrUnsupportedFileType, path)
	}
	limit := e.MaxBytes
	if limit <= 0 {
		limit = MaxFileSize
	}
	if info.Size() > limit {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, info.Size(), limit)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return ExtractPDF(ctx, content)
	}
	return decodeText(content)
}

// ExtractPDF returns the plain text of every page, pages separated by a
// newline. Pages that fail to decode are skipped.
func ExtractPDF(ctx context.Context, content []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: malformed pdf: %v", ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}

	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%w: no text layer found", ErrExtraction)
	}
	return b.String(), nil
}

func decodeText(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: file is not valid UTF-8", ErrExtraction)
	}
	return string(content), nil
}
