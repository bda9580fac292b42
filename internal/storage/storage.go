package storage

import (
	"context"
	"time"

	"github.com/dshills/docproc-mcp/pkg/types"
)

// Storage defines the interface for result persistence
type Storage interface {
	// SaveResult inserts or replaces a processing result and its error counts
	SaveResult(ctx context.Context, result *types.ProcessingResult) error
	// GetResult loads one result by document id; ErrNotFound when absent
	GetResult(ctx context.Context, documentID string) (*types.ProcessingResult, error)
	// ListResults returns results newest first
	ListResults(ctx context.Context, filter ResultFilter) ([]*types.ProcessingResult, error)
	// DeleteResult removes a result; ErrNotFound when absent
	DeleteResult(ctx context.Context, documentID string) error

	// DocumentStats aggregates stored results per document type
	DocumentStats(ctx context.Context) ([]TypeStats, error)
	// ExtractionErrorTotals sums stored extraction failures by kind
	ExtractionErrorTotals(ctx context.Context) (map[string]int, error)

	Health(ctx context.Context) HealthStatus
	Close() error
}

// ResultFilter narrows ListResults. Zero values match everything.
type ResultFilter struct {
	DocumentType string
	Status       string
	Since        time.Time
	Limit        int
}

// DefaultListLimit caps ListResults when the filter sets no limit
const DefaultListLimit = 100

// TypeStats is the stored history of one document type
type TypeStats struct {
	DocumentType  string    `json:"document_type"`
	Total         int       `json:"total"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	AvgConfidence float64   `json:"avg_confidence"`
	AvgDurationMS float64   `json:"avg_duration_ms"`
	LastProcessed time.Time `json:"last_processed"`
}

// HealthStatus represents database health
type HealthStatus struct {
	DatabaseAccessible bool   `json:"database_accessible"`
	SchemaVersion      string `json:"schema_version"`
	Documents          int    `json:"documents"`
	BuildMode          string `json:"build_mode"`
	Error              string `json:"error,omitempty"`
}
