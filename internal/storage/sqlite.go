package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/docproc-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidResult is returned when a result cannot be stored
	ErrInvalidResult = errors.New("invalid result")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SaveResult inserts or replaces result together with its extraction error
// counts in one transaction.
func (s *SQLiteStorage) SaveResult(ctx context.Context, result *types.ProcessingResult) error {
	if result == nil || result.DocumentID == "" {
		return fmt.Errorf("%w: missing document id", ErrInvalidResult)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveResultWithQuerier(ctx, tx, result); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) saveResultWithQuerier(ctx context.Context, q querier, result *types.ProcessingResult) error {
	data, err := marshalColumn(result.Data)
	if err != nil {
		return fmt.Errorf("%w: data: %v", ErrInvalidResult, err)
	}
	issues, err := marshalColumn(result.Issues)
	if err != nil {
		return fmt.Errorf("%w: issues: %v", ErrInvalidResult, err)
	}
	metrics, err := marshalColumn(result.Metrics)
	if err != nil {
		return fmt.Errorf("%w: metrics: %v", ErrInvalidResult, err)
	}

	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO documents (id, type, status, reason, confidence, completeness, model, mode,
		                       source, chunks, partials, duration_ms, data, issues, metrics, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			status = excluded.status,
			reason = excluded.reason,
			confidence = excluded.confidence,
			completeness = excluded.completeness,
			model = excluded.model,
			mode = excluded.mode,
			source = excluded.source,
			chunks = excluded.chunks,
			partials = excluded.partials,
			duration_ms = excluded.duration_ms,
			data = excluded.data,
			issues = excluded.issues,
			metrics = excluded.metrics,
			created_at = excluded.created_at
	`
	_, err = q.ExecContext(ctx, query,
		result.DocumentID, result.DocumentType, result.Status, result.Reason,
		result.Confidence, result.Completeness, result.ModelUsed, string(result.Mode),
		result.Source, result.Chunks, result.Partials, result.DurationMS,
		data, issues, metrics, createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM extraction_errors WHERE document_id = ?", result.DocumentID); err != nil {
		return fmt.Errorf("failed to clear extraction errors: %w", err)
	}
	for kind, count := range result.ExtractionErrors {
		if count <= 0 {
			continue
		}
		_, err := q.ExecContext(ctx,
			"INSERT INTO extraction_errors (document_id, kind, count) VALUES (?, ?, ?)",
			result.DocumentID, kind, count)
		if err != nil {
			return fmt.Errorf("failed to save extraction errors: %w", err)
		}
	}
	return nil
}

const selectDocumentColumns = `
	SELECT id, type, status, reason, confidence, completeness, model, mode,
	       source, chunks, partials, duration_ms, data, issues, metrics, created_at
	FROM documents
`

// GetResult loads one result by document id
func (s *SQLiteStorage) GetResult(ctx context.Context, documentID string) (*types.ProcessingResult, error) {
	row := s.db.QueryRowContext(ctx, selectDocumentColumns+" WHERE id = ?", documentID)
	result, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	errs, err := s.listExtractionErrors(ctx, s.db, documentID)
	if err != nil {
		return nil, err
	}
	result.ExtractionErrors = errs
	return result, nil
}

// ListResults returns results matching filter, newest first
func (s *SQLiteStorage) ListResults(ctx context.Context, filter ResultFilter) ([]*types.ProcessingResult, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.DocumentType != "" {
		where = append(where, "type = ?")
		args = append(args, filter.DocumentType)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UnixMilli())
	}

	query := selectDocumentColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*types.ProcessingResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// DeleteResult removes a result; its error counts cascade
func (s *SQLiteStorage) DeleteResult(ctx context.Context, documentID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DocumentStats aggregates stored results per document type
func (s *SQLiteStorage) DocumentStats(ctx context.Context) ([]TypeStats, error) {
	query := `
		SELECT type,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(confidence), 0),
		       COALESCE(AVG(duration_ms), 0),
		       COALESCE(MAX(created_at), 0)
		FROM documents
		GROUP BY type
		ORDER BY type
	`
	rows, err := s.db.QueryContext(ctx, query, types.StatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to query document stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []TypeStats
	for rows.Next() {
		var (
			st   TypeStats
			last int64
		)
		if err := rows.Scan(&st.DocumentType, &st.Total, &st.Succeeded, &st.AvgConfidence, &st.AvgDurationMS, &last); err != nil {
			return nil, err
		}
		st.Failed = st.Total - st.Succeeded
		st.LastProcessed = time.UnixMilli(last)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ExtractionErrorTotals sums stored extraction failures by kind
func (s *SQLiteStorage) ExtractionErrorTotals(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT kind, SUM(count) FROM extraction_errors GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to query extraction errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	totals := make(map[string]int)
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		totals[kind] = count
	}
	return totals, rows.Err()
}

// Health reports whether the database answers queries
func (s *SQLiteStorage) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{BuildMode: BuildMode}

	version, err := SchemaVersion(ctx, s.db)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.SchemaVersion = version

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&status.Documents); err != nil {
		status.Error = err.Error()
		return status
	}
	status.DatabaseAccessible = true
	return status
}

func (s *SQLiteStorage) listExtractionErrors(ctx context.Context, q querier, documentID string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, "SELECT kind, count FROM extraction_errors WHERE document_id = ?", documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extraction errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var errs map[string]int
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		if errs == nil {
			errs = make(map[string]int)
		}
		errs[kind] = count
	}
	return errs, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row rowScanner) (*types.ProcessingResult, error) {
	var (
		r                           types.ProcessingResult
		reason, model, mode, source sql.NullString
		data, issues, metrics       sql.NullString
		createdAt                   int64
	)
	err := row.Scan(
		&r.DocumentID, &r.DocumentType, &r.Status, &reason,
		&r.Confidence, &r.Completeness, &model, &mode,
		&source, &r.Chunks, &r.Partials, &r.DurationMS,
		&data, &issues, &metrics, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	r.Reason = reason.String
	r.ModelUsed = model.String
	r.Mode = types.ExtractionMode(mode.String)
	r.Source = source.String
	r.Duration = time.Duration(r.DurationMS) * time.Millisecond
	r.CreatedAt = time.UnixMilli(createdAt)

	if err := unmarshalColumn(data, &r.Data); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if err := unmarshalColumn(issues, &r.Issues); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}
	if err := unmarshalColumn(metrics, &r.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return &r, nil
}

// marshalColumn stores nil and empty values as SQL NULL
func marshalColumn(v interface{}) (sql.NullString, error) {
	switch t := v.(type) {
	case types.Record:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalColumn(col sql.NullString, dst interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dst)
}
