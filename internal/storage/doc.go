// Package storage persists processing results in SQLite.
//
// Every pipeline run can be saved as one row of the documents table, with
// the merged record, validation issues and per-type metrics stored as JSON
// columns. Caught extraction failures are counted per kind in the
// extraction_errors table so they can be audited after the fact.
//
// # Database Schema
//
// Tables:
//   - documents: one row per processed document (type, status, confidence,
//     model, chunk count, duration, JSON payloads)
//   - extraction_errors: per-document failure counts by kind
//   - schema_version: applied migrations, compared with semver
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("docproc.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.SaveResult(ctx, result); err != nil {
//	    return err
//	}
//
//	invoices, err := store.ListResults(ctx, storage.ResultFilter{
//	    DocumentType: "invoice",
//	    Status:       types.StatusSuccess,
//	    Limit:        50,
//	})
//
// # Build Tags
//
// Pure Go build (default, or the purego tag) uses modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build -tags "purego"
//
// CGO build (sqlite_cgo tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo"
package storage
