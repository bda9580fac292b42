// Package registry maps document type ids to processors and classifies text
// by asking every registered processor for a confidence score concurrently.
//
// A Registry is an explicit value: construct one with New (empty) or
// NewDefault (invoice and CV), register processors during start-up, then
// share it. The registry also keeps per-processor outcome statistics that
// the pipeline updates through RecordOutcome.
package registry
