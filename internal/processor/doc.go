// Package processor defines per-document-type extraction behavior.
//
// A Processor bundles everything the pipeline needs to know about one
// document kind: the keyword set used for classification, the JSON schema
// and prompts used for extraction, normalization into the canonical record
// shape, the merge policy for multi-chunk documents, and business-rule
// validation. Invoice and CV are the built-in types; Defaults returns both.
//
// Completeness is computed over the canonical record: every top-level field
// counts once, a list counts as one field that is filled when non-empty, and
// each object inside a list contributes its own fields.
package processor
