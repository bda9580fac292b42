// Package extractor turns one chunk of text into a validated partial record.
//
// Two techniques are available. The schema technique asks the backend for
// output constrained by the processor's JSON schema and parses the answer
// directly. The free-form technique uses a plain prompt with stop sequences,
// locates the JSON in the answer (LocateJSON) and, when it does not parse,
// applies RepairJSON once. Either way the object is projected onto the
// schema's declared properties, validated with santhosh-tekuri/jsonschema,
// and normalized by the processor.
//
// Hybrid mode accepts a schema result with completeness of at least
// HybridThreshold; below that the free-form technique runs once and the more
// complete of the two wins.
package extractor
