// Package metrics collects processing, LLM and extraction-error statistics.
//
// Collector keeps in-memory aggregates (counts, averages, p95/p99 over the
// last 100 durations) for the get_metrics tool and mirrors every event to
// OpenTelemetry instruments on the configured meter provider. It implements
// llm.Observer and Recorder so it can be handed directly to the LLM stack
// and the extraction orchestrator.
package metrics
