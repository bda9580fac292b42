package metrics

import (
	"fmt"
	"maps"
	"math"
	"time"
)

// Snapshot is a point-in-time view of the collector
type Snapshot struct {
	Timestamp        time.Time          `json:"timestamp"`
	System           SystemSnapshot     `json:"system"`
	Processing       ProcessingSnapshot `json:"processing"`
	LLM              LLMSnapshot        `json:"llm"`
	ExtractionErrors map[string]int64   `json:"extraction_errors"`
}

// SystemSnapshot describes the process
type SystemSnapshot struct {
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}

// ProcessingSnapshot aggregates pipeline runs. Times are in seconds.
type ProcessingSnapshot struct {
	TotalDocuments      int64            `json:"total_documents"`
	SuccessfulDocuments int64            `json:"successful_documents"`
	FailedDocuments     int64            `json:"failed_documents"`
	SuccessRatePercent  float64          `json:"success_rate_percent"`
	AvgProcessingTime   float64          `json:"average_processing_time"`
	P95ProcessingTime   float64          `json:"p95_processing_time"`
	P99ProcessingTime   float64          `json:"p99_processing_time"`
	DocumentTypes       map[string]int64 `json:"document_types"`
	ErrorBreakdown      map[string]int64 `json:"error_breakdown"`
}

// LLMSnapshot aggregates backend calls. Times are in seconds.
type LLMSnapshot struct {
	TotalRequests      int64            `json:"total_requests"`
	SuccessfulRequests int64            `json:"successful_requests"`
	FailedRequests     int64            `json:"failed_requests"`
	SuccessRatePercent float64          `json:"success_rate_percent"`
	AvgResponseTime    float64          `json:"average_response_time"`
	P95ResponseTime    float64          `json:"p95_response_time"`
	ModelUsage         map[string]int64 `json:"model_usage"`
	ErrorBreakdown     map[string]int64 `json:"error_breakdown"`
}

// Snapshot copies the current aggregates
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	uptime := now.Sub(c.start)

	return Snapshot{
		Timestamp: now,
		System: SystemSnapshot{
			StartedAt:     c.start,
			Uptime:        FormatUptime(uptime),
			UptimeSeconds: round(uptime.Seconds(), 3),
		},
		Processing: ProcessingSnapshot{
			TotalDocuments:      c.docs.total,
			SuccessfulDocuments: c.docs.success,
			FailedDocuments:     c.docs.failed,
			SuccessRatePercent:  rate(c.docs.success, c.docs.total),
			AvgProcessingTime:   avgSeconds(c.docDuration, c.docs.total),
			P95ProcessingTime:   round(c.docWindow.percentile(95).Seconds(), 3),
			P99ProcessingTime:   round(c.docWindow.percentile(99).Seconds(), 3),
			DocumentTypes:       maps.Clone(c.docTypes),
			ErrorBreakdown:      maps.Clone(c.docErrors),
		},
		LLM: LLMSnapshot{
			TotalRequests:      c.llmCalls.total,
			SuccessfulRequests: c.llmCalls.success,
			FailedRequests:     c.llmCalls.failed,
			SuccessRatePercent: rate(c.llmCalls.success, c.llmCalls.total),
			AvgResponseTime:    avgSeconds(c.llmDuration, c.llmCalls.total),
			P95ResponseTime:    round(c.llmWindow.percentile(95).Seconds(), 3),
			ModelUsage:         maps.Clone(c.llmModels),
			ErrorBreakdown:     maps.Clone(c.llmErrors),
		},
		ExtractionErrors: maps.Clone(c.extractionErrors),
	}
}

// FormatUptime renders a duration as HH:MM:SS
func FormatUptime(d time.Duration) string {
	s := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

func rate(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(part)/float64(total)*100, 2)
}

func avgSeconds(sum time.Duration, n int64) float64 {
	if n == 0 {
		return 0
	}
	return round(sum.Seconds()/float64(n), 3)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
