package registry

import "time"

// Stats accumulates per-processor pipeline outcomes. Guarded by Registry.mu.
type Stats struct {
	processed       int64
	successes       int64
	failures        int64
	totalDuration   time.Duration
	totalConfidence float64
}

func (s *Stats) record(success bool, confidence float64, elapsed time.Duration) {
	s.processed++
	if success {
		s.successes++
	} else {
		s.failures++
	}
	s.totalDuration += elapsed
	s.totalConfidence += confidence
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	TypeID             string  `json:"type_id"`
	DocumentsProcessed int64   `json:"documents_processed"`
	Successes          int64   `json:"successful_extractions"`
	Failures           int64   `json:"failed_extractions"`
	SuccessRate        float64 `json:"success_rate"`
	AvgProcessingMS    float64 `json:"avg_processing_time_ms"`
	AvgConfidence      float64 `json:"avg_confidence"`
}

func (s *Stats) snapshot(id string) StatsSnapshot {
	snap := StatsSnapshot{
		TypeID:             id,
		DocumentsProcessed: s.processed,
		Successes:          s.successes,
		Failures:           s.failures,
	}
	if s.processed > 0 {
		n := float64(s.processed)
		snap.SuccessRate = float64(s.successes) / n * 100
		snap.AvgProcessingMS = float64(s.totalDuration.Milliseconds()) / n
		snap.AvgConfidence = s.totalConfidence / n
	}
	return snap
}
