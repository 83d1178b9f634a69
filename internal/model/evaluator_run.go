package model

import "time"

// EvaluatorRun records the counters of one model session on one camera,
// written when the session is freed.
type EvaluatorRun struct {
	ID               int64     `json:"id"`
	Camera           string    `json:"camera"`
	Session          string    `json:"session"`
	Execution        string    `json:"execution"`
	Evaluations      int       `json:"evaluations"`
	Failures         int       `json:"failures"`
	AverageLatencyMs float64   `json:"average_latency_ms"`
	P95LatencyMs     float64   `json:"p95_latency_ms"`
	RecordedAt       time.Time `json:"recorded_at"`
}
