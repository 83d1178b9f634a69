package evaluator

import (
	"time"

	"github.com/montanaflynn/stats"
)

// Stats is a snapshot of an evaluator's counters.
type Stats struct {
	Loaded         bool          `json:"loaded"`
	Session        string        `json:"session,omitempty"`
	Execution      string        `json:"execution,omitempty"`
	Evaluations    int           `json:"evaluations"`
	Failures       int           `json:"failures"`
	TotalLatency   time.Duration `json:"total_latency"`
	AverageLatency time.Duration `json:"average_latency"`
	P50Latency     time.Duration `json:"p50_latency"`
	P95Latency     time.Duration `json:"p95_latency"`
	LastError      string        `json:"last_error,omitempty"`
}

// latencyTracker sums every successful evaluation and keeps a ring of the
// most recent ones for percentiles.
type latencyTracker struct {
	total  time.Duration
	count  int
	recent []float64 // milliseconds
	next   int
	size   int
}

func newLatencyTracker(size int) *latencyTracker {
	if size <= 0 {
		size = 1
	}
	return &latencyTracker{size: size}
}

func (l *latencyTracker) add(d time.Duration) {
	l.total += d
	l.count++

	ms := float64(d) / float64(time.Millisecond)
	if len(l.recent) < l.size {
		l.recent = append(l.recent, ms)
		return
	}
	l.recent[l.next] = ms
	l.next = (l.next + 1) % l.size
}

func (l *latencyTracker) reset() {
	l.total, l.count, l.next = 0, 0, 0
	l.recent = nil
}

func (l *latencyTracker) average() time.Duration {
	if l.count == 0 {
		return 0
	}
	return l.total / time.Duration(l.count)
}

func (l *latencyTracker) percentile(p float64) time.Duration {
	if len(l.recent) == 0 {
		return 0
	}
	v, err := stats.Percentile(l.recent, p)
	if err != nil {
		// too few samples for the rank
		if v, err = stats.Min(l.recent); err != nil {
			return 0
		}
	}
	return time.Duration(v * float64(time.Millisecond))
}
