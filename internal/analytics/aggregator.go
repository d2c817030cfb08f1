package analytics

import (
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation"
)

// latencyWindow bounds the durations kept for percentiles.
const latencyWindow = 1024

// Stats summarises the batches seen by this process since it started.
type Stats struct {
	Batches        int64            `json:"batches"`
	Rows           int64            `json:"rows"`
	Archived       int64            `json:"archived"`
	Failed         int64            `json:"failed"`
	ArchiveBytes   int64            `json:"archive_bytes"`
	Outcomes       map[string]int64 `json:"outcomes"`
	AvgDurationMs  float64          `json:"avg_duration_ms"`
	P50DurationMs  int64            `json:"p50_duration_ms"`
	P95DurationMs  int64            `json:"p95_duration_ms"`
	BatchesPerHour float64          `json:"batches_per_hour"`
	LastBatchAt    *time.Time       `json:"last_batch_at,omitempty"`
	TopInputErrors []ErrorCount     `json:"top_input_errors,omitempty"`
	UptimeSeconds  int64            `json:"uptime_seconds"`
}

// ErrorCount is how often one error kind rejected an upload.
type ErrorCount struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}

// Aggregator keeps process-local batch totals.
type Aggregator struct {
	mu          sync.RWMutex
	batches     int64
	rows        int64
	archived    int64
	failed      int64
	bytes       int64
	outcomes    map[string]int64
	inputErrors map[string]int64
	durations   []int64
	next        int
	last        time.Time
	startTime   time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		outcomes:    make(map[string]int64),
		inputErrors: make(map[string]int64),
		durations:   make([]int64, 0, latencyWindow),
		startTime:   time.Now(),
	}
}

// Record folds one batch event into the totals.
func (a *Aggregator) Record(ev generation.BatchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.batches++
	a.rows += int64(ev.Rows)
	a.archived += int64(ev.Archived)
	a.failed += int64(ev.Failed)
	a.bytes += ev.ArchiveBytes
	a.outcomes[ev.Outcome]++
	if ev.Outcome == generation.OutcomeInputError && ev.Kind != "" {
		a.inputErrors[ev.Kind]++
	}
	if len(a.durations) < latencyWindow {
		a.durations = append(a.durations, ev.DurationMs)
	} else {
		a.durations[a.next] = ev.DurationMs
		a.next = (a.next + 1) % latencyWindow
	}
	if ev.At.After(a.last) {
		a.last = ev.At
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		Batches:       a.batches,
		Rows:          a.rows,
		Archived:      a.archived,
		Failed:        a.failed,
		ArchiveBytes:  a.bytes,
		Outcomes:      make(map[string]int64, len(a.outcomes)),
		UptimeSeconds: int64(time.Since(a.startTime).Seconds()),
	}
	for k, v := range a.outcomes {
		stats.Outcomes[k] = v
	}
	if len(a.durations) > 0 {
		sorted := slices.Clone(a.durations)
		slices.Sort(sorted)
		var sum int64
		for _, d := range sorted {
			sum += d
		}
		stats.AvgDurationMs = float64(sum) / float64(len(sorted))
		stats.P50DurationMs = percentile(sorted, 50)
		stats.P95DurationMs = percentile(sorted, 95)
	}
	if !a.last.IsZero() {
		last := a.last
		stats.LastBatchAt = &last
	}
	if hours := time.Since(a.startTime).Hours(); hours > 0 {
		stats.BatchesPerHour = float64(a.batches) / hours
	}
	stats.TopInputErrors = topN(a.inputErrors, 5)
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []ErrorCount {
	result := make([]ErrorCount, 0, len(counts))
	for kind, count := range counts {
		result = append(result, ErrorCount{Kind: kind, Count: count})
	}
	slices.SortFunc(result, func(a, b ErrorCount) int {
		if a.Count != b.Count {
			return int(b.Count - a.Count)
		}
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
