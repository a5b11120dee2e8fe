package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/dgallion1/standoffalign/internal/blocks"
)

// SideStats counts result statuses for one side.
type SideStats struct {
	Found       int `json:"found"`
	NotFound    int `json:"not_found"`
	UnknownURL  int `json:"unknown_url"`
	BadStandoff int `json:"bad_standoff"`
	Invalid     int `json:"invalid_record"`
}

func (s *SideStats) add(st Status) {
	switch st {
	case StatusFound:
		s.Found++
	case StatusNotFound:
		s.NotFound++
	case StatusUnknownURL:
		s.UnknownURL++
	case StatusBadStandoff:
		s.BadStandoff++
	case StatusInvalidRecord:
		s.Invalid++
	}
}

func (s *SideStats) merge(o SideStats) {
	s.Found += o.Found
	s.NotFound += o.NotFound
	s.UnknownURL += o.UnknownURL
	s.BadStandoff += o.BadStandoff
	s.Invalid += o.Invalid
}

// Stats summarises one alignment run.
type Stats struct {
	Records  int           `json:"records"`
	Source   SideStats     `json:"source"`
	Target   SideStats     `json:"target"`
	Duration time.Duration `json:"duration_ns"`
}

// Add counts one result against its side.
func (s *Stats) Add(r Result) {
	if r.Side == blocks.Target {
		s.Target.add(r.Status)
	} else {
		s.Source.add(r.Status)
	}
}

// Totals accumulates Stats across runs; safe for concurrent use.
type Totals struct {
	mu    sync.Mutex
	runs  int
	stats Stats
}

func (t *Totals) Record(s Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs++
	t.stats.Records += s.Records
	t.stats.Source.merge(s.Source)
	t.stats.Target.merge(s.Target)
	t.stats.Duration += s.Duration
}

// Snapshot returns the number of runs and the summed stats.
func (t *Totals) Snapshot() (int, Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs, t.stats
}

type sample struct {
	timestamp  time.Time
	durationMs int64
}

// LatencySnapshot is a point-in-time aggregate of run latency samples.
type LatencySnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// LatencyStats tracks recent alignment run latencies within a rolling window.
type LatencyStats struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewLatencyStats(maxAge time.Duration) *LatencyStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &LatencyStats{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

func (s *LatencyStats) Record(d time.Duration) {
	durationMs := d.Milliseconds()
	if durationMs < 0 {
		durationMs = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples = append(s.samples, sample{timestamp: now, durationMs: durationMs})
}

func (s *LatencyStats) Snapshot() LatencySnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if len(s.samples) == 0 {
		return LatencySnapshot{}
	}

	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	return LatencySnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

func (s *LatencyStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	writeIdx := 0
	for _, sm := range s.samples {
		if !sm.timestamp.Before(cutoff) {
			s.samples[writeIdx] = sm
			writeIdx++
		}
	}
	s.samples = s.samples[:writeIdx]
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}
