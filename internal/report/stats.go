package report

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// histogram bounds: 1 us to 60 s of task runtime, 3 significant figures.
const (
	histMin = int64(time.Microsecond)
	histMax = int64(60 * time.Second)
)

// EngineStats summarizes observed runtimes for one engine.
type EngineStats struct {
	Engine string        `json:"engine"`
	Count  int64         `json:"count"`
	P50    time.Duration `json:"p50_ns"`
	P99    time.Duration `json:"p99_ns"`
	Max    time.Duration `json:"max_ns"`
}

// Stats accumulates per-engine runtime histograms.
type Stats struct {
	mu    sync.Mutex
	hists map[string]*hdrhistogram.Histogram
}

// NewStats creates an empty collector.
func NewStats() *Stats {
	return &Stats{hists: make(map[string]*hdrhistogram.Histogram)}
}

// Observe records one task runtime for engine. Values outside the histogram
// range are clamped by the recorder.
func (s *Stats) Observe(engine string, runtime time.Duration) {
	if engine == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hists[engine]
	if !ok {
		h = hdrhistogram.New(histMin, histMax, 3)
		s.hists[engine] = h
	}
	ns := runtime.Nanoseconds()
	if ns < histMin {
		ns = histMin
	}
	if ns > histMax {
		ns = histMax
	}
	h.RecordValue(ns)
}

// Snapshot returns stats per engine, sorted by engine name.
func (s *Stats) Snapshot() []EngineStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EngineStats, 0, len(s.hists))
	for name, h := range s.hists {
		out = append(out, EngineStats{
			Engine: name,
			Count:  h.TotalCount(),
			P50:    time.Duration(h.ValueAtQuantile(50)),
			P99:    time.Duration(h.ValueAtQuantile(99)),
			Max:    time.Duration(h.Max()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Engine < out[j].Engine })
	return out
}
