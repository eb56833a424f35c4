// Package report emits one line per execution result, human-readable or
// CSV, and keeps per-engine runtime statistics.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/me/schedrt/pkg/model"
)

// Reporter serializes result output; lines from concurrent workers never
// interleave. It implements sched.ResultSink.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	csvOut *csv.Writer
	csv    atomic.Bool
	stats  *Stats
	logger *slog.Logger
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer, logger *slog.Logger) *Reporter {
	return &Reporter{
		out:    out,
		csvOut: csv.NewWriter(out),
		stats:  NewStats(),
		logger: logger.With("component", "reporter"),
	}
}

// SetCSV toggles CSV output (id,ok,msg,time_ns,engine). Safe at runtime.
func (r *Reporter) SetCSV(enabled bool) { r.csv.Store(enabled) }

// CSV reports whether CSV output is active.
func (r *Reporter) CSV() bool { return r.csv.Load() }

// Stats exposes the accumulated per-engine runtime statistics.
func (r *Reporter) Stats() *Stats { return r.stats }

// Emit writes one line for the result and records its runtime.
func (r *Reporter) Emit(res model.ExecutionResult) {
	r.stats.Observe(res.Engine, res.Runtime)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.csv.Load() {
		rec := []string{
			strconv.FormatUint(uint64(res.ID), 10),
			strconv.FormatBool(res.OK),
			res.Message,
			strconv.FormatInt(res.Runtime.Nanoseconds(), 10),
			res.Engine,
		}
		if err := r.csvOut.Write(rec); err != nil {
			r.logger.Error("csv write failed", "error", err)
			return
		}
		r.csvOut.Flush()
		return
	}
	fmt.Fprintf(r.out, "[RESULT] Task %d ok=%t msg=%q time_ns=%d engine=%s\n",
		res.ID, res.OK, res.Message, res.Runtime.Nanoseconds(), res.Engine)
}
