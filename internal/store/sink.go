package store

import (
	"context"
	"log/slog"

	"github.com/me/schedrt/pkg/model"
)

// Sink adapts a Store to the scheduler's result-sink interface. Persistence
// failures are logged, never surfaced to the worker that reported.
type Sink struct {
	store  Store
	runID  string
	logger *slog.Logger
}

// NewSink creates a sink persisting results under runID.
func NewSink(st Store, runID string, logger *slog.Logger) *Sink {
	return &Sink{store: st, runID: runID, logger: logger.With("component", "result-sink")}
}

// Emit persists one result.
func (s *Sink) Emit(res model.ExecutionResult) {
	if err := s.store.SaveResult(context.Background(), s.runID, res); err != nil {
		s.logger.Error("persist result failed", "task_id", uint64(res.ID), "error", err)
	}
}
