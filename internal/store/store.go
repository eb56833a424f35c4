package store

import (
	"context"
	"time"

	"github.com/me/schedrt/pkg/model"
)

// ResultRow is one persisted execution result, tagged with the run that
// produced it.
type ResultRow struct {
	RunID     string        `json:"run_id"`
	TaskID    model.TaskID  `json:"task_id"`
	OK        bool          `json:"ok"`
	Message   string        `json:"message"`
	Runtime   time.Duration `json:"time_ns"`
	Engine    string        `json:"engine"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store defines the persistence layer for result history.
type Store interface {
	SaveResult(ctx context.Context, runID string, res model.ExecutionResult) error
	ListResults(ctx context.Context, runID string) ([]ResultRow, error)
	ListRuns(ctx context.Context) ([]string, error)

	Close() error
	Migrate(ctx context.Context) error
}
