package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/schedrt/internal/ops"
	"github.com/me/schedrt/pkg/model"
)

// fallbackRuntime is slept when a task carries no payload and no estimate.
const fallbackRuntime = 10 * time.Millisecond

// CPU is a software worker engine. Always available; loading is a no-op.
// Instantiate several to expand parallelism; each serializes its own runs.
type CPU struct {
	id     int
	logger *slog.Logger
	runMu  sync.Mutex
}

// NewCPU creates a CPU engine instance named "cpu-<id>".
func NewCPU(id int, logger *slog.Logger) *CPU {
	c := &CPU{id: id}
	c.logger = logger.With("component", "engine", "engine", c.Name())
	return c
}

func (c *CPU) Name() string                              { return fmt.Sprintf("cpu-%d", c.id) }
func (c *CPU) Available() bool                           { return true }
func (c *CPU) Reconfigurable() bool                      { return false }
func (c *CPU) EnsureAppLoaded(model.AppDescriptor) error { return nil }
func (c *CPU) PrepareStatic() error                      { return nil }

// Run executes the operation body selected by the task payload. Tasks
// without a payload sleep for their estimated runtime, which is the
// fallback the test workloads rely on.
func (c *CPU) Run(t *model.Task, desc model.AppDescriptor) model.ExecutionResult {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	start := time.Now()

	ok, message, ran := ops.Execute(t)
	if !ran {
		d := t.EstRuntime
		if d <= 0 {
			d = fallbackRuntime
		}
		time.Sleep(d)
		ok = true
		message = fmt.Sprintf("executed %s on %s", desc.Name, c.Name())
	}

	// A hardware-kind task landing here was routed past its preferred
	// engine family.
	if t.Required != model.KindCPU && t.Required != "" {
		message += " (cpu fallback)"
	}

	c.logger.Debug("task executed", "task_id", uint64(t.ID), "app", t.App, "ok", ok)
	return model.ExecutionResult{
		ID:      t.ID,
		OK:      ok,
		Message: message,
		Runtime: time.Since(start),
		Engine:  c.Name(),
	}
}
