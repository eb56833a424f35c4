package model

import (
	"sync/atomic"
	"time"
)

// TaskID uniquely identifies a task within one scheduler instance.
type TaskID uint64

// ResourceKind names the engine family a task wants to run on.
type ResourceKind string

const (
	KindCPU ResourceKind = "cpu"
	KindZIP ResourceKind = "zip"
	KindFFT ResourceKind = "fft"
	KindFIR ResourceKind = "fir"
)

// ParseResourceKind maps a string to a ResourceKind, defaulting to CPU
// for unrecognized values.
func ParseResourceKind(s string) ResourceKind {
	switch ResourceKind(s) {
	case KindZIP, KindFFT, KindFIR:
		return ResourceKind(s)
	default:
		return KindCPU
	}
}

// Task is a schedulable unit of work. Clients create tasks (usually through
// the dash facades); the scheduler owns them from Submit until the result is
// reported.
type Task struct {
	ID          TaskID
	App         string       // logical app name, key into the application registry
	Required    ResourceKind // engine family resolved from the provider registry
	Priority    int          // higher runs sooner
	ReleaseTime time.Time    // zero value means immediately admissible
	Deadline    *time.Time   // advisory, reporting only
	DependsOn   []TaskID     // task ids that must complete ok first

	// Payload carries the operation-specific context. It is owned by the
	// caller and must outlive the task.
	Payload Payload

	// Params holds short string key/values (kernel tags, labels). The
	// operation context itself travels in Payload, not here.
	Params map[string]string

	// EstRuntime is an advisory duration hint. Engines without a concrete
	// operation body sleep for it.
	EstRuntime time.Duration

	ready atomic.Bool
}

// MarkReady flags the task as admitted to the ready queue. Single producer:
// the scheduler.
func (t *Task) MarkReady() { t.ready.Store(true) }

// Ready reports whether the task has been admitted to the ready queue.
func (t *Task) Ready() bool { return t.ready.Load() }

// ExecutionResult is the single outcome emitted for a task.
type ExecutionResult struct {
	ID      TaskID
	OK      bool
	Message string
	Runtime time.Duration
	Engine  string
}

// AppDescriptor describes a registered application: how to load it onto a
// reconfigurable slot and which engine family serves it. Immutable once
// registered.
type AppDescriptor struct {
	Name    string       `yaml:"app"`
	Overlay string       `yaml:"overlay"` // partial image reference for reconfiguration
	Kernel  string       `yaml:"kernel"`  // runtime control tag, informational
	Kind    ResourceKind `yaml:"kind"`
}

// Provider declares that an (op, kind, instance) triple can serve an
// operation. Lower Priority is preferred.
type Provider struct {
	Op       string
	Kind     ResourceKind
	Instance int
	Priority int
}

// Less orders providers by (op, priority asc, kind, instance).
func (p Provider) Less(q Provider) bool {
	if p.Op != q.Op {
		return p.Op < q.Op
	}
	if p.Priority != q.Priority {
		return p.Priority < q.Priority
	}
	if p.Kind != q.Kind {
		return p.Kind < q.Kind
	}
	return p.Instance < q.Instance
}
