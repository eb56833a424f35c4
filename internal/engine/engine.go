// Package engine defines the execution-engine contract the scheduler
// dispatches onto, plus the two concrete variants: software CPU workers and
// reconfigurable hardware slots.
package engine

import "github.com/me/schedrt/pkg/model"

// Engine is the uniform contract over CPU workers and hardware slots. At
// most one Run may be in progress on a given engine at any moment; the
// scheduler relies on each engine's own run lock for that.
type Engine interface {
	// Name identifies the engine instance ("cpu-0", "fpga-slot-1").
	Name() string

	// Available reports whether the engine can accept work right now.
	Available() bool

	// Reconfigurable reports whether EnsureAppLoaded performs a real
	// overlay load.
	Reconfigurable() bool

	// EnsureAppLoaded makes the engine able to execute the app. A no-op
	// for CPU engines and for slots already holding the overlay.
	EnsureAppLoaded(desc model.AppDescriptor) error

	// PrepareStatic loads the static shell once. No-op unless
	// reconfigurable.
	PrepareStatic() error

	// Run executes the task synchronously and returns its single result.
	Run(t *model.Task, desc model.AppDescriptor) model.ExecutionResult
}

// Slot is the extended surface of a reconfigurable engine, used by engine
// selection and overlay preloading.
type Slot interface {
	Engine

	// CurrentApp returns the loaded overlay's app name, or "" for a fresh
	// slot. Stable while a Run is in progress.
	CurrentApp() string

	// CurrentKind returns the resource kind of the loaded overlay.
	CurrentKind() model.ResourceKind

	// SlotID returns the slot index, used as the deterministic tie-break.
	SlotID() int
}

// Loader performs the shell-specific reconfiguration request. The firmware
// stager in internal/fpga implements it against fpga_manager; tests use an
// in-memory mock.
type Loader interface {
	LoadImage(ref string) error
}

// Decoupler drives the partial-reconfiguration decouple line around an
// overlay load.
type Decoupler interface {
	Set(asserted bool) error
}

// AppRunner is a dedicated hardware execution path for a single app on a
// slot (e.g. a DMA-driven FFT pipeline). Execute reports ran=false when the
// path could not run the task at all, in which case the slot falls back to
// the software body.
type AppRunner interface {
	App() string
	Available() bool
	Execute(t *model.Task) (ran bool)
}
