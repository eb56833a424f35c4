package model

import "errors"

// Error taxonomy for the scheduler runtime. Every failure surfaces through
// exactly one ExecutionResult (or, for ErrNoProvider, an immediate false
// return from the facade before any task is submitted).
var (
	// ErrUnknownApp means a task referenced a name missing from the
	// application registry.
	ErrUnknownApp = errors.New("unknown app")

	// ErrNoProvider means no provider is registered for an operation.
	ErrNoProvider = errors.New("no provider for operation")

	// ErrNoEngineAvailable means engine selection yielded nothing.
	ErrNoEngineAvailable = errors.New("no engine available")

	// ErrOverlayLoadFailed means a reconfigurable slot could not load the
	// requested partial image.
	ErrOverlayLoadFailed = errors.New("overlay load failed")

	// ErrBuffersInvalid means an operation body rejected its buffers.
	ErrBuffersInvalid = errors.New("buffers invalid")

	// ErrPlanInvalid means an operation plan failed validation.
	ErrPlanInvalid = errors.New("plan invalid")

	// ErrOperationError wraps a codec or device failure inside an engine.
	ErrOperationError = errors.New("operation error")

	// ErrShutdown means the scheduler drained a waiter during Stop; the
	// task was not run and its subscriber is not fulfilled.
	ErrShutdown = errors.New("scheduler shut down")

	// ErrSlotBusy means a reconfiguration was requested while the slot was
	// mid-run; the overlay of a running slot never changes.
	ErrSlotBusy = errors.New("slot busy")
)
