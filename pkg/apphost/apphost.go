// Package apphost is the contract between the schedrt runner and client
// application plug-ins loaded with --app-lib. A plug-in exports two symbols:
//
//	func AppInitialize(args []string, reg apphost.Registrar) error
//	func AppRun(args []string, rt apphost.Runtime) int
//
// AppInitialize runs before the scheduler starts and registers the apps and
// providers the workload needs. AppRun drives the workload through the
// synchronous operation facades; its return value becomes the process exit
// code.
package apphost

import (
	"time"

	"github.com/me/schedrt/pkg/model"
)

// Exported symbol names the runner resolves from the plug-in.
const (
	InitializeSymbol = "AppInitialize"
	RunSymbol        = "AppRun"
)

// InitializeFunc is the signature of the AppInitialize symbol.
type InitializeFunc = func(args []string, reg Registrar) error

// RunFunc is the signature of the AppRun symbol.
type RunFunc = func(args []string, rt Runtime) int

// Registrar registers apps and providers before the scheduler starts.
type Registrar interface {
	RegisterApp(d model.AppDescriptor)
	RegisterProvider(p model.Provider)
}

// Runtime is the synchronous operation surface handed to AppRun.
type Runtime interface {
	// Zip compresses or decompresses in into out; outActual, when
	// non-nil, receives the produced byte count.
	Zip(params model.ZipParams, in, out []byte, outActual *int) bool

	// FFT transforms interleaved real/imag samples.
	FFT(plan model.FFTPlan, in, out []float32) bool

	// Execute runs any registered operation with an optional payload.
	Execute(op string, payload model.Payload, est time.Duration) bool
}
