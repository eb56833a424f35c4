package engine

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/schedrt/internal/fpga"
	"github.com/me/schedrt/internal/logging"
	"github.com/me/schedrt/pkg/model"
)

var (
	fftDesc = model.AppDescriptor{Name: "fft", Overlay: "fft_slot0.bin", Kind: model.KindFFT}
	firDesc = model.AppDescriptor{Name: "fir", Overlay: "fir_slot0.bin", Kind: model.KindFIR}
)

// recordingDecoupler tracks assert/release ordering around loads.
type recordingDecoupler struct {
	mu     sync.Mutex
	states []bool
}

func (d *recordingDecoupler) Set(asserted bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = append(d.states, asserted)
	return nil
}

func TestSlotEnsureAppLoadedIdempotent(t *testing.T) {
	loader := fpga.NewMockLoader()
	s := NewSlot(0, loader, logging.Discard())

	if err := s.EnsureAppLoaded(fftDesc); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if err := s.EnsureAppLoaded(fftDesc); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if n := len(loader.Loads()); n != 1 {
		t.Errorf("loading the same app twice performed %d reconfigurations, want 1", n)
	}
	if s.CurrentApp() != "fft" || s.CurrentKind() != model.KindFFT {
		t.Errorf("slot state: app=%q kind=%q", s.CurrentApp(), s.CurrentKind())
	}
}

func TestSlotOverlaySwitch(t *testing.T) {
	loader := fpga.NewMockLoader()
	s := NewSlot(1, loader, logging.Discard())

	if err := s.EnsureAppLoaded(fftDesc); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureAppLoaded(firDesc); err != nil {
		t.Fatal(err)
	}
	loads := loader.Loads()
	if len(loads) != 2 || loads[0] != "fft_slot0.bin" || loads[1] != "fir_slot0.bin" {
		t.Errorf("loads = %v", loads)
	}
	if s.CurrentApp() != "fir" {
		t.Errorf("current app = %q, want fir", s.CurrentApp())
	}
}

func TestSlotLoadFailure(t *testing.T) {
	loader := fpga.NewMockLoader()
	loader.FailOn("fft_slot0.bin", errors.New("manager write failed"))
	s := NewSlot(0, loader, logging.Discard())

	err := s.EnsureAppLoaded(fftDesc)
	if !errors.Is(err, model.ErrOverlayLoadFailed) {
		t.Fatalf("err = %v, want ErrOverlayLoadFailed", err)
	}
	if s.CurrentApp() != "" {
		t.Error("failed load must not change the current app")
	}
	if !strings.Contains(err.Error(), "fpga-slot-0") || !strings.Contains(err.Error(), "fft") {
		t.Errorf("error should name the engine and app: %v", err)
	}
}

func TestSlotPrepareStaticOnce(t *testing.T) {
	loader := fpga.NewMockLoader()
	s := NewSlot(0, loader, logging.Discard(), WithStaticShell("top_static.bin"))

	if err := s.PrepareStatic(); err != nil {
		t.Fatal(err)
	}
	if err := s.PrepareStatic(); err != nil {
		t.Fatal(err)
	}
	if n := len(loader.Loads()); n != 1 {
		t.Errorf("static shell loaded %d times, want 1", n)
	}
}

func TestSlotDecoupleOrdering(t *testing.T) {
	loader := fpga.NewMockLoader()
	dec := &recordingDecoupler{}
	s := NewSlot(0, loader, logging.Discard(), WithDecoupler(dec))

	if err := s.EnsureAppLoaded(fftDesc); err != nil {
		t.Fatal(err)
	}
	if len(dec.states) != 2 || dec.states[0] != true || dec.states[1] != false {
		t.Errorf("decouple sequence = %v, want [assert release]", dec.states)
	}
}

func TestSlotRunSleepsAndReports(t *testing.T) {
	loader := fpga.NewMockLoader()
	s := NewSlot(2, loader, logging.Discard())

	task := &model.Task{ID: 40, App: "fft", Required: model.KindFFT, EstRuntime: time.Millisecond}
	res := s.Run(task, fftDesc)
	if !res.OK {
		t.Fatalf("run failed: %s", res.Message)
	}
	if res.Engine != "fpga-slot-2" {
		t.Errorf("engine = %q", res.Engine)
	}
	if s.CurrentApp() != "fft" {
		t.Error("run should have loaded the overlay")
	}
}

func TestSlotRunEnsureFailure(t *testing.T) {
	loader := fpga.NewMockLoader()
	loader.FailOn("fft_slot0.bin", errors.New("nope"))
	s := NewSlot(0, loader, logging.Discard())

	res := s.Run(&model.Task{ID: 41, App: "fft"}, fftDesc)
	if res.OK {
		t.Error("run must fail when the overlay cannot load")
	}
	if !strings.Contains(res.Message, "fft") || !strings.Contains(res.Message, "fpga-slot-0") {
		t.Errorf("message should name app and engine: %q", res.Message)
	}
}

func TestSlotOverlayStableMidRun(t *testing.T) {
	loader := fpga.NewMockLoader()
	s := NewSlot(0, loader, logging.Discard())

	release := make(chan struct{})
	go func() {
		// Hold the slot busy for a while via a long estimate.
		long := &model.Task{ID: 43, App: "fft", EstRuntime: 100 * time.Millisecond}
		s.Run(long, fftDesc)
		close(release)
	}()
	time.Sleep(20 * time.Millisecond) // let Run enter its body

	err := s.EnsureAppLoaded(firDesc)
	if !errors.Is(err, model.ErrSlotBusy) {
		t.Errorf("mid-run overlay switch: err = %v, want ErrSlotBusy", err)
	}
	if s.CurrentApp() != "fft" {
		t.Errorf("current app changed mid-run to %q", s.CurrentApp())
	}
	// Same-app ensure remains a cheap no-op while running.
	if err := s.EnsureAppLoaded(fftDesc); err != nil {
		t.Errorf("same-app ensure mid-run: %v", err)
	}
	<-release
}

func TestSlotPreloadSkipsBusySlot(t *testing.T) {
	loader := fpga.NewMockLoader()
	s := NewSlot(0, loader, logging.Discard())

	done := make(chan struct{})
	go func() {
		s.Run(&model.Task{ID: 44, App: "fft", EstRuntime: 80 * time.Millisecond}, fftDesc)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	if err := s.Preload(firDesc); !errors.Is(err, model.ErrSlotBusy) {
		t.Errorf("preload on busy slot: err = %v, want ErrSlotBusy", err)
	}
	<-done

	if err := s.Preload(firDesc); err != nil {
		t.Errorf("preload on idle slot: %v", err)
	}
	if s.CurrentApp() != "fir" {
		t.Errorf("preload did not switch overlay: %q", s.CurrentApp())
	}
}

// failingRunner is a hardware path that runs but leaves the payload failed,
// or refuses to run at all.
type failingRunner struct {
	app  string
	runs bool
}

func (r *failingRunner) App() string     { return r.app }
func (r *failingRunner) Available() bool { return true }
func (r *failingRunner) Execute(t *model.Task) bool {
	if !r.runs {
		return false
	}
	if ctx, ok := t.Payload.(*model.FFTContext); ok {
		ctx.OK = false
		ctx.Message = "fft: hw DMA failure"
	}
	return true
}

func TestSlotHardwarePathFallsBackToSoftware(t *testing.T) {
	for _, runs := range []bool{false, true} {
		loader := fpga.NewMockLoader()
		s := NewSlot(0, loader, logging.Discard(), WithAppRunner(&failingRunner{app: "fft", runs: runs}))

		in := make([]float32, 16)
		in[0] = 1
		task := &model.Task{
			ID:       45,
			App:      "fft",
			Required: model.KindFFT,
			Payload:  &model.FFTContext{Plan: model.FFTPlan{N: 8}, In: in, Out: make([]float32, 16)},
		}
		res := s.Run(task, fftDesc)
		if !res.OK {
			t.Fatalf("runs=%v: fallback should succeed: %s", runs, res.Message)
		}
		if !strings.Contains(res.Message, "(cpu fallback)") {
			t.Errorf("runs=%v: message = %q, want fallback marker", runs, res.Message)
		}
	}
}

// okRunner is a hardware path that succeeds.
type okRunner struct{ app string }

func (r *okRunner) App() string     { return r.app }
func (r *okRunner) Available() bool { return true }
func (r *okRunner) Execute(t *model.Task) bool {
	if ctx, ok := t.Payload.(*model.FFTContext); ok {
		ctx.OK = true
		ctx.Message = "fft: hw n=8"
	}
	return true
}

func TestSlotHardwarePathSuccess(t *testing.T) {
	loader := fpga.NewMockLoader()
	s := NewSlot(0, loader, logging.Discard(), WithAppRunner(&okRunner{app: "fft"}))

	task := &model.Task{
		ID:       46,
		App:      "fft",
		Required: model.KindFFT,
		Payload:  &model.FFTContext{Plan: model.FFTPlan{N: 8}, In: make([]float32, 16), Out: make([]float32, 16)},
	}
	res := s.Run(task, fftDesc)
	if !res.OK {
		t.Fatalf("hw run failed: %s", res.Message)
	}
	if res.Message != "fft: hw n=8" {
		t.Errorf("message = %q, want the hardware path's message", res.Message)
	}
}
