package sched

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/schedrt/internal/engine"
	"github.com/me/schedrt/internal/fpga"
	"github.com/me/schedrt/internal/logging"
	"github.com/me/schedrt/internal/registry"
	"github.com/me/schedrt/pkg/model"
)

// chanSink streams every reported result to a channel, preserving order.
type chanSink struct {
	ch chan model.ExecutionResult
}

func newChanSink() *chanSink {
	return &chanSink{ch: make(chan model.ExecutionResult, 64)}
}

func (s *chanSink) Emit(res model.ExecutionResult) { s.ch <- res }

func (s *chanSink) next(t *testing.T, timeout time.Duration) model.ExecutionResult {
	t.Helper()
	select {
	case res := <-s.ch:
		return res
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a result")
		return model.ExecutionResult{}
	}
}

func (s *chanSink) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case res := <-s.ch:
		t.Fatalf("unexpected result: %+v", res)
	case <-time.After(within):
	}
}

// testSched builds a scheduler over a fresh app registry and stops it on
// cleanup.
func testSched(t *testing.T, cfg Config) (*Scheduler, *registry.Apps, *chanSink) {
	t.Helper()
	apps := registry.NewApps(logging.Discard())
	s := New(apps, cfg, logging.Discard())
	sink := newChanSink()
	s.AddSink(sink)
	t.Cleanup(s.Stop)
	return s, apps, sink
}

func TestSingleCPUTask(t *testing.T) {
	s, apps, sink := testSched(t, Config{Mode: model.BackendCPU, CPUWorkers: 2})
	apps.Register(model.AppDescriptor{Name: "echo", Kind: model.KindCPU})
	s.AddEngine(engine.NewCPU(0, logging.Discard()))
	s.Start()

	s.Submit(&model.Task{ID: 1, App: "echo", Required: model.KindCPU, EstRuntime: 10 * time.Millisecond})

	res := sink.next(t, 100*time.Millisecond)
	if res.ID != 1 || !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if !strings.HasPrefix(res.Engine, "cpu-") {
		t.Errorf("engine = %q, want cpu-*", res.Engine)
	}
	sink.expectNone(t, 30*time.Millisecond) // exactly once
}

func TestDependencyChain(t *testing.T) {
	s, apps, sink := testSched(t, Config{Mode: model.BackendCPU, CPUWorkers: 4})
	apps.Register(model.AppDescriptor{Name: "echo", Kind: model.KindCPU})
	s.AddEngine(engine.NewCPU(0, logging.Discard()))
	s.Start()

	s.Submit(&model.Task{ID: 1, App: "echo", EstRuntime: time.Millisecond})
	s.Submit(&model.Task{ID: 2, App: "echo", EstRuntime: time.Millisecond, DependsOn: []model.TaskID{1}})
	s.Submit(&model.Task{ID: 3, App: "echo", EstRuntime: time.Millisecond, DependsOn: []model.TaskID{2}})

	for _, want := range []model.TaskID{1, 2, 3} {
		res := sink.next(t, time.Second)
		if res.ID != want || !res.OK {
			t.Fatalf("result = %+v, want ok task %d", res, want)
		}
	}
}

func TestPriorityPreemption(t *testing.T) {
	s, apps, sink := testSched(t, Config{Mode: model.BackendCPU, CPUWorkers: 1})
	apps.Register(model.AppDescriptor{Name: "echo", Kind: model.KindCPU})
	s.AddEngine(engine.NewCPU(0, logging.Discard()))
	s.Start()

	s.Submit(&model.Task{ID: 10, App: "echo", Priority: 0, EstRuntime: 200 * time.Millisecond})
	time.Sleep(50 * time.Millisecond) // task 10 is now occupying the worker
	s.Submit(&model.Task{ID: 11, App: "echo", Priority: 5, EstRuntime: time.Millisecond})
	s.Submit(&model.Task{ID: 12, App: "echo", Priority: 1, EstRuntime: time.Millisecond})

	for _, want := range []model.TaskID{10, 11, 12} {
		res := sink.next(t, time.Second)
		if res.ID != want {
			t.Fatalf("completion order: got %d, want %d", res.ID, want)
		}
	}
}

func TestHardwareOverlaySwitch(t *testing.T) {
	s, apps, sink := testSched(t, Config{Mode: model.BackendFPGA, CPUWorkers: 1, PreloadThreshold: 0})
	apps.Register(model.AppDescriptor{Name: "fft", Overlay: "fft_slot0.bin", Kind: model.KindFFT})
	apps.Register(model.AppDescriptor{Name: "fir", Overlay: "fir_slot0.bin", Kind: model.KindFIR})

	loader := fpga.NewMockLoader()
	slot := engine.NewSlot(0, loader, logging.Discard())
	s.AddEngine(slot)
	s.Start()

	s.Submit(&model.Task{ID: 1, App: "fft", Required: model.KindFFT, EstRuntime: time.Millisecond})
	if res := sink.next(t, time.Second); !res.OK {
		t.Fatalf("fft task failed: %+v", res)
	}
	s.Submit(&model.Task{ID: 2, App: "fir", Required: model.KindFIR, EstRuntime: time.Millisecond})
	if res := sink.next(t, time.Second); !res.OK {
		t.Fatalf("fir task failed: %+v", res)
	}

	loads := loader.Loads()
	if len(loads) != 2 || loads[0] != "fft_slot0.bin" || loads[1] != "fir_slot0.bin" {
		t.Errorf("reconfigurations = %v, want exactly [fft fir]", loads)
	}
	if slot.CurrentApp() != "fir" {
		t.Errorf("slot ends at %q, want fir", slot.CurrentApp())
	}
}

func TestOverlayPreload(t *testing.T) {
	s, apps, sink := testSched(t, Config{Mode: model.BackendFPGA, CPUWorkers: 1, PreloadThreshold: 2})
	zipDesc := model.AppDescriptor{Name: "zip", Overlay: "zip_slot0.bin", Kind: model.KindZIP}
	fftDesc := model.AppDescriptor{Name: "fft", Overlay: "fft_slot0.bin", Kind: model.KindFFT}
	apps.Register(zipDesc)
	apps.Register(fftDesc)

	loader := fpga.NewMockLoader()
	slot := engine.NewSlot(0, loader, logging.Discard())
	if err := slot.EnsureAppLoaded(zipDesc); err != nil {
		t.Fatal(err)
	}
	s.AddEngine(slot)
	s.Start()

	// Dependencies on an id that never completes keep all three in Waiting.
	blocker := []model.TaskID{999}
	for id := model.TaskID(1); id <= 3; id++ {
		s.Submit(&model.Task{ID: id, App: "fft", Required: model.KindFFT, DependsOn: blocker})
	}
	time.Sleep(30 * time.Millisecond)

	fftLoads := 0
	for _, ref := range loader.Loads() {
		if ref == "fft_slot0.bin" {
			fftLoads++
		}
	}
	if fftLoads != 1 {
		t.Errorf("fft preloaded %d times, want exactly 1 (loads: %v)", fftLoads, loader.Loads())
	}
	if slot.CurrentApp() != "fft" {
		t.Errorf("slot holds %q after preload, want fft", slot.CurrentApp())
	}
	sink.expectNone(t, 30*time.Millisecond) // nothing ran before deps cleared
}

func TestCPUFallbackAfterOverlayFailure(t *testing.T) {
	s, apps, sink := testSched(t, Config{Mode: model.BackendFPGA, CPUWorkers: 1, PreloadThreshold: 0})
	apps.Register(model.AppDescriptor{Name: "fft", Overlay: "fft_slot0.bin", Kind: model.KindFFT})

	loader := fpga.NewMockLoader()
	loader.FailOn("fft_slot0.bin", model.ErrOverlayLoadFailed)
	s.AddEngine(engine.NewSlot(0, loader, logging.Discard()))
	s.AddEngine(engine.NewCPU(0, logging.Discard()))
	s.Start()

	s.Submit(&model.Task{ID: 1, App: "fft", Required: model.KindFFT, EstRuntime: time.Millisecond})

	res := sink.next(t, time.Second)
	if !res.OK {
		t.Fatalf("fallback task failed: %+v", res)
	}
	if !strings.HasPrefix(res.Engine, "cpu-") {
		t.Errorf("engine = %q, want cpu-*", res.Engine)
	}
	if !strings.Contains(res.Message, "(cpu fallback)") {
		t.Errorf("message = %q, want the fallback marker", res.Message)
	}
}

func TestUnknownAppReportsFailure(t *testing.T) {
	s, _, sink := testSched(t, Config{Mode: model.BackendCPU, CPUWorkers: 1})
	s.AddEngine(engine.NewCPU(0, logging.Discard()))
	s.Start()

	done := s.Bus().Subscribe(5)
	s.Submit(&model.Task{ID: 5, App: "ghost"})

	res := sink.next(t, time.Second)
	if res.OK || !strings.Contains(res.Message, "unknown app") {
		t.Errorf("result = %+v", res)
	}
	if ok := <-done; ok {
		t.Error("subscriber should see false for an unknown app")
	}
}

func TestNoEngineAvailable(t *testing.T) {
	s, apps, sink := testSched(t, Config{Mode: model.BackendCPU, CPUWorkers: 1})
	apps.Register(model.AppDescriptor{Name: "echo", Kind: model.KindCPU})
	s.Start()

	s.Submit(&model.Task{ID: 6, App: "echo"})
	res := sink.next(t, time.Second)
	if res.OK || !strings.Contains(res.Message, "no engine available") {
		t.Errorf("result = %+v", res)
	}
}

func TestFailedDependencyLeavesDependentWaiting(t *testing.T) {
	// Pinned behavior: a dependency reporting ok=false keeps its dependents
	// in Waiting forever; there is no cascade-fail.
	s, apps, sink := testSched(t, Config{Mode: model.BackendCPU, CPUWorkers: 2})
	apps.Register(model.AppDescriptor{Name: "echo", Kind: model.KindCPU})
	s.AddEngine(engine.NewCPU(0, logging.Discard()))
	s.Start()

	s.Submit(&model.Task{ID: 1, App: "ghost"}) // fails: unknown app
	s.Submit(&model.Task{ID: 2, App: "echo", DependsOn: []model.TaskID{1}})

	res := sink.next(t, time.Second)
	if res.ID != 1 || res.OK {
		t.Fatalf("result = %+v, want failed task 1", res)
	}
	sink.expectNone(t, 50*time.Millisecond)
}

func TestReleaseTimeHonored(t *testing.T) {
	s, apps, sink := testSched(t, Config{Mode: model.BackendCPU, CPUWorkers: 2})
	apps.Register(model.AppDescriptor{Name: "echo", Kind: model.KindCPU})
	s.AddEngine(engine.NewCPU(0, logging.Discard()))
	s.Start()

	release := time.Now().Add(80 * time.Millisecond)
	s.Submit(&model.Task{ID: 1, App: "echo", ReleaseTime: release, EstRuntime: time.Millisecond})

	res := sink.next(t, time.Second)
	if time.Now().Before(release) {
		t.Error("task completed before its release time")
	}
	if !res.OK {
		t.Errorf("result = %+v", res)
	}
}

func TestStartStopIdempotentAndRestartable(t *testing.T) {
	s, apps, sink := testSched(t, Config{Mode: model.BackendCPU, CPUWorkers: 2})
	apps.Register(model.AppDescriptor{Name: "echo", Kind: model.KindCPU})
	s.AddEngine(engine.NewCPU(0, logging.Discard()))

	s.Start()
	s.Start() // no-op
	s.Submit(&model.Task{ID: 1, App: "echo", EstRuntime: time.Millisecond})
	if res := sink.next(t, time.Second); !res.OK {
		t.Fatalf("first cycle: %+v", res)
	}
	s.Stop()
	s.Stop() // no-op

	s.Start()
	s.Submit(&model.Task{ID: 2, App: "echo", EstRuntime: time.Millisecond})
	if res := sink.next(t, time.Second); res.ID != 2 || !res.OK {
		t.Fatalf("second cycle: %+v", res)
	}
	s.Stop()
}

func TestAutoModeFallsBackToCPUOnly(t *testing.T) {
	// No reconfigurable engines at all: AUTO resolves to CPU-only, and
	// hardware-kind tasks still run on the CPU engine.
	s, apps, sink := testSched(t, Config{Mode: model.BackendAuto, CPUWorkers: 1})
	apps.Register(model.AppDescriptor{Name: "fft", Kind: model.KindFFT})
	s.AddEngine(engine.NewCPU(0, logging.Discard()))
	s.Start()

	s.Submit(&model.Task{ID: 1, App: "fft", Required: model.KindFFT, EstRuntime: time.Millisecond})
	res := sink.next(t, time.Second)
	if !res.OK || !strings.HasPrefix(res.Engine, "cpu-") {
		t.Errorf("result = %+v", res)
	}
}

func TestEnginesSnapshot(t *testing.T) {
	s, _, _ := testSched(t, Config{Mode: model.BackendCPU, CPUWorkers: 1})
	s.AddEngine(engine.NewCPU(0, logging.Discard()))
	slot := engine.NewSlot(1, fpga.NewMockLoader(), logging.Discard())
	if err := slot.EnsureAppLoaded(model.AppDescriptor{Name: "zip", Overlay: "zip.bin", Kind: model.KindZIP}); err != nil {
		t.Fatal(err)
	}
	s.AddEngine(slot)

	infos := s.Engines()
	if len(infos) != 2 {
		t.Fatalf("got %d engines, want 2", len(infos))
	}
	if infos[0].Name != "cpu-0" || infos[0].Reconfigurable {
		t.Errorf("infos[0] = %+v", infos[0])
	}
	if infos[1].Name != "fpga-slot-1" || !infos[1].Reconfigurable || infos[1].CurrentApp != "zip" {
		t.Errorf("infos[1] = %+v", infos[1])
	}
}

func TestExactlyOnceUnderConcurrency(t *testing.T) {
	s, apps, _ := testSched(t, Config{Mode: model.BackendCPU, CPUWorkers: 4})
	apps.Register(model.AppDescriptor{Name: "echo", Kind: model.KindCPU})
	s.AddEngine(engine.NewCPU(0, logging.Discard()))

	var mu sync.Mutex
	seen := make(map[model.TaskID]int)
	done := make(chan struct{}, 64)
	s.AddSink(sinkFunc(func(res model.ExecutionResult) {
		mu.Lock()
		seen[res.ID]++
		mu.Unlock()
		done <- struct{}{}
	}))
	s.Start()

	const n = 50
	for id := model.TaskID(1); id <= n; id++ {
		s.Submit(&model.Task{ID: id, App: "echo", Priority: int(id % 5)})
	}
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("results missing")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for id, count := range seen {
		if count != 1 {
			t.Errorf("task %d reported %d times", id, count)
		}
	}
	if len(seen) != n {
		t.Errorf("got %d distinct results, want %d", len(seen), n)
	}
}

type sinkFunc func(model.ExecutionResult)

func (f sinkFunc) Emit(res model.ExecutionResult) { f(res) }
