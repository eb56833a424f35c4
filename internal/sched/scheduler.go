// Package sched implements the scheduler runtime: dependency-aware
// admission into a priority ready queue, multi-worker dispatch across
// heterogeneous engines, overlay preloading, and the completion bus that
// unblocks synchronous callers.
package sched

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/schedrt/internal/engine"
	"github.com/me/schedrt/internal/registry"
	"github.com/me/schedrt/pkg/model"
)

// promoteInterval paces the dependency watcher's scans over Waiting.
const promoteInterval = time.Millisecond

// ResultSink receives every ExecutionResult exactly once. The reporter and
// the result store implement it.
type ResultSink interface {
	Emit(model.ExecutionResult)
}

// Config holds scheduler configuration.
type Config struct {
	Mode             model.BackendMode
	CPUWorkers       int // 0 = host concurrency
	PreloadThreshold int // 0 disables overlay preloading
}

// DefaultConfig returns sensible defaults: automatic backend, host
// concurrency, preload threshold 3.
func DefaultConfig() Config {
	return Config{Mode: model.BackendAuto, PreloadThreshold: 3}
}

// EngineInfo is a point-in-time snapshot of one engine, for introspection.
type EngineInfo struct {
	Name           string `json:"name"`
	Available      bool   `json:"available"`
	Reconfigurable bool   `json:"reconfigurable"`
	CurrentApp     string `json:"current_app,omitempty"`
}

// Scheduler owns the engines, the worker pool, and the task lifecycle from
// Submit to the reported result.
type Scheduler struct {
	apps   *registry.Apps
	cfg    Config
	logger *slog.Logger

	bus   *CompletionBus
	deps  *depSet
	ready *readyQueue

	engMu   sync.Mutex
	engines []engine.Engine

	waitMu  sync.Mutex
	waiting []*model.Task

	countsMu  sync.Mutex
	appCounts map[string]int // ready+waiting tasks per app, drives preloading

	sinkMu sync.Mutex
	sinks  []ResultSink

	lifeMu     sync.Mutex // serializes Start/Stop
	running    atomic.Bool
	useCPUOnly bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// New creates a Scheduler. Engines are added with AddEngine; nothing runs
// until Start.
func New(apps *registry.Apps, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Mode == "" {
		cfg.Mode = model.BackendAuto
	}
	if cfg.CPUWorkers <= 0 {
		cfg.CPUWorkers = runtime.NumCPU()
		if cfg.CPUWorkers <= 0 {
			cfg.CPUWorkers = 4
		}
	}
	return &Scheduler{
		apps:      apps,
		cfg:       cfg,
		logger:    logger.With("component", "scheduler"),
		bus:       NewCompletionBus(),
		deps:      newDepSet(),
		ready:     newReadyQueue(),
		appCounts: make(map[string]int),
	}
}

// Bus returns the completion bus clients subscribe on.
func (s *Scheduler) Bus() *CompletionBus { return s.bus }

// AddEngine hands an engine to the scheduler. The scheduler owns it
// exclusively from here on. Engines added after Start are picked up by the
// next dispatch.
func (s *Scheduler) AddEngine(e engine.Engine) {
	s.engMu.Lock()
	s.engines = append(s.engines, e)
	s.engMu.Unlock()
	if s.running.Load() && e.Reconfigurable() {
		if err := e.PrepareStatic(); err != nil {
			s.logger.Warn("static shell load failed", "engine", e.Name(), "error", err)
		}
	}
}

// AddSink registers a result sink. Every reported result reaches every sink.
func (s *Scheduler) AddSink(sink ResultSink) {
	s.sinkMu.Lock()
	s.sinks = append(s.sinks, sink)
	s.sinkMu.Unlock()
}

// Engines returns a snapshot of the engine fleet.
func (s *Scheduler) Engines() []EngineInfo {
	s.engMu.Lock()
	engines := make([]engine.Engine, len(s.engines))
	copy(engines, s.engines)
	s.engMu.Unlock()

	infos := make([]EngineInfo, 0, len(engines))
	for _, e := range engines {
		info := EngineInfo{
			Name:           e.Name(),
			Available:      e.Available(),
			Reconfigurable: e.Reconfigurable(),
		}
		if slot, ok := e.(engine.Slot); ok {
			info.CurrentApp = slot.CurrentApp()
		}
		infos = append(infos, info)
	}
	return infos
}

// Submit admits a task: straight to the ready queue when its dependencies
// are satisfied, otherwise to the waiting list. Never blocks on dispatch.
func (s *Scheduler) Submit(t *model.Task) {
	s.recordDemand(t.App, +1)
	if s.deps.satisfied(t) {
		t.MarkReady()
		s.ready.push(t)
		s.logger.Debug("task ready", "task_id", uint64(t.ID), "app", t.App, "priority", t.Priority)
		return
	}
	s.waitMu.Lock()
	s.waiting = append(s.waiting, t)
	s.waitMu.Unlock()
	s.logger.Debug("task waiting", "task_id", uint64(t.ID), "app", t.App, "deps", len(t.DependsOn))
}

// Start resolves the backend mode, prepares reconfigurable slots, and
// launches the dependency watcher plus the worker pool. Idempotent.
func (s *Scheduler) Start() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.ready.reset()
	s.stopCh = make(chan struct{})

	fpgaOK := false
	s.engMu.Lock()
	engines := make([]engine.Engine, len(s.engines))
	copy(engines, s.engines)
	s.engMu.Unlock()
	for _, e := range engines {
		if !e.Reconfigurable() {
			continue
		}
		if err := e.PrepareStatic(); err != nil {
			s.logger.Warn("static shell load failed", "engine", e.Name(), "error", err)
		}
		if e.Available() {
			fpgaOK = true
		}
	}

	s.useCPUOnly = s.cfg.Mode == model.BackendCPU || (s.cfg.Mode == model.BackendAuto && !fpgaOK)
	s.logger.Info("scheduler started",
		"mode", s.cfg.Mode, "cpu_workers", s.cfg.CPUWorkers,
		"cpu_only", s.useCPUOnly, "preload_threshold", s.cfg.PreloadThreshold)

	s.wg.Add(1)
	go s.watchWaiting()
	for i := 0; i < s.cfg.CPUWorkers; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}
}

// Stop shuts the runtime down: queue waiters drain with no task, the
// watcher and workers join. Tasks mid-run complete normally; drained tasks
// are not fulfilled. Idempotent.
func (s *Scheduler) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	s.ready.stop()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// watchWaiting promotes waiting tasks whose dependencies have completed.
// One scan costs O(|Waiting|).
func (s *Scheduler) watchWaiting() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.promoteWaiting()
		time.Sleep(promoteInterval)
	}
}

func (s *Scheduler) promoteWaiting() {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()
	remaining := s.waiting[:0]
	for _, t := range s.waiting {
		if s.deps.satisfied(t) {
			t.MarkReady()
			s.ready.push(t)
			s.logger.Debug("task promoted", "task_id", uint64(t.ID), "app", t.App)
		} else {
			remaining = append(remaining, t)
		}
	}
	s.waiting = remaining
}

func (s *Scheduler) workerLoop(idx int) {
	defer s.wg.Done()
	for {
		t := s.ready.popBlocking()
		if t == nil {
			return
		}
		s.recordDemand(t.App, -1)

		// Never run before the release instant.
		if wait := time.Until(t.ReleaseTime); wait > 0 {
			select {
			case <-time.After(wait):
			case <-s.stopCh:
				return
			}
		}

		desc, found := s.apps.Lookup(t.App)
		if !found {
			s.finish(t, model.ExecutionResult{
				ID:      t.ID,
				Message: fmt.Sprintf("unknown app: %s", t.App),
			})
			continue
		}

		eng := s.selectEngine(t, desc)
		if eng == nil {
			s.finish(t, model.ExecutionResult{
				ID:      t.ID,
				Message: "no engine available",
			})
			continue
		}

		s.finish(t, runGuarded(eng, t, desc))
	}
}

// runGuarded shields the worker from a panicking engine; the panic becomes
// an operation error and the worker keeps serving.
func runGuarded(e engine.Engine, t *model.Task, desc model.AppDescriptor) (res model.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = model.ExecutionResult{
				ID:      t.ID,
				Message: fmt.Sprintf("operation error: %v", r),
				Engine:  e.Name(),
			}
		}
	}()
	return e.Run(t, desc)
}

// finish reports the result, records completion, and wakes the subscriber.
func (s *Scheduler) finish(t *model.Task, res model.ExecutionResult) {
	s.sinkMu.Lock()
	sinks := make([]ResultSink, len(s.sinks))
	copy(sinks, s.sinks)
	s.sinkMu.Unlock()
	for _, sink := range sinks {
		sink.Emit(res)
	}

	if t.Deadline != nil && time.Now().After(*t.Deadline) {
		s.logger.Warn("deadline missed", "task_id", uint64(t.ID), "app", t.App, "deadline", *t.Deadline)
	}
	if res.OK {
		s.deps.markComplete(t.ID)
	}
	s.bus.Fulfill(t.ID, res.OK)
}

// selectEngine picks an engine for the task: a matching or loadable
// reconfigurable slot first (unless the backend is CPU-only or the task
// wants CPU), then the first CPU engine, then any slot as a last resort.
// Deterministic given a fixed engine order; slots tie-break by id.
func (s *Scheduler) selectEngine(t *model.Task, desc model.AppDescriptor) engine.Engine {
	s.engMu.Lock()
	var slots []engine.Slot
	var cpus []engine.Engine
	for _, e := range s.engines {
		if !e.Available() {
			continue
		}
		if slot, ok := e.(engine.Slot); ok && e.Reconfigurable() {
			slots = append(slots, slot)
		} else {
			cpus = append(cpus, e)
		}
	}
	s.engMu.Unlock()
	sort.Slice(slots, func(i, j int) bool { return slots[i].SlotID() < slots[j].SlotID() })

	if !s.useCPUOnly && t.Required != model.KindCPU {
		for _, slot := range slots {
			if slot.CurrentApp() == t.App {
				return slot
			}
		}
		for _, slot := range slots {
			err := slot.EnsureAppLoaded(desc)
			if err == nil {
				return slot
			}
			s.logger.Debug("slot rejected task", "engine", slot.Name(), "app", t.App, "error", err)
		}
	}
	if len(cpus) > 0 {
		return cpus[0]
	}
	if !s.useCPUOnly && len(slots) > 0 {
		return slots[0]
	}
	return nil
}

// recordDemand maintains the per-app ready+waiting counters and kicks off a
// preload when demand crosses the threshold.
func (s *Scheduler) recordDemand(app string, delta int) {
	var trigger bool
	s.countsMu.Lock()
	count := s.appCounts[app] + delta
	if count <= 0 {
		delete(s.appCounts, app)
	} else {
		s.appCounts[app] = count
		trigger = delta > 0 && s.cfg.PreloadThreshold > 0 && count == s.cfg.PreloadThreshold
	}
	s.countsMu.Unlock()
	if trigger {
		s.maybePreload(app)
	}
}

// maybePreload loads app's overlay onto an idle slot ahead of demand.
// Best-effort: failures are logged, never propagated, and submission is the
// only caller so it must stay cheap when nothing is to be done.
func (s *Scheduler) maybePreload(app string) {
	if s.useCPUOnly || !s.running.Load() {
		return
	}
	desc, found := s.apps.Lookup(app)
	if !found {
		return
	}

	s.engMu.Lock()
	var slots []engine.Slot
	for _, e := range s.engines {
		if slot, ok := e.(engine.Slot); ok && e.Available() {
			slots = append(slots, slot)
		}
	}
	s.engMu.Unlock()
	sort.Slice(slots, func(i, j int) bool { return slots[i].SlotID() < slots[j].SlotID() })

	for _, slot := range slots {
		if slot.CurrentApp() == app {
			return // already resident somewhere
		}
	}
	type preloader interface {
		Preload(model.AppDescriptor) error
	}
	for _, slot := range slots {
		p, ok := slot.(preloader)
		if !ok {
			continue
		}
		if err := p.Preload(desc); err != nil {
			s.logger.Debug("preload skipped", "engine", slot.Name(), "app", app, "error", err)
			continue
		}
		s.logger.Info("overlay preloaded", "engine", slot.Name(), "app", app)
		return
	}
}
