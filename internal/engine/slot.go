package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/schedrt/internal/ops"
	"github.com/me/schedrt/pkg/model"
)

// SlotEngine is a reconfigurable hardware slot. Its active app is switched
// by loading a partial image through the Loader; execution is serialized by
// a run lock so the overlay of a running slot never changes.
type SlotEngine struct {
	slot     int
	loader   Loader
	decouple Decoupler
	static   string
	runners  map[string]AppRunner
	logger   *slog.Logger

	mu           sync.Mutex // guards the configuration state below
	currentApp   string
	currentKind  model.ResourceKind
	configured   bool
	staticLoaded bool
	running      bool

	runMu sync.Mutex // serializes Run and Preload
}

// SlotOption configures optional SlotEngine collaborators.
type SlotOption func(*SlotEngine)

// WithStaticShell sets the one-time base image loaded by PrepareStatic.
func WithStaticShell(ref string) SlotOption {
	return func(s *SlotEngine) { s.static = ref }
}

// WithDecoupler asserts the decouple line around every overlay load.
func WithDecoupler(d Decoupler) SlotOption {
	return func(s *SlotEngine) { s.decouple = d }
}

// WithAppRunner attaches a dedicated hardware path for one app.
func WithAppRunner(r AppRunner) SlotOption {
	return func(s *SlotEngine) { s.runners[r.App()] = r }
}

// NewSlot creates a reconfigurable slot engine named "fpga-slot-<id>".
func NewSlot(id int, loader Loader, logger *slog.Logger, opts ...SlotOption) *SlotEngine {
	s := &SlotEngine{
		slot:    id,
		loader:  loader,
		runners: make(map[string]AppRunner),
	}
	s.logger = logger.With("component", "engine", "engine", s.Name())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SlotEngine) Name() string         { return fmt.Sprintf("fpga-slot-%d", s.slot) }
func (s *SlotEngine) Available() bool      { return s.loader != nil }
func (s *SlotEngine) Reconfigurable() bool { return true }
func (s *SlotEngine) SlotID() int          { return s.slot }

// CurrentApp returns the loaded overlay's app name, or "".
func (s *SlotEngine) CurrentApp() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentApp
}

// CurrentKind returns the resource kind of the loaded overlay.
func (s *SlotEngine) CurrentKind() model.ResourceKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return model.KindCPU
	}
	return s.currentKind
}

// PrepareStatic loads the static shell exactly once per instance.
func (s *SlotEngine) PrepareStatic() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staticLoaded || s.static == "" {
		return nil
	}
	if err := s.loader.LoadImage(s.static); err != nil {
		return fmt.Errorf("%s: load static shell %s: %w", s.Name(), s.static, err)
	}
	s.staticLoaded = true
	s.logger.Info("static shell loaded", "shell", s.static)
	return nil
}

// EnsureAppLoaded loads desc's overlay unless it is already active. A slot
// that is mid-run refuses to switch to a different app.
func (s *SlotEngine) EnsureAppLoaded(desc model.AppDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoadedLocked(desc)
}

func (s *SlotEngine) ensureLoadedLocked(desc model.AppDescriptor) error {
	if s.configured && s.currentApp == desc.Name {
		return nil
	}
	if s.running {
		return fmt.Errorf("%s: %w: cannot load %q mid-run", s.Name(), model.ErrSlotBusy, desc.Name)
	}
	if err := s.loadOverlayLocked(desc); err != nil {
		s.logger.Warn("overlay load failed", "app", desc.Name, "error", err)
		return fmt.Errorf("%s: %w: app %s: %v", s.Name(), model.ErrOverlayLoadFailed, desc.Name, err)
	}
	s.currentApp = desc.Name
	s.currentKind = desc.Kind
	s.configured = true
	s.logger.Info("overlay loaded", "app", desc.Name, "kind", desc.Kind)
	return nil
}

func (s *SlotEngine) loadOverlayLocked(desc model.AppDescriptor) error {
	if desc.Overlay == "" {
		// Nothing to load; the slot simply takes on the app identity.
		return nil
	}
	if s.decouple != nil {
		if err := s.decouple.Set(true); err != nil {
			return fmt.Errorf("assert decouple: %w", err)
		}
		defer func() {
			if err := s.decouple.Set(false); err != nil {
				s.logger.Warn("decouple release failed", "error", err)
			}
		}()
	}
	return s.loader.LoadImage(desc.Overlay)
}

// Preload loads desc's overlay if the slot is idle. It never waits for a
// running task; callers treat a busy slot as a preload miss.
func (s *SlotEngine) Preload(desc model.AppDescriptor) error {
	if !s.runMu.TryLock() {
		return fmt.Errorf("%s: %w", s.Name(), model.ErrSlotBusy)
	}
	defer s.runMu.Unlock()
	return s.EnsureAppLoaded(desc)
}

// Run serializes execution on this slot, ensures the overlay matches, and
// executes the task: dedicated hardware path first, software body as the
// once-per-task fallback.
func (s *SlotEngine) Run(t *model.Task, desc model.AppDescriptor) model.ExecutionResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if err := s.ensureLoadedLocked(desc); err != nil {
		s.mu.Unlock()
		return model.ExecutionResult{
			ID:      t.ID,
			OK:      false,
			Message: fmt.Sprintf("failed to ensure %s on %s: %v", desc.Name, s.Name(), err),
			Engine:  s.Name(),
		}
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	ok, message := s.execute(t, desc)
	return model.ExecutionResult{
		ID:      t.ID,
		OK:      ok,
		Message: message,
		Runtime: time.Since(start),
		Engine:  s.Name(),
	}
}

func (s *SlotEngine) execute(t *model.Task, desc model.AppDescriptor) (bool, string) {
	if hw, hwOK := s.runners[t.App]; hwOK && hw.Available() {
		if hw.Execute(t) {
			ok, message := payloadOutcome(t)
			if ok {
				return true, message
			}
			// Hardware ran but the operation failed; fall through to the
			// software body once.
			s.logger.Warn("hardware path failed, falling back", "task_id", uint64(t.ID), "app", t.App)
		} else {
			s.logger.Debug("hardware path unavailable for task", "task_id", uint64(t.ID), "app", t.App)
		}
		if ok, message, ran := ops.Execute(t); ran {
			return ok, message + " (cpu fallback)"
		}
	}

	if ok, message, ran := ops.Execute(t); ran {
		return ok, message
	}

	d := t.EstRuntime
	if d <= 0 {
		d = 15 * time.Millisecond
	}
	time.Sleep(d)
	return true, fmt.Sprintf("executed %s on %s", desc.Name, s.Name())
}

// payloadOutcome reads the ok/message the hardware path recorded on the
// task's operation context.
func payloadOutcome(t *model.Task) (bool, string) {
	switch p := t.Payload.(type) {
	case *model.ZipContext:
		return p.OK, p.Message
	case *model.FFTContext:
		return p.OK, p.Message
	}
	return false, "missing execution context"
}
