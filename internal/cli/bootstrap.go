package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/me/schedrt/internal/config"
	"github.com/me/schedrt/internal/dash"
	"github.com/me/schedrt/internal/engine"
	"github.com/me/schedrt/internal/fpga"
	"github.com/me/schedrt/internal/logging"
	"github.com/me/schedrt/internal/registry"
	"github.com/me/schedrt/internal/report"
	"github.com/me/schedrt/internal/sched"
	"github.com/me/schedrt/internal/server"
	"github.com/me/schedrt/internal/store"
	"github.com/me/schedrt/pkg/model"
)

// runtimeEnv bundles everything a runner invocation wires together.
type runtimeEnv struct {
	cfg       *config.RunnerConfig
	logger    *slog.Logger
	apps      *registry.Apps
	providers *registry.Providers
	sched     *sched.Scheduler
	session   *dash.Session
	reporter  *report.Reporter
	store     *store.SQLiteStore
	runID     string

	statusCancel context.CancelFunc
}

// buildRuntime assembles registries, engines, providers, reporting, and the
// optional result store from the config. Nothing is started yet.
func buildRuntime(cfg *config.RunnerConfig) (*runtimeEnv, error) {
	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	env := &runtimeEnv{
		cfg:       cfg,
		logger:    logger,
		apps:      registry.NewApps(logger),
		providers: registry.NewProviders(logger),
		runID:     "run_" + uuid.New().String()[:8],
	}

	env.sched = sched.New(env.apps, sched.Config{
		Mode:             cfg.Mode(),
		CPUWorkers:       cfg.CPUWorkers,
		PreloadThreshold: cfg.PreloadThreshold,
	}, logger)

	env.reporter = report.NewReporter(os.Stdout, logger)
	env.reporter.SetCSV(cfg.CSV)
	env.sched.AddSink(env.reporter)

	if cfg.DBPath != "" {
		st, err := store.NewSQLiteStore(cfg.DBPath, logger)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(context.Background()); err != nil {
			st.Close()
			return nil, err
		}
		env.store = st
		env.sched.AddSink(store.NewSink(st, env.runID, logger))
		logger.Info("result history enabled", "db", cfg.DBPath, "run_id", env.runID)
	}

	env.addEngines()
	env.session = dash.NewSession(env.sched, env.providers, logger)
	return env, nil
}

// addEngines registers overlay apps, builds one slot engine per configured
// slot, registers hardware providers at priority 0 with CPU fallbacks at 10,
// and adds the CPU engine pool. Mirrors the board runner's registration
// order so slot ids and provider instances stay deterministic.
func (env *runtimeEnv) addEngines() {
	cfg := env.cfg

	var loader engine.Loader
	if cfg.MockReconfig {
		loader = fpga.NewMockLoader()
	} else {
		loader = fpga.NewFirmwareLoader(cfg.FirmwareDir, cfg.ManagerPath, env.logger)
	}
	var decouple engine.Decoupler
	if !cfg.MockReconfig && cfg.DecoupleGPIO >= 0 {
		decouple = fpga.NewSysfsDecoupler(
			cfg.DecoupleGPIO, cfg.DecoupleActiveLow,
			time.Duration(cfg.DecoupleSettleMS)*time.Millisecond, env.logger)
	}

	nextSlot := 0
	instance := 0
	cpuFallback := make(map[string]bool)
	for _, ov := range cfg.Overlays {
		kind := model.ParseResourceKind(ov.Kind)
		kernel := ov.Kernel
		if kernel == "" {
			kernel = ov.App + "_kernel"
		}
		env.apps.Register(model.AppDescriptor{Name: ov.App, Overlay: ov.Overlay, Kernel: kernel, Kind: kind})

		slots := ov.Slots
		if slots == 0 {
			slots = 1
		}
		for i := 0; i < slots; i++ {
			opts := []engine.SlotOption{}
			if cfg.StaticShell != "" {
				opts = append(opts, engine.WithStaticShell(cfg.StaticShell))
			}
			if decouple != nil {
				opts = append(opts, engine.WithDecoupler(decouple))
			}
			env.sched.AddEngine(engine.NewSlot(nextSlot, loader, env.logger, opts...))
			nextSlot++
			env.providers.Register(model.Provider{Op: ov.App, Kind: kind, Instance: instance, Priority: 0})
			instance++
		}
		if !cpuFallback[ov.App] {
			env.providers.Register(model.Provider{Op: ov.App, Kind: model.KindCPU, Instance: instance, Priority: 10})
			instance++
			cpuFallback[ov.App] = true
		}
	}

	// The software operations are always servable even with no overlays.
	for _, op := range []string{"zip", "fft", "fir"} {
		if _, ok := env.apps.Lookup(op); !ok {
			env.apps.Register(model.AppDescriptor{Name: op, Kind: model.ParseResourceKind(op)})
		}
		if !cpuFallback[op] {
			env.providers.Register(model.Provider{Op: op, Kind: model.KindCPU, Instance: instance, Priority: 10})
			instance++
			cpuFallback[op] = true
		}
	}

	cpus := cfg.CPUEngines
	if cpus <= 0 {
		cpus = 1
	}
	for i := 0; i < cpus; i++ {
		env.sched.AddEngine(engine.NewCPU(i, env.logger))
	}
}

// startStatusServer launches the read-only status API when configured.
func (env *runtimeEnv) startStatusServer() {
	if env.cfg.StatusAddr == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	env.statusCancel = cancel

	opts := []server.Option{}
	if env.store != nil {
		opts = append(opts, server.WithStore(env.store, env.runID))
	}
	srv := server.New(env.sched, env.reporter.Stats(), env.logger, opts...)
	go func() {
		if err := srv.ListenAndServe(ctx, env.cfg.StatusAddr); err != nil {
			env.logger.Error("status server failed", "error", err)
		}
	}()
}

// close releases everything buildRuntime opened. Safe on partial builds.
func (env *runtimeEnv) close() {
	if env.statusCancel != nil {
		env.statusCancel()
	}
	if env.store != nil {
		if err := env.store.Close(); err != nil {
			env.logger.Error("close store", "error", err)
		}
	}
}
