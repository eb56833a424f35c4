package cli

import (
	"errors"
	"fmt"
	"plugin"

	"github.com/me/schedrt/internal/config"
	"github.com/me/schedrt/internal/registry"
	"github.com/me/schedrt/pkg/apphost"
	"github.com/me/schedrt/pkg/model"
)

// ExitCodeError carries a client plug-in's non-zero exit code up to main.
type ExitCodeError int

func (e ExitCodeError) Error() string {
	return fmt.Sprintf("app exited with code %d", int(e))
}

// hostRegistrar adapts the registries to the plug-in Registrar surface.
type hostRegistrar struct {
	apps      *registry.Apps
	providers *registry.Providers
}

func (h hostRegistrar) RegisterApp(d model.AppDescriptor) { h.apps.Register(d) }
func (h hostRegistrar) RegisterProvider(p model.Provider) { h.providers.Register(p) }

// runApp loads the client plug-in, initializes it against the registries,
// runs the scheduler around the plug-in's workload, and propagates its exit
// code.
func runApp(cfg *config.RunnerConfig, appLib string, appArgs []string) error {
	if appLib == "" {
		return errors.New("--app-lib is required (or use 'schedrt demo' for the built-in workload)")
	}

	p, err := plugin.Open(appLib)
	if err != nil {
		return fmt.Errorf("open app library %s: %w", appLib, err)
	}
	initSym, err := p.Lookup(apphost.InitializeSymbol)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", apphost.InitializeSymbol, err)
	}
	initFn, ok := initSym.(apphost.InitializeFunc)
	if !ok {
		return fmt.Errorf("%s has the wrong signature", apphost.InitializeSymbol)
	}
	runSym, err := p.Lookup(apphost.RunSymbol)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", apphost.RunSymbol, err)
	}
	runFn, ok := runSym.(apphost.RunFunc)
	if !ok {
		return fmt.Errorf("%s has the wrong signature", apphost.RunSymbol)
	}

	env, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	if err := initFn(appArgs, hostRegistrar{apps: env.apps, providers: env.providers}); err != nil {
		return fmt.Errorf("app initialize: %w", err)
	}

	env.sched.Start()
	env.startStatusServer()
	code := runFn(appArgs, env.session)
	env.sched.Stop()

	if code != 0 {
		return ExitCodeError(code)
	}
	return nil
}
