package registry

import (
	"log/slog"
	"sync"

	"github.com/me/schedrt/pkg/model"
)

// Apps maps app names to their descriptors. Registration may happen before
// or after the scheduler starts; lookups during dispatch see any descriptor
// registered before the task was admitted.
type Apps struct {
	mu     sync.RWMutex
	apps   map[string]model.AppDescriptor
	logger *slog.Logger
}

// NewApps creates an empty application registry.
func NewApps(logger *slog.Logger) *Apps {
	return &Apps{
		apps:   make(map[string]model.AppDescriptor),
		logger: logger.With("component", "app-registry"),
	}
}

// Register adds a descriptor, replacing any previous entry for the same name.
func (a *Apps) Register(d model.AppDescriptor) {
	a.mu.Lock()
	_, replaced := a.apps[d.Name]
	a.apps[d.Name] = d
	a.mu.Unlock()
	a.logger.Info("app registered", "app", d.Name, "kind", d.Kind, "replaced", replaced)
}

// Lookup returns the descriptor for name.
func (a *Apps) Lookup(name string) (model.AppDescriptor, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.apps[name]
	return d, ok
}

// Names returns the registered app names, unordered.
func (a *Apps) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.apps))
	for name := range a.apps {
		names = append(names, name)
	}
	return names
}
