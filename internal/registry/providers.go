package registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/me/schedrt/pkg/model"
)

// Providers is the DASH provider registry: for each operation, an ordered
// list of engine-kind providers. Lower priority values are preferred, so
// hardware kinds registered at priority 0 sort ahead of the CPU fallback.
type Providers struct {
	mu        sync.RWMutex
	providers []model.Provider
	logger    *slog.Logger
}

// NewProviders creates an empty provider registry.
func NewProviders(logger *slog.Logger) *Providers {
	return &Providers{logger: logger.With("component", "provider-registry")}
}

// Register adds a provider and keeps the list sorted by
// (op, priority asc, kind, instance).
func (p *Providers) Register(prov model.Provider) {
	p.mu.Lock()
	p.providers = append(p.providers, prov)
	sort.Slice(p.providers, func(i, j int) bool {
		return p.providers[i].Less(p.providers[j])
	})
	p.mu.Unlock()
	p.logger.Info("provider registered",
		"op", prov.Op, "kind", prov.Kind, "instance", prov.Instance, "priority", prov.Priority)
}

// For returns the providers for op, most preferred first. The slice is a
// copy; callers may keep it.
func (p *Providers) For(op string) []model.Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []model.Provider
	for _, prov := range p.providers {
		if prov.Op == op {
			out = append(out, prov)
		}
	}
	return out
}
