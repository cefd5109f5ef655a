package adapter

import (
	"fmt"
	"log/slog"
	"sort"

	"aerocrawl/internal/config"
	"aerocrawl/internal/types"
)

// Registry holds the adapters built from configuration, keyed by source
// name.
type Registry struct {
	adapters map[string]SiteAdapter
}

// NewRegistry builds one adapter per configured source.
func NewRegistry(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	r := &Registry{adapters: make(map[string]SiteAdapter, len(cfg.Sources))}
	for _, src := range cfg.Sources {
		var a SiteAdapter
		switch src.Type {
		case "selector":
			a = NewSelectorAdapter(src, cfg.Crawler.RequestTimeout, logger)
		case "api":
			a = NewAPIAdapter(src, cfg.Stealth, cfg.Crawler.RequestTimeout, logger)
		default:
			return nil, fmt.Errorf("source %q: unknown adapter type %q", src.Name, src.Type)
		}
		r.adapters[src.Name] = a
	}
	return r, nil
}

// Register adds a bespoke adapter, overriding any configured one with the
// same name.
func (r *Registry) Register(a SiteAdapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a source name.
func (r *Registry) Get(name string) (SiteAdapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownSource, name)
	}
	return a, nil
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
