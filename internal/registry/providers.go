// Package registry holds in-memory provider and extension registries.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// Loader discovers providers when a registry is loaded.
type Loader func(ctx context.Context) ([]types.Provider, error)

// Providers is an in-memory types.ProviderRegistry. Providers added before
// Load are announced by Load; later additions and removals are announced
// immediately. Subscribers are called synchronously, in registration order,
// without the registry lock held.
type Providers struct {
	logger  *slog.Logger
	loaders []Loader

	mu        sync.Mutex
	providers map[string]types.Provider
	order     []string
	subs      map[int]func(types.ProviderEvent)
	nextSub   int
	loaded    bool
}

var _ types.ProviderRegistry = (*Providers)(nil)

// NewProviders creates an empty provider registry.
func NewProviders(logger *slog.Logger, loaders ...Loader) *Providers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Providers{
		logger:    logger.With("component", "provider-registry"),
		loaders:   loaders,
		providers: make(map[string]types.Provider),
		subs:      make(map[int]func(types.ProviderEvent)),
	}
}

// Subscribe registers fn for provider events.
func (r *Providers) Subscribe(fn func(types.ProviderEvent)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Load runs every loader, then announces all known providers. A second Load
// only runs the loaders again for providers not yet known.
func (r *Providers) Load(ctx context.Context) error {
	for _, load := range r.loaders {
		found, err := load(ctx)
		if err != nil {
			return errors.Wrap(errors.ErrCodeRegistration, "provider discovery failed", err).
				WithComponent("registry").
				WithOperation("load")
		}
		for _, p := range found {
			r.mu.Lock()
			_, dup := r.providers[p.ID()]
			if !dup {
				r.insert(p)
			}
			r.mu.Unlock()
			if dup {
				r.logger.Warn("skipping duplicate provider", "provider", p.ID())
			}
		}
	}

	r.mu.Lock()
	announce := !r.loaded
	r.loaded = true
	providers := r.list()
	r.mu.Unlock()

	if announce {
		for _, p := range providers {
			r.notify(types.ProviderEvent{Kind: types.ProviderAdded, Provider: p})
		}
	}
	r.logger.Info("providers loaded", "count", len(providers))
	return nil
}

// Add registers p. After Load it is announced at once.
func (r *Providers) Add(p types.Provider) error {
	r.mu.Lock()
	if _, exists := r.providers[p.ID()]; exists {
		r.mu.Unlock()
		return errors.NewError(errors.ErrCodeRegistration, "provider already registered").
			WithComponent("registry").
			WithOperation("add").
			WithDetail("provider", p.ID())
	}
	r.insert(p)
	loaded := r.loaded
	r.mu.Unlock()

	if loaded {
		r.notify(types.ProviderEvent{Kind: types.ProviderAdded, Provider: p})
	}
	return nil
}

// Remove unregisters the provider with id and announces the removal.
func (r *Providers) Remove(id string) error {
	r.mu.Lock()
	p, exists := r.providers[id]
	if !exists {
		r.mu.Unlock()
		return errors.NewError(errors.ErrCodeNotFound, "provider not registered").
			WithComponent("registry").
			WithOperation("remove").
			WithDetail("provider", id)
	}
	delete(r.providers, id)
	for i, known := range r.order {
		if known == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	loaded := r.loaded
	r.mu.Unlock()

	if loaded {
		r.notify(types.ProviderEvent{Kind: types.ProviderRemoved, Provider: p})
	}
	return nil
}

// Get returns the provider registered under id.
func (r *Providers) Get(id string) (types.Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	return p, ok
}

// Providers returns the registered providers in registration order.
func (r *Providers) Providers() []types.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list()
}

func (r *Providers) insert(p types.Provider) {
	r.providers[p.ID()] = p
	r.order = append(r.order, p.ID())
}

func (r *Providers) list() []types.Provider {
	out := make([]types.Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

func (r *Providers) notify(ev types.ProviderEvent) {
	r.mu.Lock()
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(types.ProviderEvent), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, r.subs[id])
	}
	r.mu.Unlock()

	r.logger.Debug("provider event", "kind", ev.Kind.String(), "provider", ev.Provider.ID())
	for _, fn := range subs {
		fn(ev)
	}
}
