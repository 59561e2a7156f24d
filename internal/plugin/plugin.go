// Package plugin owns the set of source instances: it watches the provider
// registry, wraps each acceptable provider in an adapter.Source and publishes
// it to the extension registry.
package plugin

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/grilobridge/grilobridge/internal/adapter"
	"github.com/grilobridge/grilobridge/internal/eventloop"
	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/media"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// Plugin identity.
const (
	Name        = "grilobridge"
	DisplayName = "Grilo bridge"
	UUID        = "grilo"
)

// Options configures a Manager.
type Options struct {
	Logger  *slog.Logger
	Metrics types.MetricsCollector
	Kinds   *media.Registry

	// RequireResolve rejects providers that cannot resolve metadata directly.
	RequireResolve bool

	BrowseResolution   types.Resolution
	MetadataResolution types.Resolution
	DefaultMime        string
	IdleRelay          bool
}

// Manager is the lifecycle context object. The zero value is not usable;
// call NewManager.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	ctx         context.Context
	cancel      context.CancelFunc
	loop        *eventloop.Loop
	extensions  types.ExtensionRegistry
	unsubscribe func()
	instances   map[types.Provider]*adapter.Source
}

// NewManager creates an uninitialized manager.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Kinds == nil {
		opts.Kinds = media.Builtin()
	}
	return &Manager{
		opts:      opts,
		logger:    opts.Logger.With("component", "plugin"),
		instances: make(map[types.Provider]*adapter.Source),
	}
}

// Initialize starts the delivery loop, subscribes to providers and triggers
// discovery. A manager can be initialized once per Deinitialize.
func (m *Manager) Initialize(ctx context.Context, providers types.ProviderRegistry, extensions types.ExtensionRegistry) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return errors.NewError(errors.ErrCodeAlreadyInitialized, "plugin already initialized").
			WithComponent("plugin").
			WithOperation("initialize")
	}
	m.initialized = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.loop = eventloop.New(m.opts.Logger)
	m.loop.Start()
	m.extensions = extensions
	m.mu.Unlock()

	unsubscribe := providers.Subscribe(m.handle)

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	m.logger.Info("initializing", "plugin", Name)
	if err := providers.Load(ctx); err != nil {
		m.Deinitialize()
		return errors.Wrap(errors.ErrCodeRegistration, "failed to load providers", err).
			WithComponent("plugin").
			WithOperation("initialize")
	}
	return nil
}

// Deinitialize releases every instance, stops listening to the provider
// registry and stops the delivery loop once pending callbacks have run.
func (m *Manager) Deinitialize() {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return
	}
	m.initialized = false
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	sources := make([]*adapter.Source, 0, len(m.instances))
	for p, src := range m.instances {
		sources = append(sources, src)
		delete(m.instances, p)
	}
	extensions := m.extensions
	loop := m.loop
	cancel := m.cancel
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	for _, src := range sources {
		m.release(src, extensions)
	}
	m.setInstances(0)

	cancel()
	loop.Stop()
	m.logger.Info("deinitialized", "released", len(sources))
}

// Accepts reports whether a provider qualifies for an instance.
func (m *Manager) Accepts(p types.Provider) bool {
	want := types.OpBrowse
	if m.opts.RequireResolve {
		want |= types.OpResolve
	}
	return p.Operations().Has(want)
}

// Sources returns the live instances sorted by id.
func (m *Manager) Sources() []*adapter.Source {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*adapter.Source, 0, len(m.instances))
	for _, src := range m.instances {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Source returns the live instance with the given id.
func (m *Manager) Source(id string) (*adapter.Source, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, src := range m.instances {
		if src.ID() == id {
			return src, true
		}
	}
	return nil, false
}

// Flush waits until every callback queued so far has run.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	loop := m.loop
	m.mu.Unlock()
	if loop == nil {
		return nil
	}
	return loop.Flush(ctx)
}

func (m *Manager) handle(ev types.ProviderEvent) {
	switch ev.Kind {
	case types.ProviderAdded:
		m.add(ev.Provider)
	case types.ProviderRemoved:
		m.remove(ev.Provider)
	}
}

func (m *Manager) add(p types.Provider) {
	if !m.Accepts(p) {
		m.logger.Debug("provider rejected", "provider", p.ID(), "operations", p.Operations().String())
		return
	}

	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return
	}
	if _, exists := m.instances[p]; exists {
		m.mu.Unlock()
		m.logger.Warn("provider announced twice", "provider", p.ID())
		return
	}
	src := adapter.New(m.ctx, p, adapter.Options{
		Logger:             m.opts.Logger,
		Loop:               m.loop,
		Metrics:            m.opts.Metrics,
		Kinds:              m.opts.Kinds,
		BrowseResolution:   m.opts.BrowseResolution,
		MetadataResolution: m.opts.MetadataResolution,
		DefaultMime:        m.opts.DefaultMime,
		IdleRelay:          m.opts.IdleRelay,
	})
	m.instances[p] = src
	extensions := m.extensions
	count := len(m.instances)
	m.mu.Unlock()

	if err := extensions.AddExtension(src); err != nil {
		m.logger.Error("failed to register source", "source", src.ID(), "error", err)
		m.mu.Lock()
		if m.instances[p] == src {
			delete(m.instances, p)
		}
		count = len(m.instances)
		m.mu.Unlock()
		src.Close()
		m.setInstances(count)
		return
	}

	m.setInstances(count)
	m.logger.Info("source added", "source", src.ID(), "provider", p.ID(), "name", p.Name())
}

func (m *Manager) remove(p types.Provider) {
	m.mu.Lock()
	src, ok := m.instances[p]
	if ok {
		delete(m.instances, p)
	}
	extensions := m.extensions
	count := len(m.instances)
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("removed provider has no instance", "provider", p.ID())
		return
	}
	m.release(src, extensions)
	m.setInstances(count)
}

// release cancels in-flight work, deregisters the extension and detaches
// the provider. Callers remove src from the instance map first, so each
// source is released once.
func (m *Manager) release(src *adapter.Source, extensions types.ExtensionRegistry) {
	inFlight := src.InFlight()
	src.Close()
	if err := extensions.RemoveExtension(src); err != nil {
		m.logger.Warn("failed to deregister source", "source", src.ID(), "error", err)
	}
	m.logger.Info("source removed", "source", src.ID(), "cancelled", inFlight)
}

func (m *Manager) setInstances(n int) {
	if m.opts.Metrics != nil {
		m.opts.Metrics.SetInstances(n)
	}
}
