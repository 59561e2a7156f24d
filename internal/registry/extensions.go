package registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// Extensions is an in-memory types.ExtensionRegistry that frontends read
// sources from.
type Extensions struct {
	logger *slog.Logger

	mu      sync.RWMutex
	sources map[string]types.Source
}

var _ types.ExtensionRegistry = (*Extensions)(nil)

// NewExtensions creates an empty extension registry.
func NewExtensions(logger *slog.Logger) *Extensions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extensions{
		logger:  logger.With("component", "extension-registry"),
		sources: make(map[string]types.Source),
	}
}

// AddExtension registers src under its id.
func (e *Extensions) AddExtension(src types.Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.sources[src.ID()]; exists {
		return errors.NewError(errors.ErrCodeRegistration, "extension already registered").
			WithComponent("registry").
			WithOperation("add_extension").
			WithDetail("source", src.ID())
	}
	e.sources[src.ID()] = src
	e.logger.Info("source registered", "source", src.ID(), "name", src.Name())
	return nil
}

// RemoveExtension unregisters src. Only the instance that was added can
// remove its id.
func (e *Extensions) RemoveExtension(src types.Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	known, exists := e.sources[src.ID()]
	if !exists || known != src {
		return errors.NewError(errors.ErrCodeNotFound, "extension not registered").
			WithComponent("registry").
			WithOperation("remove_extension").
			WithDetail("source", src.ID())
	}
	delete(e.sources, src.ID())
	e.logger.Info("source removed", "source", src.ID())
	return nil
}

// Get returns the source registered under id.
func (e *Extensions) Get(id string) (types.Source, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	src, ok := e.sources[id]
	return src, ok
}

// List returns every registered source sorted by id.
func (e *Extensions) List() []types.Source {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]types.Source, 0, len(e.sources))
	for _, src := range e.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of registered sources.
func (e *Extensions) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sources)
}
