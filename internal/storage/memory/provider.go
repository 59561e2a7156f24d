// Package memory provides a provider serving a static catalog held in memory.
package memory

import (
	"context"
	"log/slog"

	"github.com/grilobridge/grilobridge/internal/storage/ops"
	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/media"
	"github.com/grilobridge/grilobridge/pkg/types"
)

var supportedKeys = []media.Key{
	media.KeyID,
	media.KeyTitle,
	media.KeyURL,
	media.KeyArtist,
	media.KeyAlbum,
	media.KeyGenre,
	media.KeyMime,
	media.KeyDuration,
	media.KeyChildCount,
}

// Provider serves a Catalog. Every browse runs on its own goroutine.
type Provider struct {
	catalog *Catalog
	kinds   *media.Registry
	logger  *slog.Logger
	index   map[string]*Item
	ops     *ops.Table
}

var _ types.Provider = (*Provider)(nil)

// New creates a provider over c.
func New(c *Catalog, logger *slog.Logger) (*Provider, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{
		catalog: c,
		kinds:   media.Builtin(),
		logger:  logger.With("component", "memory", "provider", c.ID),
		index:   make(map[string]*Item),
		ops:     ops.NewTable(),
	}
	var walk func(items []Item)
	walk = func(items []Item) {
		for i := range items {
			p.index[items[i].ID] = &items[i]
			walk(items[i].Children)
		}
	}
	walk(c.Items)
	return p, nil
}

// ID implements types.Provider.
func (p *Provider) ID() string { return p.catalog.ID }

// Name implements types.Provider.
func (p *Provider) Name() string {
	if p.catalog.Name != "" {
		return p.catalog.Name
	}
	return p.catalog.ID
}

// Operations implements types.Provider.
func (p *Provider) Operations() types.Ops {
	if p.catalog.Resolve {
		return types.OpBrowse | types.OpResolve
	}
	return types.OpBrowse
}

// SupportedKeys implements types.Provider.
func (p *Provider) SupportedKeys() []media.Key {
	return append([]media.Key(nil), supportedKeys...)
}

// Browse implements types.Provider.
func (p *Provider) Browse(ctx context.Context, spec types.BrowseSpec, results chan<- types.BrowseDelivery) uint {
	return p.ops.Browse(ctx, results, spec.Skip, spec.Count, func(context.Context) ([]media.Record, error) {
		items, err := p.children(spec.Container)
		if err != nil {
			return nil, err
		}
		records := make([]media.Record, len(items))
		for i := range items {
			records[i] = p.record(&items[i], spec.Keys)
		}
		return records, nil
	})
}

// Resolve implements types.Provider.
func (p *Provider) Resolve(ctx context.Context, spec types.ResolveSpec, results chan<- types.ResolveDelivery) uint {
	return p.ops.Resolve(ctx, results, func(context.Context) (media.Record, error) {
		if spec.Record.IsContainer() && spec.Record.ID() == "" {
			root := media.NewBox()
			root.Set(media.KeyTitle, p.Name())
			root.Set(media.KeyChildCount, len(p.catalog.Items))
			return root, nil
		}
		it, ok := p.index[spec.Record.ID()]
		if !ok {
			return nil, notFound(spec.Record.ID())
		}
		return p.record(it, spec.Keys), nil
	})
}

// Cancel implements types.Provider.
func (p *Provider) Cancel(opID uint) {
	if p.ops.Cancel(opID) {
		p.logger.Debug("operation cancelled", "op_id", opID)
	}
}

func (p *Provider) children(container media.Record) ([]Item, error) {
	if container == nil || container.ID() == "" {
		return p.catalog.Items, nil
	}
	it, ok := p.index[container.ID()]
	if !ok {
		return nil, notFound(container.ID())
	}
	if it.TypeName() != media.TypeBox {
		// Browsing a leaf yields the leaf itself.
		return []Item{*it}, nil
	}
	return it.Children, nil
}

// record builds a native record for it carrying only keys.
func (p *Provider) record(it *Item, keys []media.Key) media.Record {
	rec, _ := p.kinds.New(it.TypeName())
	rec.SetID(it.ID)

	values := map[media.Key]any{
		media.KeyTitle:  it.Title,
		media.KeyURL:    it.URL,
		media.KeyArtist: it.Artist,
		media.KeyAlbum:  it.Album,
		media.KeyGenre:  it.Genre,
		media.KeyMime:   it.Mime,
	}
	if it.Duration > 0 {
		values[media.KeyDuration] = it.Duration
	}
	if rec.IsContainer() {
		values[media.KeyChildCount] = len(it.Children)
	}

	for _, k := range keys {
		v, ok := values[k]
		if !ok {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		rec.Set(k, v)
	}
	return rec
}

func notFound(id string) error {
	return errors.NewError(errors.ErrCodeNotFound, "no such item").
		WithComponent("memory").
		WithDetail("id", id)
}
