// Package frontend turns the callback surface of a source into blocking
// calls for the HTTP, FUSE and CLI frontends.
package frontend

import (
	"context"
	"sync"

	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// Catalog is where frontends find sources. registry.Extensions satisfies it.
type Catalog interface {
	Get(id string) (types.Source, bool)
	List() []types.Source
}

// Browse runs req against src and returns every delivery that carries an
// item, up to and including the terminal one. If ctx ends first the browse
// is cancelled and ctx's error is returned with what arrived so far. An
// error carried by the terminal delivery is returned as the error, with the
// results before it.
//
// Callbacks never block, so a slow caller cannot stall the delivery loop.
func Browse(ctx context.Context, src types.Source, req types.BrowseRequest) ([]types.BrowseResult, error) {
	var (
		mu      sync.Mutex
		results []types.BrowseResult
		failure error
		once    sync.Once
		done    = make(chan struct{})
	)

	id := src.Browse(ctx, req, func(r types.BrowseResult) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Err != nil:
			failure = r.Err
		case r.ObjectID != "":
			results = append(results, r)
		}
		if r.Terminal() {
			once.Do(func() { close(done) })
		}
	})

	select {
	case <-done:
	case <-ctx.Done():
		if id != types.InvalidBrowseID {
			_ = src.CancelBrowse(id)
		}
		mu.Lock()
		defer mu.Unlock()
		return append([]types.BrowseResult(nil), results...), ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	return results, failure
}

// Metadata runs GetMetadata and waits for its single callback.
func Metadata(ctx context.Context, src types.Source, objectID string, keys []string) (types.MetadataResult, error) {
	ch := make(chan types.MetadataResult, 1)
	src.GetMetadata(ctx, objectID, keys, func(r types.MetadataResult) {
		select {
		case ch <- r:
		default:
		}
	})

	select {
	case r := <-ch:
		return r, r.Err
	case <-ctx.Done():
		return types.MetadataResult{ObjectID: objectID}, ctx.Err()
	}
}

// Lookup returns the source with id or a NOT_FOUND error.
func Lookup(c Catalog, id string) (types.Source, error) {
	src, ok := c.Get(id)
	if !ok {
		return nil, errors.NewError(errors.ErrCodeNotFound, "no such source").
			WithComponent("frontend").
			WithDetail("source", id)
	}
	return src, nil
}
