// Package ops keeps the in-flight operation table of a provider and runs its
// browse and resolve operations in the shape the adapter expects.
package ops

import (
	"context"
	"sync"

	"github.com/grilobridge/grilobridge/pkg/media"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// BrowseFunc lists the records of one browse, before windowing.
type BrowseFunc func(ctx context.Context) ([]media.Record, error)

// ResolveFunc fetches the record of one resolve.
type ResolveFunc func(ctx context.Context) (media.Record, error)

// Table issues operation ids and holds the cancel function of each running
// operation. Ids start at 1.
type Table struct {
	mu      sync.Mutex
	next    uint
	cancels map[uint]context.CancelFunc
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{cancels: make(map[uint]context.CancelFunc)}
}

// Start registers a new operation whose context is derived from ctx.
func (t *Table) Start(ctx context.Context) (uint, context.Context) {
	opCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.cancels[t.next] = cancel
	return t.next, opCtx
}

// End removes the operation and releases its context.
func (t *Table) End(opID uint) {
	t.mu.Lock()
	cancel, ok := t.cancels[opID]
	delete(t.cancels, opID)
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

// Cancel cancels a running operation. It reports whether opID was running.
func (t *Table) Cancel(opID uint) bool {
	t.mu.Lock()
	cancel, ok := t.cancels[opID]
	t.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Len returns the number of running operations.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.cancels)
}

// Browse runs fetch on its own goroutine and delivers the skip/count window
// of its records on results, Remaining counting down to 0. A fetch error is
// the only delivery; an empty window is a single terminal delivery. Once the
// operation is cancelled the next delivery is a context.Canceled error.
// Nothing is sent after ctx is done.
func (t *Table) Browse(ctx context.Context, results chan<- types.BrowseDelivery, skip, count uint, fetch BrowseFunc) uint {
	opID, opCtx := t.Start(ctx)

	go func() {
		defer t.End(opID)

		records, err := fetch(opCtx)
		if err != nil {
			Send(ctx, results, types.BrowseDelivery{OpID: opID, Err: err})
			return
		}

		records = Window(records, skip, count)
		if len(records) == 0 {
			Send(ctx, results, types.BrowseDelivery{OpID: opID, Remaining: 0})
			return
		}

		for i, rec := range records {
			if opCtx.Err() != nil {
				Send(ctx, results, types.BrowseDelivery{OpID: opID, Err: context.Canceled})
				return
			}
			d := types.BrowseDelivery{OpID: opID, Record: rec, Remaining: len(records) - 1 - i}
			if !Send(ctx, results, d) {
				return
			}
		}
	}()
	return opID
}

// Resolve runs fetch on its own goroutine and delivers its single result.
func (t *Table) Resolve(ctx context.Context, results chan<- types.ResolveDelivery, fetch ResolveFunc) uint {
	opID, opCtx := t.Start(ctx)

	go func() {
		defer t.End(opID)

		rec, err := fetch(opCtx)
		Send(ctx, results, types.ResolveDelivery{OpID: opID, Record: rec, Err: err})
	}()
	return opID
}

// Window returns items[skip:skip+count]. A count of 0 means no limit.
func Window[T any](items []T, skip, count uint) []T {
	if skip >= uint(len(items)) {
		return nil
	}
	items = items[skip:]
	if count > 0 && count < uint(len(items)) {
		items = items[:count]
	}
	return items
}

// Send delivers v unless ctx is done first.
func Send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
