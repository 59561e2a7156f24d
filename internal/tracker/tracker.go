// Package tracker keeps the table of in-flight requests of one source instance.
package tracker

import (
	"math"
	"sync"
)

// Tracker maps locally issued request ids to request state. Ids start at 1,
// increase monotonically and never collide with an id still registered.
// Zero is never issued.
type Tracker[T any] struct {
	mu      sync.Mutex
	next    uint32
	entries map[uint32]T
}

// New creates an empty tracker.
func New[T any]() *Tracker[T] {
	return &Tracker[T]{
		next:    1,
		entries: make(map[uint32]T),
	}
}

// Register stores v under a fresh id and returns it.
func (t *Tracker[T]) Register(v T) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if uint64(len(t.entries)) >= math.MaxUint32 {
		panic("tracker: id space exhausted")
	}

	for {
		id := t.next
		t.next++
		if t.next == 0 {
			t.next = 1
		}
		if _, busy := t.entries[id]; !busy {
			t.entries[id] = v
			return id
		}
	}
}

// Lookup returns the state registered under id.
func (t *Tracker[T]) Lookup(id uint32) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.entries[id]
	return v, ok
}

// Update replaces the state under id if it is still registered.
func (t *Tracker[T]) Update(id uint32, fn func(T) T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.entries[id]
	if !ok {
		return false
	}
	t.entries[id] = fn(v)
	return true
}

// Unregister removes id and returns its state. Only the first call for a
// given registration reports true.
func (t *Tracker[T]) Unregister(id uint32) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return v, ok
}

// Drain removes and returns every entry.
func (t *Tracker[T]) Drain() map[uint32]T {
	t.mu.Lock()
	defer t.mu.Unlock()

	drained := t.entries
	t.entries = make(map[uint32]T)
	return drained
}

// Len returns the number of registered entries.
func (t *Tracker[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
