package tracker

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsMonotonic(t *testing.T) {
	t.Parallel()

	tr := New[string]()
	assert.Equal(t, uint32(1), tr.Register("a"))
	assert.Equal(t, uint32(2), tr.Register("b"))

	_, ok := tr.Unregister(1)
	require.True(t, ok)

	// Freed ids are not reused before wrap.
	assert.Equal(t, uint32(3), tr.Register("c"))
	assert.Equal(t, 2, tr.Len())
}

func TestLookupAndUnregister(t *testing.T) {
	t.Parallel()

	tr := New[int]()
	id := tr.Register(10)

	v, ok := tr.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, 10, v)

	assert.True(t, tr.Update(id, func(v int) int { return v + 1 }))
	v, _ = tr.Lookup(id)
	assert.Equal(t, 11, v)

	v, ok = tr.Unregister(id)
	require.True(t, ok)
	assert.Equal(t, 11, v)

	_, ok = tr.Unregister(id)
	assert.False(t, ok, "second unregister must report not found")

	_, ok = tr.Lookup(id)
	assert.False(t, ok)
	assert.False(t, tr.Update(id, func(v int) int { return v }))

	_, ok = tr.Lookup(999)
	assert.False(t, ok)
}

func TestWrapSkipsZeroAndBusyIDs(t *testing.T) {
	t.Parallel()

	tr := New[string]()
	first := tr.Register("still running")
	require.Equal(t, uint32(1), first)

	tr.next = math.MaxUint32
	assert.Equal(t, uint32(math.MaxUint32), tr.Register("last"))

	// 0 is skipped, 1 is busy, so the next free id is 2.
	assert.Equal(t, uint32(2), tr.Register("wrapped"))
}

func TestDrain(t *testing.T) {
	t.Parallel()

	tr := New[string]()
	a := tr.Register("a")
	b := tr.Register("b")

	drained := tr.Drain()
	assert.Equal(t, map[uint32]string{a: "a", b: "b"}, drained)
	assert.Equal(t, 0, tr.Len())

	_, ok := tr.Unregister(a)
	assert.False(t, ok)
	assert.Empty(t, tr.Drain())
}

func TestConcurrentRegister(t *testing.T) {
	t.Parallel()

	tr := New[int]()
	const workers, per = 8, 100

	var mu sync.Mutex
	seen := make(map[uint32]bool)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				id := tr.Register(i)
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*per)
	assert.False(t, seen[0])
	assert.Equal(t, workers*per, tr.Len())
}
