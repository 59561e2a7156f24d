package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grilobridge/grilobridge/pkg/utils"
)

func TestLoop_RunsInOrder(t *testing.T) {
	t.Parallel()

	l := New(utils.DiscardLogger())
	l.Start()
	defer l.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Flush(ctx))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_SingleGoroutine(t *testing.T) {
	t.Parallel()

	l := New(utils.DiscardLogger())
	l.Start()

	var active, maxActive int32
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Post(func() {
					n := atomic.AddInt32(&active, 1)
					if n > atomic.LoadInt32(&maxActive) {
						atomic.StoreInt32(&maxActive, n)
					}
					atomic.AddInt32(&active, -1)
				})
			}
		}()
	}
	wg.Wait()
	l.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	assert.Equal(t, 0, l.Pending())
}

func TestLoop_StopDrainsAndRejects(t *testing.T) {
	t.Parallel()

	l := New(utils.DiscardLogger())

	var ran int32
	for i := 0; i < 10; i++ {
		l.Post(func() { atomic.AddInt32(&ran, 1) })
	}
	assert.Equal(t, 10, l.Pending())

	// Stop starts the loop if needed and runs everything already queued.
	l.Stop()
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran))

	assert.False(t, l.Post(func() {}))
	assert.NoError(t, l.Flush(context.Background()))
	l.Stop()
}

func TestLoop_PanicDoesNotKillLoop(t *testing.T) {
	t.Parallel()

	l := New(utils.DiscardLogger())
	l.Start()
	defer l.Stop()

	var after bool
	l.Post(func() { panic("boom") })
	l.Post(func() { after = true })

	require.NoError(t, l.Flush(context.Background()))
	assert.True(t, after)
}

func TestLoop_FlushHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(utils.DiscardLogger())
	defer l.Stop()

	// Not started: the marker never runs.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Flush(ctx), context.DeadlineExceeded)
}
