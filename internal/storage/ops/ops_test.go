package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/media"
	"github.com/grilobridge/grilobridge/pkg/types"
)

func records(ids ...string) []media.Record {
	out := make([]media.Record, len(ids))
	for i, id := range ids {
		a := media.NewAudio()
		a.SetID(id)
		out[i] = a
	}
	return out
}

func collect(t *testing.T, ch <-chan types.BrowseDelivery) []types.BrowseDelivery {
	t.Helper()
	var got []types.BrowseDelivery
	for {
		select {
		case d := <-ch:
			got = append(got, d)
			if d.Terminal() {
				return got
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no terminal delivery")
		}
	}
}

func TestWindow(t *testing.T) {
	t.Parallel()

	items := []int{0, 1, 2, 3, 4}
	tests := []struct {
		name        string
		skip, count uint
		want        []int
	}{
		{name: "all", want: []int{0, 1, 2, 3, 4}},
		{name: "skip", skip: 2, want: []int{2, 3, 4}},
		{name: "count", count: 2, want: []int{0, 1}},
		{name: "skip and count", skip: 1, count: 3, want: []int{1, 2, 3}},
		{name: "count past end", skip: 3, count: 10, want: []int{3, 4}},
		{name: "skip past end", skip: 5},
		{name: "unlimited", count: types.CountUnlimited, want: []int{0, 1, 2, 3, 4}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Window(items, tt.skip, tt.count))
		})
	}
}

func TestTable_StartEndCancel(t *testing.T) {
	t.Parallel()

	tbl := NewTable()
	id1, ctx1 := tbl.Start(context.Background())
	id2, ctx2 := tbl.Start(context.Background())
	assert.Equal(t, uint(1), id1)
	assert.Equal(t, uint(2), id2)
	assert.Equal(t, 2, tbl.Len())

	assert.True(t, tbl.Cancel(id1))
	assert.Error(t, ctx1.Err())
	assert.NoError(t, ctx2.Err())

	tbl.End(id1)
	tbl.End(id2)
	assert.Error(t, ctx2.Err())
	assert.Zero(t, tbl.Len())
	assert.False(t, tbl.Cancel(id2))
}

func TestTable_Browse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		recs        []media.Record
		err         error
		skip, count uint
		wantIDs     []string
		wantErr     bool
	}{
		{name: "window", recs: records("a", "b", "c", "d"), skip: 1, count: 2, wantIDs: []string{"b", "c"}},
		{name: "empty", recs: nil, wantIDs: []string{""}},
		{name: "fetch error", err: errors.NewError(errors.ErrCodeNotFound, "gone"), wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tbl := NewTable()
			ch := make(chan types.BrowseDelivery, 8)
			opID := tbl.Browse(context.Background(), ch, tt.skip, tt.count, func(context.Context) ([]media.Record, error) {
				return tt.recs, tt.err
			})

			got := collect(t, ch)
			if tt.wantErr {
				require.Len(t, got, 1)
				assert.True(t, errors.IsCode(got[0].Err, errors.ErrCodeNotFound))
				return
			}

			require.Len(t, got, len(tt.wantIDs))
			for i, d := range got {
				assert.Equal(t, opID, d.OpID)
				assert.Equal(t, len(got)-1-i, d.Remaining)
				if d.Record != nil {
					assert.Equal(t, tt.wantIDs[i], d.Record.ID())
				}
			}
			assert.Eventually(t, func() bool { return tbl.Len() == 0 }, 5*time.Second, 5*time.Millisecond)
		})
	}
}

func TestTable_BrowseCancelled(t *testing.T) {
	t.Parallel()

	tbl := NewTable()
	ch := make(chan types.BrowseDelivery)
	opID := tbl.Browse(context.Background(), ch, 0, 0, func(context.Context) ([]media.Record, error) {
		return records("a", "b", "c"), nil
	})

	first := <-ch
	require.NoError(t, first.Err)
	require.True(t, tbl.Cancel(opID))

	// The delivery already in hand may still arrive before the cancel is seen.
	got := collect(t, ch)
	last := got[len(got)-1]
	assert.ErrorIs(t, last.Err, context.Canceled)
}

func TestTable_BrowseStopsWhenContextDone(t *testing.T) {
	t.Parallel()

	tbl := NewTable()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan types.BrowseDelivery)
	tbl.Browse(ctx, ch, 0, 0, func(context.Context) ([]media.Record, error) {
		return records("a", "b"), nil
	})
	cancel()

	assert.Eventually(t, func() bool { return tbl.Len() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestTable_Resolve(t *testing.T) {
	t.Parallel()

	tbl := NewTable()
	ch := make(chan types.ResolveDelivery, 1)
	opID := tbl.Resolve(context.Background(), ch, func(context.Context) (media.Record, error) {
		return records("x")[0], nil
	})

	d := <-ch
	assert.Equal(t, opID, d.OpID)
	require.NoError(t, d.Err)
	assert.Equal(t, "x", d.Record.ID())
}
