package plugin

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grilobridge/grilobridge/internal/registry"
	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/media"
	"github.com/grilobridge/grilobridge/pkg/types"
	"github.com/grilobridge/grilobridge/pkg/utils"
)

// stallProvider accepts every request and never answers until cancelled.
type stallProvider struct {
	id  string
	ops types.Ops

	mu      sync.Mutex
	nextOp  uint
	cancels []uint
}

func (p *stallProvider) ID() string                 { return p.id }
func (p *stallProvider) Name() string               { return "Stall " + p.id }
func (p *stallProvider) Operations() types.Ops      { return p.ops }
func (p *stallProvider) SupportedKeys() []media.Key { return []media.Key{media.KeyID, media.KeyTitle} }

func (p *stallProvider) Browse(ctx context.Context, spec types.BrowseSpec, ch chan<- types.BrowseDelivery) uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextOp++
	return p.nextOp
}

func (p *stallProvider) Resolve(ctx context.Context, spec types.ResolveSpec, ch chan<- types.ResolveDelivery) uint {
	return p.Browse(ctx, types.BrowseSpec{}, nil)
}

func (p *stallProvider) Cancel(opID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels = append(p.cancels, opID)
}

func (p *stallProvider) cancelled() []uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint(nil), p.cancels...)
}

// countingExtensions wraps the in-memory registry and counts calls.
type countingExtensions struct {
	*registry.Extensions

	mu      sync.Mutex
	added   map[string]int
	removed map[string]int
	failAdd bool
}

func newCountingExtensions() *countingExtensions {
	return &countingExtensions{
		Extensions: registry.NewExtensions(utils.DiscardLogger()),
		added:      make(map[string]int),
		removed:    make(map[string]int),
	}
}

func (c *countingExtensions) AddExtension(src types.Source) error {
	c.mu.Lock()
	c.added[src.ID()]++
	fail := c.failAdd
	c.mu.Unlock()
	if fail {
		return stderrors.New("frontend refused")
	}
	return c.Extensions.AddExtension(src)
}

func (c *countingExtensions) RemoveExtension(src types.Source) error {
	c.mu.Lock()
	c.removed[src.ID()]++
	c.mu.Unlock()
	return c.Extensions.RemoveExtension(src)
}

func (c *countingExtensions) removals(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removed[id]
}

type fakeMetrics struct {
	mu        sync.Mutex
	instances int
}

func (m *fakeMetrics) RecordOperation(string, string, time.Duration, bool) {}
func (m *fakeMetrics) RecordError(string, error)                           {}
func (m *fakeMetrics) RecordProtocolViolation(string)                      {}
func (m *fakeMetrics) AddInFlight(string, int)                             {}
func (m *fakeMetrics) SetInstances(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances = n
}

func (m *fakeMetrics) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances
}

func newManager(opts Options) *Manager {
	opts.Logger = utils.DiscardLogger()
	return NewManager(opts)
}

func TestAccepts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		ops            types.Ops
		requireResolve bool
		want           bool
	}{
		{"browse only", types.OpBrowse, false, true},
		{"browse and resolve", types.OpBrowse | types.OpResolve, false, true},
		{"resolve only", types.OpResolve, false, false},
		{"nothing", 0, false, false},
		{"browse only, resolve required", types.OpBrowse, true, false},
		{"both, resolve required", types.OpBrowse | types.OpResolve, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(Options{RequireResolve: tt.requireResolve})
			assert.Equal(t, tt.want, m.Accepts(&stallProvider{id: "p", ops: tt.ops}))
		})
	}
}

func TestInitialize_DiscoversAndFilters(t *testing.T) {
	t.Parallel()

	providers := registry.NewProviders(utils.DiscardLogger())
	require.NoError(t, providers.Add(&stallProvider{id: "grl-browse", ops: types.OpBrowse}))
	require.NoError(t, providers.Add(&stallProvider{id: "grl-resolve-only", ops: types.OpResolve}))
	require.NoError(t, providers.Add(&stallProvider{id: "grl:both", ops: types.OpBrowse | types.OpResolve}))

	ext := newCountingExtensions()
	metrics := &fakeMetrics{}
	m := newManager(Options{Metrics: metrics})

	require.NoError(t, m.Initialize(context.Background(), providers, ext))
	defer m.Deinitialize()

	var ids []string
	for _, src := range m.Sources() {
		ids = append(ids, src.ID())
	}
	assert.Equal(t, []string{"grl_both", "grl_browse"}, ids)
	assert.Equal(t, 2, ext.Len())
	assert.Equal(t, 2, metrics.count())

	src, ok := m.Source("grl_browse")
	require.True(t, ok)
	assert.Equal(t, "Stall grl-browse", src.Name())

	_, ok = m.Source("grl_resolve_only")
	assert.False(t, ok)
}

func TestInitialize_Twice(t *testing.T) {
	t.Parallel()

	providers := registry.NewProviders(utils.DiscardLogger())
	m := newManager(Options{})

	require.NoError(t, m.Initialize(context.Background(), providers, newCountingExtensions()))
	defer m.Deinitialize()

	err := m.Initialize(context.Background(), providers, newCountingExtensions())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAlreadyInitialized))
}

func TestInitialize_LoadFailure(t *testing.T) {
	t.Parallel()

	providers := registry.NewProviders(utils.DiscardLogger(), func(ctx context.Context) ([]types.Provider, error) {
		return nil, stderrors.New("discovery broke")
	})
	m := newManager(Options{})

	err := m.Initialize(context.Background(), providers, newCountingExtensions())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRegistration))

	// A failed Initialize leaves the manager reusable.
	ok := registry.NewProviders(utils.DiscardLogger())
	require.NoError(t, m.Initialize(context.Background(), ok, newCountingExtensions()))
	m.Deinitialize()
}

func TestProviderAddedAfterInitialize(t *testing.T) {
	t.Parallel()

	providers := registry.NewProviders(utils.DiscardLogger())
	ext := newCountingExtensions()
	m := newManager(Options{})
	require.NoError(t, m.Initialize(context.Background(), providers, ext))
	defer m.Deinitialize()

	p := &stallProvider{id: "late", ops: types.OpBrowse}
	require.NoError(t, providers.Add(p))

	_, ok := ext.Get("late")
	assert.True(t, ok)
	assert.Len(t, m.Sources(), 1)
}

func TestProviderRemoved_CancelsInFlight(t *testing.T) {
	t.Parallel()

	providers := registry.NewProviders(utils.DiscardLogger())
	p := &stallProvider{id: "grl-x", ops: types.OpBrowse}
	require.NoError(t, providers.Add(p))

	ext := newCountingExtensions()
	metrics := &fakeMetrics{}
	m := newManager(Options{Metrics: metrics})
	require.NoError(t, m.Initialize(context.Background(), providers, ext))
	defer m.Deinitialize()

	src, ok := m.Source("grl_x")
	require.True(t, ok)

	results := make(chan types.BrowseResult, 4)
	cb := func(r types.BrowseResult) { results <- r }
	a := src.Browse(context.Background(), types.BrowseRequest{ObjectID: "grl_x::"}, cb)
	b := src.Browse(context.Background(), types.BrowseRequest{ObjectID: "grl_x::Box:music"}, cb)
	require.Equal(t, 2, src.InFlight())

	require.NoError(t, providers.Remove("grl-x"))

	got := map[uint32]error{}
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			got[r.BrowseID] = r.Err
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for cancellation callbacks")
		}
	}
	for _, id := range []uint32{a, b} {
		require.Contains(t, got, id)
		assert.True(t, errors.IsCode(got[id], errors.ErrCodeOperationCanceled))
	}

	assert.ElementsMatch(t, []uint{1, 2}, p.cancelled())
	assert.Equal(t, 0, src.InFlight())
	assert.False(t, src.Bound())
	assert.Equal(t, 1, ext.removals("grl_x"))
	assert.Equal(t, 0, ext.Len())
	assert.Empty(t, m.Sources())
	assert.Equal(t, 0, metrics.count())

	// Deinitialize must not deregister it a second time.
	m.Deinitialize()
	assert.Equal(t, 1, ext.removals("grl_x"))
}

func TestAddExtensionFailure(t *testing.T) {
	t.Parallel()

	providers := registry.NewProviders(utils.DiscardLogger())
	require.NoError(t, providers.Add(&stallProvider{id: "grl-x", ops: types.OpBrowse}))

	ext := newCountingExtensions()
	ext.failAdd = true
	m := newManager(Options{})
	require.NoError(t, m.Initialize(context.Background(), providers, ext))
	defer m.Deinitialize()

	assert.Empty(t, m.Sources())
	assert.Equal(t, 0, ext.removals("grl_x"))
}

func TestDeinitialize_ReleasesEverything(t *testing.T) {
	t.Parallel()

	providers := registry.NewProviders(utils.DiscardLogger())
	require.NoError(t, providers.Add(&stallProvider{id: "a", ops: types.OpBrowse}))
	require.NoError(t, providers.Add(&stallProvider{id: "b", ops: types.OpBrowse}))

	ext := newCountingExtensions()
	m := newManager(Options{})
	require.NoError(t, m.Initialize(context.Background(), providers, ext))

	sources := m.Sources()
	require.Len(t, sources, 2)

	m.Deinitialize()
	for _, src := range sources {
		assert.False(t, src.Bound())
		assert.Equal(t, 1, ext.removals(src.ID()))
	}
	assert.Equal(t, 0, ext.Len())

	// Events after Deinitialize are ignored.
	require.NoError(t, providers.Add(&stallProvider{id: "c", ops: types.OpBrowse}))
	assert.Empty(t, m.Sources())

	m.Deinitialize()
	require.NoError(t, m.Flush(context.Background()))
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "grilobridge", Name)
	assert.Equal(t, "grilo", UUID)
	assert.NotEmpty(t, DisplayName)
}
