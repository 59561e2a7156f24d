package registry

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/media"
	"github.com/grilobridge/grilobridge/pkg/types"
	"github.com/grilobridge/grilobridge/pkg/utils"
)

type stubProvider struct{ id string }

func (p stubProvider) ID() string                 { return p.id }
func (p stubProvider) Name() string               { return p.id }
func (p stubProvider) Operations() types.Ops      { return types.OpBrowse }
func (p stubProvider) SupportedKeys() []media.Key { return nil }
func (p stubProvider) Cancel(uint)                {}

func (p stubProvider) Browse(context.Context, types.BrowseSpec, chan<- types.BrowseDelivery) uint {
	return 1
}

func (p stubProvider) Resolve(context.Context, types.ResolveSpec, chan<- types.ResolveDelivery) uint {
	return 1
}

type stubSource struct{ id string }

func (s *stubSource) ID() string   { return s.id }
func (s *stubSource) Name() string { return "Source " + s.id }
func (s *stubSource) Browse(context.Context, types.BrowseRequest, types.BrowseFunc) uint32 {
	return types.InvalidBrowseID
}
func (s *stubSource) CancelBrowse(uint32) error                                         { return nil }
func (s *stubSource) GetMetadata(context.Context, string, []string, types.MetadataFunc) {}
func (s *stubSource) Property(string) (string, error)                                   { return "", nil }
func (s *stubSource) SetProperty(string, string) error                                  { return nil }

type recorder struct{ events []string }

func (r *recorder) handle(ev types.ProviderEvent) {
	r.events = append(r.events, ev.Kind.String()+":"+ev.Provider.ID())
}

func TestProviders_LoadAnnouncesOnce(t *testing.T) {
	t.Parallel()

	loader := func(ctx context.Context) ([]types.Provider, error) {
		return []types.Provider{stubProvider{"b"}, stubProvider{"c"}, stubProvider{"b"}}, nil
	}
	r := NewProviders(utils.DiscardLogger(), loader)
	require.NoError(t, r.Add(stubProvider{"a"}))

	rec := &recorder{}
	r.Subscribe(rec.handle)

	require.NoError(t, r.Load(context.Background()))
	assert.Equal(t, []string{"added:a", "added:b", "added:c"}, rec.events)

	require.NoError(t, r.Load(context.Background()))
	assert.Len(t, rec.events, 3)
	assert.Len(t, r.Providers(), 3)
}

func TestProviders_LoadError(t *testing.T) {
	t.Parallel()

	r := NewProviders(utils.DiscardLogger(), func(ctx context.Context) ([]types.Provider, error) {
		return nil, stderrors.New("boom")
	})
	err := r.Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRegistration))
}

func TestProviders_AddRemove(t *testing.T) {
	t.Parallel()

	r := NewProviders(utils.DiscardLogger())
	rec := &recorder{}
	unsubscribe := r.Subscribe(rec.handle)

	require.NoError(t, r.Add(stubProvider{"a"}))
	assert.Empty(t, rec.events, "nothing is announced before Load")

	require.NoError(t, r.Load(context.Background()))
	require.NoError(t, r.Add(stubProvider{"b"}))

	err := r.Add(stubProvider{"b"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeRegistration))

	require.NoError(t, r.Remove("a"))
	err = r.Remove("a")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	assert.Equal(t, []string{"added:a", "added:b", "removed:a"}, rec.events)

	_, ok := r.Get("a")
	assert.False(t, ok)
	p, ok := r.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", p.ID())

	unsubscribe()
	require.NoError(t, r.Remove("b"))
	assert.Len(t, rec.events, 3)
	assert.Empty(t, r.Providers())
}

func TestExtensions(t *testing.T) {
	t.Parallel()

	e := NewExtensions(utils.DiscardLogger())
	a := &stubSource{id: "a"}
	b := &stubSource{id: "b"}

	require.NoError(t, e.AddExtension(b))
	require.NoError(t, e.AddExtension(a))
	assert.True(t, errors.IsCode(e.AddExtension(&stubSource{id: "a"}), errors.ErrCodeRegistration))

	list := e.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID())
	assert.Equal(t, "b", list[1].ID())

	got, ok := e.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	// Only the registered instance can remove its id.
	assert.True(t, errors.IsCode(e.RemoveExtension(&stubSource{id: "a"}), errors.ErrCodeNotFound))
	require.NoError(t, e.RemoveExtension(a))
	assert.True(t, errors.IsCode(e.RemoveExtension(a), errors.ErrCodeNotFound))
	assert.Equal(t, 1, e.Len())
}
