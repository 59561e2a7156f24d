package types

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grilobridge/grilobridge/pkg/media"
)

// TestInterfaces verifies that our interfaces are properly structured
func TestInterfaces(t *testing.T) {
	var (
		_ Provider          = (*mockProvider)(nil)
		_ Source            = (*mockSource)(nil)
		_ ExtensionRegistry = (*mockExtensions)(nil)
		_ MetricsCollector  = (*mockMetricsCollector)(nil)
	)
}

func TestOps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ops     Ops
		browse  bool
		resolve bool
		str     string
	}{
		{0, false, false, "none"},
		{OpBrowse, true, false, "browse"},
		{OpResolve, false, true, "resolve"},
		{OpBrowse | OpResolve, true, true, "browse|resolve"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.browse, tt.ops.Has(OpBrowse))
			assert.Equal(t, tt.resolve, tt.ops.Has(OpResolve))
			assert.Equal(t, tt.browse && tt.resolve, tt.ops.Has(OpBrowse|OpResolve))
			assert.Equal(t, tt.str, tt.ops.String())
		})
	}
}

func TestParseResolution(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Resolution
		wantErr bool
	}{
		{"fast-only", ResolutionFastOnly, false},
		{"FAST", ResolutionFastOnly, false},
		{"normal", ResolutionNormal, false},
		{" full ", ResolutionFull, false},
		{"slow", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseResolution(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			roundTrip, err := ParseResolution(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, roundTrip)
		})
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, BrowseDelivery{Remaining: 0}.Terminal())
	assert.False(t, BrowseDelivery{Remaining: 2}.Terminal())
	assert.True(t, BrowseDelivery{Remaining: 2, Err: errors.New("x")}.Terminal())

	assert.True(t, BrowseResult{Remaining: 0}.Terminal())
	assert.False(t, BrowseResult{Remaining: 1}.Terminal())

	assert.Equal(t, math.MaxInt32, CountUnlimited)
	assert.Equal(t, uint32(0), InvalidBrowseID)
	assert.Equal(t, "removed", ProviderRemoved.String())
	assert.Equal(t, "added", ProviderAdded.String())
}

type mockProvider struct{}

func (m *mockProvider) ID() string                 { return "mock" }
func (m *mockProvider) Name() string               { return "Mock" }
func (m *mockProvider) Operations() Ops            { return OpBrowse }
func (m *mockProvider) SupportedKeys() []media.Key { return nil }
func (m *mockProvider) Browse(ctx context.Context, spec BrowseSpec, results chan<- BrowseDelivery) uint {
	return 1
}
func (m *mockProvider) Resolve(ctx context.Context, spec ResolveSpec, results chan<- ResolveDelivery) uint {
	return 1
}
func (m *mockProvider) Cancel(opID uint) {}

type mockSource struct{}

func (m *mockSource) ID() string   { return "mock" }
func (m *mockSource) Name() string { return "Mock" }
func (m *mockSource) Browse(ctx context.Context, req BrowseRequest, cb BrowseFunc) uint32 {
	return InvalidBrowseID
}
func (m *mockSource) CancelBrowse(browseID uint32) error { return nil }
func (m *mockSource) GetMetadata(ctx context.Context, objectID string, keys []string, cb MetadataFunc) {
}
func (m *mockSource) Property(key string) (string, error) { return "", nil }
func (m *mockSource) SetProperty(key, value string) error { return nil }

type mockExtensions struct{}

func (m *mockExtensions) AddExtension(src Source) error    { return nil }
func (m *mockExtensions) RemoveExtension(src Source) error { return nil }

type mockMetricsCollector struct{}

func (m *mockMetricsCollector) RecordOperation(operation, source string, duration time.Duration, success bool) {
}
func (m *mockMetricsCollector) RecordError(operation string, err error) {}
func (m *mockMetricsCollector) RecordProtocolViolation(source string)   {}
func (m *mockMetricsCollector) AddInFlight(source string, delta int)    {}
func (m *mockMetricsCollector) SetInstances(count int)                  {}
