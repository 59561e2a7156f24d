package types

import (
	"context"
	"time"

	"github.com/grilobridge/grilobridge/pkg/media"
)

// Provider is a backend content provider. Browse and Resolve must return
// immediately; results are sent on the supplied channel, in order, from any
// goroutine. A provider must stop sending once ctx is done.
type Provider interface {
	ID() string
	Name() string
	Operations() Ops
	SupportedKeys() []media.Key

	// Browse starts enumerating spec.Container and returns the native
	// operation id used by Cancel.
	Browse(ctx context.Context, spec BrowseSpec, results chan<- BrowseDelivery) uint
	// Resolve fetches metadata for spec.Record and sends exactly one delivery.
	Resolve(ctx context.Context, spec ResolveSpec, results chan<- ResolveDelivery) uint
	// Cancel asks the provider to finish opID early. The provider still
	// sends a terminal delivery for it.
	Cancel(opID uint)
}

// Source is the uniform browse/metadata surface handed to frontends.
type Source interface {
	ID() string
	Name() string

	Browse(ctx context.Context, req BrowseRequest, cb BrowseFunc) uint32
	CancelBrowse(browseID uint32) error
	GetMetadata(ctx context.Context, objectID string, keys []string, cb MetadataFunc)

	Property(key string) (string, error)
	SetProperty(key, value string) error
}

// ExtensionRegistry receives sources from the lifecycle manager.
type ExtensionRegistry interface {
	AddExtension(src Source) error
	RemoveExtension(src Source) error
}

// ProviderRegistry discovers providers and notifies subscribers.
type ProviderRegistry interface {
	Subscribe(fn func(ProviderEvent)) (unsubscribe func())
	Load(ctx context.Context) error
	Providers() []Provider
}

// MetricsCollector defines the metrics collection interface
type MetricsCollector interface {
	RecordOperation(operation, source string, duration time.Duration, success bool)
	RecordError(operation string, err error)
	RecordProtocolViolation(source string)
	AddInFlight(source string, delta int)
	SetInstances(count int)
}
