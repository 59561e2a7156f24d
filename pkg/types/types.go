package types

import (
	"fmt"
	"math"
	"strings"

	"github.com/grilobridge/grilobridge/pkg/media"
)

// Ops is the capability set a provider declares.
type Ops uint

const (
	// OpBrowse means the provider can enumerate a container.
	OpBrowse Ops = 1 << iota
	// OpResolve means the provider can fetch metadata for one record.
	OpResolve
)

// Has reports whether every flag in op is set.
func (o Ops) Has(op Ops) bool {
	return o&op == op
}

func (o Ops) String() string {
	var parts []string
	if o.Has(OpBrowse) {
		parts = append(parts, "browse")
	}
	if o.Has(OpResolve) {
		parts = append(parts, "resolve")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Resolution controls how much work a provider spends filling in metadata.
type Resolution int

const (
	ResolutionFastOnly Resolution = iota
	ResolutionNormal
	ResolutionFull
)

func (r Resolution) String() string {
	switch r {
	case ResolutionFastOnly:
		return "fast-only"
	case ResolutionNormal:
		return "normal"
	case ResolutionFull:
		return "full"
	default:
		return fmt.Sprintf("resolution(%d)", int(r))
	}
}

// ParseResolution parses the textual form produced by Resolution.String.
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast-only", "fast":
		return ResolutionFastOnly, nil
	case "normal":
		return ResolutionNormal, nil
	case "full":
		return ResolutionFull, nil
	default:
		return 0, fmt.Errorf("invalid resolution %q (want fast-only, normal or full)", s)
	}
}

// CountUnlimited is passed to providers when the caller asked for every item.
const CountUnlimited = math.MaxInt32

// InvalidBrowseID is returned by Browse when no request was started.
const InvalidBrowseID uint32 = 0

// Wildcard requests every key the provider supports.
const Wildcard = "*"

// BrowseSpec is a native browse request handed to a provider.
type BrowseSpec struct {
	Container  media.Record
	Keys       []media.Key
	Skip       uint
	Count      uint
	Resolution Resolution
	IdleRelay  bool
}

// ResolveSpec is a native metadata request handed to a provider.
type ResolveSpec struct {
	Record     media.Record
	Keys       []media.Key
	Resolution Resolution
}

// BrowseDelivery is one asynchronous browse delivery from a provider. A
// delivery with Remaining == 0 or a non-nil Err is terminal.
type BrowseDelivery struct {
	OpID      uint
	Record    media.Record
	Remaining int
	Err       error
}

// Terminal reports whether no further deliveries follow.
func (d BrowseDelivery) Terminal() bool {
	return d.Err != nil || d.Remaining <= 0
}

// ResolveDelivery is the single asynchronous result of a resolve.
type ResolveDelivery struct {
	OpID   uint
	Record media.Record
	Err    error
}

// BrowseRequest is a caller browse request.
type BrowseRequest struct {
	ObjectID     string
	Recursive    bool
	Filter       string
	SortCriteria string
	Keys         []string
	Skip         uint
	Count        uint
}

// BrowseResult is delivered to a caller once per browse delivery.
type BrowseResult struct {
	BrowseID  uint32         `json:"browse_id"`
	Remaining int            `json:"remaining"`
	Index     int            `json:"index"`
	ObjectID  string         `json:"object_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Err       error          `json:"-"`
}

// Terminal reports whether this is the last result of its browse.
func (r BrowseResult) Terminal() bool {
	return r.Err != nil || r.Remaining <= 0
}

// MetadataResult is delivered exactly once per GetMetadata call.
type MetadataResult struct {
	ObjectID string         `json:"object_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Err      error          `json:"-"`
}

// BrowseFunc receives browse results on the delivery loop.
type BrowseFunc func(BrowseResult)

// MetadataFunc receives the metadata result on the delivery loop.
type MetadataFunc func(MetadataResult)

// ProviderEventKind distinguishes provider registry notifications.
type ProviderEventKind int

const (
	ProviderAdded ProviderEventKind = iota
	ProviderRemoved
)

func (k ProviderEventKind) String() string {
	if k == ProviderRemoved {
		return "removed"
	}
	return "added"
}

// ProviderEvent is emitted by a ProviderRegistry.
type ProviderEvent struct {
	Kind     ProviderEventKind
	Provider Provider
}
