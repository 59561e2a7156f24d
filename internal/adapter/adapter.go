package adapter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/grilobridge/grilobridge/internal/eventloop"
	"github.com/grilobridge/grilobridge/internal/keymap"
	"github.com/grilobridge/grilobridge/internal/objectid"
	"github.com/grilobridge/grilobridge/internal/tracker"
	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/media"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// DefaultMime is the content kind reported for records that carry none.
const DefaultMime = "audio/unknown"

// deliveryBuffer is the capacity of the channels handed to providers.
const deliveryBuffer = 16

// Options configures a Source.
type Options struct {
	Logger  *slog.Logger
	Loop    *eventloop.Loop
	Metrics types.MetricsCollector
	Kinds   *media.Registry

	BrowseResolution   types.Resolution
	MetadataResolution types.Resolution
	DefaultMime        string
	IdleRelay          bool
}

// Source adapts one provider to the types.Source surface.
type Source struct {
	id     string
	name   string
	logger *slog.Logger
	loop   *eventloop.Loop
	stats  types.MetricsCollector
	codec  *objectid.Codec
	keys   *keymap.Translator

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	provider  types.Provider
	closed    bool
	props     properties
	watchers  map[int]func(key, value string)
	nextWatch int

	requests *tracker.Tracker[*browseRequest]
	pumps    sync.WaitGroup
}

var _ types.Source = (*Source)(nil)

// browseRequest is the state of one in-flight browse. opID, opKnown,
// cancelPending and stop are guarded by Source.mu; index is only touched on
// the delivery loop.
type browseRequest struct {
	cb            types.BrowseFunc
	started       time.Time
	opID          uint
	opKnown       bool
	cancelPending bool
	stop          func() bool
	index         int
}

// New creates a source bound to provider. The source lives until Close or
// until ctx is done.
func New(ctx context.Context, provider types.Provider, opts Options) *Source {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Loop == nil {
		opts.Loop = eventloop.New(opts.Logger)
		opts.Loop.Start()
	}
	if opts.DefaultMime == "" {
		opts.DefaultMime = DefaultMime
	}

	id := objectid.Sanitize(provider.ID())
	sctx, cancel := context.WithCancel(ctx)

	s := &Source{
		id:     id,
		name:   provider.Name(),
		logger: opts.Logger.With("component", "adapter", "source", id),
		loop:   opts.Loop,
		stats:  opts.Metrics,
		codec:  objectid.NewCodec(opts.Kinds),
		keys:   keymap.New(opts.Logger),
		ctx:    sctx,
		cancel: cancel,
		props: properties{
			browseResolution:   opts.BrowseResolution,
			metadataResolution: opts.MetadataResolution,
			defaultMime:        opts.DefaultMime,
			idleRelay:          opts.IdleRelay,
		},
		provider: provider,
		watchers: make(map[int]func(key, value string)),
		requests: tracker.New[*browseRequest](),
	}
	context.AfterFunc(sctx, s.Close)
	return s
}

// ID returns the sanitized instance id.
func (s *Source) ID() string { return s.id }

// Name returns the provider's display name.
func (s *Source) Name() string { return s.name }

// Bound reports whether the source still holds its provider.
func (s *Source) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider != nil
}

// InFlight returns the number of browse requests still awaiting a terminal
// delivery.
func (s *Source) InFlight() int {
	return s.requests.Len()
}

// Close cancels every in-flight browse, reports OPERATION_CANCELED to each
// caller and detaches the provider. Further operations report UNIMPLEMENTED.
func (s *Source) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	p := s.provider
	s.provider = nil
	drained := s.requests.Drain()
	type cancelled struct {
		id uint32
		r  *browseRequest
		op uint
		ok bool
	}
	pending := make([]cancelled, 0, len(drained))
	for id, r := range drained {
		pending = append(pending, cancelled{id: id, r: r, op: r.opID, ok: r.opKnown})
		if r.stop != nil {
			r.stop()
		}
	}
	s.mu.Unlock()

	for _, c := range pending {
		if p != nil && c.ok {
			p.Cancel(c.op)
		}
		s.finish(c.r, "browse", false)

		id, r := c.id, c.r
		err := s.newError(errors.ErrCodeOperationCanceled, "browse", "source is shutting down")
		// index is owned by the loop; deliveries posted before this one
		// have already advanced it.
		s.loop.Post(func() {
			r.cb(types.BrowseResult{BrowseID: id, Index: r.index, Err: err})
		})
	}

	s.cancel()
	s.pumps.Wait()

	if len(pending) > 0 {
		s.logger.Info("cancelled in-flight browse requests", "count", len(pending))
	}
	s.logger.Debug("provider detached")
}

// post runs fn on the delivery loop.
func (s *Source) post(fn func()) {
	if !s.loop.Post(fn) {
		s.logger.Warn("delivery loop stopped, dropping callback")
	}
}

// reservePump accounts for a pump goroutine unless the source is detached.
func (s *Source) reservePump() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider == nil {
		return false
	}
	s.pumps.Add(1)
	return true
}

func (s *Source) snapshot() (types.Provider, properties) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider, s.props
}

func (s *Source) finish(r *browseRequest, operation string, success bool) {
	if s.stats == nil {
		return
	}
	s.stats.AddInFlight(s.id, -1)
	s.stats.RecordOperation(operation, s.id, time.Since(r.started), success)
}

func (s *Source) newError(code errors.ErrorCode, operation, msg string) *errors.BridgeError {
	return errors.NewError(code, msg).
		WithComponent("adapter").
		WithOperation(operation).
		WithDetail("source", s.id)
}

func (s *Source) unimplemented(operation string) *errors.BridgeError {
	return s.newError(errors.ErrCodeUnimplemented, operation, "Not implemented")
}

func (s *Source) backendError(operation string, cause error) *errors.BridgeError {
	e := errors.Wrap(errors.ErrCodeBackendError, "provider reported an error", cause).
		WithComponent("adapter").
		WithOperation(operation).
		WithDetail("source", s.id)
	if s.stats != nil {
		s.stats.RecordError(operation, e)
	}
	return e
}
