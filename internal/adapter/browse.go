package adapter

import (
	"context"
	"time"

	"github.com/grilobridge/grilobridge/internal/objectid"
	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// Browse starts enumerating the container named by req.ObjectID and returns
// the browse id. cb runs on the delivery loop once per provider delivery with
// an index increasing from 0; the last call has Remaining == 0 or an error.
//
// Cancelling ctx cancels the browse. An unbound source calls cb synchronously
// with UNIMPLEMENTED and returns types.InvalidBrowseID.
func (s *Source) Browse(ctx context.Context, req types.BrowseRequest, cb types.BrowseFunc) uint32 {
	p, props := s.snapshot()
	if p == nil {
		cb(types.BrowseResult{BrowseID: types.InvalidBrowseID, Err: s.unimplemented("browse")})
		return types.InvalidBrowseID
	}

	container, _, err := s.codec.Record(req.ObjectID)
	if err != nil {
		s.logger.Debug("rejecting browse", "object_id", req.ObjectID, "error", err)
		s.post(func() { cb(types.BrowseResult{BrowseID: types.InvalidBrowseID, Err: err}) })
		return types.InvalidBrowseID
	}

	if req.Recursive || req.Filter != "" || req.SortCriteria != "" {
		s.logger.Debug("ignoring unsupported browse options",
			"recursive", req.Recursive, "filter", req.Filter, "sort", req.SortCriteria)
	}

	count := req.Count
	if count == 0 {
		count = types.CountUnlimited
	}
	spec := types.BrowseSpec{
		Container:  container,
		Keys:       s.keys.ToNative(p.SupportedKeys(), req.Keys),
		Skip:       req.Skip,
		Count:      count,
		Resolution: props.browseResolution,
		IdleRelay:  props.idleRelay,
	}

	r := &browseRequest{cb: cb, started: time.Now()}

	s.mu.Lock()
	if s.provider == nil {
		s.mu.Unlock()
		cb(types.BrowseResult{BrowseID: types.InvalidBrowseID, Err: s.unimplemented("browse")})
		return types.InvalidBrowseID
	}
	id := s.requests.Register(r)
	if s.stats != nil {
		s.stats.AddInFlight(s.id, 1)
	}
	s.pumps.Add(1)
	r.stop = context.AfterFunc(ctx, func() {
		if err := s.CancelBrowse(id); err == nil {
			s.logger.Debug("browse cancelled by caller context", "browse_id", id)
		}
	})
	s.mu.Unlock()

	results := make(chan types.BrowseDelivery, deliveryBuffer)
	go s.pumpBrowse(id, results)

	opID := p.Browse(s.ctx, spec, results)

	s.mu.Lock()
	r.opID = opID
	r.opKnown = true
	cancelNow := r.cancelPending
	s.mu.Unlock()

	if cancelNow {
		p.Cancel(opID)
	}

	s.logger.Debug("browse started", "browse_id", id, "op_id", opID,
		"object_id", req.ObjectID, "skip", req.Skip, "count", count)
	return id
}

// CancelBrowse asks the provider to stop browse id. The request stays
// registered until its terminal delivery arrives. Unknown ids fail with
// NOT_FOUND.
func (s *Source) CancelBrowse(id uint32) error {
	r, ok := s.requests.Lookup(id)
	if !ok {
		return s.newError(errors.ErrCodeNotFound, "cancel_browse", "unknown browse id").
			WithDetail("browse_id", id)
	}

	s.mu.Lock()
	p := s.provider
	if !r.opKnown {
		r.cancelPending = true
		s.mu.Unlock()
		s.logger.Debug("cancel deferred until dispatch completes", "browse_id", id)
		return nil
	}
	op := r.opID
	s.mu.Unlock()

	if p != nil {
		p.Cancel(op)
	}
	s.logger.Debug("browse cancel requested", "browse_id", id, "op_id", op)
	return nil
}

// pumpBrowse forwards provider deliveries for one browse to the loop.
func (s *Source) pumpBrowse(id uint32, results <-chan types.BrowseDelivery) {
	defer s.pumps.Done()
	for {
		select {
		case d, ok := <-results:
			if !ok {
				s.post(func() { s.deliverBrowse(id, d, true) })
				return
			}
			s.post(func() { s.deliverBrowse(id, d, false) })
			if d.Terminal() {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// deliverBrowse runs on the delivery loop.
func (s *Source) deliverBrowse(id uint32, d types.BrowseDelivery, closed bool) {
	r, ok := s.requests.Lookup(id)
	if !ok {
		return
	}

	res := types.BrowseResult{
		BrowseID:  id,
		Remaining: d.Remaining,
		Index:     r.index,
	}

	switch {
	case closed:
		res.Remaining = 0
		res.Err = s.newError(errors.ErrCodeProtocolViolation, "browse",
			"provider closed its results without a terminal delivery")
		if s.stats != nil {
			s.stats.RecordProtocolViolation(s.id)
		}
		s.logger.Warn("provider protocol violation", "browse_id", id, "error", res.Err)
	case d.Err != nil:
		res.Remaining = 0
		res.Err = s.backendError("browse", d.Err)
	case d.Record != nil:
		_, props := s.snapshot()
		res.ObjectID = objectid.EncodeRecord(s.id, d.Record)
		res.Metadata = s.keys.FromNative(d.Record, props.defaultMime)
	}
	r.index++

	if res.Terminal() {
		if _, ok := s.requests.Unregister(id); !ok {
			// Close drained it and owns the terminal notification.
			return
		}
		s.mu.Lock()
		stop := r.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.finish(r, "browse", res.Err == nil)
		s.logger.Debug("browse finished", "browse_id", id, "deliveries", r.index, "error", res.Err)
	}

	r.cb(res)
}
