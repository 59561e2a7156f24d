package adapter

import (
	"context"
	"time"

	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/media"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// GetMetadata fetches attributes for objectID and calls cb exactly once on
// the delivery loop. Providers with OpResolve are asked directly; the rest
// get a single-item browse of the record.
//
// ctx is only checked when the call is made: a request already dispatched is
// not cancellable and completes even if ctx ends. Source teardown still ends
// it with OPERATION_CANCELED.
func (s *Source) GetMetadata(ctx context.Context, objectID string, keys []string, cb types.MetadataFunc) {
	p, props := s.snapshot()
	if p == nil {
		cb(types.MetadataResult{ObjectID: objectID, Err: s.unimplemented("get_metadata")})
		return
	}

	if err := ctx.Err(); err != nil {
		e := s.newError(errors.ErrCodeOperationCanceled, "get_metadata", "caller context done").WithCause(err)
		s.post(func() { cb(types.MetadataResult{ObjectID: objectID, Err: e}) })
		return
	}

	rec, _, err := s.codec.Record(objectID)
	if err != nil {
		s.logger.Debug("rejecting metadata request", "object_id", objectID, "error", err)
		s.post(func() { cb(types.MetadataResult{ObjectID: objectID, Err: err}) })
		return
	}

	if !s.reservePump() {
		cb(types.MetadataResult{ObjectID: objectID, Err: s.unimplemented("get_metadata")})
		return
	}

	nativeKeys := s.keys.ToNative(p.SupportedKeys(), keys)
	started := time.Now()

	if s.stats != nil {
		s.stats.AddInFlight(s.id, 1)
	}
	done := func(res types.MetadataResult) {
		if s.stats != nil {
			s.stats.AddInFlight(s.id, -1)
			s.stats.RecordOperation("get_metadata", s.id, time.Since(started), res.Err == nil)
		}
		cb(res)
	}

	if p.Operations().Has(types.OpResolve) {
		results := make(chan types.ResolveDelivery, 1)
		go s.pumpResolve(objectID, results, props.defaultMime, done)
		p.Resolve(s.ctx, types.ResolveSpec{
			Record:     rec,
			Keys:       nativeKeys,
			Resolution: props.metadataResolution,
		}, results)
		return
	}

	results := make(chan types.BrowseDelivery, deliveryBuffer)
	go s.pumpSingle(objectID, results, props.defaultMime, done)
	p.Browse(s.ctx, types.BrowseSpec{
		Container:  rec,
		Keys:       nativeKeys,
		Skip:       0,
		Count:      1,
		Resolution: props.metadataResolution,
		IdleRelay:  props.idleRelay,
	}, results)
}

func (s *Source) pumpResolve(objectID string, results <-chan types.ResolveDelivery, defaultMime string, done types.MetadataFunc) {
	defer s.pumps.Done()
	var res types.MetadataResult
	select {
	case d, ok := <-results:
		switch {
		case !ok:
			res = s.violation(objectID, "provider closed its results without a delivery")
		case d.Err != nil:
			res = types.MetadataResult{ObjectID: objectID, Err: s.backendError("get_metadata", d.Err)}
		default:
			res = s.metadataResult(objectID, d.Record, defaultMime)
		}
	case <-s.ctx.Done():
		res = s.detached(objectID)
	}
	s.post(func() { done(res) })
}

// pumpSingle forwards the first delivery of a single-item browse and drains
// the rest.
func (s *Source) pumpSingle(objectID string, results <-chan types.BrowseDelivery, defaultMime string, done types.MetadataFunc) {
	defer s.pumps.Done()
	var res types.MetadataResult
	var first types.BrowseDelivery

	select {
	case d, ok := <-results:
		if !ok {
			res = s.violation(objectID, "provider closed its results without a delivery")
			s.post(func() { done(res) })
			return
		}
		first = d
	case <-s.ctx.Done():
		res = s.detached(objectID)
		s.post(func() { done(res) })
		return
	}

	if first.Err != nil {
		res = types.MetadataResult{ObjectID: objectID, Err: s.backendError("get_metadata", first.Err)}
	} else {
		res = s.metadataResult(objectID, first.Record, defaultMime)
	}
	s.post(func() { done(res) })

	if first.Terminal() {
		return
	}

	if s.stats != nil {
		s.stats.RecordProtocolViolation(s.id)
	}
	s.logger.Warn("provider returned more than one result for a single-item browse",
		"object_id", objectID, "remaining", first.Remaining,
		"code", errors.ErrCodeProtocolViolation)

	for {
		select {
		case d, ok := <-results:
			if !ok || d.Terminal() {
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Source) metadataResult(objectID string, rec media.Record, defaultMime string) types.MetadataResult {
	if rec == nil {
		return types.MetadataResult{ObjectID: objectID}
	}
	return types.MetadataResult{
		ObjectID: objectID,
		Metadata: s.keys.FromNative(rec, defaultMime),
	}
}

func (s *Source) violation(objectID, msg string) types.MetadataResult {
	if s.stats != nil {
		s.stats.RecordProtocolViolation(s.id)
	}
	err := s.newError(errors.ErrCodeProtocolViolation, "get_metadata", msg)
	s.logger.Warn("provider protocol violation", "object_id", objectID, "error", err)
	return types.MetadataResult{ObjectID: objectID, Err: err}
}

func (s *Source) detached(objectID string) types.MetadataResult {
	return types.MetadataResult{
		ObjectID: objectID,
		Err:      s.newError(errors.ErrCodeOperationCanceled, "get_metadata", "source is shutting down"),
	}
}
