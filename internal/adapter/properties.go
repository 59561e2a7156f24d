package adapter

import (
	"sort"

	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// Runtime property keys.
const (
	PropBrowseResolution   = "browse-resolution"
	PropMetadataResolution = "metadata-resolution"
	PropDefaultMime        = "default-mime"
)

type properties struct {
	browseResolution   types.Resolution
	metadataResolution types.Resolution
	defaultMime        string
	idleRelay          bool
}

// PropertyKeys lists the keys accepted by Property and SetProperty.
func PropertyKeys() []string {
	keys := []string{PropBrowseResolution, PropMetadataResolution, PropDefaultMime}
	sort.Strings(keys)
	return keys
}

// Property returns the textual value of a runtime property.
func (s *Source) Property(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case PropBrowseResolution:
		return s.props.browseResolution.String(), nil
	case PropMetadataResolution:
		return s.props.metadataResolution.String(), nil
	case PropDefaultMime:
		return s.props.defaultMime, nil
	default:
		return "", s.unknownProperty("get_property", key)
	}
}

// Properties returns every runtime property.
func (s *Source) Properties() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]string{
		PropBrowseResolution:   s.props.browseResolution.String(),
		PropMetadataResolution: s.props.metadataResolution.String(),
		PropDefaultMime:        s.props.defaultMime,
	}
}

// SetProperty validates and stores a runtime property, then notifies
// watchers on the delivery loop. Setting a property to its current value
// notifies nobody.
func (s *Source) SetProperty(key, value string) error {
	s.mu.Lock()
	value, changed, err := s.props.set(key, value)
	if err != nil {
		s.mu.Unlock()
		if errors.IsCode(err, errors.ErrCodeInvalidProperty) {
			return s.unknownProperty("set_property", key)
		}
		return s.newError(errors.ErrCodeInvalidValue, "set_property", "invalid property value").
			WithCause(err).
			WithDetail("key", key)
	}
	watchers := make([]func(key, value string), 0, len(s.watchers))
	if changed {
		ids := make([]int, 0, len(s.watchers))
		for id := range s.watchers {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			watchers = append(watchers, s.watchers[id])
		}
	}
	s.mu.Unlock()

	if !changed {
		return nil
	}

	s.logger.Info("property changed", "key", key, "value", value)
	for _, fn := range watchers {
		fn := fn
		s.post(func() { fn(key, value) })
	}
	return nil
}

// Watch registers fn for property change notifications and returns a
// function that removes it.
func (s *Source) Watch(fn func(key, value string)) (unwatch func()) {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// BrowseResolution returns the resolution passed to provider browses.
func (s *Source) BrowseResolution() types.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props.browseResolution
}

// MetadataResolution returns the resolution passed to metadata fetches.
func (s *Source) MetadataResolution() types.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props.metadataResolution
}

// DefaultMime returns the fallback content kind.
func (s *Source) DefaultMime() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props.defaultMime
}

// set stores value under key and returns its normalized form.
func (p *properties) set(key, value string) (string, bool, error) {
	switch key {
	case PropBrowseResolution, PropMetadataResolution:
		r, err := types.ParseResolution(value)
		if err != nil {
			return "", false, err
		}
		target := &p.browseResolution
		if key == PropMetadataResolution {
			target = &p.metadataResolution
		}
		if *target == r {
			return r.String(), false, nil
		}
		*target = r
		return r.String(), true, nil
	case PropDefaultMime:
		if value == "" {
			return "", false, errors.NewError(errors.ErrCodeInvalidValue, "default mime cannot be empty")
		}
		if p.defaultMime == value {
			return value, false, nil
		}
		p.defaultMime = value
		return value, true, nil
	default:
		return "", false, errors.NewError(errors.ErrCodeInvalidProperty, "unknown property")
	}
}

func (s *Source) unknownProperty(operation, key string) *errors.BridgeError {
	return s.newError(errors.ErrCodeInvalidProperty, operation, "unknown property").
		WithDetail("key", key)
}
