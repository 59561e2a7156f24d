// Package objectid encodes and decodes caller object identifiers of the form
// <instanceID>::<nativeType>:<nativeID>.
package objectid

import (
	"fmt"
	"strings"

	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/media"
)

const (
	instanceSep = "::"
	typeSep     = ":"
)

var sanitizer = strings.NewReplacer("-", "_", ":", "_")

// Sanitize turns a provider id into an instance id safe to embed in object ids.
func Sanitize(providerID string) string {
	return sanitizer.Replace(providerID)
}

// Ref is a decoded object id.
type Ref struct {
	Instance string
	Type     string
	ID       string
}

// IsRoot reports whether the ref names the provider's root container.
func (r Ref) IsRoot() bool {
	return r.Type == "" && r.ID == ""
}

// Encode builds an object id for one native record.
func Encode(instanceID, nativeType, nativeID string) string {
	return instanceID + instanceSep + nativeType + typeSep + nativeID
}

// EncodeRoot builds the object id of the root container.
func EncodeRoot(instanceID string) string {
	return instanceID + instanceSep
}

// EncodeRecord encodes rec. A container with an empty id encodes as the root.
func EncodeRecord(instanceID string, rec media.Record) string {
	if rec.IsContainer() && rec.ID() == "" {
		return EncodeRoot(instanceID)
	}
	return Encode(instanceID, rec.TypeName(), rec.ID())
}

// Decode splits an object id. It fails with INVALID_IDENTIFIER when the
// instance separator is missing or a non-empty payload has no type separator.
func Decode(objectID string) (Ref, error) {
	instance, payload, ok := strings.Cut(objectID, instanceSep)
	if !ok {
		return Ref{}, invalid(objectID, "missing instance separator")
	}
	if payload == "" {
		return Ref{Instance: instance}, nil
	}

	typeName, id, ok := strings.Cut(payload, typeSep)
	if !ok {
		return Ref{}, invalid(objectID, "missing type separator")
	}
	if typeName == "" {
		return Ref{}, invalid(objectID, "empty type name")
	}
	return Ref{Instance: instance, Type: typeName, ID: id}, nil
}

// Codec rebuilds native records from object ids using a closed kind registry.
type Codec struct {
	kinds *media.Registry
}

// NewCodec creates a codec. A nil registry means media.Builtin().
func NewCodec(kinds *media.Registry) *Codec {
	if kinds == nil {
		kinds = media.Builtin()
	}
	return &Codec{kinds: kinds}
}

// Record decodes objectID into an empty native record carrying only its id.
// The root decodes to a fresh box with an empty id.
func (c *Codec) Record(objectID string) (media.Record, Ref, error) {
	ref, err := Decode(objectID)
	if err != nil {
		return nil, Ref{}, err
	}
	if ref.IsRoot() {
		return media.NewBox(), ref, nil
	}

	rec, ok := c.kinds.New(ref.Type)
	if !ok {
		return nil, Ref{}, invalid(objectID, fmt.Sprintf("unknown type %q", ref.Type))
	}
	rec.SetID(ref.ID)
	return rec, ref, nil
}

func invalid(objectID, reason string) error {
	return errors.NewError(errors.ErrCodeInvalidIdentifier, reason).
		WithComponent("objectid").
		WithOperation("decode").
		WithDetail("object_id", objectID)
}
