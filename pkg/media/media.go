// Package media defines the native record model spoken by content providers.
package media

import (
	"sort"
)

// Key identifies a native attribute on a record.
type Key string

// Native attribute keys.
const (
	KeyID           Key = "id"
	KeyTitle        Key = "title"
	KeyURL          Key = "url"
	KeyArtist       Key = "artist"
	KeyAlbum        Key = "album"
	KeyGenre        Key = "genre"
	KeyThumbnail    Key = "thumbnail"
	KeyAuthor       Key = "author"
	KeyDescription  Key = "description"
	KeyLyrics       Key = "lyrics"
	KeyDuration     Key = "duration"
	KeyChildCount   Key = "childcount"
	KeyMime         Key = "mime"
	KeyWidth        Key = "width"
	KeyHeight       Key = "height"
	KeyFrameRate    Key = "framerate"
	KeyRating       Key = "rating"
	KeyBitrate      Key = "bitrate"
	KeyPlayCount    Key = "play-count"
	KeyLastPlayed   Key = "last-played"
	KeyLastPosition Key = "last-position"
)

// Record type names. They appear verbatim inside object identifiers.
const (
	TypeMedia = "Media"
	TypeAudio = "Audio"
	TypeVideo = "Video"
	TypeImage = "Image"
	TypeBox   = "Box"
)

// Record is a native item produced by a provider: an id plus a bag of
// attributes. The concrete kind is reported by TypeName.
type Record interface {
	TypeName() string
	IsContainer() bool
	ID() string
	SetID(id string)
	Get(key Key) (any, bool)
	Set(key Key, value any)
	Keys() []Key
}

// Media is the generic record kind. The specialised kinds embed it.
type Media struct {
	values map[Key]any
}

// NewMedia creates an empty generic record.
func NewMedia() *Media {
	return &Media{values: make(map[Key]any)}
}

// TypeName implements Record.
func (m *Media) TypeName() string { return TypeMedia }

// IsContainer implements Record.
func (m *Media) IsContainer() bool { return false }

// ID returns the native id, or "" when unset.
func (m *Media) ID() string {
	return m.String(KeyID)
}

// SetID sets the native id.
func (m *Media) SetID(id string) {
	m.Set(KeyID, id)
}

// Get returns the raw value stored under key.
func (m *Media) Get(key Key) (any, bool) {
	if m.values == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Set stores value under key. A nil value removes the key.
func (m *Media) Set(key Key, value any) {
	if m.values == nil {
		m.values = make(map[Key]any)
	}
	if value == nil {
		delete(m.values, key)
		return
	}
	m.values[key] = value
}

// Keys returns the keys present on the record in sorted order.
func (m *Media) Keys() []Key {
	keys := make([]Key, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// String returns the value under key when it is a string.
func (m *Media) String(key Key) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Audio is an audio track.
type Audio struct{ Media }

// NewAudio creates an empty audio record.
func NewAudio() *Audio { return &Audio{Media: *NewMedia()} }

// TypeName implements Record.
func (a *Audio) TypeName() string { return TypeAudio }

// Video is a video item.
type Video struct{ Media }

// NewVideo creates an empty video record.
func NewVideo() *Video { return &Video{Media: *NewMedia()} }

// TypeName implements Record.
func (v *Video) TypeName() string { return TypeVideo }

// Image is a still image.
type Image struct{ Media }

// NewImage creates an empty image record.
func NewImage() *Image { return &Image{Media: *NewMedia()} }

// TypeName implements Record.
func (i *Image) TypeName() string { return TypeImage }

// Box is a container. A box with an empty id is the provider's root.
type Box struct{ Media }

// NewBox creates an empty container record.
func NewBox() *Box { return &Box{Media: *NewMedia()} }

// TypeName implements Record.
func (b *Box) TypeName() string { return TypeBox }

// IsContainer implements Record.
func (b *Box) IsContainer() bool { return true }

// StringValue returns the string stored under key on r, or "".
func StringValue(r Record, key Key) string {
	if r == nil {
		return ""
	}
	v, ok := r.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
