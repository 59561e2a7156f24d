// Package keymap translates between caller attribute keys and native record keys.
package keymap

import (
	"log/slog"
	"slices"

	"github.com/grilobridge/grilobridge/pkg/media"
	"github.com/grilobridge/grilobridge/pkg/types"
)

// Caller attribute keys.
const (
	Title          = "title"
	Artist         = "artist"
	Album          = "album"
	Genre          = "genre"
	ThumbnailURI   = "thumbnail-uri"
	Composer       = "composer"
	Description    = "description"
	Lyrics         = "lyrics"
	Duration       = "duration"
	ChildCount     = "childcount"
	MimeType       = "mime-type"
	ResX           = "res-x"
	ResY           = "res-y"
	VideoFramerate = "video-framerate"
	Rating         = "rating"
	Bitrate        = "bitrate"
	PlayCount      = "play-count"
	LastPlayed     = "last-played"
	PausedPosition = "paused-position"
	URI            = "uri"
)

// ContainerMime is the content kind reported for every container.
const ContainerMime = "x-mafw/container"

var toNative = map[string]media.Key{
	Title:          media.KeyTitle,
	Artist:         media.KeyArtist,
	Album:          media.KeyAlbum,
	Genre:          media.KeyGenre,
	ThumbnailURI:   media.KeyThumbnail,
	Composer:       media.KeyAuthor,
	Description:    media.KeyDescription,
	Lyrics:         media.KeyLyrics,
	Duration:       media.KeyDuration,
	ChildCount:     media.KeyChildCount,
	MimeType:       media.KeyMime,
	ResX:           media.KeyWidth,
	ResY:           media.KeyHeight,
	VideoFramerate: media.KeyFrameRate,
	Rating:         media.KeyRating,
	Bitrate:        media.KeyBitrate,
	PlayCount:      media.KeyPlayCount,
	LastPlayed:     media.KeyLastPlayed,
	PausedPosition: media.KeyLastPosition,
	URI:            media.KeyURL,
}

var fromNative = func() map[media.Key]string {
	m := make(map[media.Key]string, len(toNative))
	for caller, native := range toNative {
		m[native] = caller
	}
	return m
}()

// NativeKey returns the native key for a caller key.
func NativeKey(callerKey string) (media.Key, bool) {
	k, ok := toNative[callerKey]
	return k, ok
}

// CallerKey returns the caller key for a native key.
func CallerKey(nativeKey media.Key) (string, bool) {
	k, ok := fromNative[nativeKey]
	return k, ok
}

// Translator converts key lists and records between the two vocabularies.
type Translator struct {
	logger *slog.Logger
}

// New creates a translator. A nil logger means slog.Default().
func New(logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{logger: logger.With("component", "keymap")}
}

// ToNative translates caller keys. The wildcard replaces every other key with
// supported. Unknown keys are dropped. The result starts with the native id
// key and has no duplicates.
func (t *Translator) ToNative(supported []media.Key, keys []string) []media.Key {
	out := []media.Key{media.KeyID}
	seen := map[media.Key]bool{media.KeyID: true}

	add := func(k media.Key) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}

	if slices.Contains(keys, types.Wildcard) {
		for _, s := range supported {
			add(s)
		}
		return out
	}

	for _, k := range keys {
		native, ok := toNative[k]
		if !ok {
			t.logger.Debug("dropping unknown key", "key", k)
			continue
		}
		add(native)
	}
	return out
}

// FromNative builds the caller attribute map for rec. Empty strings are
// skipped. Containers report ContainerMime as mime-type; other records
// report their own mime, falling back to defaultMime.
func (t *Translator) FromNative(rec media.Record, defaultMime string) map[string]any {
	attrs := make(map[string]any)
	for _, k := range rec.Keys() {
		caller, ok := fromNative[k]
		if !ok {
			continue
		}
		v, _ := rec.Get(k)
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		attrs[caller] = v
	}

	switch {
	case rec.IsContainer():
		attrs[MimeType] = ContainerMime
	case media.StringValue(rec, media.KeyMime) != "":
		attrs[MimeType] = media.StringValue(rec, media.KeyMime)
	case defaultMime != "":
		attrs[MimeType] = defaultMime
	}
	return attrs
}
