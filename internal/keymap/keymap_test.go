package keymap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grilobridge/grilobridge/pkg/media"
	"github.com/grilobridge/grilobridge/pkg/utils"
)

func newTranslator() *Translator {
	return New(utils.DiscardLogger())
}

func TestTableIsBijective(t *testing.T) {
	t.Parallel()

	require.Len(t, fromNative, len(toNative))
	for caller, native := range toNative {
		back, ok := CallerKey(native)
		require.True(t, ok, "native key %s", native)
		assert.Equal(t, caller, back)
	}

	k, ok := NativeKey(Composer)
	require.True(t, ok)
	assert.Equal(t, media.KeyAuthor, k)

	_, ok = NativeKey("bogus")
	assert.False(t, ok)
}

func TestToNative(t *testing.T) {
	t.Parallel()

	supported := []media.Key{media.KeyID, media.KeyTitle, media.KeyURL, media.KeyDuration}

	tests := []struct {
		name string
		keys []string
		want []media.Key
	}{
		{
			name: "uri and title",
			keys: []string{URI, Title},
			want: []media.Key{media.KeyID, media.KeyURL, media.KeyTitle},
		},
		{
			name: "unknown keys dropped",
			keys: []string{"bogus", Artist, "also-bogus"},
			want: []media.Key{media.KeyID, media.KeyArtist},
		},
		{
			name: "duplicates removed",
			keys: []string{Title, Title, URI, Title},
			want: []media.Key{media.KeyID, media.KeyTitle, media.KeyURL},
		},
		{
			name: "wildcard replaces everything",
			keys: []string{Title, "*", Lyrics},
			want: supported,
		},
		{
			name: "no keys still asks for id",
			keys: nil,
			want: []media.Key{media.KeyID},
		},
		{
			name: "renamed keys",
			keys: []string{PausedPosition, ResX, ThumbnailURI},
			want: []media.Key{media.KeyID, media.KeyLastPosition, media.KeyWidth, media.KeyThumbnail},
		},
	}

	tr := newTranslator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.ToNative(supported, tt.keys))
		})
	}
}

func TestToNative_WildcardAddsIDWhenUnsupported(t *testing.T) {
	t.Parallel()

	got := newTranslator().ToNative([]media.Key{media.KeyTitle, media.KeyTitle}, []string{"*"})
	assert.Equal(t, []media.Key{media.KeyID, media.KeyTitle}, got)
}

func TestFromNative(t *testing.T) {
	t.Parallel()

	tr := newTranslator()

	t.Run("audio with own mime", func(t *testing.T) {
		a := media.NewAudio()
		a.SetID("42")
		a.Set(media.KeyTitle, "Song")
		a.Set(media.KeyArtist, "")
		a.Set(media.KeyURL, "file:///song.mp3")
		a.Set(media.KeyDuration, 215)
		a.Set(media.KeyMime, "audio/mpeg")

		got := tr.FromNative(a, "audio/unknown")
		assert.Equal(t, map[string]any{
			Title:    "Song",
			URI:      "file:///song.mp3",
			Duration: 215,
			MimeType: "audio/mpeg",
		}, got)
	})

	t.Run("container overrides mime", func(t *testing.T) {
		b := media.NewBox()
		b.SetID("albums")
		b.Set(media.KeyMime, "inode/directory")
		b.Set(media.KeyChildCount, 3)

		got := tr.FromNative(b, "audio/unknown")
		assert.Equal(t, ContainerMime, got[MimeType])
		assert.Equal(t, 3, got[ChildCount])
	})

	t.Run("default mime fallback", func(t *testing.T) {
		v := media.NewVideo()
		v.SetID("7")
		got := tr.FromNative(v, "video/unknown")
		assert.Equal(t, map[string]any{MimeType: "video/unknown"}, got)
	})

	t.Run("never emits empty strings", func(t *testing.T) {
		i := media.NewImage()
		i.Set(media.KeyTitle, "")
		i.Set(media.KeyMime, "")
		got := tr.FromNative(i, "")
		for k, v := range got {
			if s, ok := v.(string); ok {
				assert.NotEmpty(t, s, "key %s", k)
			}
		}
		assert.Empty(t, got)
	})
}
