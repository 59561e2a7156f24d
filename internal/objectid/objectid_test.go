package objectid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/media"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"grl-x", "grl_x"},
		{"grl:local:files", "grl_local_files"},
		{"a-b:c", "a_b_c"},
		{"plain", "plain"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Sanitize(tt.input)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "-")
			assert.NotContains(t, got, ":")
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typeName string
		id       string
	}{
		{media.TypeAudio, "42"},
		{media.TypeBox, "music/rock"},
		{media.TypeVideo, "a:b:c"},
		{media.TypeImage, ""},
	}

	for _, tt := range tests {
		t.Run(tt.typeName+"/"+tt.id, func(t *testing.T) {
			encoded := Encode("grl_x", tt.typeName, tt.id)
			ref, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, "grl_x", ref.Instance)
			assert.Equal(t, tt.typeName, ref.Type)
			assert.Equal(t, tt.id, ref.ID)
			assert.False(t, ref.IsRoot())
		})
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Ref
		wantErr bool
	}{
		{name: "root", input: "grl_x::", want: Ref{Instance: "grl_x"}},
		{name: "item", input: "grl_x::Audio:42", want: Ref{Instance: "grl_x", Type: "Audio", ID: "42"}},
		{name: "missing separator", input: "grl_x:Audio:42", wantErr: true},
		{name: "missing type separator", input: "grl_x::Audio", wantErr: true},
		{name: "empty type", input: "grl_x:::42", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidIdentifier))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeRecord(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "grl_x::", EncodeRecord("grl_x", media.NewBox()))

	box := media.NewBox()
	box.SetID("albums")
	assert.Equal(t, "grl_x::Box:albums", EncodeRecord("grl_x", box))

	audio := media.NewAudio()
	assert.Equal(t, "grl_x::Audio:", EncodeRecord("grl_x", audio))
}

func TestCodecRecord(t *testing.T) {
	t.Parallel()

	codec := NewCodec(nil)

	rec, ref, err := codec.Record("grl_x::")
	require.NoError(t, err)
	assert.True(t, ref.IsRoot())
	assert.Equal(t, media.TypeBox, rec.TypeName())
	assert.Empty(t, rec.ID())

	rec, _, err = codec.Record("grl_x::Audio:42")
	require.NoError(t, err)
	assert.Equal(t, media.TypeAudio, rec.TypeName())
	assert.Equal(t, "42", rec.ID())
	assert.Equal(t, []media.Key{media.KeyID}, rec.Keys())

	_, _, err = codec.Record("grl_x::Playlist:7")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidIdentifier))

	_, _, err = codec.Record("nonsense")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidIdentifier))
}
