package s3

import (
	"path"
	"strings"

	"github.com/grilobridge/grilobridge/pkg/media"
)

var extensions = map[string]string{
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wma":  "audio/x-ms-wma",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".ogv":  "video/ogg",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

// detectContentType returns the mime type for key's extension, or "".
func detectContentType(key string) string {
	return extensions[strings.ToLower(path.Ext(key))]
}

// kindFor maps a mime type to a record kind. Unknown types map to "".
func kindFor(mime string) string {
	switch {
	case strings.HasPrefix(mime, "audio/"):
		return media.TypeAudio
	case strings.HasPrefix(mime, "video/"):
		return media.TypeVideo
	case strings.HasPrefix(mime, "image/"):
		return media.TypeImage
	default:
		return ""
	}
}

// titleFor derives a display title from an object key or prefix.
func titleFor(key string) string {
	base := path.Base(strings.TrimSuffix(key, "/"))
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
