package media

import (
	"path"
	"strings"
)

var mimeByExtension = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"mp4":  "video/mp4",
	"m4v":  "video/mp4",
	"mov":  "video/quicktime",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
}

var videoExtensions = map[string]struct{}{
	"mp4": {}, "webm": {}, "mov": {}, "mkv": {}, "gif": {}, "avi": {}, "m4v": {}, "flv": {},
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	ext := path.Ext(strings.TrimSpace(name))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MimeType maps a filename to a content type, falling back to application/octet-stream.
func MimeType(name string) string {
	if value, ok := mimeByExtension[Extension(name)]; ok {
		return value
	}

	return "application/octet-stream"
}

// KindFromName guesses a display kind for a stored file; anything that is not video is shown as a photo.
func KindFromName(name string) Kind {
	if _, ok := videoExtensions[Extension(name)]; ok {
		return KindVideo
	}

	return KindPhoto
}
