package mediatypes

import (
	"path"
	"strings"
)

// Kind classifies a playable or importable file.
type Kind string

const (
	// KindVideo is a video container the player can open.
	KindVideo Kind = "video"
	// KindAudio is an audio-only file.
	KindAudio Kind = "audio"
	// KindPlaylist is a playlist file accepted by Import.
	KindPlaylist Kind = "playlist"
	// KindImage is a still image (snapshots).
	KindImage Kind = "image"
	// KindOther is anything else.
	KindOther Kind = "other"
)

// VideoExtensions lists the video formats accepted from the picker and
// from the cloud listing.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
	".flv":  true,
	".wmv":  true,
	".m4v":  true,
	".m3u8": true,
	".mpeg": true,
	".mpg":  true,
	".ts":   true,
}

// AudioExtensions lists audio formats the player also accepts.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
}

// PlaylistExtensions lists playlist formats accepted by Import.
var PlaylistExtensions = map[string]bool{
	".wpl": true,
	".m3u": true,
}

var mimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".flv":  "video/x-flv",
	".wmv":  "video/x-ms-wmv",
	".m4v":  "video/x-m4v",
	".m3u8": "application/vnd.apple.mpegurl",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".ts":   "video/mp2t",

	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".wav":  "audio/wav",

	".png": "image/png",

	".wpl": "application/vnd.ms-wpl",
	".m3u": "audio/x-mpegurl",
}

// Ext returns the lowercase extension of a file name or URL path,
// ignoring any query string.
func Ext(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(path.Ext(name))
}

// KindOf returns the Kind for a lowercase extension with leading dot.
func KindOf(ext string) Kind {
	switch {
	case VideoExtensions[ext]:
		return KindVideo
	case AudioExtensions[ext]:
		return KindAudio
	case PlaylistExtensions[ext]:
		return KindPlaylist
	case ext == ".png":
		return KindImage
	}
	return KindOther
}

// MimeType returns the MIME type for an extension, or
// "application/octet-stream" when unknown.
func MimeType(ext string) string {
	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsPlayable reports whether the extension is a video or audio format.
func IsPlayable(ext string) bool {
	k := KindOf(ext)
	return k == KindVideo || k == KindAudio
}

// IsVideo reports whether a file name has a video extension.
func IsVideo(name string) bool {
	return VideoExtensions[Ext(name)]
}
