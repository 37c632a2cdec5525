package mediatypes

import (
	"testing"
)

func TestExt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"clip.mp4", ".mp4"},
		{"CLIP.MKV", ".mkv"},
		{"/a/b/c.webm?token=1", ".webm"},
		{"https://example.com/v/stream.m3u8#t=10", ".m3u8"},
		{"noext", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Ext(tt.in); got != tt.want {
				t.Errorf("Ext(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		want Kind
	}{
		{"MP4 video", ".mp4", KindVideo},
		{"WebM video", ".webm", KindVideo},
		{"HLS manifest", ".m3u8", KindVideo},
		{"MP3 audio", ".mp3", KindAudio},
		{"WPL playlist", ".wpl", KindPlaylist},
		{"M3U playlist", ".m3u", KindPlaylist},
		{"PNG snapshot", ".png", KindImage},
		{"Unknown extension", ".xyz", KindOther},
		{"Empty extension", "", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.ext); got != tt.want {
				t.Errorf("KindOf(%q) = %v, want %v", tt.ext, got, tt.want)
			}
		})
	}
}

func TestMimeType(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".mp4", "video/mp4"},
		{".webm", "video/webm"},
		{".png", "image/png"},
		{".unknown", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := MimeType(tt.ext); got != tt.want {
			t.Errorf("MimeType(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestIsPlayableAndIsVideo(t *testing.T) {
	if !IsPlayable(".mkv") || !IsPlayable(".flac") {
		t.Error("IsPlayable() rejected a playable extension")
	}
	if IsPlayable(".wpl") {
		t.Error("IsPlayable(.wpl) = true")
	}
	if !IsVideo("Movie.MOV") {
		t.Error("IsVideo(Movie.MOV) = false")
	}
	if IsVideo("notes.txt") {
		t.Error("IsVideo(notes.txt) = true")
	}
}
