package capture

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// EndEpsilon is subtracted from the end marker so recording stops before
// the frame at B.
const EndEpsilon = 0.02

var (
	// ErrInvalidRange is returned for ranges outside 0 <= start < end <= duration.
	ErrInvalidRange = errors.New("invalid export range")
	// ErrCaptureUnsupported means no usable recorder is available.
	ErrCaptureUnsupported = errors.New("capture not supported")
	// ErrCancelled is returned by a SavePicker when the user dismisses it.
	ErrCancelled = errors.New("save cancelled")
)

// Source is the media an export reads from. Local sources carry a path.
type Source struct {
	Ref  string
	Path string
}

// Input returns what FFmpeg should open.
func (s Source) Input() string {
	if s.Path != "" {
		return s.Path
	}
	return s.Ref
}

// Request describes one segment export.
type Request struct {
	Source   Source
	Start    float64
	End      float64
	Duration float64
}

// Validate checks the range without side effects.
func (r Request) Validate() error {
	switch {
	case math.IsNaN(r.Start) || math.IsNaN(r.End) || math.IsNaN(r.Duration):
		return fmt.Errorf("%w: not a number", ErrInvalidRange)
	case r.Start < 0:
		return fmt.Errorf("%w: start %.2fs is negative", ErrInvalidRange, r.Start)
	case r.End <= r.Start:
		return fmt.Errorf("%w: end %.2fs is not after start %.2fs", ErrInvalidRange, r.End, r.Start)
	case r.Duration <= 0 || r.End > r.Duration:
		return fmt.Errorf("%w: end %.2fs is beyond duration %.2fs", ErrInvalidRange, r.End, r.Duration)
	}
	return nil
}

// Format is an output container with optional codec constraints.
type Format struct {
	Container  string `json:"container"`
	VideoCodec string `json:"videoCodec,omitempty"`
	AudioCodec string `json:"audioCodec,omitempty"`
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	return "." + f.Container
}

// MimeType returns the MIME type of the container.
func (f Format) MimeType() string {
	return "video/" + f.Container
}

func (f Format) String() string {
	if f.VideoCodec == "" {
		return f.Container
	}
	return fmt.Sprintf("%s(%s,%s)", f.Container, f.VideoCodec, f.AudioCodec)
}

// Preferences is the ordered list of output formats: a widely compatible
// container first, open ones after.
var Preferences = []Format{
	{Container: "mp4", VideoCodec: "libx264", AudioCodec: "aac"},
	{Container: "mp4"},
	{Container: "webm", VideoCodec: "libvpx-vp9", AudioCodec: "libopus"},
	{Container: "webm", VideoCodec: "libvpx", AudioCodec: "libopus"},
	{Container: "webm"},
}

// ChooseFormat returns the first preference whose container and codecs
// are all supported.
func ChooseFormat(muxers, encoders map[string]bool) (Format, bool) {
	for _, f := range Preferences {
		if !muxers[f.Container] {
			continue
		}
		if f.VideoCodec != "" && !encoders[f.VideoCodec] {
			continue
		}
		if f.AudioCodec != "" && !encoders[f.AudioCodec] {
			continue
		}
		return f, true
	}
	return Format{}, false
}

// FormatTime renders seconds as mm:ss, or hh:mm:ss from one hour on.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "00:00"
	}
	s := int64(math.Max(0, math.Floor(seconds)))
	h, m, sec := s/3600, (s%3600)/60, s%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

// SegmentFileName returns the default name of an exported segment.
func SegmentFileName(start, end float64, f Format) string {
	a := strings.ReplaceAll(FormatTime(start), ":", "-")
	b := strings.ReplaceAll(FormatTime(end), ":", "-")
	return fmt.Sprintf("segment_%s_%s%s", a, b, f.Ext())
}

// recordLength is how long the recorder runs for a validated range.
func recordLength(start, end float64) float64 {
	length := end - EndEpsilon - start
	if length <= 0 {
		return end - start
	}
	return length
}
