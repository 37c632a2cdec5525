// Package capture exports A/B segments and still frames of the active
// media source using FFmpeg.
//
// An export validates its range before touching anything, asks the save
// picker (if any) for a destination, records the segment through the
// best container/codec pair the local FFmpeg supports, and writes the
// result to the picked destination. When there is no picker, the user
// cancelled it, or the write fails, the data is kept as a download in the
// configured downloads directory instead.
//
// FFmpeg and FFprobe must be installed; without them exports fail with
// ErrCaptureUnsupported and nothing is written.
package capture
