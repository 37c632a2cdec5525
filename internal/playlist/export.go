package playlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"rere-player/internal/capture"
	"rere-player/internal/logging"
	"rere-player/internal/notify"
)

// ExportOptions selects the exported range. Unset bounds default to the
// active loop markers.
type ExportOptions struct {
	Start  *float64
	End    *float64
	Picker capture.SavePicker
}

// ExportSegment records a segment of the active source. The range is
// validated before any I/O; the duration is probed only when the player
// has not reported one yet.
func (s *Session) ExportSegment(ctx context.Context, opts ExportOptions) (*capture.Result, error) {
	res, err := s.exportSegment(ctx, opts)
	recordOp("export", err)
	switch {
	case err == nil:
		where := "downloads"
		if res.Destination == "picker" {
			where = res.Name
		}
		s.notifier.Notify(notify.KindInfo, fmt.Sprintf("Segment saved to %s (%s)", where, humanize.Bytes(uint64(res.Size))))
	case errors.Is(err, capture.ErrInvalidRange):
		s.notifier.Notify(notify.KindInvalidRange, "Set a valid A/B range first")
	case errors.Is(err, capture.ErrCaptureUnsupported):
		s.notifier.Notify(notify.KindUnsupported, "Segment export is not available on this system")
	case errors.Is(err, ErrNoActiveSource):
		s.notifier.Notify(notify.KindError, "Nothing to export")
	default:
		s.notifier.Notify(notify.KindError, "Export failed")
	}
	return res, err
}

func (s *Session) exportSegment(ctx context.Context, opts ExportOptions) (*capture.Result, error) {
	s.mu.Lock()
	if s.out.Source == nil {
		s.mu.Unlock()
		return nil, ErrNoActiveSource
	}
	src := *s.out.Source
	start, end := opts.Start, opts.End
	if start == nil {
		start = cloneFloat(s.out.LoopStart)
	}
	if end == nil {
		end = cloneFloat(s.out.LoopEnd)
	}
	duration := s.out.Duration
	s.mu.Unlock()

	if start == nil || end == nil {
		return nil, fmt.Errorf("%w: A/B markers not set", capture.ErrInvalidRange)
	}

	req := capture.Request{Source: src.captureSource(), Start: *start, End: *end, Duration: duration}
	if duration <= 0 && s.prober != nil {
		// Reject what can be rejected without the duration before probing.
		if err := (capture.Request{Start: req.Start, End: req.End, Duration: req.End}).Validate(); err != nil {
			return nil, err
		}
		info, err := s.prober.Probe(ctx, req.Source.Input())
		if err != nil {
			logging.Warn("Could not probe duration of %s: %v", src.Title, err)
		} else {
			req.Duration = info.Duration
		}
	}

	if s.exporter == nil {
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return nil, capture.ErrCaptureUnsupported
	}
	return s.exporter.Export(ctx, req, opts.Picker)
}

// TakeSnapshot saves the frame at the current position as a PNG.
func (s *Session) TakeSnapshot(ctx context.Context) (capture.Download, error) {
	s.mu.Lock()
	if s.out.Source == nil {
		s.mu.Unlock()
		return capture.Download{}, ErrNoActiveSource
	}
	src := *s.out.Source
	at := s.out.Position
	mirrored := s.out.Mirrored
	s.mu.Unlock()

	if s.snapshotter == nil {
		return capture.Download{}, capture.ErrCaptureUnsupported
	}
	dl, err := s.snapshotter.Snapshot(ctx, src.captureSource(), at, mirrored)
	recordOp("snapshot", err)
	if err != nil {
		s.notifier.Notify(notify.KindError, "Snapshot failed")
		return dl, err
	}
	s.notifier.Notify(notify.KindInfo, "Snapshot saved as "+dl.Name)
	return dl, nil
}
