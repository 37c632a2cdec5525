package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"rere-player/internal/logging"
	"rere-player/internal/metrics"
)

// Result describes a finished export.
type Result struct {
	Name        string    `json:"name"`
	Format      string    `json:"format"`
	Size        int64     `json:"size"`
	Destination string    `json:"destination"` // "picker" or "download"
	Download    *Download `json:"download,omitempty"`
}

// Exporter runs segment exports.
type Exporter struct {
	recorder  Recorder
	downloads *Downloader
}

// NewExporter creates an exporter. A nil recorder makes every export
// fail with ErrCaptureUnsupported.
func NewExporter(recorder Recorder, downloads *Downloader) *Exporter {
	return &Exporter{recorder: recorder, downloads: downloads}
}

// Export validates req, resolves the destination through picker (which
// may be nil), records the segment and saves it.
func (e *Exporter) Export(ctx context.Context, req Request, picker SavePicker) (*Result, error) {
	if err := req.Validate(); err != nil {
		metrics.ExportsTotal.WithLabelValues("invalid_range", "none").Inc()
		return nil, err
	}
	if e.recorder == nil {
		metrics.ExportsTotal.WithLabelValues("unsupported", "none").Inc()
		return nil, ErrCaptureUnsupported
	}

	muxers, encoders, err := e.recorder.Formats(ctx)
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("unsupported", "none").Inc()
		return nil, err
	}
	format, ok := ChooseFormat(muxers, encoders)
	if !ok {
		metrics.ExportsTotal.WithLabelValues("unsupported", "none").Inc()
		return nil, fmt.Errorf("%w: no supported output container", ErrCaptureUnsupported)
	}

	name := SegmentFileName(req.Start, req.End, format)

	// The destination is chosen before recording so a cancel costs nothing.
	var dest Destination
	if picker != nil {
		dest, err = picker.Pick(ctx, name, format)
		switch {
		case errors.Is(err, ErrCancelled):
			logging.Debug("Save picker cancelled, export %s will be downloaded", name)
			dest = nil
		case err != nil:
			logging.Warn("Save picker failed, export %s will be downloaded: %v", name, err)
			dest = nil
		}
	}

	start := time.Now()
	var buf bytes.Buffer
	if err := e.recorder.Record(ctx, req.Source.Input(), req.Start, recordLength(req.Start, req.End), format, &buf); err != nil {
		metrics.ExportsTotal.WithLabelValues("error", "none").Inc()
		return nil, fmt.Errorf("recording %s failed: %w", name, err)
	}
	metrics.ExportDuration.WithLabelValues(format.Container).Observe(time.Since(start).Seconds())
	logging.Info("Captured %s [%s-%s] as %s (%s) in %v", req.Source.Input(),
		FormatTime(req.Start), FormatTime(req.End), format, humanize.Bytes(uint64(buf.Len())), time.Since(start).Round(time.Millisecond))

	data := buf.Bytes()
	if dest != nil {
		n, err := dest.Save(bytes.NewReader(data))
		if err == nil {
			metrics.ExportsTotal.WithLabelValues("success", "picker").Inc()
			return &Result{Name: dest.Name(), Format: format.String(), Size: n, Destination: "picker"}, nil
		}
		logging.Warn("Write to %s failed, falling back to download: %v", dest.Name(), err)
	}

	dl, err := e.downloads.Save(name, bytes.NewReader(data))
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("error", "download").Inc()
		return nil, fmt.Errorf("failed to save download %s: %w", name, err)
	}
	metrics.ExportsTotal.WithLabelValues("success", "download").Inc()
	return &Result{Name: dl.Name, Format: format.String(), Size: dl.Size, Destination: "download", Download: &dl}, nil
}
