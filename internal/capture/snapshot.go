package capture

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/disintegration/imaging"

	"rere-player/internal/metrics"
)

// Snapshotter saves single frames as PNG downloads.
type Snapshotter struct {
	grabber   FrameGrabber
	downloads *Downloader
}

// NewSnapshotter creates a snapshotter. A nil grabber makes snapshots
// fail with ErrCaptureUnsupported.
func NewSnapshotter(grabber FrameGrabber, downloads *Downloader) *Snapshotter {
	return &Snapshotter{grabber: grabber, downloads: downloads}
}

// Snapshot grabs the frame at the given position. Mirrored frames are
// flipped horizontally to match what the viewer sees.
func (s *Snapshotter) Snapshot(ctx context.Context, src Source, at float64, mirrored bool) (Download, error) {
	if s.grabber == nil {
		metrics.SnapshotsTotal.WithLabelValues("unsupported").Inc()
		return Download{}, ErrCaptureUnsupported
	}
	if at < 0 {
		at = 0
	}

	img, err := s.grabber.GrabFrame(ctx, src.Input(), at)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return Download{}, fmt.Errorf("failed to grab frame: %w", err)
	}
	if mirrored {
		img = imaging.FlipH(img)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return Download{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d.png", time.Now().UnixMilli())
	dl, err := s.downloads.Save(name, &buf)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return Download{}, err
	}
	metrics.SnapshotsTotal.WithLabelValues("success").Inc()
	return dl, nil
}
