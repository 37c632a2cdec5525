package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"

	"rere-player/internal/logging"
)

// RelayHeaders are the upstream headers a player needs for seeking and
// content sniffing.
var RelayHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Accept-Ranges",
	"Content-Range",
	"Content-Disposition",
	"Cache-Control",
	"ETag",
	"Last-Modified",
}

// Relay copies an upstream response to w with the upstream status code
// (200 or 206) and RelayHeaders. The caller still owns resp.Body.
// Content-Length is forwarded, so the response is only chunked when the
// upstream was.
func Relay(ctx context.Context, w http.ResponseWriter, resp *http.Response, config TimeoutWriterConfig) (int64, error) {
	h := w.Header()
	for _, name := range RelayHeaders {
		if v := resp.Header.Get(name); v != "" {
			h.Set(name, v)
		}
	}
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", "no-store")
	}
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(resp.StatusCode)

	return StreamWithTimeout(ctx, w, resp.Body, config)
}

// StreamWithTimeout copies r to w through a TimeoutWriter. Headers must
// already be written or set by the caller.
func StreamWithTimeout(ctx context.Context, w http.ResponseWriter, r io.Reader, config TimeoutWriterConfig) (int64, error) {
	tw := NewTimeoutWriter(ctx, w, config)
	defer func() {
		if err := tw.Close(); err != nil {
			logging.Warn("Failed to close timeout writer: %v", err)
		}
	}()

	_, err := io.Copy(tw, r)

	written, duration := tw.Stats()
	switch {
	case err == nil:
		logging.Debug("Relay completed: %s in %v", humanize.Bytes(uint64(written)), duration)
	case errors.Is(err, ErrClientGone):
		logging.Debug("Player went away after %s", humanize.Bytes(uint64(written)))
	default:
		logging.Warn("Relay stopped after %s: %v", humanize.Bytes(uint64(written)), err)
	}
	return written, err
}
