package middleware

import (
	"compress/gzip"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"
	"sync"

	"rere-player/internal/logging"
)

// CompressionConfig controls which responses are gzipped.
type CompressionConfig struct {
	MinSize           int
	Level             int
	CompressibleTypes []string
	// SkipPrefixes serve media bodies, which are ranged and already compressed.
	SkipPrefixes []string
}

// DefaultCompressionConfig gzips JSON and text bodies of at least 1KB.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"application/json",
			"application/xml",
			"application/javascript",
			"text/plain",
			"text/html",
			"text/css",
			"text/javascript",
			"text/xml",
			"image/svg+xml",
		},
		SkipPrefixes: []string{"/blob/", "/downloads/", "/api/baidu/stream/"},
	}
}

var gzipWriters = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

// gzipResponseWriter holds the first MinSize bytes back so small bodies are
// sent as is. Once the decision is made, writes go straight through.
type gzipResponseWriter struct {
	http.ResponseWriter
	config     CompressionConfig
	status     int
	pending    []byte
	decided    bool
	compressor *gzip.Writer
}

func newGzipResponseWriter(w http.ResponseWriter, config CompressionConfig) *gzipResponseWriter {
	return &gzipResponseWriter{
		ResponseWriter: w,
		config:         config,
		status:         http.StatusOK,
		pending:        make([]byte, 0, config.MinSize+1),
	}
}

func (g *gzipResponseWriter) WriteHeader(status int) {
	if !g.decided {
		g.status = status
	}
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	if g.decided {
		if g.compressor != nil {
			return g.compressor.Write(data)
		}
		return g.ResponseWriter.Write(data)
	}
	g.pending = append(g.pending, data...)
	if len(g.pending) > g.config.MinSize {
		g.decide()
	}
	return len(data), nil
}

func (g *gzipResponseWriter) compressible() bool {
	mediaType, _, err := mime.ParseMediaType(g.Header().Get("Content-Type"))
	if err != nil {
		return false
	}
	return slices.Contains(g.config.CompressibleTypes, mediaType)
}

// decide sends the status line and the held-back bytes, compressed or not.
func (g *gzipResponseWriter) decide() {
	if g.decided {
		return
	}
	g.decided = true

	body := g.pending
	g.pending = nil

	if len(body) < g.config.MinSize || !g.compressible() {
		g.ResponseWriter.WriteHeader(g.status)
		if _, err := g.ResponseWriter.Write(body); err != nil {
			logging.Debug("Response write failed: %v", err)
		}
		return
	}

	h := g.Header()
	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")

	g.compressor = gzipWriters.Get().(*gzip.Writer)
	g.compressor.Reset(g.ResponseWriter)
	g.ResponseWriter.WriteHeader(g.status)
	if _, err := g.compressor.Write(body); err != nil {
		logging.Debug("gzip write failed: %v", err)
	}
}

// Close flushes any held-back body and returns the compressor to the pool.
func (g *gzipResponseWriter) Close() error {
	g.decide()
	if g.compressor == nil {
		return nil
	}
	err := g.compressor.Close()
	gzipWriters.Put(g.compressor)
	g.compressor = nil
	return err
}

func (g *gzipResponseWriter) Flush() {
	g.decide()
	if g.compressor != nil {
		if err := g.compressor.Flush(); err != nil {
			logging.Debug("gzip flush failed: %v", err)
		}
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Compression gzips eligible responses for clients that accept it. Ranged
// requests and media paths pass through untouched, since a gzip body cannot
// satisfy a byte range of the original.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !wantsGzip(r) || hasAnyPrefix(r.URL.Path, config.SkipPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			gzw := newGzipResponseWriter(w, config)
			defer func() {
				if err := gzw.Close(); err != nil {
					logging.Debug("gzip close failed: %v", err)
				}
			}()
			next.ServeHTTP(gzw, r)
		})
	}
}

func wantsGzip(r *http.Request) bool {
	switch {
	case !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip"):
		return false
	case r.Header.Get("Upgrade") != "", r.Header.Get("Range") != "":
		return false
	case r.Header.Get("Accept") == "text/event-stream":
		return false
	}
	return true
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
