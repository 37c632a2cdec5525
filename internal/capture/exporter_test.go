package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeRecorder struct {
	muxers   map[string]bool
	encoders map[string]bool
	err      error
	calls    int
	formats  int
	input    string
	start    float64
	length   float64
}

func (r *fakeRecorder) Formats(context.Context) (map[string]bool, map[string]bool, error) {
	r.formats++
	return r.muxers, r.encoders, nil
}

func (r *fakeRecorder) Record(_ context.Context, input string, start, length float64, f Format, w io.Writer) error {
	r.calls++
	r.input, r.start, r.length = input, start, length
	if r.err != nil {
		return r.err
	}
	_, err := io.WriteString(w, "segment:"+f.Container)
	return err
}

func mp4Recorder() *fakeRecorder {
	return &fakeRecorder{
		muxers:   map[string]bool{"mp4": true},
		encoders: map[string]bool{"libx264": true, "aac": true},
	}
}

type fakePicker struct {
	dest   Destination
	err    error
	picked int
}

func (p *fakePicker) Pick(context.Context, string, Format) (Destination, error) {
	p.picked++
	return p.dest, p.err
}

type failingDestination struct{}

func (failingDestination) Name() string { return "/readonly/out.mp4" }

func (failingDestination) Save(io.Reader) (int64, error) {
	return 0, errors.New("read-only file system")
}

func newTestExporter(t *testing.T, rec Recorder) (*Exporter, string) {
	t.Helper()
	dir := t.TempDir()
	dl, err := NewDownloader(dir)
	if err != nil {
		t.Fatal(err)
	}
	return NewExporter(rec, dl), dir
}

func validRequest() Request {
	return Request{Source: Source{Ref: "https://example.com/a.mp4"}, Start: 10, End: 30, Duration: 60}
}

func TestExportInvalidRangeTouchesNothing(t *testing.T) {
	t.Parallel()

	rec := mp4Recorder()
	picker := &fakePicker{err: ErrCancelled}
	e, dir := newTestExporter(t, rec)

	req := validRequest()
	req.Start, req.End = 20, 15
	_, err := e.Export(context.Background(), req, picker)
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("Export() error = %v, want ErrInvalidRange", err)
	}
	if rec.formats != 0 || rec.calls != 0 || picker.picked != 0 {
		t.Errorf("recorder/picker touched: formats=%d record=%d picked=%d", rec.formats, rec.calls, picker.picked)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("downloads dir not empty: %d entries", len(entries))
	}
}

func TestExportUnsupported(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  Recorder
	}{
		{"no recorder", nil},
		{"no usable container", &fakeRecorder{muxers: map[string]bool{"avi": true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, dir := newTestExporter(t, tt.rec)
			if _, err := e.Export(context.Background(), validRequest(), nil); !errors.Is(err, ErrCaptureUnsupported) {
				t.Errorf("Export() error = %v, want ErrCaptureUnsupported", err)
			}
			if entries, _ := os.ReadDir(dir); len(entries) != 0 {
				t.Error("unsupported export left a file behind")
			}
		})
	}
}

func TestExportFallsBackToDownload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		picker SavePicker
	}{
		{"no picker", nil},
		{"picker cancelled", &fakePicker{err: ErrCancelled}},
		{"picker errored", &fakePicker{err: errors.New("boom")}},
		{"write failed", &fakePicker{dest: failingDestination{}}},
		{"empty path picker", PathPicker{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := mp4Recorder()
			e, dir := newTestExporter(t, rec)

			res, err := e.Export(context.Background(), validRequest(), tt.picker)
			if err != nil {
				t.Fatalf("Export() error: %v", err)
			}
			if res.Destination != "download" || res.Download == nil {
				t.Fatalf("Export() = %+v, want download", res)
			}
			if res.Name != "segment_00-10_00-30.mp4" {
				t.Errorf("Name = %q", res.Name)
			}
			data, err := os.ReadFile(filepath.Join(dir, res.Name))
			if err != nil || string(data) != "segment:mp4" {
				t.Errorf("download content = %q, %v", data, err)
			}
			if rec.start != 10 || rec.input != "https://example.com/a.mp4" {
				t.Errorf("recorder called with input %q start %v", rec.input, rec.start)
			}
		})
	}
}

func TestExportToPickedPath(t *testing.T) {
	t.Parallel()

	e, dlDir := newTestExporter(t, mp4Recorder())
	target := filepath.Join(t.TempDir(), "my clip.mp4")

	res, err := e.Export(context.Background(), validRequest(), PathPicker{Path: target})
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if res.Destination != "picker" || res.Name != target {
		t.Errorf("Export() = %+v", res)
	}
	if data, _ := os.ReadFile(target); string(data) != "segment:mp4" {
		t.Errorf("picked file content = %q", data)
	}
	if entries, _ := os.ReadDir(dlDir); len(entries) != 0 {
		t.Error("picked export also produced a download")
	}
}

func TestExportToPickedDirectory(t *testing.T) {
	t.Parallel()

	e, _ := newTestExporter(t, mp4Recorder())
	dir := t.TempDir()

	res, err := e.Export(context.Background(), validRequest(), PathPicker{Path: dir})
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if !strings.HasSuffix(res.Name, "segment_00-10_00-30.mp4") {
		t.Errorf("Name = %q", res.Name)
	}
}

func TestExportRecordFailure(t *testing.T) {
	t.Parallel()

	rec := mp4Recorder()
	rec.err = errors.New("ffmpeg crashed")
	e, dir := newTestExporter(t, rec)

	if _, err := e.Export(context.Background(), validRequest(), nil); err == nil {
		t.Fatal("Export() succeeded, want error")
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Error("failed recording left a file behind")
	}
}

func TestDownloaderUniqueNames(t *testing.T) {
	t.Parallel()

	dl, err := NewDownloader(filepath.Join(t.TempDir(), "downloads"))
	if err != nil {
		t.Fatal(err)
	}

	first, err := dl.Save("clip.mp4", strings.NewReader("a"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := dl.Save("clip.mp4", strings.NewReader("b"))
	if err != nil {
		t.Fatal(err)
	}
	if first.Name != "clip.mp4" || second.Name != "clip (1).mp4" {
		t.Errorf("names = %q, %q", first.Name, second.Name)
	}
	if second.URL != "/downloads/clip (1).mp4" {
		t.Errorf("URL = %q", second.URL)
	}

	f, err := dl.Open("clip.mp4")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	f.Close()

	for _, bad := range []string{"../etc/passwd", ".hidden", "a/b"} {
		if _, err := dl.Open(bad); err == nil {
			t.Errorf("Open(%q) succeeded", bad)
		}
	}
}
