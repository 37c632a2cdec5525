package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"rere-player/internal/logging"
)

// Destination receives a finished capture.
type Destination interface {
	Name() string
	Save(r io.Reader) (int64, error)
}

// SavePicker asks the user where to save before capture starts. It
// returns ErrCancelled when the user dismisses the prompt.
type SavePicker interface {
	Pick(ctx context.Context, suggestedName string, f Format) (Destination, error)
}

// PathPicker is a SavePicker whose answer is already known, for example a
// path submitted with the export request. An empty Path means cancelled.
type PathPicker struct {
	Path string
}

// Pick implements SavePicker.
func (p PathPicker) Pick(_ context.Context, suggestedName string, _ Format) (Destination, error) {
	if strings.TrimSpace(p.Path) == "" {
		return nil, ErrCancelled
	}
	path := p.Path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, suggestedName)
	}
	return &fileDestination{path: path}, nil
}

type fileDestination struct {
	path string
}

func (d *fileDestination) Name() string { return d.path }

// Save writes atomically so a failed write never leaves a partial file.
func (d *fileDestination) Save(r io.Reader) (int64, error) {
	return writeAtomic(d.path, r)
}

func writeAtomic(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return 0, err
	}
	return n, nil
}

// Download is a file kept in the downloads directory.
type Download struct {
	Name string `json:"name"`
	Path string `json:"-"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Downloader stores captures that the browser fetches from /downloads/.
type Downloader struct {
	dir string
}

// NewDownloader creates the downloads directory if needed.
func NewDownloader(dir string) (*Downloader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create downloads directory: %w", err)
	}
	return &Downloader{dir: dir}, nil
}

// Dir returns the downloads directory.
func (d *Downloader) Dir() string { return d.dir }

// Save stores r under name, adding a numeric suffix if the name is taken.
func (d *Downloader) Save(name string, r io.Reader) (Download, error) {
	name = filepath.Base(name)
	path := d.uniquePath(name)

	n, err := writeAtomic(path, r)
	if err != nil {
		return Download{}, err
	}

	base := filepath.Base(path)
	logging.Info("Saved download %s (%s)", base, humanize.Bytes(uint64(n)))
	return Download{Name: base, Path: path, Size: n, URL: "/downloads/" + base}, nil
}

func (d *Downloader) uniquePath(name string) string {
	path := filepath.Join(d.dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(d.dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
}

// Open returns a previously saved download by name.
func (d *Downloader) Open(name string) (*os.File, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(d.dir, name))
}
