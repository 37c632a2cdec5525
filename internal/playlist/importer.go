package playlist

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rere-player/internal/localfs"
	"rere-player/internal/logging"
	"rere-player/internal/mediatypes"
	"rere-player/internal/notify"
)

// WPL structure based on Windows Media Player playlist format
type WPL struct {
	XMLName xml.Name `xml:"smil"`
	Head    WPLHead  `xml:"head"`
	Body    WPLBody  `xml:"body"`
}

type WPLHead struct {
	Title string `xml:"title"`
}

type WPLBody struct {
	Seq WPLSeq `xml:"seq"`
}

type WPLSeq struct {
	Media []WPLMedia `xml:"media"`
}

type WPLMedia struct {
	Src string `xml:"src,attr"`
}

// PlaylistFile is a parsed playlist file.
type PlaylistFile struct {
	Name    string
	Path    string
	Entries []FileEntry
}

// FileEntry is one line of a playlist file.
type FileEntry struct {
	Src    string // as written in the file
	Title  string
	Remote bool
	Path   string // resolved local path
	Exists bool
}

// ImportResult summarizes an Import.
type ImportResult struct {
	Name    string `json:"name"`
	Added   int    `json:"added"`
	Skipped int    `json:"skipped"`
}

func isRemote(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// resolveEntry turns a playlist line into an entry. Windows separators are
// normalized and relative paths are taken relative to the playlist file.
func resolveEntry(src, title, dir string) FileEntry {
	if isRemote(src) {
		if title == "" {
			title = TitleFromURL(src)
		}
		return FileEntry{Src: src, Title: title, Remote: true}
	}

	p := strings.ReplaceAll(src, "\\", "/")
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	if title == "" {
		title = filepath.Base(p)
	}
	info, err := os.Stat(p)
	return FileEntry{Src: src, Title: title, Path: p, Exists: err == nil && info.Mode().IsRegular()}
}

// ParseWPL reads a Windows Media Player playlist.
func ParseWPL(path string) (*PlaylistFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wpl WPL
	if err := xml.Unmarshal(data, &wpl); err != nil {
		return nil, fmt.Errorf("invalid WPL playlist: %w", err)
	}

	pl := &PlaylistFile{Name: wpl.Head.Title, Path: path}
	dir := filepath.Dir(path)
	for _, media := range wpl.Body.Seq.Media {
		if strings.TrimSpace(media.Src) == "" {
			continue
		}
		pl.Entries = append(pl.Entries, resolveEntry(strings.TrimSpace(media.Src), "", dir))
	}
	return pl, nil
}

// ParseM3U reads a plain or extended M3U playlist. #EXTINF titles are kept.
func ParseM3U(path string) (*PlaylistFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	pl := &PlaylistFile{Path: path}
	dir := filepath.Dir(path)
	var title string

	scanner := bufio.NewScanner(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXTINF:"):
			if _, t, ok := strings.Cut(line, ","); ok {
				title = strings.TrimSpace(t)
			}
		case strings.HasPrefix(line, "#PLAYLIST:"):
			pl.Name = strings.TrimSpace(strings.TrimPrefix(line, "#PLAYLIST:"))
		case strings.HasPrefix(line, "#"):
			continue
		default:
			pl.Entries = append(pl.Entries, resolveEntry(line, title, dir))
			title = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pl, nil
}

// ParsePlaylistFile dispatches on the file extension.
func ParsePlaylistFile(path string) (*PlaylistFile, error) {
	var (
		pl  *PlaylistFile
		err error
	)
	switch ext := mediatypes.Ext(path); ext {
	case ".wpl":
		pl, err = ParseWPL(path)
	case ".m3u":
		pl, err = ParseM3U(path)
	default:
		return nil, fmt.Errorf("unsupported playlist format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	if pl.Name == "" {
		pl.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return pl, nil
}

// Import adds the entries of a WPL or M3U file in order. Local entries
// that do not exist are skipped.
func (s *Session) Import(ctx context.Context, path string, opts AddOptions) (ImportResult, error) {
	pl, err := ParsePlaylistFile(path)
	if err != nil {
		recordOp("import", err)
		s.notifier.Notify(notify.KindError, fmt.Sprintf("Could not read playlist: %v", err))
		return ImportResult{}, err
	}

	result := ImportResult{Name: pl.Name}
	selectNext := opts.Select

	// Consecutive entries of the same kind are added as one batch so the
	// playlist order matches the file.
	var urls []string
	var files []LocalFile
	flush := func() error {
		batchOpts := AddOptions{Select: selectNext, Origin: opts.Origin}
		var added []Item
		var err error
		switch {
		case len(urls) > 0:
			added, err = s.AddURLs(ctx, urls, batchOpts)
			urls = nil
		case len(files) > 0:
			added, err = s.AddFiles(ctx, files, batchOpts)
			files = nil
		}
		if len(added) > 0 {
			selectNext = false
		}
		result.Added += len(added)
		return err
	}

	for _, e := range pl.Entries {
		switch {
		case e.Remote:
			if len(files) > 0 {
				if err := flush(); err != nil {
					return result, err
				}
			}
			urls = append(urls, e.Src)
		case e.Exists:
			if len(urls) > 0 {
				if err := flush(); err != nil {
					return result, err
				}
			}
			files = append(files, LocalFile{Capability: localfs.New(e.Path, false)})
		default:
			logging.Warn("Playlist %s: skipping missing entry %s", pl.Name, e.Src)
			result.Skipped++
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	recordOp("import", nil)
	msg := fmt.Sprintf("Imported %d items from %s", result.Added, pl.Name)
	if result.Skipped > 0 {
		msg += fmt.Sprintf(" (%d missing)", result.Skipped)
	}
	s.notifier.Notify(notify.KindInfo, msg)
	return result, nil
}
