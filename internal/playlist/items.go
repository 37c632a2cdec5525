package playlist

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"rere-player/internal/database"
	"rere-player/internal/logging"
	"rere-player/internal/notify"
	"rere-player/internal/rebind"
)

// newItemID returns "<unix-millis>-<8 hex>", distinct from every id in taken.
func newItemID(taken map[string]bool) string {
	for {
		id := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		if !taken[id] {
			taken[id] = true
			return id
		}
	}
}

func (s *Session) takenIDsLocked() map[string]bool {
	taken := make(map[string]bool, len(s.items))
	for _, it := range s.items {
		taken[it.ID] = true
	}
	return taken
}

// TitleFromURL derives a display title from the last path segment of a
// URL, URL-decoded. Unparseable URLs are returned unchanged.
func TitleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	last := path.Base(strings.TrimRight(u.EscapedPath(), "/"))
	if last == "." || last == "/" || last == "" {
		return raw
	}
	if decoded, err := url.PathUnescape(last); err == nil {
		return decoded
	}
	return last
}

// AddURLs appends one remote item per non-blank URL, in order.
func (s *Session) AddURLs(ctx context.Context, urls []string, opts AddOptions) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taken := s.takenIDsLocked()
	added := make([]Item, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		added = append(added, Item{
			ID:     newItemID(taken),
			Title:  TitleFromURL(raw),
			URL:    raw,
			Origin: opts.Origin,
		})
	}

	s.appendLocked(ctx, added, opts)
	recordOp("add_urls", nil)
	return added, nil
}

// AddFiles appends one local item per file, in order. Each file's
// capability is stored once its item is in the playlist; a failed store is
// logged and the item simply has no capability. Files that cannot be read
// are skipped and reported.
func (s *Session) AddFiles(ctx context.Context, files []LocalFile, opts AddOptions) ([]Item, error) {
	s.mu.Lock()
	taken := s.takenIDsLocked()
	ids := make([]string, len(files))
	for i := range files {
		ids[i] = newItemID(taken)
	}
	s.mu.Unlock()

	added := make([]Item, 0, len(files))
	caps := make([]rebind.Capability, 0, len(files))
	var lastDir string
	for i, f := range files {
		if f.Capability == nil {
			continue
		}
		res, err := s.resolver.OpenChosen(ctx, f.Capability)
		if err != nil {
			s.notifier.Notify(notify.KindError, fmt.Sprintf("Could not open file: %v", err))
			continue
		}
		added = append(added, Item{
			ID:        ids[i],
			Title:     res.Title,
			URL:       res.SourceRef,
			IsLocal:   true,
			LocalMeta: res.Meta,
			SessionID: res.OwnerSessionID,
			Origin:    opts.Origin,
		})
		caps = append(caps, f.Capability)
		if res.Path != "" {
			lastDir = filepath.Dir(res.Path)
		}
		logging.Debug("Adding local file %s (%s)", res.Title, humanize.Bytes(uint64(max(res.Meta.Size, 0))))
	}

	if lastDir != "" {
		if err := s.store.SetMetadata(ctx, database.MetaLastPickedDir, lastDir); err != nil {
			logging.Warn("Failed to remember last directory: %v", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Handles and the append happen under one lock hold; Clear sees both or neither.
	for i := range added {
		added[i].HasCapability = s.resolver.StoreCapability(ctx, added[i].ID, caps[i])
	}
	s.appendLocked(ctx, added, opts)
	recordOp("add_files", nil)
	return added, nil
}

// appendLocked adds items, optionally selecting the first, and persists.
func (s *Session) appendLocked(ctx context.Context, added []Item, opts AddOptions) {
	if len(added) == 0 {
		return
	}
	first := len(s.items)
	s.items = append(s.items, added...)
	if opts.Select {
		s.index = first
		s.generation++
		s.activateLocked(s.items[first], true)
	}
	s.saveLocked(ctx)
	logging.Info("Added %d items (playlist now %d)", len(added), len(s.items))
}
