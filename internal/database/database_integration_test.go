package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// Integration tests for store operations with a real SQLite database

func setupTestStore(t testing.TB) (*Store, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "player.db")
	s, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dbPath
}

func ptr(f float64) *float64 { return &f }

func TestNewStoreCreatesFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, dbPath := setupTestStore(t)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Store file was not created")
	}
	if _, err := os.Stat(dbPath + ".lock"); os.IsNotExist(err) {
		t.Error("Lock file was not created")
	}
}

func TestNewStoreLocked(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, dbPath := setupTestStore(t)

	_, err := New(context.Background(), dbPath)
	if !errors.Is(err, ErrStoreLocked) {
		t.Fatalf("second New() error = %v, want ErrStoreLocked", err)
	}
}

func TestPlaylistRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s, _ := setupTestStore(t)
	ctx := context.Background()

	got, err := s.LoadPlaylist(ctx)
	if err != nil {
		t.Fatalf("LoadPlaylist() on empty store: %v", err)
	}
	if len(got.Items) != 0 || got.Index != -1 {
		t.Errorf("empty store playlist = %+v, want no items and index -1", got)
	}

	want := PlaylistState{
		Items: []PlaylistItem{
			{ID: "1-aaaa", Title: "a.mp4", URL: "https://example.com/a.mp4"},
			{ID: "2-bbbb", Title: "clip.mkv", IsLocal: true, HasCapability: true,
				LocalMeta: &LocalMeta{Name: "clip.mkv", Size: 42, LastModified: 1000}},
		},
		Index: 1,
	}
	if err := s.SavePlaylist(ctx, want); err != nil {
		t.Fatalf("SavePlaylist() error: %v", err)
	}

	got, err = s.LoadPlaylist(ctx)
	if err != nil {
		t.Fatalf("LoadPlaylist() error: %v", err)
	}
	if got.Index != 1 || len(got.Items) != 2 {
		t.Fatalf("LoadPlaylist() = %+v", got)
	}
	if got.Items[1].LocalMeta == nil || got.Items[1].LocalMeta.Size != 42 {
		t.Errorf("local meta not preserved: %+v", got.Items[1].LocalMeta)
	}
	if !got.Items[1].HasCapability {
		t.Error("HasCapability not preserved")
	}
}

func TestLoadPlaylistRecovery(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantItems int
		wantIndex int
	}{
		{"corrupt", "{not json", true, 0, -1},
		{"index out of range", `{"items":[{"id":"x","title":"t","url":"u"}],"index":5}`, false, 1, -1},
		{"missing index", `{"items":[{"id":"x","title":"t","url":"u"}]}`, false, 1, -1},
		{"item without id", `{"items":[{"title":"t"},{"id":"y"}],"index":0}`, false, 1, 0},
		{"unknown fields", `{"items":[{"id":"x","extra":true}],"index":0,"v":2}`, false, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := setupTestStore(t)
			ctx := context.Background()

			if err := s.putValue(ctx, KeyPlaylist, tt.raw); err != nil {
				t.Fatalf("putValue() error: %v", err)
			}

			got, err := s.LoadPlaylist(ctx)
			if tt.wantErr {
				if !errors.Is(err, ErrStoreCorrupt) {
					t.Errorf("error = %v, want ErrStoreCorrupt", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if len(got.Items) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(got.Items), tt.wantItems)
			}
			if got.Index != tt.wantIndex {
				t.Errorf("index = %d, want %d", got.Index, tt.wantIndex)
			}
		})
	}
}

func TestEntryStates(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s, _ := setupTestStore(t)
	ctx := context.Background()

	if all, err := s.LoadEntries(ctx); len(all) != 0 || err != nil {
		t.Errorf("LoadEntries() on empty store = %v, err %v", all, err)
	}

	err := s.SaveEntries(ctx, map[string]EntryState{
		"one": {LoopStart: ptr(5), LoopEnd: ptr(10), Position: 7, Rate: 1.5},
		"two": DefaultEntryState(),
	})
	if err != nil {
		t.Fatalf("SaveEntries() error: %v", err)
	}

	all, err := s.LoadEntries(ctx)
	if err != nil {
		t.Fatalf("LoadEntries() error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("LoadEntries() returned %d entries, want 2", len(all))
	}
	entry, ok := all["one"]
	if !ok {
		t.Fatal("LoadEntries() is missing entry one")
	}
	if *entry.LoopStart != 5 || *entry.LoopEnd != 10 || entry.Position != 7 || entry.Rate != 1.5 {
		t.Errorf("entry one = %+v", entry)
	}

	if err := s.DeleteEntries(ctx, "one"); err != nil {
		t.Fatalf("DeleteEntries() error: %v", err)
	}
	all, _ = s.LoadEntries(ctx)
	if _, ok := all["one"]; ok || len(all) != 1 {
		t.Errorf("entries after DeleteEntries = %v", all)
	}

	if err := s.DeleteAllEntries(ctx); err != nil {
		t.Fatalf("DeleteAllEntries() error: %v", err)
	}
	all, _ = s.LoadEntries(ctx)
	if len(all) != 0 {
		t.Errorf("entries after DeleteAllEntries = %d", len(all))
	}
}

func TestEntryStateCorruptAndDefaults(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s, _ := setupTestStore(t)
	ctx := context.Background()

	_ = s.putValue(ctx, EntryKey("bad"), "[")
	_ = s.putValue(ctx, EntryKey("norate"), `{"a":1,"time":3}`)

	entry, err := decodeEntry("[")
	if err == nil {
		t.Error("decodeEntry() accepted a corrupt record")
	}
	if entry.Rate != 1 || entry.LoopStart != nil {
		t.Errorf("corrupt entry did not fall back to default: %+v", entry)
	}

	all, err := s.LoadEntries(ctx)
	if err != nil {
		t.Fatalf("LoadEntries() error: %v", err)
	}
	if _, ok := all["bad"]; ok {
		t.Error("LoadEntries() returned corrupt entry")
	}
	entry, ok := all["norate"]
	if !ok {
		t.Fatal("LoadEntries() is missing entry norate")
	}
	if entry.Rate != 1 {
		t.Errorf("missing rate = %v, want 1", entry.Rate)
	}
	if entry.LoopEnd != nil {
		t.Errorf("missing b = %v, want nil", *entry.LoopEnd)
	}
}

func TestHandles(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s, _ := setupTestStore(t)
	ctx := context.Background()

	h, err := s.GetHandle(ctx, "item")
	if err != nil || h != nil {
		t.Fatalf("GetHandle(missing) = %v, %v; want nil, nil", h, err)
	}

	if err := s.PutHandle(ctx, "item", Handle{Kind: "localfs", Data: []byte(`{"path":"/a"}`)}); err != nil {
		t.Fatalf("PutHandle() error: %v", err)
	}
	if err := s.PutHandle(ctx, "item", Handle{Kind: "localfs", Data: []byte(`{"path":"/b"}`)}); err != nil {
		t.Fatalf("PutHandle() overwrite error: %v", err)
	}

	h, err = s.GetHandle(ctx, "item")
	if err != nil || h == nil {
		t.Fatalf("GetHandle() = %v, %v", h, err)
	}
	if h.Kind != "localfs" || string(h.Data) != `{"path":"/b"}` {
		t.Errorf("GetHandle() = %+v", h)
	}

	if err := s.DeleteHandle(ctx, "item"); err != nil {
		t.Fatalf("DeleteHandle() error: %v", err)
	}
	if h, _ := s.GetHandle(ctx, "item"); h != nil {
		t.Error("handle survived DeleteHandle")
	}

	_ = s.PutHandle(ctx, "x", Handle{Kind: "k", Data: []byte{1}})
	_ = s.PutHandle(ctx, "y", Handle{Kind: "k", Data: []byte{2}})
	if err := s.DeleteAllHandles(ctx); err != nil {
		t.Fatalf("DeleteAllHandles() error: %v", err)
	}
	if h, _ := s.GetHandle(ctx, "x"); h != nil {
		t.Error("handle survived DeleteAllHandles")
	}
}

func TestMetadata(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s, _ := setupTestStore(t)
	ctx := context.Background()

	if dir := s.LastPickedDir(ctx); dir != "" {
		t.Errorf("LastPickedDir() on empty store = %q", dir)
	}
	if err := s.SetMetadata(ctx, MetaLastPickedDir, "/videos"); err != nil {
		t.Fatalf("SetMetadata() error: %v", err)
	}
	if dir := s.LastPickedDir(ctx); dir != "/videos" {
		t.Errorf("LastPickedDir() = %q, want /videos", dir)
	}
}

func TestFileSizes(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s, _ := setupTestStore(t)
	if _, ok := s.FileSizes()["main"]; !ok {
		t.Error("FileSizes() missing main entry")
	}
}
