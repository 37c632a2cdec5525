package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rere-player/internal/rebind"
	"rere-player/internal/session"
)

func TestMaterializeAndOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.mp4")
	if err := os.WriteFile(path, []byte("payload"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(session.FromString("run1"))
	ref, err := r.Materialize(context.Background(), rebind.File{Path: path, Name: "a.mp4", Size: 7})
	if err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}
	if !strings.HasPrefix(ref, "/blob/run1/") {
		t.Errorf("ref = %q, want /blob/run1/ prefix", ref)
	}

	sid, id, ok := Parse(ref)
	if !ok || sid != "run1" {
		t.Fatalf("Parse(%q) = %q, %q, %v", ref, sid, id, ok)
	}

	f, e, err := r.Open(sid, id)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "payload" || e.Name != "a.mp4" {
		t.Errorf("Open() = %q, %+v", data, e)
	}

	r.Revoke(ref)
	if _, err := r.Resolve(ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve() after Revoke error = %v, want ErrNotFound", err)
	}
}

func TestLookupOtherSession(t *testing.T) {
	t.Parallel()

	r := NewRegistry(session.FromString("run2"))
	if _, err := r.Resolve("/blob/run1/abc"); !errors.Is(err, ErrGone) {
		t.Errorf("Resolve(foreign) error = %v, want ErrGone", err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		ref string
		ok  bool
		sid string
		id  string
	}{
		{"/blob/s/i", true, "s", "i"},
		{"/blob/s/", false, "", ""},
		{"/blob//i", false, "", ""},
		{"/blob/s/i/extra", false, "", ""},
		{"https://example.com/a.mp4", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			sid, id, ok := Parse(tt.ref)
			if ok != tt.ok || sid != tt.sid || id != tt.id {
				t.Errorf("Parse(%q) = %q, %q, %v", tt.ref, sid, id, ok)
			}
			if IsRef(tt.ref) != tt.ok {
				t.Errorf("IsRef(%q) = %v", tt.ref, !tt.ok)
			}
		})
	}
}

func TestRevokeAll(t *testing.T) {
	t.Parallel()

	r := NewRegistry(session.New())
	for i := 0; i < 3; i++ {
		if _, err := r.Materialize(context.Background(), rebind.File{Path: "/x", Name: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	r.RevokeAll()
	if r.Len() != 0 {
		t.Errorf("Len() after RevokeAll = %d", r.Len())
	}
}
