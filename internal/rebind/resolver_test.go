package rebind

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rere-player/internal/database"
	"rere-player/internal/session"
)

type fakeCapability struct {
	query      Permission
	request    Permission
	requested  int
	file       File
	fileErr    error
	encodeFail bool
}

func (c *fakeCapability) Kind() string { return "fake" }

func (c *fakeCapability) QueryPermission(context.Context) (Permission, error) {
	return c.query, nil
}

func (c *fakeCapability) RequestPermission(context.Context) (Permission, error) {
	c.requested++
	return c.request, nil
}

func (c *fakeCapability) GetFile(context.Context) (File, error) {
	return c.file, c.fileErr
}

type fakeRegistry struct {
	c *fakeCapability
}

func (r *fakeRegistry) Open(kind string, _ []byte) (Capability, error) {
	if kind != "fake" {
		return nil, errors.New("unknown kind")
	}
	return r.c, nil
}

func (r *fakeRegistry) Encode(c Capability) (string, []byte, error) {
	if fc, ok := c.(*fakeCapability); ok && fc.encodeFail {
		return "", nil, errors.New("not serializable")
	}
	return c.Kind(), []byte("x"), nil
}

type fakeHandles struct {
	mu      sync.Mutex
	handles map[string]database.Handle
	putErr  error
}

func (s *fakeHandles) GetHandle(_ context.Context, id string) (*database.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (s *fakeHandles) PutHandle(_ context.Context, id string, h database.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.handles[id] = h
	return nil
}

type fakeMaterializer struct{ n int }

func (m *fakeMaterializer) Materialize(_ context.Context, f File) (string, error) {
	m.n++
	return "/blob/current/" + f.Name, nil
}

func newTestResolver(c *fakeCapability, withHandle bool) (*Resolver, *fakeHandles, *fakeMaterializer) {
	handles := &fakeHandles{handles: map[string]database.Handle{}}
	if withHandle {
		handles.handles["item"] = database.Handle{Kind: "fake", Data: []byte("x")}
	}
	mat := &fakeMaterializer{}
	return NewResolver(session.FromString("current"), handles, &fakeRegistry{c: c}, mat), handles, mat
}

func testFile() File {
	return File{Path: "/videos/a.mp4", Name: "a.mp4", Size: 10, ModTime: time.UnixMilli(5000)}
}

func TestResolveFastPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  Request
	}{
		{"remote item", Request{ItemID: "item", SourceRef: "https://example.com/a.mp4", OwnerSessionID: "old"}},
		{"local item from this session", Request{ItemID: "item", SourceRef: "/blob/current/x", IsLocal: true, OwnerSessionID: "current"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, mat := newTestResolver(&fakeCapability{}, false)
			res, err := r.Resolve(context.Background(), tt.req, Silent)
			if err != nil {
				t.Fatalf("Resolve() error: %v", err)
			}
			if res.SourceRef != tt.req.SourceRef || res.Refreshed {
				t.Errorf("Resolve() = %+v, want unchanged ref", res)
			}
			if mat.n != 0 {
				t.Error("fast path materialized a reference")
			}
		})
	}
}

func TestResolveStaleItem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		hasCapability bool
		storeHandle   bool
		query         Permission
		request       Permission
		mode          Mode
		wantErr       error
		wantRequested int
	}{
		{"no capability", false, false, PermissionGranted, PermissionGranted, Interactive, ErrRebindRequired, 0},
		{"flag without stored handle", true, false, PermissionGranted, PermissionGranted, Interactive, ErrRebindRequired, 0},
		{"granted silently", true, true, PermissionGranted, PermissionDenied, Silent, nil, 0},
		{"prompt in silent mode", true, true, PermissionPrompt, PermissionGranted, Silent, ErrRebindRequired, 0},
		{"prompt then granted interactively", true, true, PermissionPrompt, PermissionGranted, Interactive, nil, 1},
		{"denied interactively", true, true, PermissionPrompt, PermissionDenied, Interactive, ErrPermissionDenied, 1},
		{"denied on query in silent mode", true, true, PermissionDenied, PermissionGranted, Silent, ErrPermissionDenied, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCapability{query: tt.query, request: tt.request, file: testFile()}
			r, _, _ := newTestResolver(c, tt.storeHandle)

			req := Request{ItemID: "item", SourceRef: "/blob/old/x", IsLocal: true, HasCapability: tt.hasCapability, OwnerSessionID: "old"}
			res, err := r.Resolve(context.Background(), req, tt.mode)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				if res.SourceRef != "" {
					t.Errorf("failed resolution returned a ref: %q", res.SourceRef)
				}
			} else {
				if err != nil {
					t.Fatalf("Resolve() error: %v", err)
				}
				if !res.Refreshed || res.OwnerSessionID != "current" || res.SourceRef != "/blob/current/a.mp4" {
					t.Errorf("Resolve() = %+v", res)
				}
				if res.Meta == nil || res.Meta.Size != 10 || res.Meta.LastModified != 5000 {
					t.Errorf("Meta = %+v", res.Meta)
				}
			}
			if c.requested != tt.wantRequested {
				t.Errorf("RequestPermission called %d times, want %d", c.requested, tt.wantRequested)
			}
		})
	}
}

func TestPermissionDeniedIsRebindRequired(t *testing.T) {
	if !errors.Is(ErrPermissionDenied, ErrRebindRequired) {
		t.Error("ErrPermissionDenied should wrap ErrRebindRequired")
	}
	if errors.Is(ErrRebindRequired, ErrPermissionDenied) {
		t.Error("ErrRebindRequired should not match ErrPermissionDenied")
	}
}

func TestResolveMissingFile(t *testing.T) {
	t.Parallel()

	c := &fakeCapability{query: PermissionGranted, fileErr: errors.New("gone")}
	r, _, _ := newTestResolver(c, true)

	req := Request{ItemID: "item", IsLocal: true, HasCapability: true, OwnerSessionID: "old"}
	if _, err := r.Resolve(context.Background(), req, Interactive); !errors.Is(err, ErrRebindRequired) {
		t.Errorf("Resolve() error = %v, want ErrRebindRequired", err)
	}
}

func TestNeedsRebind(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestResolver(&fakeCapability{}, false)

	tests := []struct {
		name string
		req  Request
		want bool
	}{
		{"remote", Request{OwnerSessionID: "old"}, false},
		{"local current session", Request{IsLocal: true, OwnerSessionID: "current"}, false},
		{"local stale with capability", Request{IsLocal: true, HasCapability: true, OwnerSessionID: "old"}, false},
		{"local stale without capability", Request{IsLocal: true, OwnerSessionID: "old"}, true},
		{"local never owned", Request{IsLocal: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.NeedsRebind(tt.req); got != tt.want {
				t.Errorf("NeedsRebind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpenChosenAndStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := &fakeCapability{file: testFile()}
	r, handles, _ := newTestResolver(c, false)

	res, err := r.OpenChosen(ctx, c)
	if err != nil {
		t.Fatalf("OpenChosen() error: %v", err)
	}
	if res.OwnerSessionID != "current" || res.Title != "a.mp4" {
		t.Errorf("OpenChosen() = %+v", res)
	}
	if h, _ := handles.GetHandle(ctx, "item"); h != nil {
		t.Error("OpenChosen() must not write a handle")
	}

	if !r.StoreCapability(ctx, "item", c) {
		t.Error("StoreCapability() did not report the handle as stored")
	}
	if h, _ := handles.GetHandle(ctx, "item"); h == nil {
		t.Error("handle not written")
	}
}

func TestStoreCapabilityFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		putErr     error
		encodeFail bool
	}{
		{"store write fails", errors.New("disk full"), false},
		{"encode fails", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCapability{file: testFile(), encodeFail: tt.encodeFail}
			r, handles, _ := newTestResolver(c, false)
			handles.putErr = tt.putErr

			res, err := r.OpenChosen(context.Background(), c)
			if err != nil {
				t.Fatalf("OpenChosen() error: %v", err)
			}
			if res.SourceRef == "" {
				t.Error("OpenChosen() should produce a playable ref")
			}
			if r.StoreCapability(context.Background(), "item", c) {
				t.Error("StoreCapability() reported stored after a failed write")
			}
		})
	}
}

func TestStrings(t *testing.T) {
	if PermissionGranted.String() != "granted" || PermissionPrompt.String() != "prompt" || PermissionDenied.String() != "denied" {
		t.Error("unexpected Permission strings")
	}
	if Silent.String() != "silent" || Interactive.String() != "interactive" {
		t.Error("unexpected Mode strings")
	}
}
