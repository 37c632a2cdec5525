// Package blob issues session-scoped references to local files.
//
// A reference has the form /blob/<session>/<id>. It is only valid in the
// process run whose session issued it; the HTTP layer answers references
// from other runs with 410 Gone.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rere-player/internal/filesystem"
	"rere-player/internal/logging"
	"rere-player/internal/rebind"
	"rere-player/internal/session"
)

// Prefix is the URL path prefix of every reference.
const Prefix = "/blob/"

var (
	// ErrGone means the reference belongs to another session.
	ErrGone = errors.New("reference belongs to another session")
	// ErrNotFound means the reference was never issued or was revoked.
	ErrNotFound = errors.New("reference not found")
)

// Entry is what a reference points at.
type Entry struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Registry maps references of the current session to files.
type Registry struct {
	identity *session.Identity
	retry    filesystem.RetryConfig

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry for the given session.
func NewRegistry(identity *session.Identity) *Registry {
	return &Registry{
		identity: identity,
		retry:    filesystem.DefaultRetryConfig(),
		entries:  make(map[string]Entry),
	}
}

// Materialize implements rebind.Materializer.
func (r *Registry) Materialize(_ context.Context, f rebind.File) (string, error) {
	if f.Path == "" {
		return "", errors.New("file has no path")
	}
	id := uuid.NewString()

	r.mu.Lock()
	r.entries[id] = Entry{Path: f.Path, Name: f.Name, Size: f.Size, ModTime: f.ModTime}
	r.mu.Unlock()

	ref := Prefix + r.identity.ID() + "/" + id
	logging.Debug("Materialized %s as %s", f.Path, ref)
	return ref, nil
}

// Parse splits a reference into its session and id.
func Parse(ref string) (sessionID, id string, ok bool) {
	rest, found := strings.CutPrefix(ref, Prefix)
	if !found {
		return "", "", false
	}
	sessionID, id, found = strings.Cut(rest, "/")
	if !found || sessionID == "" || id == "" || strings.Contains(id, "/") {
		return "", "", false
	}
	return sessionID, id, true
}

// IsRef reports whether s is a blob reference of any session.
func IsRef(s string) bool {
	_, _, ok := Parse(s)
	return ok
}

// Lookup returns the entry for a reference issued by this session.
func (r *Registry) Lookup(sessionID, id string) (Entry, error) {
	if !r.identity.Owns(sessionID) {
		return Entry{}, ErrGone
	}
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Resolve returns the entry behind a full reference.
func (r *Registry) Resolve(ref string) (Entry, error) {
	sessionID, id, ok := Parse(ref)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}
	return r.Lookup(sessionID, id)
}

// Open opens the file behind a reference for serving.
func (r *Registry) Open(sessionID, id string) (*os.File, Entry, error) {
	e, err := r.Lookup(sessionID, id)
	if err != nil {
		return nil, Entry{}, err
	}
	f, err := filesystem.OpenWithRetry(e.Path, r.retry)
	if err != nil {
		return nil, Entry{}, err
	}
	return f, e, nil
}

// Revoke forgets a reference. Unknown or foreign references are ignored.
func (r *Registry) Revoke(ref string) {
	sessionID, id, ok := Parse(ref)
	if !ok || !r.identity.Owns(sessionID) {
		return
	}
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// RevokeAll forgets every reference.
func (r *Registry) RevokeAll() {
	r.mu.Lock()
	r.entries = make(map[string]Entry)
	r.mu.Unlock()
}

// Len returns the number of live references.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
