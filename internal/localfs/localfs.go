// Package localfs implements path-based capabilities for files on the
// machine running the player.
//
// A grant is persistent once the user picked the file or approved a
// permission request. A persistent grant to a readable file is reported
// as granted without asking; a non-persistent one as prompt.
package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"rere-player/internal/filesystem"
	"rere-player/internal/rebind"
)

// Kind is the handle kind stored for local capabilities.
const Kind = "localfs"

var (
	// ErrNotRegular is returned by GetFile for directories and devices.
	ErrNotRegular = errors.New("not a regular file")
	// ErrWrongKind is returned when decoding a handle of another kind.
	ErrWrongKind = errors.New("handle is not a local file handle")
)

type handle struct {
	Path       string `json:"path"`
	Persistent bool   `json:"persistent"`
	GrantedAt  int64  `json:"grantedAt,omitempty"`
}

// Capability grants access to one local file by path.
type Capability struct {
	h     handle
	retry filesystem.RetryConfig
}

// New returns a capability for path. Files picked by the user are
// persistent; files discovered indirectly (imports) are not, so after a
// restart they are only reopened on a user gesture.
func New(path string, persistent bool) *Capability {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	c := &Capability{
		h:     handle{Path: abs, Persistent: persistent},
		retry: filesystem.DefaultRetryConfig(),
	}
	if persistent {
		c.h.GrantedAt = time.Now().UnixMilli()
	}
	return c
}

// Kind implements rebind.Capability.
func (c *Capability) Kind() string { return Kind }

// Path returns the absolute path the capability refers to.
func (c *Capability) Path() string { return c.h.Path }

// Persistent reports whether the grant survives restarts without a prompt.
func (c *Capability) Persistent() bool { return c.h.Persistent }

func (c *Capability) readable() bool {
	f, err := filesystem.OpenWithRetry(c.h.Path, c.retry)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// QueryPermission never prompts.
func (c *Capability) QueryPermission(ctx context.Context) (rebind.Permission, error) {
	if err := ctx.Err(); err != nil {
		return rebind.PermissionDenied, err
	}
	if !c.readable() {
		return rebind.PermissionDenied, nil
	}
	if c.h.Persistent {
		return rebind.PermissionGranted, nil
	}
	return rebind.PermissionPrompt, nil
}

// RequestPermission grants access to a readable file and makes the grant
// persistent.
func (c *Capability) RequestPermission(ctx context.Context) (rebind.Permission, error) {
	if err := ctx.Err(); err != nil {
		return rebind.PermissionDenied, err
	}
	if !c.readable() {
		return rebind.PermissionDenied, nil
	}
	c.h.Persistent = true
	c.h.GrantedAt = time.Now().UnixMilli()
	return rebind.PermissionGranted, nil
}

// GetFile stats the file.
func (c *Capability) GetFile(ctx context.Context) (rebind.File, error) {
	if err := ctx.Err(); err != nil {
		return rebind.File{}, err
	}
	info, err := filesystem.StatWithRetry(c.h.Path, c.retry)
	if err != nil {
		return rebind.File{}, err
	}
	if !info.Mode().IsRegular() {
		return rebind.File{}, fmt.Errorf("%s: %w", c.h.Path, ErrNotRegular)
	}
	return rebind.File{
		Path:    c.h.Path,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Registry encodes and decodes local capabilities for the handle store.
type Registry struct{}

// Open implements rebind.Registry.
func (Registry) Open(kind string, data []byte) (rebind.Capability, error) {
	if kind != Kind {
		return nil, fmt.Errorf("%w: %q", ErrWrongKind, kind)
	}
	var h handle
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode local handle: %w", err)
	}
	if h.Path == "" {
		return nil, errors.New("local handle has no path")
	}
	return &Capability{h: h, retry: filesystem.DefaultRetryConfig()}, nil
}

// Encode implements rebind.Registry.
func (Registry) Encode(c rebind.Capability) (string, []byte, error) {
	lc, ok := c.(*Capability)
	if !ok {
		return "", nil, fmt.Errorf("%w: %T", ErrWrongKind, c)
	}
	data, err := json.Marshal(lc.h)
	if err != nil {
		return "", nil, err
	}
	return Kind, data, nil
}
