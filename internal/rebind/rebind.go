package rebind

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rere-player/internal/database"
)

var (
	// ErrRebindRequired means the item's local reference cannot be
	// re-established without the user picking the file again.
	ErrRebindRequired = errors.New("rebind required")

	// ErrPermissionDenied is a RebindRequired whose cause is an explicit
	// denial rather than an absent capability.
	ErrPermissionDenied = fmt.Errorf("%w: read permission denied", ErrRebindRequired)
)

// Permission is the access state a capability reports.
type Permission int

const (
	PermissionDenied Permission = iota
	PermissionPrompt
	PermissionGranted
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionPrompt:
		return "prompt"
	default:
		return "denied"
	}
}

// Mode selects whether a resolution may ask the user for access.
type Mode int

const (
	// Silent is used for background restores: permission is only queried.
	Silent Mode = iota
	// Interactive is bound to a user action: a request follows a query
	// that did not return granted.
	Interactive
)

func (m Mode) String() string {
	if m == Interactive {
		return "interactive"
	}
	return "silent"
}

// File describes a local file obtained through a capability.
type File struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Meta returns the snapshot persisted with the playlist item.
func (f File) Meta() *database.LocalMeta {
	return &database.LocalMeta{
		Name:         f.Name,
		Size:         f.Size,
		LastModified: f.ModTime.UnixMilli(),
	}
}

// Capability is a durable, permission-gated grant to one local file.
type Capability interface {
	Kind() string
	QueryPermission(ctx context.Context) (Permission, error)
	RequestPermission(ctx context.Context) (Permission, error)
	GetFile(ctx context.Context) (File, error)
}

// Registry turns stored handle bytes back into capabilities and back.
type Registry interface {
	Open(kind string, data []byte) (Capability, error)
	Encode(c Capability) (kind string, data []byte, err error)
}

// Materializer issues a session-scoped playable reference for a file.
type Materializer interface {
	Materialize(ctx context.Context, f File) (string, error)
}

// HandleStore is the opaque-handle domain of the durable store.
type HandleStore interface {
	GetHandle(ctx context.Context, itemID string) (*database.Handle, error)
	PutHandle(ctx context.Context, itemID string, h database.Handle) error
}
