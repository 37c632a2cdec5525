package playlist

import (
	"context"
	"errors"

	"rere-player/internal/blob"
	"rere-player/internal/capture"
	"rere-player/internal/database"
	"rere-player/internal/rebind"
)

// Item is one playlist entry as persisted.
type Item = database.PlaylistItem

// EntryState is the per-item playback memory.
type EntryState = database.EntryState

var (
	// ErrNoActiveSource is returned by playback controls when nothing is loaded.
	ErrNoActiveSource = errors.New("no active source")
	// ErrLoopStartUnset is returned when B is set before A.
	ErrLoopStartUnset = errors.New("loop start (A) is not set")
	// ErrLoopOrder is returned when B would not be after A.
	ErrLoopOrder = errors.New("loop end (B) must be after loop start (A)")
	// ErrInvalidRate is returned for non-positive playback rates.
	ErrInvalidRate = errors.New("playback rate must be positive")
	// ErrInvalidVolume is returned for volumes outside [0, 1].
	ErrInvalidVolume = errors.New("volume must be between 0 and 1")
	// ErrIndexOutOfRange is returned by operations that require a valid item.
	ErrIndexOutOfRange = errors.New("playlist index out of range")
	// ErrItemGone is returned when an item disappeared while waiting on I/O.
	ErrItemGone = errors.New("playlist item was removed")
)

// Rate limits for keyboard-style nudges.
const (
	MinNudgeRate = 0.25
	MaxNudgeRate = 4.0
	RateStep     = 0.25
)

// LoopEpsilon is how far before B the loop jumps back to A.
const LoopEpsilon = 0.02

// SourceKind distinguishes network sources from local files.
type SourceKind string

const (
	SourceRemote SourceKind = "remote"
	SourceLocal  SourceKind = "local"
)

// Source is what the output is currently playing.
type Source struct {
	ItemID string     `json:"itemId"`
	Kind   SourceKind `json:"kind"`
	Ref    string     `json:"ref"`
	Title  string     `json:"title"`
	Path   string     `json:"-"`
}

func (s Source) captureSource() capture.Source {
	return capture.Source{Ref: s.Ref, Path: s.Path}
}

// LocalFile is a file chosen by the user together with its capability.
type LocalFile struct {
	Capability rebind.Capability
}

// AddOptions controls AddURLs and AddFiles.
type AddOptions struct {
	// Select selects and activates the first added item.
	Select bool
	// Origin decorates items for display (for example "baidu").
	Origin string
}

// Output is the single active media output.
type Output struct {
	Source    *Source  `json:"source"`
	Position  float64  `json:"position"`
	Duration  float64  `json:"duration"`
	Rate      float64  `json:"rate"`
	Volume    float64  `json:"volume"`
	Muted     bool     `json:"muted"`
	Paused    bool     `json:"paused"`
	Mirrored  bool     `json:"mirrored"`
	Repeat    bool     `json:"repeat"`
	LoopStart *float64 `json:"loopStart"`
	LoopEnd   *float64 `json:"loopEnd"`
}

func (o Output) loopActive() bool {
	return o.LoopStart != nil && o.LoopEnd != nil
}

// ItemView is an item as shown to the UI.
type ItemView struct {
	Item
	NeedsRebind bool `json:"needsRebind"`
	Active      bool `json:"active"`
}

// State is a point-in-time view of the session.
type State struct {
	SessionID string      `json:"sessionId"`
	Items     []ItemView  `json:"items"`
	Index     int         `json:"index"`
	Output    Output      `json:"output"`
	Entry     *EntryState `json:"entry,omitempty"`
}

// TickResult tells the caller whether the A/B loop fired.
type TickResult struct {
	Looped   bool    `json:"looped"`
	Position float64 `json:"position"`
}

// Notifier receives user-visible messages.
type Notifier interface {
	Notify(kind, message string)
}

// Store is the durable store as used by the session.
type Store interface {
	rebind.HandleStore
	LoadPlaylist(ctx context.Context) (database.PlaylistState, error)
	SavePlaylist(ctx context.Context, state database.PlaylistState) error
	LoadEntries(ctx context.Context) (map[string]database.EntryState, error)
	SaveEntries(ctx context.Context, entries map[string]database.EntryState) error
	DeleteEntries(ctx context.Context, itemIDs ...string) error
	DeleteAllEntries(ctx context.Context) error
	DeleteHandle(ctx context.Context, itemID string) error
	DeleteAllHandles(ctx context.Context) error
	SetMetadata(ctx context.Context, key, value string) error
}

// Blobs is the session's registry of local references.
type Blobs interface {
	Resolve(ref string) (blob.Entry, error)
	Revoke(ref string)
}

// Prober reports the duration of a source when the UI has not.
type Prober interface {
	Probe(ctx context.Context, input string) (*capture.MediaInfo, error)
}
