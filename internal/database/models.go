package database

// LocalMeta is the snapshot of a local file taken at its last successful access.
type LocalMeta struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"` // unix milliseconds
}

// PlaylistItem is the persisted form of one playlist entry.
type PlaylistItem struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	IsLocal       bool       `json:"isLocal,omitempty"`
	HasCapability bool       `json:"hasHandle,omitempty"`
	LocalMeta     *LocalMeta `json:"localMeta,omitempty"`
	SessionID     string     `json:"sessionId,omitempty"`
	Origin        string     `json:"origin,omitempty"`
}

// PlaylistState is the playlist together with its cursor.
type PlaylistState struct {
	Items []PlaylistItem `json:"items"`
	Index int            `json:"index"`
}

// EmptyPlaylist returns the default used when nothing usable is stored.
func EmptyPlaylist() PlaylistState {
	return PlaylistState{Items: []PlaylistItem{}, Index: -1}
}

// EntryState is the persisted per-item playback memory.
type EntryState struct {
	LoopStart *float64 `json:"a"`
	LoopEnd   *float64 `json:"b"`
	Position  int64    `json:"time"`
	Rate      float64  `json:"rate"`
}

// DefaultEntryState returns an entry with no loop markers and normal rate.
func DefaultEntryState() EntryState {
	return EntryState{Rate: 1}
}

// Handle is an opaque capability handle as stored.
type Handle struct {
	Kind string
	Data []byte
}
