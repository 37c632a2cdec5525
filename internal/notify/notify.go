// Package notify keeps the recent user-visible notifications the UI
// polls and shows as toasts.
package notify

import (
	"sync"
	"time"

	"rere-player/internal/logging"
)

// Notification kinds used by the player.
const (
	KindInfo             = "info"
	KindError            = "error"
	KindRebindRequired   = "rebind_required"
	KindPermissionDenied = "permission_denied"
	KindInvalidRange     = "invalid_range"
	KindUnsupported      = "capture_unsupported"
	KindLoopOrder        = "loop_order"
	KindStoreCorrupt     = "store_corrupt"
)

// DefaultCapacity is the number of notifications kept.
const DefaultCapacity = 50

// Notification is one toast.
type Notification struct {
	ID      uint64    `json:"id"`
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

// Feed is a fixed-size ring of notifications.
type Feed struct {
	mu     sync.Mutex
	buf    []Notification
	next   int
	full   bool
	lastID uint64
}

// NewFeed creates a feed holding up to capacity notifications.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{buf: make([]Notification, capacity)}
}

// Notify appends a notification and logs it.
func (f *Feed) Notify(kind, message string) {
	if kind == KindInfo {
		logging.Info("Notify: %s", message)
	} else {
		logging.Warn("Notify [%s]: %s", kind, message)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastID++
	f.buf[f.next] = Notification{ID: f.lastID, Time: time.Now(), Kind: kind, Message: message}
	f.next = (f.next + 1) % len(f.buf)
	if f.next == 0 {
		f.full = true
	}
}

// Since returns notifications with an ID greater than after, oldest first.
func (f *Feed) Since(after uint64) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ordered []Notification
	if f.full {
		ordered = append(ordered, f.buf[f.next:]...)
	}
	ordered = append(ordered, f.buf[:f.next]...)

	out := make([]Notification, 0, len(ordered))
	for _, n := range ordered {
		if n.ID > after {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the most recent notification, if any.
func (f *Feed) Last() (Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lastID == 0 {
		return Notification{}, false
	}
	i := (f.next - 1 + len(f.buf)) % len(f.buf)
	return f.buf[i], true
}
