package playlist

import (
	"context"
	"sync"
	"time"

	"rere-player/internal/logging"
	"rere-player/internal/metrics"
)

// DefaultPersistDebounce is the delay between the first unsaved entry
// change and its write.
const DefaultPersistDebounce = 300 * time.Millisecond

// Debouncer coalesces entry-state writes. Mark records the latest state
// of an item and, if no flush is scheduled, schedules one. Later marks
// before the flush only replace the pending state, so a steady stream of
// updates is still written every delay.
type Debouncer struct {
	delay time.Duration
	save  func(ctx context.Context, entries map[string]EntryState) error

	mu      sync.Mutex
	pending map[string]EntryState
	timer   *time.Timer
	closed  bool
}

// NewDebouncer creates a debouncer that writes through save.
func NewDebouncer(delay time.Duration, save func(context.Context, map[string]EntryState) error) *Debouncer {
	if delay <= 0 {
		delay = DefaultPersistDebounce
	}
	return &Debouncer{
		delay:   delay,
		save:    save,
		pending: make(map[string]EntryState),
	}
}

// Mark records state for itemID and schedules a flush.
func (d *Debouncer) Mark(itemID string, state EntryState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.pending[itemID] = state
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
	}
}

// Dirty reports whether unsaved changes exist.
func (d *Debouncer) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending) > 0
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.timer = nil
	d.flushLocked("debounced")
}

// flushLocked writes while holding d.mu so Drop cannot interleave with an
// in-flight write and resurrect a deleted entry.
func (d *Debouncer) flushLocked(path string) {
	if len(d.pending) == 0 {
		return
	}
	batch := d.pending
	d.pending = make(map[string]EntryState)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.save(ctx, batch); err != nil {
		logging.Error("Failed to persist %d entry states: %v", len(batch), err)
		// Keep newer marks, retry the failed batch on the next flush.
		for id, state := range batch {
			if _, ok := d.pending[id]; !ok {
				d.pending[id] = state
			}
		}
		return
	}
	metrics.PersistFlushes.WithLabelValues(path).Inc()
	logging.Debug("Persisted %d entry states (%s)", len(batch), path)
}

// Flush writes pending changes now.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.flushLocked("teardown")
}

// Drop discards pending changes for the given items.
func (d *Debouncer) Drop(itemIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range itemIDs {
		delete(d.pending, id)
	}
}

// DropAll discards every pending change.
func (d *Debouncer) DropAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = make(map[string]EntryState)
}

// Close flushes and stops accepting marks.
func (d *Debouncer) Close() {
	d.Flush()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}
