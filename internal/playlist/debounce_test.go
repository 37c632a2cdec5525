package playlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSaver struct {
	mu      sync.Mutex
	batches []map[string]EntryState
	fail    bool
}

func (r *recordingSaver) save(_ context.Context, entries map[string]EntryState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("disk full")
	}
	r.batches = append(r.batches, entries)
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDebouncerCoalesces(t *testing.T) {
	t.Parallel()

	saver := &recordingSaver{}
	d := NewDebouncer(30*time.Millisecond, saver.save)

	for i := 0; i < 5; i++ {
		d.Mark("a", EntryState{Position: int64(i), Rate: 1})
	}
	d.Mark("b", EntryState{Rate: 2})
	if !d.Dirty() {
		t.Error("Dirty() = false after Mark")
	}

	waitFor(t, func() bool { return saver.count() == 1 })
	if d.Dirty() {
		t.Error("Dirty() = true after flush")
	}

	saver.mu.Lock()
	batch := saver.batches[0]
	saver.mu.Unlock()
	if len(batch) != 2 || batch["a"].Position != 4 || batch["b"].Rate != 2 {
		t.Errorf("batch = %+v", batch)
	}
}

func TestDebouncerFlushAndClose(t *testing.T) {
	t.Parallel()

	saver := &recordingSaver{}
	d := NewDebouncer(time.Hour, saver.save)

	d.Mark("a", EntryState{Rate: 1})
	d.Close()
	if saver.count() != 1 {
		t.Fatalf("Close() did not flush: %d batches", saver.count())
	}

	d.Mark("b", EntryState{Rate: 1})
	if d.Dirty() {
		t.Error("Mark after Close was accepted")
	}
}

func TestDebouncerDrop(t *testing.T) {
	t.Parallel()

	saver := &recordingSaver{}
	d := NewDebouncer(time.Hour, saver.save)

	d.Mark("a", EntryState{Rate: 1})
	d.Mark("b", EntryState{Rate: 1})
	d.Drop("a")
	d.Flush()

	if saver.count() != 1 {
		t.Fatalf("batches = %d, want 1", saver.count())
	}
	if _, ok := saver.batches[0]["a"]; ok {
		t.Error("dropped entry was written")
	}

	d.Mark("c", EntryState{Rate: 1})
	d.DropAll()
	d.Flush()
	if saver.count() != 1 {
		t.Error("Flush after DropAll wrote a batch")
	}
}

func TestDebouncerRetriesFailedBatch(t *testing.T) {
	t.Parallel()

	saver := &recordingSaver{fail: true}
	d := NewDebouncer(time.Hour, saver.save)

	d.Mark("a", EntryState{Position: 1, Rate: 1})
	d.Flush()
	if !d.Dirty() {
		t.Fatal("failed batch was discarded")
	}

	saver.mu.Lock()
	saver.fail = false
	saver.mu.Unlock()

	d.Flush()
	if saver.count() != 1 || d.Dirty() {
		t.Errorf("retry: batches=%d dirty=%v", saver.count(), d.Dirty())
	}
}

func TestDebouncerDefaultDelay(t *testing.T) {
	d := NewDebouncer(0, func(context.Context, map[string]EntryState) error { return nil })
	if d.delay != DefaultPersistDebounce {
		t.Errorf("delay = %v, want %v", d.delay, DefaultPersistDebounce)
	}
}
