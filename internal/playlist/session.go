package playlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rere-player/internal/capture"
	"rere-player/internal/database"
	"rere-player/internal/logging"
	"rere-player/internal/metrics"
	"rere-player/internal/notify"
	"rere-player/internal/rebind"
	"rere-player/internal/session"
)

// Options wires a Session to its collaborators. Exporter, Snapshotter,
// Prober, Blobs and Notifier are optional.
type Options struct {
	Identity        *session.Identity
	Store           Store
	Resolver        *rebind.Resolver
	Blobs           Blobs
	Exporter        *capture.Exporter
	Snapshotter     *capture.Snapshotter
	Prober          Prober
	Notifier        Notifier
	PersistDebounce time.Duration
}

// Session is the process-wide player state.
type Session struct {
	identity    *session.Identity
	store       Store
	resolver    *rebind.Resolver
	blobs       Blobs
	exporter    *capture.Exporter
	snapshotter *capture.Snapshotter
	prober      Prober
	notifier    Notifier
	debouncer   *Debouncer

	mu         sync.Mutex
	items      []Item
	index      int
	entries    map[string]EntryState
	out        Output
	generation uint64
}

type discardNotifier struct{}

func (discardNotifier) Notify(string, string) {}

// New creates a session. Call Open before use and Close on shutdown.
func New(opts Options) *Session {
	s := &Session{
		identity:    opts.Identity,
		store:       opts.Store,
		resolver:    opts.Resolver,
		blobs:       opts.Blobs,
		exporter:    opts.Exporter,
		snapshotter: opts.Snapshotter,
		prober:      opts.Prober,
		notifier:    opts.Notifier,
		index:       -1,
		entries:     make(map[string]EntryState),
		out:         defaultOutput(),
	}
	if s.notifier == nil {
		s.notifier = discardNotifier{}
	}
	s.debouncer = NewDebouncer(opts.PersistDebounce, opts.Store.SaveEntries)
	return s
}

func defaultOutput() Output {
	return Output{Rate: 1, Volume: 1, Paused: true}
}

// Identity returns the session identity.
func (s *Session) Identity() *session.Identity {
	return s.identity
}

// Open restores the persisted playlist. Corrupt data is reported and
// replaced by an empty playlist; it never fails startup.
func (s *Session) Open(ctx context.Context) error {
	state, err := s.store.LoadPlaylist(ctx)
	if err != nil {
		if !errors.Is(err, database.ErrStoreCorrupt) {
			return fmt.Errorf("failed to load playlist: %w", err)
		}
		s.notifier.Notify(notify.KindStoreCorrupt, "Saved playlist was unreadable and has been reset")
	}

	entries, err := s.store.LoadEntries(ctx)
	if err != nil {
		logging.Warn("Failed to load entry states, starting without them: %v", err)
		entries = map[string]EntryState{}
	}

	s.mu.Lock()
	s.items = state.Items
	s.index = state.Index
	s.entries = entries
	s.mu.Unlock()

	logging.Info("Restored playlist: %d items, index %d, %d entry states", len(state.Items), state.Index, len(entries))
	s.restoreCurrent(ctx)
	return nil
}

// restoreCurrent activates the current item without playing it. Local
// items from earlier runs are only reactivated silently.
func (s *Session) restoreCurrent(ctx context.Context) {
	s.mu.Lock()
	if s.index < 0 || s.index >= len(s.items) {
		s.mu.Unlock()
		return
	}
	item := s.items[s.index]
	gen := s.generation

	if !s.isStaleLocal(item) {
		s.activateLocked(item, false)
		s.mu.Unlock()
		return
	}
	if !item.HasCapability {
		s.mu.Unlock()
		logging.Info("Current item %s needs rebind before it can play", item.ID)
		return
	}
	s.mu.Unlock()

	res, err := s.resolver.Resolve(ctx, requestFor(item), rebind.Silent)
	if err != nil {
		logging.Info("Silent reactivation of %s not possible: %v", item.ID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyResolutionLocked(ctx, item.ID, res)
	if gen != s.generation {
		metrics.StaleSelections.Inc()
		return
	}
	if i := s.indexOf(item.ID); i >= 0 && i == s.index {
		s.activateLocked(s.items[i], false)
	}
}

// Close flushes pending writes.
func (s *Session) Close() {
	s.debouncer.Close()
	logging.Info("Player session %s closed", s.identity)
}

func requestFor(item Item) rebind.Request {
	return rebind.Request{
		ItemID:         item.ID,
		SourceRef:      item.URL,
		IsLocal:        item.IsLocal,
		HasCapability:  item.HasCapability,
		OwnerSessionID: item.SessionID,
	}
}

// isStaleLocal reports whether item's reference is from another run.
func (s *Session) isStaleLocal(item Item) bool {
	return item.IsLocal && !s.identity.Owns(item.SessionID)
}

// NeedsRebind reports whether item cannot play without the user picking
// the file again.
func (s *Session) NeedsRebind(item Item) bool {
	return s.isStaleLocal(item) && !item.HasCapability
}

func (s *Session) indexOf(itemID string) int {
	for i, it := range s.items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// saveLocked writes the playlist synchronously.
func (s *Session) saveLocked(ctx context.Context) {
	items := make([]Item, len(s.items))
	copy(items, s.items)
	err := s.store.SavePlaylist(ctx, database.PlaylistState{Items: items, Index: s.index})
	if err != nil {
		logging.Error("Failed to persist playlist: %v", err)
		s.notifier.Notify(notify.KindError, "Could not save the playlist")
		return
	}
	metrics.PersistFlushes.WithLabelValues("structural").Inc()
}

// applyResolutionLocked writes a refreshed reference back to its item,
// wherever it now is in the list.
func (s *Session) applyResolutionLocked(ctx context.Context, itemID string, res rebind.Resolution) bool {
	if !res.Refreshed {
		return false
	}
	i := s.indexOf(itemID)
	if i < 0 {
		if s.blobs != nil {
			s.blobs.Revoke(res.SourceRef)
		}
		return false
	}
	item := &s.items[i]
	if s.blobs != nil && item.URL != res.SourceRef {
		s.blobs.Revoke(item.URL)
	}
	item.URL = res.SourceRef
	item.SessionID = res.OwnerSessionID
	item.LocalMeta = res.Meta
	if res.Title != "" && item.Title == "" {
		item.Title = res.Title
	}
	s.saveLocked(ctx)
	return true
}

// sourceFor builds the output source of an item usable in this run.
func (s *Session) sourceFor(item Item) *Source {
	src := &Source{ItemID: item.ID, Kind: SourceRemote, Ref: item.URL, Title: item.Title}
	if item.IsLocal {
		src.Kind = SourceLocal
		if s.blobs != nil {
			if e, err := s.blobs.Resolve(item.URL); err == nil {
				src.Path = e.Path
			} else {
				logging.Warn("Local reference %s of %s did not resolve: %v", item.URL, item.ID, err)
			}
		}
	}
	return src
}

// activateLocked replaces the active source with item, restarting at
// position zero with A/B markers cleared. The stored rate is re-applied.
func (s *Session) activateLocked(item Item, play bool) {
	rate := 1.0
	if e, ok := s.entries[item.ID]; ok && e.Rate > 0 {
		rate = e.Rate
	}

	prev := s.out
	if prev.Source != nil && prev.Source.ItemID != item.ID {
		logging.Debug("Replacing active source %s", prev.Source.ItemID)
	}
	s.out = Output{
		Source:   s.sourceFor(item),
		Rate:     rate,
		Volume:   prev.Volume,
		Muted:    prev.Muted,
		Paused:   !play,
		Mirrored: prev.Mirrored,
		Repeat:   prev.Repeat,
	}
	logging.Debug("Activated %s (%s)", item.ID, item.Title)
}

// stopLocked clears the output.
func (s *Session) stopLocked() {
	prev := s.out
	s.out = defaultOutput()
	s.out.Volume = prev.Volume
	s.out.Muted = prev.Muted
	s.out.Mirrored = prev.Mirrored
	s.out.Repeat = prev.Repeat
}

// Snapshot returns the current state for display.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]ItemView, len(s.items))
	for i, item := range s.items {
		views[i] = ItemView{
			Item:        item,
			NeedsRebind: s.NeedsRebind(item),
			Active:      s.out.Source != nil && s.out.Source.ItemID == item.ID,
		}
	}

	st := State{
		SessionID: s.identity.ID(),
		Items:     views,
		Index:     s.index,
		Output:    s.out,
	}
	if s.out.Source != nil {
		src := *s.out.Source
		st.Output.Source = &src
	}
	if s.index >= 0 && s.index < len(s.items) {
		if e, ok := s.entries[s.items[s.index].ID]; ok {
			st.Entry = &e
		}
	}
	return st
}

// Len returns the number of items.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Index returns the cursor.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Stats implements metrics.StatsProvider.
func (s *Session) Stats() metrics.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := metrics.Stats{Items: len(s.items), EntryStates: len(s.entries)}
	for _, item := range s.items {
		if item.IsLocal {
			st.LocalItems++
		}
		if s.NeedsRebind(item) {
			st.NeedsRebind++
		}
	}
	return st
}

func recordOp(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.PlaylistOperations.WithLabelValues(op, status).Inc()
}
