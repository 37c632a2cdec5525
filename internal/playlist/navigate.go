package playlist

import (
	"context"
	"errors"
	"fmt"

	"rere-player/internal/logging"
	"rere-player/internal/metrics"
	"rere-player/internal/notify"
	"rere-player/internal/rebind"
)

// Select moves the cursor to index and activates its item from position
// zero. Out-of-range indexes are ignored. Stale local items are resolved
// interactively first; when that fails the cursor and the active source
// are left as they were and the error is returned.
func (s *Session) Select(ctx context.Context, index int) error {
	err := s.selectIndex(ctx, index, true)
	recordOp("select", err)
	return err
}

func (s *Session) selectIndex(ctx context.Context, index int, play bool) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.items) {
		s.mu.Unlock()
		return nil
	}
	s.generation++
	gen := s.generation
	item := s.items[index]

	if !s.isStaleLocal(item) {
		s.index = index
		s.saveLocked(ctx)
		s.activateLocked(item, play)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	res, err := s.resolver.Resolve(ctx, requestFor(item), rebind.Interactive)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.notifyResolveError(item, err)
		return err
	}

	s.applyResolutionLocked(ctx, item.ID, res)
	if gen != s.generation {
		metrics.StaleSelections.Inc()
		logging.Debug("Resolution of %s finished after a newer selection, not activating", item.ID)
		return nil
	}
	i := s.indexOf(item.ID)
	if i < 0 {
		return ErrItemGone
	}
	s.index = i
	s.saveLocked(ctx)
	s.activateLocked(s.items[i], play)
	return nil
}

func (s *Session) notifyResolveError(item Item, err error) {
	switch {
	case errors.Is(err, rebind.ErrPermissionDenied):
		s.notifier.Notify(notify.KindPermissionDenied, fmt.Sprintf("Read permission for %q was denied, choose the file again", item.Title))
	case errors.Is(err, rebind.ErrRebindRequired):
		s.notifier.Notify(notify.KindRebindRequired, fmt.Sprintf("%q is from a previous session, choose the file again", item.Title))
	default:
		s.notifier.Notify(notify.KindError, fmt.Sprintf("Could not open %q: %v", item.Title, err))
	}
}

// Next selects the following item, wrapping around. With auto (end of
// media) it stops at the last item instead of wrapping.
func (s *Session) Next(ctx context.Context, auto bool) error {
	s.mu.Lock()
	n := len(s.items)
	if n == 0 {
		s.mu.Unlock()
		return nil
	}
	cur := s.index
	s.mu.Unlock()

	next := (cur + 1) % n
	if auto {
		if cur >= n-1 {
			return nil
		}
		next = cur + 1
	}
	err := s.selectIndex(ctx, next, true)
	recordOp("next", err)
	return err
}

// Prev selects the previous item, wrapping around.
func (s *Session) Prev(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.items)
	if n == 0 {
		s.mu.Unlock()
		return nil
	}
	cur := s.index
	s.mu.Unlock()

	prev := n - 1
	if cur >= 0 {
		prev = (cur - 1 + n) % n
	}
	err := s.selectIndex(ctx, prev, true)
	recordOp("prev", err)
	return err
}

// Remove deletes the item at index with its entry state and handle. The
// cursor keeps pointing at the same item when possible and is clamped to
// the last index otherwise. Nothing is activated; if the removed item was
// playing, the output stops.
func (s *Session) Remove(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.items) {
		return nil
	}
	item := s.items[index]
	s.items = append(s.items[:index], s.items[index+1:]...)

	switch {
	case len(s.items) == 0:
		s.index = -1
	case index < s.index:
		s.index--
	case s.index >= len(s.items):
		s.index = len(s.items) - 1
	}

	if s.out.Source != nil && s.out.Source.ItemID == item.ID {
		s.stopLocked()
	}
	s.forgetLocked(ctx, item)
	s.saveLocked(ctx)

	recordOp("remove", nil)
	logging.Info("Removed %s (%q), %d items left", item.ID, item.Title, len(s.items))
	return nil
}

// forgetLocked deletes everything stored for item except the playlist row.
func (s *Session) forgetLocked(ctx context.Context, item Item) {
	s.debouncer.Drop(item.ID)
	delete(s.entries, item.ID)
	if err := s.store.DeleteEntries(ctx, item.ID); err != nil {
		logging.Warn("Failed to delete entry state of %s: %v", item.ID, err)
	}
	if item.HasCapability {
		if err := s.store.DeleteHandle(ctx, item.ID); err != nil {
			logging.Warn("Failed to delete handle of %s: %v", item.ID, err)
		}
	}
	if item.IsLocal && s.blobs != nil {
		s.blobs.Revoke(item.URL)
	}
}

// Clear removes every item and all per-item state.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.debouncer.DropAll()
	for _, item := range s.items {
		if item.IsLocal && s.blobs != nil {
			s.blobs.Revoke(item.URL)
		}
	}
	var errs []error
	if err := s.store.DeleteAllEntries(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.DeleteAllHandles(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		logging.Warn("Failed to clear per-item state: %v", err)
	}

	n := len(s.items)
	s.items = nil
	s.entries = make(map[string]EntryState)
	s.index = -1
	s.generation++
	s.stopLocked()
	s.saveLocked(ctx)

	recordOp("clear", nil)
	s.notifier.Notify(notify.KindInfo, fmt.Sprintf("Playlist cleared (%d items)", n))
	return nil
}

// Rebind completes a rebind prompt for the item at index with a file the
// user just chose, then selects and plays it.
func (s *Session) Rebind(ctx context.Context, index int, file LocalFile) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.items) {
		s.mu.Unlock()
		return ErrIndexOutOfRange
	}
	item := s.items[index]
	s.mu.Unlock()

	if file.Capability == nil {
		return rebind.ErrRebindRequired
	}

	res, err := s.resolver.OpenChosen(ctx, file.Capability)
	if err != nil {
		recordOp("rebind", err)
		s.notifier.Notify(notify.KindError, fmt.Sprintf("Could not open the chosen file: %v", err))
		return err
	}
	if item.LocalMeta != nil && res.Meta != nil && item.LocalMeta.Name != res.Meta.Name {
		logging.Warn("Item %s rebound to a different file: %q -> %q", item.ID, item.LocalMeta.Name, res.Meta.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(item.ID)
	if i < 0 {
		if s.blobs != nil {
			s.blobs.Revoke(res.SourceRef)
		}
		recordOp("rebind", ErrItemGone)
		return ErrItemGone
	}
	it := &s.items[i]
	if s.blobs != nil && it.IsLocal && it.URL != res.SourceRef {
		s.blobs.Revoke(it.URL)
	}
	it.URL = res.SourceRef
	it.SessionID = res.OwnerSessionID
	it.LocalMeta = res.Meta
	it.IsLocal = true
	if s.resolver.StoreCapability(ctx, it.ID, file.Capability) {
		it.HasCapability = true
	}

	s.index = i
	s.generation++
	s.activateLocked(*it, true)
	s.saveLocked(ctx)

	recordOp("rebind", nil)
	return nil
}

// Ended handles end of media. An A/B loop jumps back to A and repeat
// restarts the item; otherwise playback advances without wrapping and
// stays paused on the last item.
func (s *Session) Ended(ctx context.Context) error {
	s.mu.Lock()
	if s.out.Source == nil {
		s.mu.Unlock()
		return nil
	}
	switch {
	case s.out.loopActive():
		s.out.Position = *s.out.LoopStart
		metrics.LoopRepeats.Inc()
		s.mu.Unlock()
		return nil
	case s.out.Repeat:
		s.out.Position = 0
		s.mu.Unlock()
		return nil
	case s.index >= len(s.items)-1:
		s.out.Paused = true
		if s.out.Duration > 0 {
			s.out.Position = s.out.Duration
		}
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.Next(ctx, true)
}
