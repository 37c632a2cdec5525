package playlist

import (
	"fmt"
	"math"

	"rere-player/internal/capture"
	"rere-player/internal/metrics"
	"rere-player/internal/notify"
)

// markEntryLocked records the active item's playback memory for a
// debounced write.
func (s *Session) markEntryLocked() {
	if s.out.Source == nil {
		return
	}
	id := s.out.Source.ItemID
	e := EntryState{
		LoopStart: cloneFloat(s.out.LoopStart),
		LoopEnd:   cloneFloat(s.out.LoopEnd),
		Position:  int64(math.Max(0, math.Floor(s.out.Position))),
		Rate:      s.out.Rate,
	}
	s.entries[id] = e
	s.debouncer.Mark(id, e)
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// withOutput runs fn on the active output and marks the entry dirty when
// fn reports a persisted change.
func (s *Session) withOutput(fn func(o *Output) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out.Source == nil {
		return ErrNoActiveSource
	}
	persist, err := fn(&s.out)
	if err != nil {
		return err
	}
	if persist {
		s.markEntryLocked()
	}
	return nil
}

// Tick reports playback progress. When both loop markers are set and the
// position passed B minus LoopEpsilon, the output jumps back to A.
func (s *Session) Tick(position, duration float64) (TickResult, error) {
	var res TickResult
	err := s.withOutput(func(o *Output) (bool, error) {
		if !finite(position) || position < 0 {
			position = 0
		}
		if finite(duration) && duration > 0 {
			o.Duration = duration
		}
		o.Position = position
		if o.loopActive() && position > *o.LoopEnd-LoopEpsilon {
			o.Position = *o.LoopStart
			res.Looped = true
			metrics.LoopRepeats.Inc()
		}
		res.Position = o.Position
		return true, nil
	})
	return res, err
}

// SetLoopA sets the loop start at the current position. A loop end that
// would no longer be after A is cleared.
func (s *Session) SetLoopA() (float64, error) {
	var a float64
	err := s.withOutput(func(o *Output) (bool, error) {
		a = o.Position
		o.LoopStart = &a
		if o.LoopEnd != nil && *o.LoopEnd <= a {
			o.LoopEnd = nil
			s.notifier.Notify(notify.KindInfo, fmt.Sprintf("A set to %s, B cleared", capture.FormatTime(a)))
		} else {
			s.notifier.Notify(notify.KindInfo, fmt.Sprintf("A set to %s", capture.FormatTime(a)))
		}
		return true, nil
	})
	recordOp("set_loop_a", err)
	return a, err
}

// SetLoopB sets the loop end at the current position. It is rejected,
// leaving B untouched, when A is unset or the position is not after A.
func (s *Session) SetLoopB() (float64, error) {
	var b float64
	err := s.withOutput(func(o *Output) (bool, error) {
		b = o.Position
		if o.LoopStart == nil {
			s.notifier.Notify(notify.KindLoopOrder, "Set A before B")
			return false, ErrLoopStartUnset
		}
		if b <= *o.LoopStart {
			s.notifier.Notify(notify.KindLoopOrder, fmt.Sprintf("B (%s) must be after A (%s)",
				capture.FormatTime(b), capture.FormatTime(*o.LoopStart)))
			return false, ErrLoopOrder
		}
		o.LoopEnd = &b
		s.notifier.Notify(notify.KindInfo, fmt.Sprintf("B set to %s", capture.FormatTime(b)))
		return true, nil
	})
	recordOp("set_loop_b", err)
	return b, err
}

// ClearLoop removes both markers.
func (s *Session) ClearLoop() error {
	err := s.withOutput(func(o *Output) (bool, error) {
		o.LoopStart, o.LoopEnd = nil, nil
		return true, nil
	})
	if err == nil {
		s.notifier.Notify(notify.KindInfo, "A/B loop cleared")
	}
	return err
}

// Seek moves the position, clamped to the known duration.
func (s *Session) Seek(seconds float64) (float64, error) {
	var pos float64
	err := s.withOutput(func(o *Output) (bool, error) {
		if !finite(seconds) {
			return false, fmt.Errorf("invalid seek position %v", seconds)
		}
		pos = math.Max(0, seconds)
		if o.Duration > 0 {
			pos = math.Min(pos, o.Duration)
		}
		o.Position = pos
		return true, nil
	})
	return pos, err
}

// SeekBy moves the position relative to the current one.
func (s *Session) SeekBy(delta float64) (float64, error) {
	s.mu.Lock()
	cur := s.out.Position
	s.mu.Unlock()
	return s.Seek(cur + delta)
}

// SetRate sets the playback rate.
func (s *Session) SetRate(rate float64) error {
	return s.withOutput(func(o *Output) (bool, error) {
		if !finite(rate) || rate <= 0 {
			return false, ErrInvalidRate
		}
		o.Rate = rate
		return true, nil
	})
}

// NudgeRate changes the rate by delta, clamped to [MinNudgeRate, MaxNudgeRate].
func (s *Session) NudgeRate(delta float64) (float64, error) {
	var rate float64
	err := s.withOutput(func(o *Output) (bool, error) {
		rate = math.Min(MaxNudgeRate, math.Max(MinNudgeRate, o.Rate+delta))
		o.Rate = rate
		return true, nil
	})
	return rate, err
}

// SetVolume sets the output volume in [0, 1].
func (s *Session) SetVolume(v float64) error {
	if !finite(v) || v < 0 || v > 1 {
		return ErrInvalidVolume
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Volume = v
	return nil
}

func (s *Session) toggle(field func(o *Output) *bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := field(&s.out)
	*b = !*b
	return *b
}

// ToggleMute flips mute and returns the new state.
func (s *Session) ToggleMute() bool {
	return s.toggle(func(o *Output) *bool { return &o.Muted })
}

// TogglePause flips pause and returns the new state.
func (s *Session) TogglePause() bool {
	return s.toggle(func(o *Output) *bool { return &o.Paused })
}

// ToggleMirror flips horizontal mirroring and returns the new state.
func (s *Session) ToggleMirror() bool {
	return s.toggle(func(o *Output) *bool { return &o.Mirrored })
}

// ToggleRepeat flips whole-item repeat and returns the new state. While
// repeat is on, end of media restarts the item instead of advancing.
func (s *Session) ToggleRepeat() bool {
	on := s.toggle(func(o *Output) *bool { return &o.Repeat })
	if on {
		s.notifier.Notify(notify.KindInfo, "Repeat on")
	} else {
		s.notifier.Notify(notify.KindInfo, "Repeat off")
	}
	return on
}

// Restart seeks to zero and plays.
func (s *Session) Restart() error {
	return s.withOutput(func(o *Output) (bool, error) {
		o.Position = 0
		o.Paused = false
		return true, nil
	})
}
