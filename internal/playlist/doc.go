// Package playlist is the player engine: the ordered playlist with its
// cursor, the single active media output, per-item playback memory and
// the orchestration of rebinding and segment export.
//
// A Session is created once per process. Open restores the persisted
// playlist (silently reactivating the current local item when its
// capability allows) and Close flushes pending debounced writes.
//
// Structural changes (add, remove, clear, cursor moves) are written to the
// store synchronously. High-frequency entry updates (position, rate, loop
// markers) go through a Debouncer.
//
// All operations are serialized by the session mutex, which is released
// while waiting on permission checks, file access and capture. A selection
// generation counter makes sure a resolution that finishes after a newer
// Select never replaces the active source.
//
// Playlist files (WPL and M3U) can be imported with Import.
package playlist
