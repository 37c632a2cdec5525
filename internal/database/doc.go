// Package database is the player's durable store, backed by SQLite.
//
// It keeps two independent persistence domains:
//   - a JSON domain (table kv) holding the serialized playlist under one key
//     and one playback entry state per item under "entry:<id>"
//   - an opaque-handle domain (table handles) holding capability handles
//     keyed by item id, stored as kind + bytes and never passed through JSON
//
// Corrupt JSON rows never fail startup: loaders return an empty default
// together with an error wrapping ErrStoreCorrupt. A missing handle is the
// normal state for items that were never granted a durable capability.
//
// The store directory is guarded by an exclusive file lock so a single
// process owns the playlist.
package database
