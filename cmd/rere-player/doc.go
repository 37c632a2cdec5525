// Package main provides the entry point for RerePlayer.
//
// RerePlayer is a self-hosted media player backend. It keeps a persistent
// playlist of network URLs and local files, remembers per-item playback
// state (position, rate, A/B loop markers), re-establishes access to local
// files across restarts, exports A/B segments and snapshots with FFmpeg,
// and relays videos from Baidu netdisk.
//
// # Application Lifecycle
//
//  1. Configuration Loading: defaults, CONFIG_FILE (TOML), then environment
//  2. Store: opens player.db (SQLite, WAL) under an exclusive file lock
//  3. Session: a new session identity; the playlist is restored and the
//     current item is reactivated silently when its grant allows it
//  4. Capture: FFmpeg is probed; export and snapshots are disabled without it
//  5. HTTP Server: routes, then CORS, metrics, access log and compression
//  6. Graceful Shutdown: SIGINT/SIGTERM stop the server, flush pending
//     playback state and close the store
//
// # HTTP Server
//
// One server (default port 8080) serves:
//
//   - /api/player: playlist and playback controls
//   - /api/notifications: the notification feed the UI polls
//   - /blob/{session}/{id}: local files of the current session, with Range
//   - /downloads/{name}: exported segments and snapshots
//   - /api/baidu: cloud storage login, listing and relay
//   - /health, /healthz, /livez, /readyz, /version, /metrics
//
// # Build Requirements
//
// CGO is required for SQLite. FFmpeg and ffprobe are optional at runtime.
//
//	go build -o rere-player ./cmd/rere-player
//
// # Related Packages
//
//   - [rere-player/internal/playlist]: playlist engine and playback state
//   - [rere-player/internal/rebind]: re-establishing access to local files
//   - [rere-player/internal/capture]: segment export and snapshots
//   - [rere-player/internal/database]: the durable store
//   - [rere-player/internal/handlers]: HTTP request handlers
//   - [rere-player/internal/middleware]: HTTP middleware
//   - [rere-player/internal/startup]: configuration and initialization
package main
