// Package handlers provides the HTTP control API of the player.
//
// It includes handlers for:
//   - The playlist and playback controls under /api/player
//   - Session-scoped local media under /blob/{session}/{id}
//   - Segment exports and snapshots, served from /downloads/{name}
//   - Cloud storage login, listing and ranged relay under /api/baidu
//   - The notification feed, health checks, version and metrics
//
// Failed operations answer with {"message", "kind"}. Rebind prompts are
// 409, invalid ranges and loop order 422, and unavailable capture 501.
package handlers
