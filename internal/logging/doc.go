// Package logging provides the leveled logger used across the player.
//
// Levels, from most to least verbose:
//   - DEBUG: resolver decisions, debounce flushes, ffmpeg arguments
//   - INFO: lifecycle and user-visible operations
//   - WARN: recovered failures (corrupt store rows, denied permissions)
//   - ERROR: failures surfaced to the user
//
// The level comes from DEBUG or LOG_LEVEL, and can be overridden by the
// config file through SetLevel.
package logging
