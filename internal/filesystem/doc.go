// Package filesystem wraps the os calls used to reach local media so that
// transient stale-handle errors from network mounts are retried with
// exponential backoff instead of surfacing as a rebind prompt.
//
//	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
package filesystem
