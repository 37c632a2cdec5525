// Package middleware provides the HTTP middleware of the player API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics with low-cardinality route labels
//   - gzip compression of JSON responses (never of media bodies)
//   - CORS for browser front ends served from another origin
package middleware
