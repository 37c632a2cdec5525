// Package metrics declares the Prometheus series exported by the player.
//
// Series are grouped by concern:
//   - HTTP: request counts, latency and in-flight gauge (middleware)
//   - Store: query counts/latency, corrupt records, flush paths, file sizes
//   - Playlist: operations, item gauges, A/B loop repeats
//   - Rebind: resolver outcomes per mode, discarded stale selections
//   - Export: segment exports, capture duration, snapshots
//   - Remote: cloud-storage requests and relayed bytes
//
// All series are registered with the default registry through promauto and
// exposed on /metrics. InitializeMetrics pre-creates label combinations;
// Collector refreshes the gauges on an interval.
package metrics
