package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rere_player_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rere_player_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rere_player_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Durable store metrics
var (
	StoreQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rere_player_store_queries_total",
			Help: "Total number of durable store queries",
		},
		[]string{"operation", "status"},
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rere_player_store_query_duration_seconds",
			Help:    "Durable store query duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	StoreCorruptRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rere_player_store_corrupt_records_total",
			Help: "Persisted records that failed to parse and were replaced by defaults",
		},
		[]string{"domain"},
	)

	StoreSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rere_player_store_size_bytes",
			Help: "Size of SQLite store files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)

	PersistFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rere_player_persist_flushes_total",
			Help: "Persistence writes by path (structural writes bypass the debounce)",
		},
		[]string{"path"}, // "structural", "debounced", "teardown"
	)
)

// Playlist metrics
var (
	PlaylistOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rere_player_playlist_operations_total",
			Help: "Playlist engine operations",
		},
		[]string{"operation", "status"},
	)

	PlaylistItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rere_player_playlist_items",
			Help: "Current playlist items by kind",
		},
		[]string{"kind"}, // "remote", "local", "needs_rebind"
	)

	PlaylistEntryStates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rere_player_playlist_entry_states",
			Help: "Per-item playback states currently held in memory",
		},
	)

	LoopRepeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rere_player_loop_repeats_total",
			Help: "Number of times an A/B loop jumped back to its start marker",
		},
	)
)

// Rebinding metrics
var (
	RebindOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rere_player_rebind_outcomes_total",
			Help: "Rebinding resolver outcomes",
		},
		[]string{"mode", "outcome"}, // outcome: "fast_path", "reactivated", "rebind_required", "permission_denied", "error"
	)

	StaleSelections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rere_player_stale_selections_total",
			Help: "Resolutions discarded because a newer selection became active",
		},
	)
)

// Segment export metrics
var (
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rere_player_exports_total",
			Help: "Segment export attempts",
		},
		[]string{"status", "destination"},
	)

	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rere_player_export_duration_seconds",
			Help:    "Segment capture duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"container"},
	)

	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rere_player_snapshots_total",
			Help: "Frame snapshots taken",
		},
		[]string{"status"},
	)
)

// Local filesystem metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rere_player_filesystem_retry_attempts_total",
			Help: "Retries of local file operations after stale handle errors",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rere_player_filesystem_retry_failures_total",
			Help: "Local file operations that failed after all retries",
		},
		[]string{"operation"},
	)
)

// Remote storage relay metrics
var (
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rere_player_remote_requests_total",
			Help: "Requests to the cloud-storage service",
		},
		[]string{"operation", "status"},
	)

	RelayBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rere_player_relay_bytes_total",
			Help: "Bytes relayed from cloud storage to the player",
		},
	)
)
