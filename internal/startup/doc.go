// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is layered by [LoadConfig]: built-in defaults, then the
// optional TOML file named by CONFIG_FILE, then environment variables.
// The following environment variables are supported:
//
//   - CONFIG_FILE: TOML file with the same settings in snake_case
//   - PORT: HTTP server port (default: 8080)
//   - DATA_DIR: Directory holding player.db (default: /data)
//   - DOWNLOAD_DIR: Directory for exported segments (default: DATA_DIR/downloads)
//   - PERSIST_DEBOUNCE: Delay before playback state is written (default: 300ms)
//   - METRICS_INTERVAL: Gauge refresh interval (default: 1m)
//   - FFMPEG_PATH, FFPROBE_PATH: Capture tool binaries
//   - BAIDU_CLIENT_ID, BAIDU_CLIENT_SECRET, BAIDU_REDIRECT_URI: Cloud storage OAuth
//   - ALLOWED_ORIGINS: Comma separated CORS origins
//   - METRICS_ENABLED: Serve /metrics (default: true)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_STATIC_FILES: Log static file requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - MEMORY_LIMIT, MEMORY_RATIO: Container limit used for GOMEMLIMIT (see package memory)
//
// A TOML file looks like:
//
//	port = "9000"
//	data_dir = "/var/lib/rere"
//	persist_debounce = "500ms"
//	allowed_origins = ["http://localhost:5173"]
//
//	[baidu]
//	client_id = "..."
//	client_secret = "..."
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
