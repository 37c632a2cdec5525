package startup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pelletier/go-toml/v2"

	"rere-player/internal/logging"
	"rere-player/internal/middleware"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	Port            string
	DataDir         string
	DownloadDir     string
	PersistDebounce time.Duration
	MetricsInterval time.Duration
	FFmpegPath      string
	FFprobePath     string
	LogStaticFiles  bool
	LogHealthChecks bool
	MetricsEnabled  bool
	AllowedOrigins  []string

	BaiduClientID     string
	BaiduClientSecret string
	BaiduRedirectURI  string

	// ConfigFile is the TOML file that was applied, if any.
	ConfigFile string

	// Derived paths
	DatabasePath string

	// CaptureEnabled is set when the download directory is writable.
	// Segment export still needs ffmpeg.
	CaptureEnabled bool
}

// fileConfig is the TOML layout. Durations are strings such as "300ms".
type fileConfig struct {
	Port            string   `toml:"port"`
	DataDir         string   `toml:"data_dir"`
	DownloadDir     string   `toml:"download_dir"`
	PersistDebounce string   `toml:"persist_debounce"`
	MetricsInterval string   `toml:"metrics_interval"`
	FFmpegPath      string   `toml:"ffmpeg_path"`
	FFprobePath     string   `toml:"ffprobe_path"`
	LogStaticFiles  *bool    `toml:"log_static_files"`
	LogHealthChecks *bool    `toml:"log_health_checks"`
	MetricsEnabled  *bool    `toml:"metrics_enabled"`
	AllowedOrigins  []string `toml:"allowed_origins"`

	Baidu struct {
		ClientID     string `toml:"client_id"`
		ClientSecret string `toml:"client_secret"`
		RedirectURI  string `toml:"redirect_uri"`
	} `toml:"baidu"`
}

// defaultFileConfig holds the built-in defaults in file form.
func defaultFileConfig() fileConfig {
	t, f := true, false
	return fileConfig{
		Port:            "8080",
		DataDir:         "/data",
		PersistDebounce: "300ms",
		MetricsInterval: "1m",
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		LogStaticFiles:  &f,
		LogHealthChecks: &t,
		MetricsEnabled:  &t,
	}
}

// readConfigFile decodes path over cfg. A missing file is not an error.
func readConfigFile(path string, cfg *fileConfig) (bool, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open config: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			logging.Debug("Failed to close config file: %v", cerr)
		}
	}()

	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return false, fmt.Errorf("parse config %s: %w", path, err)
	}
	return true, nil
}

// LoadConfig builds the configuration from defaults, the optional TOML
// file named by CONFIG_FILE, and environment variables, in that order of
// precedence (environment wins). It prints the startup banner and
// prepares the data and download directories.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()
	return loadConfig()
}

func loadConfig() (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	fc := defaultFileConfig()
	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		found, err := readConfigFile(configFile, &fc)
		if err != nil {
			return nil, err
		}
		if found {
			logging.Info("  CONFIG_FILE:         %s", configFile)
		} else {
			logging.Warn("  CONFIG_FILE %s does not exist, using environment only", configFile)
			configFile = ""
		}
	}

	dataDir := getEnv("DATA_DIR", fc.DataDir)
	downloadDir := getEnv("DOWNLOAD_DIR", fc.DownloadDir)
	if downloadDir == "" {
		downloadDir = filepath.Join(dataDir, "downloads")
	}

	config := &Config{
		Port:              getEnv("PORT", fc.Port),
		DataDir:           dataDir,
		DownloadDir:       downloadDir,
		PersistDebounce:   getEnvDuration("PERSIST_DEBOUNCE", fc.PersistDebounce, 300*time.Millisecond),
		MetricsInterval:   getEnvDuration("METRICS_INTERVAL", fc.MetricsInterval, time.Minute),
		FFmpegPath:        getEnv("FFMPEG_PATH", fc.FFmpegPath),
		FFprobePath:       getEnv("FFPROBE_PATH", fc.FFprobePath),
		LogStaticFiles:    getEnvBool("LOG_STATIC_FILES", derefBool(fc.LogStaticFiles, false)),
		LogHealthChecks:   getEnvBool("LOG_HEALTH_CHECKS", derefBool(fc.LogHealthChecks, true)),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", derefBool(fc.MetricsEnabled, true)),
		AllowedOrigins:    fc.AllowedOrigins,
		BaiduClientID:     getEnv("BAIDU_CLIENT_ID", fc.Baidu.ClientID),
		BaiduClientSecret: getEnv("BAIDU_CLIENT_SECRET", fc.Baidu.ClientSecret),
		BaiduRedirectURI:  getEnv("BAIDU_REDIRECT_URI", fc.Baidu.RedirectURI),
		ConfigFile:        configFile,
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = middleware.ParseOrigins(origins)
	}
	if config.BaiduRedirectURI == "" {
		config.BaiduRedirectURI = "http://localhost:" + config.Port + "/api/baidu/auth/callback"
	}

	logging.Info("  PORT:                %s", config.Port)
	logging.Info("  DATA_DIR:            %s", config.DataDir)
	logging.Info("  DOWNLOAD_DIR:        %s", config.DownloadDir)
	logging.Info("  PERSIST_DEBOUNCE:    %v", config.PersistDebounce)
	logging.Info("  FFMPEG_PATH:         %s", config.FFmpegPath)
	logging.Info("  FFPROBE_PATH:        %s", config.FFprobePath)
	logging.Info("  METRICS_ENABLED:     %v", config.MetricsEnabled)
	logging.Info("  LOG_STATIC_FILES:    %v", config.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", config.LogHealthChecks)
	logging.Info("  ALLOWED_ORIGINS:     %s", strings.Join(config.AllowedOrigins, ","))
	logging.Info("  BAIDU_CLIENT_ID:     %s", maskSecret(config.BaiduClientID))
	logging.Info("  BAIDU_REDIRECT_URI:  %s", config.BaiduRedirectURI)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	var err error
	config.DataDir, err = filepath.Abs(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	config.DownloadDir, err = filepath.Abs(config.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve download directory path: %w", err)
	}
	config.DatabasePath = filepath.Join(config.DataDir, "player.db")
	logging.Info("  Data directory (absolute):     %s", config.DataDir)
	logging.Info("  Download directory (absolute): %s", config.DownloadDir)

	// The durable store is required.
	if err := ensureDirectory(config.DataDir, "data"); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}
	logging.Debug("  Testing data directory write access...")
	if err := testWriteAccess(config.DataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable (required for the playlist store): %w", err)
	}
	logging.Info("  [OK] Data directory is writable")

	config.CaptureEnabled = setupOptionalDir(config.DownloadDir, "downloads")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Playlist store: ENABLED (required)")
	logging.Info("    Capture output: %s", enabledString(config.CaptureEnabled))
	logging.Info("    Cloud storage:  %s", enabledString(config.BaiduClientID != "" && config.BaiduClientSecret != ""))
	logging.Info("    Metrics:        %s", enabledString(config.MetricsEnabled))

	return config, nil
}

func derefBool(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs store initialization
func LogDatabaseInit(duration time.Duration, items int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("PLAYLIST STORE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Store opened in %v, %d items restored", duration, items)
}

// LogCaptureInit logs capture availability and checks FFmpeg. It reports
// whether segment export is possible.
func LogCaptureInit(enabled bool, ffmpegPath string) bool {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CAPTURE INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if !enabled {
		logging.Warn("  Capture disabled (download directory not writable)")
		return false
	}

	if err := checkFFmpeg(ffmpegPath); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Segment export and snapshots will report capture_unsupported")
		return false
	}
	logging.Info("  [OK] FFmpeg is available")
	return true
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Static file logging: ON")
	} else {
		logging.Info("    Static file logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	SessionID       string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Session:         %s", config.SessionID)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Player API:    http://0.0.0.0:%s/api/player", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...any) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
    ____                     ____  __
   / __ \___  ________      / __ \/ /___ ___  _____  _____
  / /_/ / _ \/ ___/ _ \    / /_/ / / __ '/ / / / _ \/ ___/
 / _, _/  __/ /  /  __/   / ____/ / /_/ / /_/ /  __/ /
/_/ |_|\___/_/   \___/   /_/   /_/\__,_/\__, /\___/_/
                                       /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkFFmpeg(ffmpegPath string) error {
	path, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", ffmpegPath)
	}
	logging.Debug("  FFmpeg path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	if first, _, _ := strings.Cut(string(output), "\n"); first != "" {
		logging.Debug("  FFmpeg version: %s", strings.TrimSpace(first))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration reads a duration from key, falling back to fileValue and
// then to def when either is missing or invalid.
func getEnvDuration(key, fileValue string, def time.Duration) time.Duration {
	value := getEnv(key, fileValue)
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, def)
		return def
	}
	return d
}
