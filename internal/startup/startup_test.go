package startup

import (
	"os"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
		setEnv       bool
	}{
		{
			name:         "Returns default when env var not set",
			key:          "TEST_UNSET_VAR",
			defaultValue: "default",
			want:         "default",
		},
		{
			name:         "Returns env value when set",
			key:          "TEST_SET_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
			setEnv:       true,
		},
		{
			name:         "Returns default when env var is empty",
			key:          "TEST_EMPTY_VAR",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
			setEnv:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv(tt.key, tt.envValue)
			} else {
				t.Setenv(tt.key, "")
				os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name      string
		envValue  string
		fileValue string
		want      time.Duration
	}{
		{"default", "", "", 300 * time.Millisecond},
		{"file value", "", "1s", time.Second},
		{"env wins", "50ms", "1s", 50 * time.Millisecond},
		{"invalid falls back", "soon", "", 300 * time.Millisecond},
		{"negative falls back", "-1s", "", 300 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)
			got := getEnvDuration("TEST_DURATION", tt.fileValue, 300*time.Millisecond)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "DATA_DIR", "DOWNLOAD_DIR", "PERSIST_DEBOUNCE",
		"METRICS_INTERVAL", "FFMPEG_PATH", "FFPROBE_PATH", "LOG_STATIC_FILES",
		"LOG_HEALTH_CHECKS", "METRICS_ENABLED", "ALLOWED_ORIGINS",
		"BAIDU_CLIENT_ID", "BAIDU_CLIENT_SECRET", "BAIDU_REDIRECT_URI",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.PersistDebounce != 300*time.Millisecond {
		t.Errorf("PersistDebounce = %v, want 300ms", cfg.PersistDebounce)
	}
	if cfg.DatabasePath != filepath.Join(dir, "player.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	if cfg.DownloadDir != filepath.Join(dir, "downloads") {
		t.Errorf("DownloadDir = %q", cfg.DownloadDir)
	}
	if !cfg.CaptureEnabled {
		t.Error("CaptureEnabled = false, want true for a writable download dir")
	}
	if cfg.BaiduRedirectURI != "http://localhost:8080/api/baidu/auth/callback" {
		t.Errorf("BaiduRedirectURI = %q", cfg.BaiduRedirectURI)
	}
	if !cfg.MetricsEnabled || !cfg.LogHealthChecks || cfg.LogStaticFiles {
		t.Errorf("unexpected boolean defaults: %+v", cfg)
	}
}

func TestLoadConfigFileAndEnvPrecedence(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "player.toml")
	content := `
port = "9000"
data_dir = "` + filepath.ToSlash(dir) + `"
persist_debounce = "1s"
metrics_enabled = false
allowed_origins = ["http://a.example", "http://b.example"]

[baidu]
client_id = "file-id"
client_secret = "file-secret"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("PORT", "9100")
	t.Setenv("BAIDU_CLIENT_ID", "env-id")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Port != "9100" {
		t.Errorf("Port = %q, want env value 9100", cfg.Port)
	}
	if cfg.PersistDebounce != time.Second {
		t.Errorf("PersistDebounce = %v, want 1s from file", cfg.PersistDebounce)
	}
	if cfg.MetricsEnabled {
		t.Error("MetricsEnabled = true, want false from file")
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.BaiduClientID != "env-id" || cfg.BaiduClientSecret != "file-secret" {
		t.Errorf("Baidu credentials = %q/%q", cfg.BaiduClientID, cfg.BaiduClientSecret)
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("ConfigFile = %q", cfg.ConfigFile)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "absent.toml"))

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("ConfigFile = %q, want empty", cfg.ConfigFile)
	}
}

func TestLoadConfigInvalidFile(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(configPath, []byte("port = [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", configPath)

	if _, err := loadConfig(); err == nil {
		t.Fatal("loadConfig() error = nil, want parse error")
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/player/tick", "api/player"},
		{"/api/baidu/auth/start", "api/baidu"},
		{"/healthz", "healthz"},
		{"/blob/{ref}", "blob"},
		{"/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := getRouteGroup(tt.path); got != tt.want {
				t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetRoutes(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/player", func(_ http.ResponseWriter, _ *http.Request) {}).Methods("GET", "POST")
	router.HandleFunc("/healthz", func(_ http.ResponseWriter, _ *http.Request) {})

	routes, err := GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("got %d routes, want 3: %+v", len(routes), routes)
	}
	if routes[2].Method != "*" {
		t.Errorf("route without methods = %q, want *", routes[2].Method)
	}
}
