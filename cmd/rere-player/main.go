package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"rere-player/internal/blob"
	"rere-player/internal/capture"
	"rere-player/internal/database"
	"rere-player/internal/handlers"
	"rere-player/internal/localfs"
	"rere-player/internal/logging"
	"rere-player/internal/memory"
	"rere-player/internal/metrics"
	"rere-player/internal/middleware"
	"rere-player/internal/notify"
	"rere-player/internal/playlist"
	"rere-player/internal/rebind"
	"rere-player/internal/remote"
	"rere-player/internal/session"
	"rere-player/internal/startup"
)

const shutdownTimeout = 30 * time.Second

// app holds everything that needs an orderly shutdown.
type app struct {
	server    *http.Server
	session   *playlist.Session
	store     *database.Store
	ffmpeg    *capture.FFmpeg
	collector *metrics.Collector
}

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	memory.ConfigureFromEnv()

	// Open the durable store
	ctx := context.Background()
	dbStart := time.Now()
	store, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to open playlist store: %v", err)
	}

	identity := session.New()
	feed := notify.NewFeed(notify.DefaultCapacity)
	blobs := blob.NewRegistry(identity)
	resolver := rebind.NewResolver(identity, store, localfs.Registry{}, blobs)

	// Capture pipeline
	ffmpeg := capture.NewFFmpeg(config.FFmpegPath, config.FFprobePath)
	captureReady := startup.LogCaptureInit(config.CaptureEnabled, config.FFmpegPath)
	var (
		downloads   *capture.Downloader
		exporter    *capture.Exporter
		snapshotter *capture.Snapshotter
	)
	if config.CaptureEnabled {
		downloads, err = capture.NewDownloader(config.DownloadDir)
		if err != nil {
			logging.Warn("Downloads disabled: %v", err)
		}
	}
	if downloads != nil && captureReady {
		exporter = capture.NewExporter(ffmpeg, downloads)
		snapshotter = capture.NewSnapshotter(ffmpeg, downloads)
	}

	player := playlist.New(playlist.Options{
		Identity:        identity,
		Store:           store,
		Resolver:        resolver,
		Blobs:           blobs,
		Exporter:        exporter,
		Snapshotter:     snapshotter,
		Prober:          ffmpeg,
		Notifier:        feed,
		PersistDebounce: config.PersistDebounce,
	})
	if err := player.Open(ctx); err != nil {
		startup.LogFatal("Failed to restore playlist: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart), player.Len())

	cloud := remote.New(remote.Config{
		ClientID:     config.BaiduClientID,
		ClientSecret: config.BaiduClientSecret,
		RedirectURL:  config.BaiduRedirectURI,
	}, store)

	var collector *metrics.Collector
	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		collector = metrics.NewCollector(player, store, config.MetricsInterval)
		collector.Start()
	}

	h := handlers.New(handlers.Deps{
		Session:   player,
		Store:     store,
		Feed:      feed,
		Blobs:     blobs,
		Downloads: downloads,
		Remote:    cloud,
		FFmpeg:    ffmpeg,
	}, config)

	router := setupRouter(h, config)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	// No write timeout: relayed streams and segment exports run long.
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      wrapMiddleware(router, config),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	a := &app{server: srv, session: player, store: store, ffmpeg: ffmpeg, collector: collector}
	go handleShutdown(a)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		SessionID:       identity.ID(),
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

// wrapMiddleware applies CORS, metrics, access logging and compression,
// outermost first.
func wrapMiddleware(router http.Handler, config *startup.Config) http.Handler {
	compressionConfig := middleware.DefaultCompressionConfig()
	handler := middleware.Compression(compressionConfig)(router)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler = middleware.Logger(loggingConfig)(handler)

	if config.MetricsEnabled {
		handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	}
	return middleware.CORS(middleware.CORSConfig{AllowedOrigins: config.AllowedOrigins})(handler)
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	if config.MetricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	// Media served to the player
	r.HandleFunc("/blob/{session}/{id}", h.ServeBlob).Methods("GET", "HEAD")
	r.HandleFunc("/downloads/{name}", h.ServeDownload).Methods("GET", "HEAD")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/notifications", h.GetNotifications).Methods("GET")

	// Player
	player := api.PathPrefix("/player").Subrouter()
	player.HandleFunc("", h.GetPlayer).Methods("GET")
	player.HandleFunc("/picker", h.GetPicker).Methods("GET")
	player.HandleFunc("/items", h.AddItems).Methods("POST")
	player.HandleFunc("/items", h.ClearItems).Methods("DELETE")
	player.HandleFunc("/items/{index:[0-9]+}", h.RemoveItem).Methods("DELETE")
	player.HandleFunc("/items/{index:[0-9]+}/rebind", h.RebindItem).Methods("POST")
	player.HandleFunc("/files", h.AddFiles).Methods("POST")
	player.HandleFunc("/import", h.ImportPlaylist).Methods("POST")
	player.HandleFunc("/select/{index:[0-9]+}", h.Select).Methods("POST")
	player.HandleFunc("/next", h.Next).Methods("POST")
	player.HandleFunc("/prev", h.Prev).Methods("POST")
	player.HandleFunc("/ended", h.Ended).Methods("POST")
	player.HandleFunc("/restart", h.Restart).Methods("POST")
	player.HandleFunc("/loop/{marker:a|b}", h.SetLoop).Methods("POST")
	player.HandleFunc("/loop", h.ClearLoop).Methods("DELETE")
	player.HandleFunc("/seek", h.Seek).Methods("POST")
	player.HandleFunc("/tick", h.Tick).Methods("POST")
	player.HandleFunc("/rate", h.SetRate).Methods("POST")
	player.HandleFunc("/volume", h.SetVolume).Methods("POST")
	player.HandleFunc("/toggle/{control}", h.Toggle).Methods("POST")
	player.HandleFunc("/export", h.ExportSegment).Methods("POST")
	player.HandleFunc("/snapshot", h.TakeSnapshot).Methods("POST")

	// Cloud storage
	baidu := api.PathPrefix("/baidu").Subrouter()
	baidu.HandleFunc("/status", h.BaiduStatus).Methods("GET")
	baidu.HandleFunc("/auth/start", h.BaiduAuthStart).Methods("GET")
	baidu.HandleFunc("/auth/callback", h.BaiduAuthCallback).Methods("GET")
	baidu.HandleFunc("/auth/refresh", h.BaiduAuthRefresh).Methods("POST")
	baidu.HandleFunc("/auth/logout", h.BaiduLogout).Methods("POST")
	baidu.HandleFunc("/list", h.BaiduList).Methods("GET")
	baidu.HandleFunc("/add", h.BaiduAdd).Methods("POST")
	baidu.HandleFunc("/stream/{fsid:[0-9]+}", h.BaiduStream).Methods("GET", "HEAD")
	baidu.HandleFunc("/stream/{fsid:[0-9]+}/{name}", h.BaiduStream).Methods("GET", "HEAD")

	return r
}

func handleShutdown(a *app) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := a.server.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if a.collector != nil {
		startup.LogShutdownStep("Stopping metrics collector")
		a.collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}

	startup.LogShutdownStep("Stopping capture processes")
	a.ffmpeg.Cleanup()
	startup.LogShutdownStepComplete("Capture processes stopped")

	startup.LogShutdownStep("Flushing playback state")
	a.session.Close()
	startup.LogShutdownStepComplete("Playback state flushed")

	startup.LogShutdownStep("Closing playlist store")
	if err := a.store.Close(); err != nil {
		logging.Warn("Store close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Playlist store closed")
	}

	startup.LogShutdownComplete()
}
