package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"media-cache/internal/database"
	"media-cache/internal/fetch"
	"media-cache/internal/filesystem"
	"media-cache/internal/handlers"
	"media-cache/internal/indexer"
	"media-cache/internal/logging"
	"media-cache/internal/media"
	"media-cache/internal/memory"
	"media-cache/internal/metrics"
	"media-cache/internal/middleware"
	"media-cache/internal/pipeline"
	"media-cache/internal/ramcache"
	"media-cache/internal/resources"
	"media-cache/internal/startup"
	"media-cache/internal/storage"
	"media-cache/internal/streaming"
	"media-cache/internal/workers"
)

const (
	collectInterval = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

// shutdownDone is closed once handleShutdown has released every resource.
var shutdownDone = make(chan struct{})

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memory.ConfigureFromEnv())

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"cache":    config.CacheDir,
		"database": config.DatabaseDir,
	}))
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	metrics.InitializeMetrics()

	// Initialize the index
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		logging.Fatal("Failed to initialize database: %v", err)
	}
	entries, err := db.CountEntries(context.Background())
	if err != nil {
		logging.Warn("Failed to count index entries: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart), entries)

	// Initialize the decoder
	if err := media.InitVips(); err != nil {
		logging.Warn("libvips initialization failed: %v", err)
	}
	startup.LogDecoderInit(media.IsVipsAvailable(), config.DecodeShrink)

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	// Initialize the pipeline
	workerCount := config.FetchWorkers
	if workerCount == 0 {
		workerCount = workers.ForIO(16)
	}
	pipeCfg := pipeline.DefaultConfig(config.CacheDir)
	pipeCfg.Prefix = config.CachePrefix
	pipeCfg.Shrink = config.DecodeShrink
	pipeCfg.Workers = workerCount
	pipeCfg.CopyLocal = config.CopyLocal

	pipe, err := pipeline.New(pipeCfg, pipeline.Deps{
		Fetcher:   newFetcher(config.FetchTimeout),
		Persister: storage.New(storage.DefaultOptions()),
		Decoder:   media.NewDecoder(),
		Cache:     ramcache.New(),
		Index:     db,
		Memory:    monitor,
	})
	if err != nil {
		logging.Fatal("Failed to initialize pipeline: %v", err)
	}
	startup.LogPipelineInit(workerCount, config.CacheDir, config.CopyLocal)

	collector := metrics.NewCollector(pipe, config.DatabasePath, collectInterval)
	collector.Start()

	reconciler := indexer.New(db, config.CacheDir, config.ReconcileInterval, indexer.Options{
		Verify:        config.ReconcileVerify,
		RemoveOrphans: config.ReconcileRemoveOrphans,
	})
	reconciler.Start()

	h := handlers.New(pipe, streaming.DefaultTimeoutWriterConfig())
	h.SetReconciler(reconciler)
	h.SetLocalRoots(config.LocalRoots...)
	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           wrapHandler(router, config),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Streams are bounded by streaming.TimeoutWriter instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, metricsSrv, h, func() {
		startup.LogShutdownStep("Stopping pipeline")
		pipe.Close()
		startup.LogShutdownStepComplete("Pipeline stopped")

		startup.LogShutdownStep("Stopping background monitors")
		reconciler.Stop()
		collector.Stop()
		monitor.Stop()
		startup.LogShutdownStepComplete("Monitors stopped")

		startup.LogShutdownStep("Closing index")
		if err := db.Close(); err != nil {
			logging.Warn("Index close error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Index closed")
		}

		media.ShutdownVips()
	})

	h.SetReady(true)
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("Server error: %v", err)
	}
	<-shutdownDone
}

func newFetcher(timeout time.Duration) *fetch.Router {
	return &fetch.Router{
		HTTP:     fetch.NewHTTPProvider(timeout),
		File:     fetch.NewFileProvider(),
		Resource: fetch.NewResourceProvider(resources.FS(), resources.Names),
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/media", h.GetMedia).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/media", h.EvictMedia).Methods(http.MethodDelete)
	api.HandleFunc("/media/info", h.GetMediaInfo).Methods(http.MethodGet)
	api.HandleFunc("/media/prefetch", h.PrefetchMedia).Methods(http.MethodPost)
	api.HandleFunc("/cache/stats", h.GetCacheStats).Methods(http.MethodGet)
	api.HandleFunc("/cache/reconcile", h.ReconcileCache).Methods(http.MethodPost)
	api.HandleFunc("/cache/reconcile", h.GetReconcileStatus).Methods(http.MethodGet)
	api.HandleFunc("/classify", h.Classify).Methods(http.MethodGet)

	return r
}

// wrapHandler applies access logging and compression around the router.
func wrapHandler(router http.Handler, config *startup.Config) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogMediaStreams = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	logged := middleware.NewW3CLogger(loggingConfig, nil).Middleware(router)

	return middleware.Compression(middleware.DefaultCompressionConfig())(logged)
}

func metricsRouter() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", handlers.MetricsHandler()).Methods(http.MethodGet)
	return r
}

func handleShutdown(srv, metricsSrv *http.Server, h *handlers.Handlers, release func()) {
	defer close(shutdownDone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	h.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	release()
	startup.LogShutdownComplete()
}
