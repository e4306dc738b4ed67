package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/norton62/demo2video/internal/artifacts"
	"github.com/norton62/demo2video/internal/config"
	"github.com/norton62/demo2video/internal/csdm"
	"github.com/norton62/demo2video/internal/db"
	"github.com/norton62/demo2video/internal/download"
	"github.com/norton62/demo2video/internal/gameproc"
	"github.com/norton62/demo2video/internal/job"
	"github.com/norton62/demo2video/internal/obs"
	"github.com/norton62/demo2video/internal/orchestrator"
	"github.com/norton62/demo2video/internal/publish"
	"github.com/norton62/demo2video/internal/queue"
	"github.com/norton62/demo2video/internal/results"
	"github.com/norton62/demo2video/internal/stats"
	"github.com/norton62/demo2video/internal/status"
	"github.com/norton62/demo2video/internal/steam"
	"github.com/norton62/demo2video/internal/web"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file (TOML)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting demo2video pipeline")
	slog.Info("paths configuration",
		"csdm_dir", cfg.Paths.CSDMDir,
		"demo_dir", cfg.Paths.DemoDir,
		"output_dir", cfg.Paths.OutputDir)

	for _, dir := range []string{cfg.Paths.DemoDir, cfg.Paths.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	// Shared state: queue, live status, durable history.
	jobQueue := queue.New[job.Job](logger)
	broadcaster := status.New(logger)

	store := results.NewStore(cfg.Results.Path, cfg.Results.Capacity, logger)
	if err := store.Load(); err != nil {
		slog.Error("failed to load results history", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Optional stage-timing statistics.
	var statsSink orchestrator.StatsSink
	if cfg.Database.DSN != "" {
		database, err := db.Open(cfg.Database.DSN)
		if err != nil {
			slog.Error("failed to open stats database", "dsn", cfg.Database.DSN, "error", err)
			os.Exit(1)
		}
		defer database.Close()

		collector := stats.NewCollector(database, 64, logger)
		go collector.Run(ctx)
		statsSink = collector
		slog.Info("stage-timing stats enabled", "dsn", cfg.Database.DSN)
	}

	deps := orchestrator.Collaborators{
		Downloader: download.NewClient(cfg.Resolver.Endpoints, cfg.Paths.DemoDir, cfg.Resolver.RequestTimeout, logger),
		Analyzer:   csdm.NewTool(cfg.Paths.CSDMDir, logger),
		Launcher:   csdm.NewTool(cfg.Paths.CSDMDir, logger),
		Game: gameproc.NewWatcher(cfg.Worker.GameProcess,
			cfg.Worker.ReadyPollInterval, cfg.Worker.FinishPollInterval, logger),
		Recorder:  obs.NewRecorder(cfg.Recorder.Host, cfg.Recorder.Port, cfg.Recorder.Password, logger),
		Artifacts: artifacts.NewResolver(logger),
		Publisher: publish.NewUploader(cfg.Publisher.Endpoint, cfg.Publisher.Token,
			cfg.Publisher.Description, cfg.Publisher.Privacy, cfg.Publisher.Timeout, logger),
		Names: steam.NewNameResolver(cfg.Resolver.SteamAPIKey, cfg.Resolver.RequestTimeout, logger),
	}

	settings := orchestrator.Settings{
		OutputDir:       cfg.Paths.OutputDir,
		ArtifactExt:     cfg.Paths.ArtifactExt,
		AnalysisTimeout: cfg.Worker.AnalysisTimeout,
		ReadyTimeout:    cfg.Worker.ReadyTimeout,
		SettleDelay:     cfg.Worker.SettleDelay,
		FinishTimeout:   cfg.Worker.FinishTimeout,
		SaveGrace:       cfg.Recorder.SaveGrace,
		IdlePause:       cfg.Worker.IdlePause,
	}

	worker := orchestrator.NewWorker(jobQueue, deps, settings, broadcaster, store, statsSink, logger)
	go worker.Run(ctx)

	defaultMode := job.PublishSaveLocally
	if cfg.Publisher.UploadByDefault {
		defaultMode = job.PublishUpload
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.Address, cfg.Web.Port)
	server := web.NewServer(addr, jobQueue, broadcaster, store, defaultMode, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("web server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down gracefully")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("web server shutdown failed", "error", err)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
