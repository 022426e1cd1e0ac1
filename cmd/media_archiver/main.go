package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/italolelis/media_archiver/internal/api"
	"github.com/italolelis/media_archiver/internal/auth"
	"github.com/italolelis/media_archiver/internal/config"
	"github.com/italolelis/media_archiver/internal/download"
	"github.com/italolelis/media_archiver/internal/enrich"
	"github.com/italolelis/media_archiver/internal/http/rest"
	"github.com/italolelis/media_archiver/internal/logctx"
	"github.com/italolelis/media_archiver/internal/notifier"
	"github.com/italolelis/media_archiver/internal/ratelimit"
	"github.com/italolelis/media_archiver/internal/storage/sqlite"
	"github.com/italolelis/media_archiver/internal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("media archiver starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(telemetry.Config{ServiceName: "media_archiver"})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background()) //nolint:errcheck

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	repo := sqlite.NewContentRepository(database)

	// =========================================================================
	// Start Request Layer
	limiter := ratelimit.New(cfg.RateLimit)

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	tokens := auth.NewProvider(ctx, cfg.TokenCachePath,
		&auth.DirectStrategy{Client: httpClient, Endpoint: cfg.APIBaseURL + "/timer/"},
		&auth.ProbeStrategy{Client: httpClient, ProbeURL: cfg.APIBaseURL + "/beta/videos", MaxAttempts: cfg.ProbeAttempts},
		&auth.PageStrategy{Client: httpClient, PageURL: cfg.WebBaseURL},
	).WithTelemetry(tel)

	executor := api.NewExecutor(cfg.APIBaseURL, cfg.RequestTimeout, limiter, tokens, tel)

	// =========================================================================
	// Start Enrichment
	enricher := enrich.New(executor, limiter, cfg.EnrichRateLimit, cfg.MaxWorkers, tel)

	// =========================================================================
	// Start Download Manager
	manager, err := download.NewManager(ctx, download.Config{
		BaseDir:         cfg.DownloadDir,
		ThumbnailFolder: cfg.ThumbnailFolder,
		VideoFolder:     cfg.VideoFolder,
		ForceRedownload: cfg.ForceRedownload,
		MaxConcurrent:   cfg.MaxDownloads,
		FlushEvery:      cfg.DBFlushEvery,
		Timeout:         cfg.RequestTimeout,
	}, repo, tel)
	if err != nil {
		return fmt.Errorf("failed to build download manager: %w", err)
	}

	// =========================================================================
	// Start Notification
	setupNotification(ctx, manager, cfg)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, enricher, manager, executor, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for requests...",
		"download_dir", cfg.DownloadDir,
		"rate_limit", cfg.RateLimit.String(),
		"max_downloads", cfg.MaxDownloads,
	)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		// Persist anything staged since the last periodic flush.
		manager.Close(logctx.WithLogger(shutdownCtx, logger))

		return nil
	}
}

func setupNotification(ctx context.Context, manager *download.Manager, cfg *config.Config) {
	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}
	}

	go notifier.WatchDownloadFailures(ctx, notif, manager.OnDownloadError)
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, enricher rest.Enricher, manager rest.Downloader, executor rest.APIUsage, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	h := rest.NewArchiveHandler(enricher, manager, executor, tel)

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      h.Routes(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
