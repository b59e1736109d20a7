package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tryon/internal/history"
	"tryon/internal/http/handlers"
	"tryon/internal/http/httpapi"
	"tryon/internal/infra"
	"tryon/internal/metrics"
	"tryon/internal/orchestrator"
	"tryon/internal/storage"
	"tryon/internal/video"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outputs, err := storage.NewFileStore(cfg.OutputsDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure outputs dir")
	}
	staging, err := storage.NewFileStore(cfg.StagingDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure staging dir")
	}

	backend, err := history.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.HistoryBackend).Msg("api: failed to open history store")
	}
	defer backend.Close()

	providers, err := buildProviders(ctx, cfg, backend.Credentials, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure providers")
	}

	resolver, err := newResolver(cfg, staging)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure asset resolver")
	}

	jobs, err := orchestrator.New(orchestrator.Options{
		Resolver:           resolver,
		Outputs:            outputs,
		History:            backend.Store,
		Describer:          providers.describer,
		Generator:          providers.generator,
		Identity:           providers.identity,
		Logger:             logger.With().Str("component", "orchestrator").Logger(),
		MaxConcurrentJobs:  cfg.MaxConcurrentJobs,
		DescriptionTimeout: cfg.DescriptionTimeout,
		ImageTimeout:       cfg.ImageTimeout,
		IdentityTimeout:    cfg.IdentityTimeout,
		ComparisonHeight:   cfg.ComparisonHeight,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build orchestrator")
	}
	videos, err := video.New(video.Options{
		Jobs:         jobs,
		History:      backend.Store,
		Provider:     providers.video,
		Outputs:      outputs,
		Logger:       logger.With().Str("component", "video").Logger(),
		PollInterval: cfg.VideoPollInterval,
		Timeout:      cfg.VideoTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build video orchestrator")
	}

	if n, err := jobs.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("api: history sweep failed")
	} else if n > 0 {
		logger.Warn().Int("jobs", n).Msg("api: interrupted try-on jobs marked failed")
	}
	if n, err := videos.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("api: video restore failed")
	} else if n > 0 {
		logger.Info().Int("videos", n).Msg("api: video jobs restored from history")
	}

	app := &handlers.App{
		Logger:    logger,
		TryOn:     jobs,
		Videos:    videos,
		History:   backend.Store,
		Resolver:  resolver,
		Validator: providers.validator,
		Outputs:   outputs,
		Staging:   staging,
		BaseURL:   cfg.PublicBaseURL,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMin,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("history", cfg.HistoryBackend).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: http shutdown failed")
	}
	if err := videos.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api: video jobs cancelled")
	}
	if err := jobs.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api: try-on jobs cancelled")
	}
	logger.Info().Msg("api: stopped")
}
