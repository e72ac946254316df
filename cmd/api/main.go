package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"vidconv/internal/artifact"
	"vidconv/internal/http/handlers"
	httpapi "vidconv/internal/http/httpapi"
	"vidconv/internal/infra"
	"vidconv/internal/jobs"
	"vidconv/internal/jobstore"
	"vidconv/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx := context.Background()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect database")
	}
	defer dbpool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect redis")
	}
	defer rdb.Close()

	var artifacts artifact.Store
	staticDir := ""
	if cfg.MinioEndpoint != "" {
		minioClient, err := infra.NewMinioClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to connect object storage")
		}
		artifacts = artifact.NewMinioStore(minioClient, cfg.MinioBucket)
	} else {
		logger.Warn().Str("dir", cfg.ArtifactDir).Msg("api: no MINIO_ENDPOINT, serving artifacts from local disk")
		fileStore, err := artifact.NewFileStore(cfg.ArtifactDir, cfg.StorageBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to configure local artifact store")
		}
		artifacts = fileStore
		staticDir = cfg.ArtifactDir
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("api: failed to create upload dir")
	}

	store := jobstore.New(infra.NewSQLRunner(dbpool, logger))
	q := queue.New(rdb, cfg.QueueDepthCap, cfg.LeaseDuration)
	service := jobs.NewService(store, q, artifacts, cfg.QueueDepthCap, cfg.SignedURLTTL, logger)

	app := handlers.NewApp(service, cfg.UploadDir, cfg.MaxUploadSize, logger)
	router := httpapi.NewRouter(app, logger, cfg.RateLimitPerMin, staticDir)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("api: listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}
