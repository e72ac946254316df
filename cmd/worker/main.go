package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"vidconv/internal/artifact"
	"vidconv/internal/infra"
	"vidconv/internal/jobstore"
	"vidconv/internal/queue"
	"vidconv/internal/transcode"
	"vidconv/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer dbpool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer rdb.Close()

	var artifacts artifact.Store
	if cfg.MinioEndpoint != "" {
		minioClient, err := infra.NewMinioClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: object storage connection failed")
		}
		artifacts = artifact.NewMinioStore(minioClient, cfg.MinioBucket)
	} else {
		logger.Warn().Str("dir", cfg.ArtifactDir).Msg("worker: no MINIO_ENDPOINT, storing artifacts on local disk")
		fileStore, err := artifact.NewFileStore(cfg.ArtifactDir, cfg.StorageBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure local artifact store")
		}
		artifacts = fileStore
	}

	store := jobstore.New(infra.NewSQLRunner(dbpool, logger))
	q := queue.New(rdb, cfg.QueueDepthCap, cfg.LeaseDuration)
	executor := transcode.New(cfg.FFmpegPath, cfg.FFprobePath, cfg.TranscodeTimeout, logger)

	w := worker.New(worker.Config{
		Count:         cfg.WorkerCount,
		PollTimeout:   cfg.PollTimeout,
		MaxAttempts:   cfg.MaxAttempts,
		UploadRetries: cfg.UploadRetries,
		UploadBackoff: cfg.UploadBackoff,
	}, store, q, executor, artifacts, logger)

	go worker.RunReaper(ctx, q, cfg.ReaperInterval, logger)
	go worker.RunSweeper(ctx, store, cfg.SweeperInterval, cfg.RecordRetention, logger)

	logger.Info().Int("workers", cfg.WorkerCount).Msg("worker: started")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
