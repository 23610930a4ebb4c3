package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edupulse/live-backend/config"
	"github.com/edupulse/live-backend/internal/recording"
	"github.com/edupulse/live-backend/internal/worker"
	"github.com/edupulse/live-backend/pkg/database"
	"github.com/edupulse/live-backend/pkg/queue"
	appredis "github.com/edupulse/live-backend/pkg/redis"
	"github.com/edupulse/live-backend/pkg/storage"
)

func newLogger() (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapCfg.Build()
}

func main() {
	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	redisClient, err := appredis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	recordingClient, err := recording.NewClient(cfg.Recording, logger)
	if err != nil {
		logger.Fatal("recording provider must be configured for the reconcile worker", zap.Error(err))
	}

	var s3Client *storage.S3
	if cfg.AWS.RecordingsBucket != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Fatal("failed to create s3 client", zap.Error(err))
		}
	}

	processor := worker.NewReconcileProcessor(
		recording.NewRepository(pool),
		recordingClient,
		queue.NewQueue(redisClient.Client, logger),
		s3Client,
		cfg.Recording.FilesBaseURL,
		logger,
	)
	processor.Run(ctx)
}
