package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edupulse/live-backend/config"
	"github.com/edupulse/live-backend/internal/auth"
	"github.com/edupulse/live-backend/internal/liveclasses"
	"github.com/edupulse/live-backend/internal/middleware"
	"github.com/edupulse/live-backend/internal/models"
	"github.com/edupulse/live-backend/internal/presence"
	"github.com/edupulse/live-backend/internal/recording"
	"github.com/edupulse/live-backend/internal/rtc"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	redisClient, err := appredis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

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
	} else {
		logger.Warn("recordings bucket not configured, download URLs disabled")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(auth.NewRepository(pool), jwtService, logger)

	classRepo := liveclasses.NewRepository(pool)
	classHandler := liveclasses.NewHandler(classRepo)

	rtcHandler := rtc.NewHandler(classRepo, cfg.RTC, logger)
	presenceHandler := presence.NewHandler(presence.NewRepository(redisClient.Client, logger), logger)

	recordingStore := recording.NewRepository(pool)
	var orchestrator *recording.Orchestrator
	recordingClient, err := recording.NewClient(cfg.Recording, logger)
	if err != nil {
		if !errors.Is(err, recording.ErrNotConfigured) {
			logger.Fatal("failed to create recording client", zap.Error(err))
		}
		logger.Warn("recording provider not configured, recording endpoints disabled")
	} else {
		jobQueue := queue.NewQueue(redisClient.Client, logger)
		minter := rtc.NewTokenService(cfg.RTC.APIKey, cfg.RTC.APISecret, cfg.RTC.TokenTTLHours)
		orchestrator = recording.NewOrchestrator(
			recordingClient, recordingStore, minter, jobQueue, cfg.Recording.FilesBaseURL, logger)
	}
	recordingHandler := recording.NewHandler(orchestrator, recordingStore, classRepo, s3Client, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(jwtService))
	{
		authed.GET("/live-classes", classHandler.List)
		authed.POST("/live-classes",
			middleware.RequireRole(string(models.RoleTeacher), string(models.RoleAdmin)),
			classHandler.Create)
		authed.GET("/live-classes/:id", classHandler.GetByID)
		authed.POST("/live-classes/:id/enroll", classHandler.Enroll)
		authed.PATCH("/live-classes/:id/recording-visibility", classHandler.SetRecordingVisibility)

		authed.GET("/live-classes/:id/rtc-token", rtcHandler.GetToken)

		authed.POST("/live-classes/:id/recording/start", recordingHandler.Start)
		authed.POST("/live-classes/:id/recording/stop", recordingHandler.Stop)
		authed.GET("/live-classes/:id/recordings", recordingHandler.ListByClass)

		authed.GET("/recordings",
			middleware.RequireRole(string(models.RoleAdmin)),
			recordingHandler.ListAll)
		authed.GET("/recordings/visible", recordingHandler.ListVisible)
		authed.GET("/recordings/:id/download-url", recordingHandler.DownloadURL)

		authed.POST("/rooms/:room/join", presenceHandler.Join)
		authed.POST("/rooms/:room/leave", presenceHandler.Leave)
		authed.GET("/rooms/:room/participants", presenceHandler.Participants)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
