package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"iwasp/internal/api"
	"iwasp/internal/assetgate"
	"iwasp/internal/config"
	"iwasp/internal/database"
	"iwasp/internal/raster"
	"iwasp/internal/render"
	"iwasp/internal/session"
	"iwasp/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	logger.Info("database ready", slog.String("host", cfg.Database.Host), slog.String("db", cfg.Database.Name))

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()

	sessions, err := session.NewService(cfg.Session.Secret, cfg.Session.Issuer)
	if err != nil {
		log.Fatalf("init session service: %v", err)
	}

	rasterizer, err := raster.New(storageClient)
	if err != nil {
		log.Fatalf("load fonts: %v", err)
	}
	renderer, err := render.NewRenderer(cfg.Render.PreviewWidthPx, rasterizer.Fonts)
	if err != nil {
		log.Fatalf("init renderer: %v", err)
	}

	var scanner assetgate.Scanner = assetgate.ClamdScanner{Addr: cfg.Clamd.Addr}
	if cfg.Clamd.Addr == "" {
		logger.Warn("clamd address is empty, uploads are not scanned")
		scanner = assetgate.NopScanner{}
	}

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, api.Deps{
		DB:         db,
		Queue:      asynqClient,
		Sessions:   sessions,
		Redis:      redisClient,
		Storage:    storageClient,
		Renderer:   renderer,
		Rasterizer: rasterizer,
		Gate:       assetgate.New(cfg.Upload.OptimalFactor),
		Scanner:    scanner,
		Fetcher:    assetgate.NewFetcher(logger, cfg.Upload.MaxBytes),
		Logger:     logger,
		Config:     cfg,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", slog.Any("error", err))
	}
}
