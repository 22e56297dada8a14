package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"iwasp/internal/config"
	"iwasp/internal/database"
	"iwasp/internal/export"
	"iwasp/internal/metrics"
	"iwasp/internal/raster"
	"iwasp/internal/render"
	"iwasp/internal/storage"
	"iwasp/internal/tasks"
	"iwasp/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	rasterizer, err := raster.New(storageClient)
	if err != nil {
		log.Fatalf("load fonts: %v", err)
	}
	renderer, err := render.NewRenderer(cfg.Render.PreviewWidthPx, rasterizer.Fonts)
	if err != nil {
		log.Fatalf("init renderer: %v", err)
	}
	pipeline, err := export.NewPipeline(renderer, rasterizer, export.Options{
		Prefix:      cfg.Export.FilePrefix,
		Supersample: cfg.Export.Supersample,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("init export pipeline: %v", err)
	}

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		// 4× 超采样的栅格约 40 MB，限制并发以控制内存。
		Concurrency: 4,
	})

	exportHandler := worker.NewExportTaskHandler(db, storageClient, worker.RedisPublisher{Client: redisClient}, pipeline, logger)
	thumbnailHandler := worker.NewThumbnailTaskHandler(storageClient, renderer, rasterizer, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeCardExport, exportHandler)
	mux.Handle(tasks.TypeCatalogThumbnails, thumbnailHandler)

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("supersample", cfg.Export.Supersample),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
