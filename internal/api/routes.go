package api

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"iwasp/internal/api/middleware"
	"iwasp/internal/assetgate"
	"iwasp/internal/config"
	"iwasp/internal/raster"
	"iwasp/internal/render"
	"iwasp/internal/session"
)

// TaskQueue 是 asynq.Client 的最小子集。
type TaskQueue interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ObjectStore 是 API 层用到的对象存储操作。
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	DeleteObject(ctx context.Context, objectKey string) error
	GeneratePresignedURLWithParams(ctx context.Context, objectKey string, duration time.Duration, params map[string]string) (string, error)
}

// LogoFetcher 从客户提供的 URL 下载 Logo。
type LogoFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Deps 汇总路由需要的外部依赖，由 cmd/api 组装。
type Deps struct {
	DB         *gorm.DB
	Queue      TaskQueue
	Sessions   *session.Service
	Redis      *redis.Client
	// UploadCounter 默认使用 Redis。
	UploadCounter RateCounter
	Storage    ObjectStore
	Renderer   *render.Renderer
	Rasterizer *raster.Rasterizer
	Gate       assetgate.Gate
	Scanner    assetgate.Scanner
	Fetcher    LogoFetcher
	Logger     *slog.Logger
	Config     *config.Config
}

// RegisterRoutes 注册 API 路由。/internal 分组仅在配置了内部密钥时注册。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	catalogHandler := NewCatalogHandler(deps.Storage, deps.Queue)
	designHandler := NewDesignHandler(deps.DB, deps.Renderer, deps.Rasterizer, deps.Gate)
	counter := deps.UploadCounter
	if counter == nil && deps.Redis != nil {
		counter = deps.Redis
	}
	logoHandler := NewLogoHandler(deps.DB, deps.Storage, deps.Scanner, deps.Gate, deps.Fetcher, counter, LogoLimits{
		MaxBytes:   deps.Config.Upload.MaxBytes,
		DailyLimit: deps.Config.Upload.DailyLimit,
	})
	exportHandler := NewExportHandler(deps.DB, deps.Queue, deps.Storage)
	wsHandler := NewWsHandler(deps.Redis, deps.Sessions, deps.Logger, deps.Config.API.AllowedOrigins)
	sessionMiddleware := middleware.SessionMiddleware(deps.Sessions)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		catalog := v1.Group("/catalog")
		{
			catalog.GET("/colors", catalogHandler.ListColors)
			catalog.GET("/templates", catalogHandler.ListTemplates)
			catalog.GET("/specs", catalogHandler.ListSpecs)
		}

		designs := v1.Group("/designs")
		designs.Use(sessionMiddleware)
		{
			designs.POST("", designHandler.CreateDesign)
			designs.GET("/:id", designHandler.GetDesign)
			designs.PATCH("/:id", designHandler.UpdateDesign)
			designs.POST("/:id/validate", designHandler.ValidateDesign)
			designs.POST("/:id/lock", designHandler.LockDesign)
			designs.GET("/:id/layout", designHandler.GetLayout)
			designs.GET("/:id/preview.png", designHandler.GetPreview)

			designs.POST("/:id/logo", logoHandler.UploadLogo)
			designs.POST("/:id/logo/import", logoHandler.ImportLogo)
			designs.DELETE("/:id/logo", logoHandler.DeleteLogo)

			designs.POST("/:id/export", exportHandler.RequestExport)
			designs.GET("/:id/export", exportHandler.GetExport)
		}
	}

	if deps.Config.API.InternalSecret != "" {
		internal := router.Group("/internal")
		internal.Use(middleware.InternalSecretMiddleware(deps.Config.API.InternalSecret))
		internal.POST("/catalog/thumbnails", catalogHandler.RefreshThumbnails)
	}
}
