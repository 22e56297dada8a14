package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"iwasp/internal/api/middleware"
	"iwasp/internal/layout"
	"iwasp/internal/palette"
	"iwasp/internal/tasks"
	"iwasp/internal/units"
	"iwasp/internal/worker"
)

const thumbnailURLTTL = time.Hour

// CatalogHandler 暴露颜色、模板与卡片规格目录。
type CatalogHandler struct {
	storage ObjectStore
	queue   TaskQueue
}

func NewCatalogHandler(storage ObjectStore, queue TaskQueue) *CatalogHandler {
	return &CatalogHandler{storage: storage, queue: queue}
}

func (h *CatalogHandler) ListColors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": palette.All()})
}

func (h *CatalogHandler) ListSpecs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": units.AllSpecs()})
}

type templateItem struct {
	layout.Template
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// ListTemplates 返回模板目录；缩略图由 catalog:thumbnails 任务预先生成。
func (h *CatalogHandler) ListTemplates(c *gin.Context) {
	all := layout.All()
	items := make([]templateItem, 0, len(all))
	for _, t := range all {
		item := templateItem{Template: t}
		if h.storage != nil {
			url, err := h.storage.GeneratePresignedURLWithParams(c.Request.Context(), worker.ThumbnailKey(t.ID), thumbnailURLTTL, nil)
			if err != nil {
				middleware.LoggerFromContext(c).Warn("presign template thumbnail",
					slog.String("template_id", t.ID), slog.Any("error", err))
			} else {
				item.ThumbnailURL = url
			}
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type refreshThumbnailsRequest struct {
	TemplateIDs []string `json:"template_ids"`
}

// RefreshThumbnails 将模板缩略图重新生成任务入队。
func (h *CatalogHandler) RefreshThumbnails(c *gin.Context) {
	var req refreshThumbnailsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}
	for _, id := range req.TemplateIDs {
		if _, err := layout.Get(id); err != nil {
			respondError(c, err)
			return
		}
	}

	task, err := tasks.NewCatalogThumbnailsTask(tasks.CatalogThumbnailsPayload{
		TemplateIDs:   req.TemplateIDs,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		Internal(c, "failed to create task")
		return
	}
	info, err := h.queue.EnqueueContext(c.Request.Context(), task)
	if err != nil {
		middleware.LoggerFromContext(c).Error("enqueue thumbnails", slog.Any("error", err))
		Internal(c, "failed to enqueue thumbnails")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID})
}
