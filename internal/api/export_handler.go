package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"iwasp/internal/api/middleware"
	"iwasp/internal/database"
	"iwasp/internal/export"
	"iwasp/internal/tasks"
)

const downloadURLTTL = 15 * time.Minute

// ExportHandler 受理打印包生成请求并查询结果。
type ExportHandler struct {
	db      *gorm.DB
	queue   TaskQueue
	storage ObjectStore
}

func NewExportHandler(db *gorm.DB, queue TaskQueue, storage ObjectStore) *ExportHandler {
	return &ExportHandler{db: db, queue: queue, storage: storage}
}

type requestExportRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1,max=10000"`
}

type exportResponse struct {
	ID            uint            `json:"id"`
	DesignID      uint            `json:"design_id"`
	OrderNumber   string          `json:"order_number"`
	Quantity      int             `json:"quantity"`
	Status        string          `json:"status"`
	ErrorCode     int             `json:"error_code,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	CardFile      string          `json:"card_file,omitempty"`
	CardURL       string          `json:"card_url,omitempty"`
	InfoSheetFile string          `json:"info_sheet_file,omitempty"`
	InfoSheetURL  string          `json:"info_sheet_url,omitempty"`
	Manifest      json.RawMessage `json:"manifest,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// RequestExport 为已锁定的设计稿创建导出记录并入队，立即返回 202。
// 同一设计稿已有任务在队列中时返回 409。
func (h *ExportHandler) RequestExport(c *gin.Context) {
	var req requestExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	row, ok := loadOwnedDesign(c, h.db)
	if !ok {
		return
	}
	if err := row.ToDomain().RequireLocked(); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.Uint64("design_id", uint64(row.ID)))
	correlationID := middleware.GetCorrelationID(c)

	exp := database.Export{
		DesignID:      row.ID,
		OrderNumber:   row.OrderNumber,
		Quantity:      req.Quantity,
		Status:        database.ExportQueued,
		CorrelationID: correlationID,
	}
	if err := h.db.WithContext(ctx).Create(&exp).Error; err != nil {
		Internal(c, "failed to create export")
		return
	}

	task, err := tasks.NewCardExportTask(tasks.CardExportPayload{
		DesignID:      row.ID,
		ExportID:      exp.ID,
		OrderNumber:   row.OrderNumber,
		Quantity:      req.Quantity,
		CorrelationID: correlationID,
		SessionID:     row.SessionID,
	})
	if err != nil {
		h.discard(c, &exp)
		Internal(c, "failed to create task")
		return
	}

	info, err := h.queue.EnqueueContext(ctx, task)
	if err != nil {
		h.discard(c, &exp)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			respondError(c, export.ErrExportInProgress)
			return
		}
		log.Error("enqueue export", slog.Any("error", err))
		Internal(c, "failed to enqueue export")
		return
	}

	log.Info("export queued", slog.Uint64("export_id", uint64(exp.ID)), slog.String("task_id", info.ID))
	c.JSON(http.StatusAccepted, gin.H{
		"export_id": exp.ID,
		"status":    exp.Status,
		"task_id":   info.ID,
	})
}

// GetExport 返回设计稿最近一次导出；完成时附带限时下载链接。
func (h *ExportHandler) GetExport(c *gin.Context) {
	row, ok := loadOwnedDesign(c, h.db)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var exp database.Export
	err := h.db.WithContext(ctx).
		Where("design_id = ?", row.ID).
		Order("id desc").
		First(&exp).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "export not found")
		return
	case err != nil:
		Internal(c, "failed to query export")
		return
	}

	resp := exportResponse{
		ID:           exp.ID,
		DesignID:     exp.DesignID,
		OrderNumber:  exp.OrderNumber,
		Quantity:     exp.Quantity,
		Status:       exp.Status,
		ErrorCode:    exp.ErrorCode,
		ErrorMessage: exp.ErrorMessage,
		CreatedAt:    exp.CreatedAt,
		UpdatedAt:    exp.UpdatedAt,
	}
	if exp.Status == database.ExportCompleted {
		resp.Manifest = json.RawMessage(exp.Manifest)
		resp.CardFile = path.Base(exp.CardKey)
		resp.InfoSheetFile = path.Base(exp.InfoSheetKey)
		if resp.CardURL, err = h.downloadURL(c, exp.CardKey); err != nil {
			Internal(c, "failed to generate download url")
			return
		}
		if resp.InfoSheetURL, err = h.downloadURL(c, exp.InfoSheetKey); err != nil {
			Internal(c, "failed to generate download url")
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ExportHandler) downloadURL(c *gin.Context, key string) (string, error) {
	params := map[string]string{
		"response-content-disposition": fmt.Sprintf("attachment; filename=%q", path.Base(key)),
		"response-content-type":        "application/pdf",
	}
	url, err := h.storage.GeneratePresignedURLWithParams(c.Request.Context(), key, downloadURLTTL, params)
	if err != nil {
		middleware.LoggerFromContext(c).Error("presign export", slog.String("object_key", key), slog.Any("error", err))
	}
	return url, err
}

// discard 删除未能入队的导出记录，使其不会显示为排队中。
func (h *ExportHandler) discard(c *gin.Context, exp *database.Export) {
	if err := h.db.WithContext(c.Request.Context()).Unscoped().Delete(exp).Error; err != nil {
		middleware.LoggerFromContext(c).Warn("discard export row",
			slog.Uint64("export_id", uint64(exp.ID)),
			slog.Any("error", err))
	}
}
