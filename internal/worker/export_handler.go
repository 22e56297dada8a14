package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"iwasp/internal/database"
	"iwasp/internal/design"
	"iwasp/internal/errcode"
	"iwasp/internal/export"
	"iwasp/internal/metrics"
	"iwasp/internal/storage"
	"iwasp/internal/tasks"
)

// ObjectStore 是 worker 用到的对象存储能力。
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// PackGenerator 生成打印包（export.Pipeline）。
type PackGenerator interface {
	GeneratePrintPack(ctx context.Context, d *design.Design, order export.Order) (*export.Pack, error)
}

// ExportTaskHandler 负责消费打印包生成任务。
type ExportTaskHandler struct {
	db        *gorm.DB
	storage   ObjectStore
	publisher Publisher
	pipeline  PackGenerator
	logger    *slog.Logger
}

// NewExportTaskHandler 创建任务处理器。
func NewExportTaskHandler(db *gorm.DB, store ObjectStore, pub Publisher, pipeline PackGenerator, logger *slog.Logger) *ExportTaskHandler {
	return &ExportTaskHandler{db: db, storage: store, publisher: pub, pipeline: pipeline, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *ExportTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.CardExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("design_id", uint64(payload.DesignID)),
		slog.String("order_number", payload.OrderNumber),
	)
	log.Info("starting print pack task")

	var row database.Design
	if err := h.db.WithContext(ctx).First(&row, payload.DesignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("design not found, failing export")
			h.failMissingDesign(ctx, payload, log)
			return fmt.Errorf("%w: design %d not found", asynq.SkipRetry, payload.DesignID)
		}
		log.Error("query design failed", slog.Any("error", err))
		return err
	}

	exp, err := h.loadExport(ctx, payload)
	if err != nil {
		log.Error("prepare export row failed", slog.Any("error", err))
		return err
	}
	if err := h.db.WithContext(ctx).Model(exp).Update("status", database.ExportRunning).Error; err != nil {
		log.Error("mark export running failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil {
			return
		}
		code := errcode.Of(retErr)
		// 原始 context 可能已取消，状态回写与通知使用独立的短超时。
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := h.db.WithContext(bg).Model(exp).Updates(map[string]any{
			"status":        database.ExportFailed,
			"error_code":    code,
			"error_message": truncateMessage(retErr.Error()),
		}).Error; err != nil {
			log.Error("update export status failed", slog.Any("error", err))
		}
		if !errors.Is(retErr, asynq.SkipRetry) && !isFinalAsynqAttempt(ctx) {
			return
		}
		notify := ExportNotifyMessage{
			Status:        "error",
			DesignID:      row.ID,
			ExportID:      exp.ID,
			Delivered:     false,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     code,
			ErrorMessage:  userMessage(code),
		}
		if err := publishNotify(bg, h.publisher, row.SessionID, notify); err != nil {
			log.Error("publish export error notification failed", slog.Any("error", err))
		}
	}()

	pack, err := h.pipeline.GeneratePrintPack(ctx, row.ToDomain(), export.Order{
		Number:   payload.OrderNumber,
		Quantity: payload.Quantity,
	})
	if err != nil {
		log.Error("generate print pack failed", slog.Any("error", err))
		if permanent(err) {
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		return err
	}

	start := time.Now()
	cardKey, sheetKey, err := h.uploadPack(ctx, pack)
	if err != nil {
		log.Error("upload print pack failed", slog.Any("error", err))
		return err
	}
	metrics.ObserveStage(metrics.StageUpload, start)

	manifest, err := json.Marshal(pack.Manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := h.db.WithContext(ctx).Model(exp).Updates(map[string]any{
		"status":         database.ExportCompleted,
		"card_key":       cardKey,
		"info_sheet_key": sheetKey,
		"manifest":       datatypes.JSON(manifest),
		"error_code":     errcode.OK,
		"error_message":  "",
	}).Error; err != nil {
		log.Error("update export failed", slog.Any("error", err))
		return err
	}

	notify := ExportNotifyMessage{
		Status:        "completed",
		DesignID:      row.ID,
		ExportID:      exp.ID,
		Delivered:     true,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if err := publishNotify(ctx, h.publisher, row.SessionID, notify); err != nil {
		// 文件已交付，通知失败不回滚，前端可轮询导出状态。
		log.Warn("publish redis notification failed", slog.Any("error", err))
	}

	log.Info("print pack task completed", slog.String("card_key", cardKey), slog.String("info_sheet_key", sheetKey))
	return nil
}

// failMissingDesign 设计稿已被删除：排队中的导出行标记失败并通知会话，不再重试。
func (h *ExportTaskHandler) failMissingDesign(ctx context.Context, p tasks.CardExportPayload, log *slog.Logger) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	msg := fmt.Sprintf("design %d not found", p.DesignID)
	if p.ExportID != 0 {
		res := h.db.WithContext(bg).Model(&database.Export{}).Where("id = ?", p.ExportID).Updates(map[string]any{
			"status":        database.ExportFailed,
			"error_code":    errcode.ResourceMissing,
			"error_message": msg,
		})
		if res.Error != nil {
			log.Error("update export status failed", slog.Any("error", res.Error))
		}
	}
	if p.SessionID == "" {
		return
	}
	notify := ExportNotifyMessage{
		Status:        "error",
		DesignID:      p.DesignID,
		ExportID:      p.ExportID,
		Delivered:     false,
		CorrelationID: p.CorrelationID,
		ErrorCode:     errcode.ResourceMissing,
		ErrorMessage:  userMessage(errcode.ResourceMissing),
	}
	if err := publishNotify(bg, h.publisher, p.SessionID, notify); err != nil {
		log.Error("publish export error notification failed", slog.Any("error", err))
	}
}

func (h *ExportTaskHandler) loadExport(ctx context.Context, p tasks.CardExportPayload) (*database.Export, error) {
	var exp database.Export
	if p.ExportID != 0 {
		err := h.db.WithContext(ctx).First(&exp, p.ExportID).Error
		if err == nil {
			return &exp, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	exp = database.Export{
		DesignID:      p.DesignID,
		OrderNumber:   p.OrderNumber,
		Quantity:      p.Quantity,
		Status:        database.ExportQueued,
		CorrelationID: p.CorrelationID,
	}
	if err := h.db.WithContext(ctx).Create(&exp).Error; err != nil {
		return nil, err
	}
	return &exp, nil
}

// uploadPack 先上传卡片再上传信息单；第二个失败时删除第一个，保证不会出现半个打印包。
func (h *ExportTaskHandler) uploadPack(ctx context.Context, pack *export.Pack) (cardKey, sheetKey string, err error) {
	cardKey = storage.ExportKey(pack.Manifest.OrderNumber, pack.CardName)
	sheetKey = storage.ExportKey(pack.Manifest.OrderNumber, pack.InfoSheetName)

	if _, err := h.storage.UploadFile(ctx, cardKey, bytes.NewReader(pack.CardPDF), int64(len(pack.CardPDF)), "application/pdf"); err != nil {
		return "", "", fmt.Errorf("upload card pdf: %w", err)
	}
	if _, err := h.storage.UploadFile(ctx, sheetKey, bytes.NewReader(pack.InfoSheetPDF), int64(len(pack.InfoSheetPDF)), "application/pdf"); err != nil {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if delErr := h.storage.DeleteObject(bg, cardKey); delErr != nil {
			h.logger.Error("rollback card pdf failed", slog.String("key", cardKey), slog.Any("error", delErr))
		}
		return "", "", fmt.Errorf("upload info sheet pdf: %w", err)
	}
	return cardKey, sheetKey, nil
}

func userMessage(code int) string {
	switch code {
	case errcode.NotLocked:
		return "design must be locked before export; no file was delivered"
	case errcode.ExportInProgress:
		return "an export is already running for this design"
	case errcode.ResourceMissing:
		return "the design no longer exists; no file was delivered"
	}
	if errcode.IsSystem(code) {
		return "print pack generation failed; no file was delivered, please retry"
	}
	return "export rejected; no file was delivered"
}

func truncateMessage(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > 500 {
		return string(r[:500])
	}
	return string(r)
}

// permanent 判断失败是否与重试无关：设计未锁定、订单非法或 Logo 对象已被删除。
func permanent(err error) bool {
	return errors.Is(err, design.ErrNotLocked) ||
		errors.Is(err, export.ErrInvalidOrder) ||
		errors.Is(err, storage.ErrObjectNotFound)
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		// 非 asynq 调用（CLI、测试）没有重试。
		return true
	}
	return retryCount >= maxRetry
}
