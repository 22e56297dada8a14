package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeCardExport        = "card:export"
	TypeCatalogThumbnails = "catalog:thumbnails"
)

// ExportTimeout 限制单个打印包任务的最长执行时间。
const ExportTimeout = 2 * time.Minute

// CardExportPayload 描述生成打印包所需的最小信息。
type CardExportPayload struct {
	DesignID      uint   `json:"design_id"`
	ExportID      uint   `json:"export_id"`
	OrderNumber   string `json:"order_number"`
	Quantity      int    `json:"quantity"`
	CorrelationID string `json:"correlation_id"`
	// SessionID 用于设计稿行已不存在时仍能通知前端。
	SessionID string `json:"session_id,omitempty"`
}

// ExportTaskID 同一设计稿同时只允许一个排队/执行中的导出任务。
func ExportTaskID(designID uint) string {
	return fmt.Sprintf("card-export:%d", designID)
}

// NewCardExportTask 构造打印包任务。失败不自动重试，避免重复交付，由用户手动重新发起。
func NewCardExportTask(p CardExportPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCardExport, payload,
		asynq.TaskID(ExportTaskID(p.DesignID)),
		asynq.MaxRetry(0),
		asynq.Timeout(ExportTimeout),
	), nil
}

// CatalogThumbnailsPayload 指定需要重新生成缩略图的模板；为空表示全部。
type CatalogThumbnailsPayload struct {
	TemplateIDs   []string `json:"template_ids,omitempty"`
	CorrelationID string   `json:"correlation_id"`
}

// NewCatalogThumbnailsTask 构造模板缩略图任务。
func NewCatalogThumbnailsTask(p CatalogThumbnailsPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCatalogThumbnails, payload, asynq.MaxRetry(3)), nil
}
