package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"iwasp/internal/design"
	"iwasp/internal/layout"
	"iwasp/internal/raster"
	"iwasp/internal/render"
	"iwasp/internal/tasks"
	"iwasp/internal/units"
)

// ThumbnailKey 返回模板缩略图的对象键。
func ThumbnailKey(templateID string) string {
	return fmt.Sprintf("thumbnails/templates/%s.png", templateID)
}

// 缩略图使用的示例文字。
var sampleChanges = func() design.Changes {
	name, title, company := "Camille Martin", "Directrice artistique", "Atelier Nord"
	return design.Changes{PrintedName: &name, PrintedTitle: &title, PrintedCompany: &company}
}()

// ThumbnailTaskHandler 负责模板缩略图生成任务：以预览模式渲染示例卡片并上传 PNG。
type ThumbnailTaskHandler struct {
	storage    ObjectStore
	renderer   *render.Renderer
	rasterizer *raster.Rasterizer
	logger     *slog.Logger
}

func NewThumbnailTaskHandler(store ObjectStore, r *render.Renderer, rz *raster.Rasterizer, logger *slog.Logger) *ThumbnailTaskHandler {
	return &ThumbnailTaskHandler{storage: store, renderer: r, rasterizer: rz, logger: logger}
}

func (h *ThumbnailTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.logger

	var payload tasks.CatalogThumbnailsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal thumbnail payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	log = log.With(slog.String("correlation_id", payload.CorrelationID))
	log.Info("starting catalog thumbnail task")

	ids := payload.TemplateIDs
	if len(ids) == 0 {
		for _, tpl := range layout.All() {
			ids = append(ids, tpl.ID)
		}
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := h.Render(ctx, id)
		if err != nil {
			log.Error("render template thumbnail failed", slog.String("template_id", id), slog.Any("error", err))
			return err
		}
		key := ThumbnailKey(id)
		if _, err := h.storage.UploadFile(ctx, key, bytes.NewReader(data), int64(len(data)), "image/png"); err != nil {
			log.Error("upload template thumbnail failed", slog.String("template_id", id), slog.Any("error", err))
			return err
		}
	}

	log.Info("catalog thumbnail task completed", slog.Int("count", len(ids)))
	return nil
}

// Render 返回模板示例卡片的预览 PNG。
func (h *ThumbnailTaskHandler) Render(ctx context.Context, templateID string) ([]byte, error) {
	d, err := design.New("catalog", "SAMPLE", templateID, "")
	if err != nil {
		return nil, err
	}
	if err := d.Apply(sampleChanges); err != nil {
		return nil, err
	}
	tree, err := h.renderer.Render(d, units.ModePreview, render.Options{ShowPlaceholders: true})
	if err != nil {
		return nil, err
	}
	img, err := h.rasterizer.Rasterize(ctx, tree, 2)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := raster.EncodePNG(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
