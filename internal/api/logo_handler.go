package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"iwasp/internal/api/middleware"
	"iwasp/internal/assetgate"
	"iwasp/internal/database"
	"iwasp/internal/design"
	"iwasp/internal/errcode"
	"iwasp/internal/layout"
	"iwasp/internal/metrics"
	"iwasp/internal/storage"
)

// LogoLimits 约束 Logo 上传。
type LogoLimits struct {
	MaxBytes   int64
	DailyLimit int
}

// LogoHandler 负责 Logo 的上传、URL 导入与删除。
// 流程：类型与尺寸检查 → 病毒扫描 → 质量门禁 → 存储 → 绑定到设计稿。
type LogoHandler struct {
	db      *gorm.DB
	storage ObjectStore
	scanner assetgate.Scanner
	gate    assetgate.Gate
	fetcher LogoFetcher
	counter RateCounter
	limits  LogoLimits
	now     func() time.Time
}

func NewLogoHandler(db *gorm.DB, storage ObjectStore, scanner assetgate.Scanner, gate assetgate.Gate, fetcher LogoFetcher, counter RateCounter, limits LogoLimits) *LogoHandler {
	if scanner == nil {
		scanner = assetgate.NopScanner{}
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = assetgate.DefaultMaxBytes
	}
	return &LogoHandler{
		db:      db,
		storage: storage,
		scanner: scanner,
		gate:    gate,
		fetcher: fetcher,
		counter: counter,
		limits:  limits,
		now:     time.Now,
	}
}

type importLogoRequest struct {
	URL string `json:"url" binding:"required"`
}

type logoResponse struct {
	Logo    *design.LogoAsset       `json:"logo"`
	Quality assetgate.QualityReport `json:"quality"`
	Warning string                  `json:"warning,omitempty"`
	Code    int                     `json:"code"`
}

// UploadLogo 处理 multipart 上传（字段名 file）。
func (h *LogoHandler) UploadLogo(c *gin.Context) {
	row, ok := h.loadEditable(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size > h.limits.MaxBytes {
		respondError(c, fmt.Errorf("%w: %d bytes exceeds %d", assetgate.ErrFileTooLarge, file.Size, h.limits.MaxBytes))
		return
	}
	if !h.allowUpload(c) {
		return
	}

	f, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.limits.MaxBytes+1))
	if err != nil {
		Internal(c, "failed to read file")
		return
	}

	h.ingest(c, row, data)
}

// ImportLogo 从客户提供的 URL 下载 Logo，之后与上传走同一流程。
func (h *LogoHandler) ImportLogo(c *gin.Context) {
	var req importLogoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	row, ok := h.loadEditable(c)
	if !ok {
		return
	}
	if h.fetcher == nil {
		Error(c, http.StatusNotImplemented, "logo import is disabled")
		return
	}
	if !h.allowUpload(c) {
		return
	}

	data, err := h.fetcher.Fetch(c.Request.Context(), req.URL)
	if err != nil {
		middleware.LoggerFromContext(c).Warn("logo import failed", slog.Any("error", err))
		respondError(c, err)
		return
	}
	h.ingest(c, row, data)
}

// DeleteLogo 解除绑定并删除对象；对象删除失败只记录日志。
func (h *LogoHandler) DeleteLogo(c *gin.Context) {
	row, ok := h.loadEditable(c)
	if !ok {
		return
	}
	d := row.ToDomain()
	old := d.Logo
	prev := row.Status
	if err := d.DetachLogo(); err != nil {
		respondError(c, err)
		return
	}
	row.FromDomain(d)
	if err := saveDesign(c.Request.Context(), h.db, row, prev); err != nil {
		h.respondSaveError(c, err)
		return
	}
	if old != nil {
		h.deleteObject(c, old.ObjectKey)
	}
	c.Status(http.StatusNoContent)
}

func (h *LogoHandler) ingest(c *gin.Context, row *database.Design, data []byte) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c).With(slog.Uint64("design_id", uint64(row.ID)))

	asset, err := assetgate.Inspect(data, h.limits.MaxBytes)
	if err != nil {
		metrics.CountAssetGate("rejected")
		respondError(c, err)
		return
	}
	if err := h.scanner.Scan(ctx, bytes.NewReader(data)); err != nil {
		if errors.Is(err, assetgate.ErrMalware) {
			metrics.CountAssetGate("malware")
			log.Warn("malicious logo rejected", slog.Any("error", err))
			respondError(c, err)
			return
		}
		log.Error("scan logo", slog.Any("error", err))
		Internal(c, "failed to scan file")
		return
	}

	tpl, err := layout.Get(row.TemplateID)
	if err != nil {
		respondError(c, err)
		return
	}
	pos, ok := tpl.Positions[layout.SlotLogo]
	if !ok {
		respondError(c, fmt.Errorf("%w: template %s has no logo slot", design.ErrInvalidField, tpl.ID))
		return
	}

	report := h.gate.EvaluateAsset(asset, pos)
	if !report.Valid {
		metrics.CountAssetGate("too_small")
		minW, minH := assetgate.MinPixels(pos)
		respondError(c, &assetgate.TooSmallError{
			Width: asset.PixelWidth, Height: asset.PixelHeight,
			MinWidth: minW, MinHeight: minH,
		})
		return
	}
	if report.Optimal {
		metrics.CountAssetGate("optimal")
	} else {
		metrics.CountAssetGate("suboptimal")
	}

	key := storage.NewAssetKey(row.SessionID, asset.Ext)
	if _, err := h.storage.UploadFile(ctx, key, bytes.NewReader(data), int64(len(data)), asset.MIME); err != nil {
		log.Error("upload logo", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	d := row.ToDomain()
	old := d.Logo
	prev := row.Status
	logo := design.LogoAsset{
		ObjectKey:   key,
		MIME:        asset.MIME,
		PixelWidth:  asset.PixelWidth,
		PixelHeight: asset.PixelHeight,
		Vector:      asset.Vector,
	}
	if err := d.AttachLogo(logo, report); err != nil {
		h.deleteObject(c, key)
		respondError(c, err)
		return
	}
	row.FromDomain(d)
	if err := saveDesign(ctx, h.db, row, prev); err != nil {
		h.deleteObject(c, key)
		h.respondSaveError(c, err)
		return
	}
	if old != nil && old.ObjectKey != key {
		h.deleteObject(c, old.ObjectKey)
	}
	log.Info("logo attached",
		slog.String("object_key", key),
		slog.Int("width", asset.PixelWidth),
		slog.Int("height", asset.PixelHeight),
		slog.Bool("optimal", report.Optimal),
	)

	resp := logoResponse{Logo: d.Logo, Quality: report}
	if err := report.Err(); err != nil {
		resp.Warning = report.Message
		resp.Code = errcode.Of(err)
	}
	c.JSON(http.StatusCreated, resp)
}

// loadEditable 读取设计稿并拒绝已锁定的设计稿，避免白白上传。
func (h *LogoHandler) loadEditable(c *gin.Context) (*database.Design, bool) {
	row, ok := loadOwnedDesign(c, h.db)
	if !ok {
		return nil, false
	}
	if design.Status(row.Status) == design.StatusLocked {
		respondError(c, design.ErrLocked)
		return nil, false
	}
	return row, true
}

// allowUpload 检查会话的每日上传次数。Redis 不可用时放行。
func (h *LogoHandler) allowUpload(c *gin.Context) bool {
	if h.counter == nil || h.limits.DailyLimit <= 0 {
		return true
	}
	sessionID, _, _ := middleware.SessionFromContext(c)
	count, err := incrWithTTL(c.Request.Context(), h.counter, uploadCountKey(sessionID, h.now()), 24*time.Hour)
	if err != nil {
		middleware.LoggerFromContext(c).Warn("upload counter unavailable", slog.Any("error", err))
		return true
	}
	if count > int64(h.limits.DailyLimit) {
		TooManyRequests(c, "daily upload limit reached")
		return false
	}
	return true
}

func (h *LogoHandler) respondSaveError(c *gin.Context, err error) {
	if errors.Is(err, errStaleDesign) {
		Conflict(c, err.Error())
		return
	}
	Internal(c, "failed to save design")
}

func (h *LogoHandler) deleteObject(c *gin.Context, key string) {
	sessionID, _, _ := middleware.SessionFromContext(c)
	if !storage.AssetBelongsTo(key, sessionID) {
		middleware.LoggerFromContext(c).Warn("refusing to delete foreign object", slog.String("object_key", key))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 5*time.Second)
	defer cancel()
	if err := h.storage.DeleteObject(ctx, key); err != nil {
		middleware.LoggerFromContext(c).Warn("delete logo object", slog.String("object_key", key), slog.Any("error", err))
	}
}
