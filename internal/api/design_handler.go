package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"iwasp/internal/api/middleware"
	"iwasp/internal/assetgate"
	"iwasp/internal/database"
	"iwasp/internal/design"
	"iwasp/internal/layout"
	"iwasp/internal/raster"
	"iwasp/internal/render"
	"iwasp/internal/units"
)

var (
	errInvalidDesignID = errors.New("invalid design id")
	// errStaleDesign 表示写入期间设计稿状态已被其他请求改变。
	errStaleDesign = errors.New("design was modified concurrently")
)

const maxPreviewScale = 3

// DesignHandler 负责设计稿的增改、状态流转与预览。
type DesignHandler struct {
	db         *gorm.DB
	renderer   *render.Renderer
	rasterizer *raster.Rasterizer
	gate       assetgate.Gate
	now        func() time.Time
}

func NewDesignHandler(db *gorm.DB, r *render.Renderer, rz *raster.Rasterizer, gate assetgate.Gate) *DesignHandler {
	return &DesignHandler{db: db, renderer: r, rasterizer: rz, gate: gate, now: time.Now}
}

type createDesignRequest struct {
	TemplateID     string  `json:"template_id"`
	ColorID        string  `json:"color_id"`
	PrintedName    *string `json:"printed_name"`
	PrintedTitle   *string `json:"printed_title"`
	PrintedCompany *string `json:"printed_company"`
}

type designResponse struct {
	*design.Design
	LogoQuality *assetgate.QualityReport `json:"logo_quality,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

func newDesignResponse(gate assetgate.Gate, row *database.Design) designResponse {
	d := row.ToDomain()
	return designResponse{
		Design:      d,
		LogoQuality: logoQuality(gate, d),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

// logoQuality 按当前模板重新计算 Logo 质量，不读取持久化的结论。
func logoQuality(gate assetgate.Gate, d *design.Design) *assetgate.QualityReport {
	if d.Logo == nil {
		return nil
	}
	tpl, err := layout.Get(d.TemplateID)
	if err != nil {
		return nil
	}
	pos, ok := tpl.Positions[layout.SlotLogo]
	if !ok {
		return nil
	}
	report := gate.EvaluateAsset(assetgate.Asset{
		MIME:        d.Logo.MIME,
		PixelWidth:  d.Logo.PixelWidth,
		PixelHeight: d.Logo.PixelHeight,
		Vector:      d.Logo.Vector,
	}, pos)
	return &report
}

// CreateDesign 为当前会话创建草稿。订单号取自会话令牌。
func (h *DesignHandler) CreateDesign(c *gin.Context) {
	sessionID, orderNumber, ok := middleware.SessionFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createDesignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	d, err := design.New(sessionID, orderNumber, req.TemplateID, req.ColorID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := d.Apply(design.Changes{
		PrintedName:    req.PrintedName,
		PrintedTitle:   req.PrintedTitle,
		PrintedCompany: req.PrintedCompany,
	}); err != nil {
		respondError(c, err)
		return
	}

	var row database.Design
	row.FromDomain(d)
	if err := h.db.WithContext(c.Request.Context()).Create(&row).Error; err != nil {
		Internal(c, "failed to create design")
		return
	}

	c.JSON(http.StatusCreated, newDesignResponse(h.gate, &row))
}

func (h *DesignHandler) GetDesign(c *gin.Context) {
	row, ok := loadOwnedDesign(c, h.db)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newDesignResponse(h.gate, row))
}

// UpdateDesign 应用部分修改；锁定后的设计稿拒绝修改。
func (h *DesignHandler) UpdateDesign(c *gin.Context) {
	var changes design.Changes
	if err := c.ShouldBindJSON(&changes); err != nil {
		BadRequest(c, err.Error())
		return
	}
	h.mutate(c, func(d *design.Design) error { return d.Apply(changes) })
}

func (h *DesignHandler) ValidateDesign(c *gin.Context) {
	h.mutate(c, func(d *design.Design) error { return d.Validate(h.now()) })
}

func (h *DesignHandler) LockDesign(c *gin.Context) {
	h.mutate(c, func(d *design.Design) error { return d.Lock(h.now()) })
}

func (h *DesignHandler) mutate(c *gin.Context, fn func(*design.Design) error) {
	row, ok := loadOwnedDesign(c, h.db)
	if !ok {
		return
	}
	d := row.ToDomain()
	prev := row.Status
	if err := fn(d); err != nil {
		respondError(c, err)
		return
	}
	row.FromDomain(d)
	if err := saveDesign(c.Request.Context(), h.db, row, prev); err != nil {
		if errors.Is(err, errStaleDesign) {
			Conflict(c, err.Error())
			return
		}
		Internal(c, "failed to save design")
		return
	}
	c.JSON(http.StatusOK, newDesignResponse(h.gate, row))
}

// GetLayout 返回指定模式下的渲染树。print 模式要求设计稿已锁定。
func (h *DesignHandler) GetLayout(c *gin.Context) {
	row, ok := loadOwnedDesign(c, h.db)
	if !ok {
		return
	}
	mode, err := units.ParseMode(c.DefaultQuery("mode", string(units.ModePreview)))
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	opts, err := renderOptions(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	tree, err := h.renderer.Render(row.ToDomain(), mode, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

// GetPreview 以预览比例光栅化设计稿并返回 PNG。scale 用于高分屏（1 至 3）。
func (h *DesignHandler) GetPreview(c *gin.Context) {
	row, ok := loadOwnedDesign(c, h.db)
	if !ok {
		return
	}
	opts, err := renderOptions(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	scale, err := strconv.Atoi(c.DefaultQuery("scale", "1"))
	if err != nil || scale < 1 || scale > maxPreviewScale {
		BadRequest(c, "scale must be between 1 and 3")
		return
	}

	tree, err := h.renderer.Render(row.ToDomain(), units.ModePreview, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	img, err := h.rasterizer.Rasterize(c.Request.Context(), tree, scale)
	if err != nil {
		respondError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := raster.EncodePNG(&buf, img); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func renderOptions(c *gin.Context) (render.Options, error) {
	guides, err := strconv.ParseBool(c.DefaultQuery("guides", "false"))
	if err != nil {
		return render.Options{}, errors.New("guides must be a boolean")
	}
	placeholders, err := strconv.ParseBool(c.DefaultQuery("placeholders", "false"))
	if err != nil {
		return render.Options{}, errors.New("placeholders must be a boolean")
	}
	return render.Options{ShowGuides: guides, ShowPlaceholders: placeholders}, nil
}

// loadOwnedDesign 读取属于当前会话的设计稿；他人的设计稿与不存在一样返回 404。
func loadOwnedDesign(c *gin.Context, db *gorm.DB) (*database.Design, bool) {
	sessionID, _, ok := middleware.SessionFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, errInvalidDesignID.Error())
		return nil, false
	}

	var row database.Design
	err = db.WithContext(c.Request.Context()).
		Where("id = ? AND session_id = ?", uint(id), sessionID).
		First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "design not found")
		return nil, false
	case err != nil:
		Internal(c, "failed to query design")
		return nil, false
	}
	return &row, true
}

// saveDesign 仅在状态仍为 prevStatus 时写入，防止并发请求修改已锁定的设计稿。
func saveDesign(ctx context.Context, db *gorm.DB, row *database.Design, prevStatus string) error {
	res := db.WithContext(ctx).Model(&database.Design{}).
		Where("id = ? AND status = ?", row.ID, prevStatus).
		Updates(map[string]any{
			"template_id":     row.TemplateID,
			"color_id":        row.ColorID,
			"printed_name":    row.PrintedName,
			"printed_title":   row.PrintedTitle,
			"printed_company": row.PrintedCompany,
			"logo_key":        row.LogoKey,
			"logo_mime":       row.LogoMIME,
			"logo_width":      row.LogoWidth,
			"logo_height":     row.LogoHeight,
			"logo_vector":     row.LogoVector,
			"status":          row.Status,
			"validated_at":    row.ValidatedAt,
			"locked_at":       row.LockedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errStaleDesign
	}
	return nil
}
