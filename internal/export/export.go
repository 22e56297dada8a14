// Package export produces the print pack of a locked card design: a
// camera-ready card PDF sized to the physical card and an operator info
// sheet. Either both documents are produced or neither is.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"iwasp/internal/design"
	"iwasp/internal/layout"
	"iwasp/internal/metrics"
	"iwasp/internal/palette"
	"iwasp/internal/pdf"
	"iwasp/internal/raster"
	"iwasp/internal/render"
	"iwasp/internal/units"
)

var (
	ErrExportInProgress    = errors.New("an export is already running for this design")
	ErrRasterizationFailed = errors.New("rasterization failed")
	ErrPDFAssemblyFailed   = errors.New("pdf assembly failed")
	ErrInvalidOrder        = errors.New("invalid order")
)

const (
	DefaultPrefix      = "IWASP"
	DefaultSupersample = 4
)

// Order identifies the purchase the pack is produced for.
type Order struct {
	Number   string
	Quantity int
}

// Options configures a Pipeline. Zero values take the defaults.
type Options struct {
	Prefix      string
	Supersample int
	Logger      *slog.Logger
}

// Pipeline turns locked designs into print packs. It is safe for concurrent
// use; exports of the same design are rejected while one is running.
type Pipeline struct {
	renderer    *render.Renderer
	rasterizer  *raster.Rasterizer
	prefix      string
	supersample int
	logger      *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewPipeline wires a renderer and a rasterizer.
func NewPipeline(r *render.Renderer, rz *raster.Rasterizer, opts Options) (*Pipeline, error) {
	if r == nil || rz == nil {
		return nil, fmt.Errorf("export: renderer and rasterizer are required")
	}
	prefix := sanitize(opts.Prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	factor := opts.Supersample
	if factor <= 0 {
		factor = DefaultSupersample
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		renderer:    r,
		rasterizer:  rz,
		prefix:      prefix,
		supersample: factor,
		logger:      logger,
		inFlight:    make(map[string]struct{}),
	}, nil
}

// Names returns the deterministic deliverable file names for an order.
func (p *Pipeline) Names(orderNumber string) (card, infoSheet string, err error) {
	order := sanitize(orderNumber)
	if order == "" {
		return "", "", fmt.Errorf("%w: empty order number", ErrInvalidOrder)
	}
	return fmt.Sprintf("%s_Carte_%s.pdf", p.prefix, order),
		fmt.Sprintf("%s_Fiche_%s.pdf", p.prefix, order), nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func sanitize(s string) string {
	return strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(s), "-"), "-")
}

func guardKey(d *design.Design) string {
	if d.ID != 0 {
		return "id:" + strconv.FormatUint(uint64(d.ID), 10)
	}
	return "order:" + d.SessionID + "/" + d.OrderNumber
}

func (p *Pipeline) acquire(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[key]; busy {
		return false
	}
	p.inFlight[key] = struct{}{}
	return true
}

func (p *Pipeline) release(key string) {
	p.mu.Lock()
	delete(p.inFlight, key)
	p.mu.Unlock()
}

// InFlight reports whether an export of d is running.
func (p *Pipeline) InFlight(d *design.Design) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, busy := p.inFlight[guardKey(d)]
	return busy
}

// GeneratePrintPack renders, rasterizes and assembles both documents. On any
// error, cancellation included, no pack is returned.
func (p *Pipeline) GeneratePrintPack(ctx context.Context, d *design.Design, order Order) (pack *Pack, err error) {
	if err := d.RequireLocked(); err != nil {
		metrics.CountExport("not_locked")
		return nil, err
	}
	if order.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity %d", ErrInvalidOrder, order.Quantity)
	}
	cardName, sheetName, err := p.Names(order.Number)
	if err != nil {
		return nil, err
	}

	key := guardKey(d)
	if !p.acquire(key) {
		metrics.CountExport("in_progress")
		return nil, ErrExportInProgress
	}
	defer p.release(key)

	log := p.logger.With("design_id", d.ID, "order_number", order.Number)
	defer func() {
		switch {
		case err == nil:
			metrics.CountExport("completed")
		case ctx.Err() != nil:
			metrics.CountExport("canceled")
			log.Info("print pack canceled", "error", err)
		case errors.Is(err, ErrRasterizationFailed):
			metrics.CountExport("rasterization_failed")
			log.Error("print pack rasterization failed", "error", err)
		case errors.Is(err, ErrPDFAssemblyFailed):
			metrics.CountExport("pdf_failed")
			log.Error("print pack assembly failed", "error", err)
		default:
			metrics.CountExport("failed")
			log.Error("print pack failed", "error", err)
		}
	}()

	start := time.Now()
	tree, err := p.renderer.Render(d, units.ModePrint, render.Options{})
	if err != nil {
		return nil, err
	}
	metrics.ObserveStage(metrics.StageRender, start)
	spec, err := units.LookupSpec(tree.SpecID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	img, err := p.rasterizer.Rasterize(ctx, tree, p.supersample)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrRasterizationFailed, err)
	}
	metrics.ObserveStage(metrics.StageRasterize, start)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	content := tree.Dimensions()
	f := float64(p.supersample)
	cardPDF, err := pdf.ContentPage(img, spec.WidthMM, spec.HeightMM, content.WidthPx*f, content.HeightPx*f)
	if err != nil {
		return nil, fmt.Errorf("%w: card: %w", ErrPDFAssemblyFailed, err)
	}
	metrics.ObserveStage(metrics.StageCardPDF, start)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tpl, err := layout.Get(d.TemplateID)
	if err != nil {
		return nil, err
	}
	col, err := palette.Get(d.ColorID)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	sheet, err := p.infoSheet(ctx, sheetData{
		Design: d, Order: order, Template: tpl, Color: col, Spec: spec,
		Card: img, Supersample: p.supersample,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: info sheet: %w", ErrRasterizationFailed, err)
	}
	sheetPDF, err := pdf.ImagePage(sheet, pdf.A4WidthMM, pdf.A4HeightMM)
	if err != nil {
		return nil, fmt.Errorf("%w: info sheet: %w", ErrPDFAssemblyFailed, err)
	}
	metrics.ObserveStage(metrics.StageInfoSheet, start)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Info("print pack generated", "card", cardName, "info_sheet", sheetName,
		"raster_w", img.Bounds().Dx(), "raster_h", img.Bounds().Dy())

	return &Pack{
		CardPDF:       cardPDF,
		InfoSheetPDF:  sheetPDF,
		CardName:      cardName,
		InfoSheetName: sheetName,
		Manifest:      newManifest(d, order, tree, spec, img, p.supersample, cardName, sheetName),
	}, nil
}

func newManifest(d *design.Design, order Order, tree *render.Tree, spec units.CardSpec, img image.Image, factor int, cardName, sheetName string) Manifest {
	box := pdf.PageSize(spec.WidthMM, spec.HeightMM)
	m := Manifest{
		DesignID:       d.ID,
		OrderNumber:    order.Number,
		Quantity:       order.Quantity,
		TemplateID:     tree.TemplateID,
		ColorID:        tree.ColorID,
		SpecID:         spec.ID,
		PageWidthMM:    spec.WidthMM,
		PageHeightMM:   spec.HeightMM,
		PageWidthPt:    box.URx,
		PageHeightPt:   box.URy,
		PrintPxPerMM:   tree.PxPerMM,
		Supersample:    factor,
		EffectiveDPI:   units.PrintDPI * factor,
		RasterWidthPx:  img.Bounds().Dx(),
		RasterHeightPx: img.Bounds().Dy(),
		Geometry:       tree.Geometry(),
		CardFile:       cardName,
		InfoSheetFile:  sheetName,
	}
	if d.LockedAt != nil {
		m.LockedAt = d.LockedAt.UTC()
	}
	return m
}
