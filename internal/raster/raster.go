// Package raster paints a render tree onto a bitmap.
//
// Supersampling multiplies every coordinate and font size by the factor
// instead of scaling the context, so glyphs are rasterized at the final
// resolution rather than stretched.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"

	"iwasp/internal/render"
	"iwasp/internal/units"
)

var ErrAssetMissing = errors.New("logo asset unavailable")

// AssetSource returns the raw bytes of an uploaded logo.
type AssetSource interface {
	ReadAsset(ctx context.Context, key string) ([]byte, error)
}

// Rasterizer paints trees. Assets may be nil when no tree carries a logo.
type Rasterizer struct {
	Fonts  *Fonts
	Assets AssetSource
}

// New returns a rasterizer using the default fonts.
func New(assets AssetSource) (*Rasterizer, error) {
	f, err := DefaultFonts()
	if err != nil {
		return nil, err
	}
	return &Rasterizer{Fonts: f, Assets: assets}, nil
}

// Rasterize paints tree at factor times its device resolution.
func (r *Rasterizer) Rasterize(ctx context.Context, tree *render.Tree, factor int) (*image.RGBA, error) {
	if tree == nil {
		return nil, fmt.Errorf("raster: nil tree")
	}
	if factor < 1 {
		return nil, fmt.Errorf("raster: factor %d must be positive", factor)
	}
	w, h := tree.Dimensions().PixelBounds(factor)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("raster: empty canvas %dx%d", w, h)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	dc := gg.NewContextForRGBA(img)
	f := float64(factor)

	dc.SetColor(tree.Background)
	if tree.Mode == units.ModePrint {
		// The card is die-cut; corners are trimmed at the press.
		dc.DrawRectangle(0, 0, float64(w), float64(h))
	} else {
		dc.DrawRoundedRectangle(0, 0, tree.WidthPx*f, tree.HeightPx*f, tree.CornerRadiusPx*f)
	}
	dc.Fill()

	for _, n := range tree.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		switch n.Kind {
		case render.KindLogo:
			err = r.drawLogo(ctx, img, n, f)
		case render.KindText, render.KindWatermark:
			r.drawText(dc, n, f)
		case render.KindNFCIcon:
			drawNFC(dc, n, f)
		case render.KindGuide:
			drawGuide(dc, n, f)
		case render.KindPlaceholder:
			if n.StrokePx > 0 {
				r.drawBoxPlaceholder(dc, n, f)
			} else {
				r.drawText(dc, n, f)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return img, nil
}

func withOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	if opacity <= 0 || opacity >= 1 {
		return c
	}
	c.A = uint8(math.Round(float64(c.A) * opacity))
	return c
}

// drawText lays glyphs one by one so letter spacing matches the measured
// layout width.
func (r *Rasterizer) drawText(dc *gg.Context, n render.Node, f float64) {
	if n.Text == "" || n.FontSizePx <= 0 {
		return
	}
	face := r.Fonts.NewFace(n.Weight, n.FontSizePx*f)
	defer face.Close()
	dc.SetFontFace(face)
	dc.SetColor(withOpacity(n.Color, n.Opacity))

	m := face.Metrics()
	ascent, descent := float64(m.Ascent)/64, float64(m.Descent)/64
	x := n.Rect.X * f
	baseline := (n.Rect.Y+n.Rect.H/2)*f + (ascent-descent)/2
	spacing := n.LetterSpacingPx * f

	prev := rune(-1)
	for _, ch := range n.Text {
		if prev >= 0 {
			x += float64(face.Kern(prev, ch)) / 64
		}
		dc.DrawString(string(ch), x, baseline)
		adv, _ := face.GlyphAdvance(ch)
		x += float64(adv)/64 + spacing
		prev = ch
	}
}

// drawNFC paints the contactless mark: a dot and four arcs opening right.
func drawNFC(dc *gg.Context, n render.Node, f float64) {
	x, y := n.Rect.X*f, n.Rect.Y*f
	w, h := n.Rect.W*f, n.Rect.H*f
	cx, cy := x+0.15*w, y+h/2
	spread := gg.Radians(40)

	dc.Push()
	defer dc.Pop()
	dc.SetColor(withOpacity(n.Color, n.Opacity))
	dc.SetLineWidth(math.Max(n.StrokePx*f, 1))
	dc.SetLineCap(gg.LineCapRound)
	dc.DrawCircle(cx, cy, 0.07*w)
	dc.Fill()
	for _, k := range []float64{0.2, 0.37, 0.54, 0.71} {
		dc.NewSubPath()
		dc.DrawArc(cx, cy, k*w, -spread, spread)
		dc.Stroke()
	}
}

func drawGuide(dc *gg.Context, n render.Node, f float64) {
	x, y := n.Rect.X*f, n.Rect.Y*f
	w, h := n.Rect.W*f, n.Rect.H*f
	c := withOpacity(n.Color, n.Opacity)

	dc.Push()
	defer dc.Pop()
	if n.Guide == render.GuideNFCZone {
		fill := c
		fill.A /= 4
		dc.SetColor(fill)
		dc.DrawRectangle(x, y, w, h)
		dc.Fill()
	}
	stroke := math.Max(n.StrokePx*f, 1)
	dc.SetColor(c)
	dc.SetLineWidth(stroke)
	dc.SetDash(4*stroke, 3*stroke)
	dc.DrawRectangle(x, y, w, h)
	dc.Stroke()
}

func (r *Rasterizer) drawBoxPlaceholder(dc *gg.Context, n render.Node, f float64) {
	x, y := n.Rect.X*f, n.Rect.Y*f
	w, h := n.Rect.W*f, n.Rect.H*f
	c := withOpacity(n.Color, n.Opacity)

	dc.Push()
	stroke := math.Max(n.StrokePx*f, 1)
	dc.SetColor(c)
	dc.SetLineWidth(stroke)
	dc.SetDash(3*stroke, 3*stroke)
	dc.DrawRectangle(x, y, w, h)
	dc.Stroke()
	dc.Pop()

	if n.Text == "" || n.FontSizePx <= 0 {
		return
	}
	face := r.Fonts.NewFace(n.Weight, n.FontSizePx*f)
	defer face.Close()
	dc.SetFontFace(face)
	dc.SetColor(c)
	dc.DrawStringAnchored(n.Text, x+w/2, y+h/2, 0.5, 0.5)
}

func (r *Rasterizer) drawLogo(ctx context.Context, dst *image.RGBA, n render.Node, f float64) error {
	if r.Assets == nil {
		return fmt.Errorf("%w: no asset source for %q", ErrAssetMissing, n.LogoKey)
	}
	data, err := r.Assets.ReadAsset(ctx, n.LogoKey)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAssetMissing, n.LogoKey, err)
	}
	x, y := n.Rect.X*f, n.Rect.Y*f
	w, h := n.Rect.W*f, n.Rect.H*f

	if n.LogoMIME == "image/svg+xml" {
		return drawSVG(dst, bytes.NewReader(data), x, y, w, h)
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode logo %s: %w", n.LogoKey, err)
	}
	target := image.Rect(
		int(math.Round(x)), int(math.Round(y)),
		int(math.Round(x+w)), int(math.Round(y+h)),
	)
	if target.Empty() {
		return nil
	}
	xdraw.CatmullRom.Scale(dst, target, src, src.Bounds(), xdraw.Over, nil)
	return nil
}

func drawSVG(dst *image.RGBA, r io.Reader, x, y, w, h float64) error {
	icon, err := oksvg.ReadIconStream(r)
	if err != nil {
		return fmt.Errorf("parse svg logo: %w", err)
	}
	icon.SetTarget(x, y, w, h)
	b := dst.Bounds()
	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), dst, b)
	dasher := rasterx.NewDasher(b.Dx(), b.Dy(), scanner)
	icon.Draw(dasher, 1)
	return nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}
