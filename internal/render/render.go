// Package render turns a card design into a positioned tree for a given
// mode. Layout is computed once in millimeters and then projected with the
// mode's device scale, so preview and print differ by a single factor.
package render

import (
	"fmt"
	"image/color"
	"math"
	"strings"
	"unicode/utf8"

	"iwasp/internal/design"
	"iwasp/internal/layout"
	"iwasp/internal/palette"
	"iwasp/internal/units"
)

// Measurer reports the advance width of a string in millimeters when set at
// 1 mm font size. The renderer assumes advance scales linearly with size.
type Measurer interface {
	AdvancePerMM(text string, weight layout.Weight) float64
}

// Options toggles preview-only overlays. Both are ignored in print mode.
type Options struct {
	ShowGuides       bool
	ShowPlaceholders bool
}

const (
	// minShrink is the smallest font size, relative to the declared size,
	// used before the text is truncated.
	minShrink   = 0.6
	ellipsis    = "…"
	guideStroke = 0.2
	guideAlpha  = 0.9
	fitEps      = 1e-9
)

var placeholderText = map[layout.Slot]string{
	layout.SlotName:    "Prénom Nom",
	layout.SlotTitle:   "Fonction",
	layout.SlotCompany: "Entreprise",
	layout.SlotLogo:    "LOGO",
}

// Renderer binds the card specs' scales and a text measurer.
type Renderer struct {
	scales   map[string]units.Scales
	measurer Measurer
}

// NewRenderer derives preview and print scales for every registered spec.
func NewRenderer(previewWidthPx float64, m Measurer) (*Renderer, error) {
	if m == nil {
		return nil, fmt.Errorf("render: measurer is required")
	}
	scales := make(map[string]units.Scales)
	for _, spec := range units.AllSpecs() {
		s, err := units.NewScales(spec, previewWidthPx)
		if err != nil {
			return nil, fmt.Errorf("render: spec %s: %w", spec.ID, err)
		}
		scales[spec.ID] = s
	}
	return &Renderer{scales: scales, measurer: m}, nil
}

// Scales returns the scales for a spec id.
func (r *Renderer) Scales(specID string) (units.Scales, error) {
	s, ok := r.scales[specID]
	if !ok {
		return units.Scales{}, fmt.Errorf("%w: %q", units.ErrUnknownSpec, specID)
	}
	return s, nil
}

// element is a laid-out node in millimeters. Slot elements are anchored:
// rect.X is ignored and rect.Y is the offset below the slot top, the origin
// coming from layout.SlotPosition. Guides carry an absolute rect.
type element struct {
	kind      Kind
	slot      layout.Slot
	anchored  bool
	guide     string
	rect      units.RectMM
	text      string
	sizeMM    float64
	spacingMM float64
	strokeMM  float64
	weight    layout.Weight
	color     color.NRGBA
	opacity   float64
	logoKey   string
	logoMIME  string
	printing  bool
}

// Render positions every visual element of d for mode. It is pure: the same
// design, mode and options always yield the same tree.
func (r *Renderer) Render(d *design.Design, mode units.Mode, opts Options) (*Tree, error) {
	if d == nil {
		return nil, fmt.Errorf("render: nil design")
	}
	tpl, err := layout.Get(d.TemplateID)
	if err != nil {
		return nil, err
	}
	col, err := palette.Get(d.ColorID)
	if err != nil {
		return nil, err
	}
	if mode == units.ModePrint {
		if err := d.RequireLocked(); err != nil {
			return nil, err
		}
		opts = Options{}
	}
	scales, err := r.Scales(tpl.SpecID)
	if err != nil {
		return nil, err
	}
	scale, err := scales.For(mode)
	if err != nil {
		return nil, err
	}

	elements := r.layoutMM(d, tpl, col, scales.Spec, opts)

	dims, err := scales.ResolveDimensions(mode)
	if err != nil {
		return nil, err
	}
	tree := &Tree{
		Mode:           mode,
		PxPerMM:        scale.PxPerMM(),
		SpecID:         scales.Spec.ID,
		TemplateID:     tpl.ID,
		ColorID:        col.ID,
		WidthPx:        dims.WidthPx,
		HeightPx:       dims.HeightPx,
		CornerRadiusPx: units.MMToPx(scales.Spec.CornerRadiusMM, scale),
		Background:     col.RGBA(),
		BackgroundHex:  col.ScreenHex,
		Nodes:          make([]Node, 0, len(elements)),
	}
	for _, e := range elements {
		if mode == units.ModePrint && !e.printing {
			continue
		}
		n, err := project(e, tpl, scales.Spec, scale)
		if err != nil {
			return nil, err
		}
		tree.Nodes = append(tree.Nodes, n)
	}
	return tree, nil
}

// project maps an element to device pixels with the mode's single scale.
func project(e element, tpl layout.Template, spec units.CardSpec, scale units.DeviceScale) (Node, error) {
	px := func(mm float64) float64 { return units.MMToPx(mm, scale) }
	rect := RectPx{X: px(e.rect.X), Y: px(e.rect.Y), W: px(e.rect.W), H: px(e.rect.H)}
	if e.anchored {
		origin, err := layout.SlotPosition(tpl, e.slot, e.rect.W, spec, scale)
		if err != nil {
			return Node{}, err
		}
		rect.X = origin.X
		rect.Y = origin.Y + px(e.rect.Y)
	}
	return Node{
		Kind:            e.kind,
		Slot:            e.slot,
		Guide:           e.guide,
		Rect:            rect,
		Text:            e.text,
		FontSizePx:      px(e.sizeMM),
		Weight:          e.weight,
		LetterSpacingPx: px(e.spacingMM),
		StrokePx:        px(e.strokeMM),
		Color:           e.color,
		ColorHex:        hex(e.color),
		Opacity:         e.opacity,
		LogoKey:         e.logoKey,
		LogoMIME:        e.logoMIME,
		Printing:        e.printing,
	}, nil
}

func (r *Renderer) layoutMM(d *design.Design, tpl layout.Template, col palette.CardColor, spec units.CardSpec, opts Options) []element {
	ink := col.TextColor()
	var out []element

	for _, slot := range layout.Slots {
		pos, ok := tpl.Positions[slot]
		if !ok {
			continue
		}
		switch {
		case slot == layout.SlotLogo:
			if d.Logo != nil && d.Logo.PixelWidth > 0 && d.Logo.PixelHeight > 0 {
				out = append(out, logoElement(d.Logo, pos))
			} else if opts.ShowPlaceholders {
				out = append(out, element{
					kind: KindPlaceholder, slot: slot, anchored: true, rect: slotBox(pos), text: placeholderText[slot],
					sizeMM: math.Min(pos.MaxHeightMM/3, 3), weight: layout.Bold,
					strokeMM: guideStroke, color: col.GuideColor(), opacity: 0.5,
				})
			}
		case slot.IsText():
			text := fieldText(d, slot)
			ty := tpl.Type[slot]
			if text != "" {
				e := r.textElement(text, ty, slot, pos)
				e.kind, e.color, e.printing = KindText, ink, true
				out = append(out, e)
			} else if opts.ShowPlaceholders {
				e := r.textElement(placeholderText[slot], ty, slot, pos)
				e.kind, e.color, e.opacity = KindPlaceholder, ink, 0.35
				out = append(out, e)
			}
		case slot == layout.SlotNFCIcon:
			out = append(out, element{
				kind: KindNFCIcon, slot: slot, anchored: true, rect: slotBox(pos), strokeMM: tpl.NFCIconStroke,
				color: ink, opacity: 0.8, printing: true,
			})
		case slot == layout.SlotBrandWatermark:
			e := r.textElement(tpl.WatermarkText, tpl.Type[slot], slot, pos)
			e.kind, e.color, e.printing = KindWatermark, ink, true
			out = append(out, e)
		}
	}

	if opts.ShowGuides {
		guide := col.GuideColor()
		out = append(out,
			element{kind: KindGuide, guide: GuideSafeMargin, rect: spec.SafeArea(), strokeMM: guideStroke, color: guide, opacity: guideAlpha},
			element{kind: KindGuide, guide: GuideNFCZone, rect: spec.NFCZone, strokeMM: guideStroke, color: guide, opacity: guideAlpha},
		)
	}
	return out
}

func fieldText(d *design.Design, slot layout.Slot) string {
	switch slot {
	case layout.SlotName:
		return strings.TrimSpace(d.PrintedName)
	case layout.SlotTitle:
		return strings.TrimSpace(d.PrintedTitle)
	case layout.SlotCompany:
		return strings.TrimSpace(d.PrintedCompany)
	}
	return ""
}

// slotBox is the whole slot, anchored at its top.
func slotBox(pos layout.Position) units.RectMM {
	return units.RectMM{W: pos.MaxWidthMM, H: pos.MaxHeightMM}
}

// logoElement contain-fits the logo: one factor, the smaller of the two
// axis ratios, applied to both axes.
func logoElement(logo *design.LogoAsset, pos layout.Position) element {
	w, h := float64(logo.PixelWidth), float64(logo.PixelHeight)
	s := math.Min(pos.MaxWidthMM/w, pos.MaxHeightMM/h)
	fw, fh := w*s, h*s
	return element{
		kind:     KindLogo,
		slot:     layout.SlotLogo,
		anchored: true,
		rect:     units.RectMM{Y: (pos.MaxHeightMM - fh) / 2, W: fw, H: fh},
		opacity:  1,
		logoKey:  logo.ObjectKey,
		logoMIME: logo.MIME,
		printing: true,
	}
}

// textElement fits text into the slot: shrink down to minShrink of the
// declared size, then truncate with an ellipsis.
func (r *Renderer) textElement(text string, ty layout.Typography, slot layout.Slot, pos layout.Position) element {
	size := ty.SizeMM
	width := r.widthMM(text, size, ty)
	if width > pos.MaxWidthMM+fitEps {
		n := float64(utf8.RuneCountInString(text) - 1)
		adv := r.measurer.AdvancePerMM(text, ty.Weight)
		if adv > 0 {
			size = math.Max(ty.SizeMM*minShrink, (pos.MaxWidthMM-ty.LetterSpacingMM*n)/adv)
			size = math.Min(size, ty.SizeMM)
		}
		width = r.widthMM(text, size, ty)
		for width > pos.MaxWidthMM+fitEps {
			shorter := truncate(text)
			if shorter == text {
				break
			}
			text = shorter
			width = r.widthMM(text, size, ty)
		}
	}
	lineH := ty.SizeMM * layout.LineHeight
	opacity := ty.Opacity
	if opacity <= 0 {
		opacity = 1
	}
	return element{
		slot:      slot,
		anchored:  true,
		rect:      units.RectMM{Y: (pos.MaxHeightMM - lineH) / 2, W: width, H: lineH},
		text:      text,
		sizeMM:    size,
		spacingMM: ty.LetterSpacingMM,
		weight:    ty.Weight,
		opacity:   opacity,
	}
}

func (r *Renderer) widthMM(text string, sizeMM float64, ty layout.Typography) float64 {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return r.measurer.AdvancePerMM(text, ty.Weight)*sizeMM + ty.LetterSpacingMM*float64(n-1)
}

// truncate drops the last visible rune and appends an ellipsis.
func truncate(text string) string {
	runes := []rune(strings.TrimSuffix(text, ellipsis))
	if len(runes) <= 1 {
		return text
	}
	return strings.TrimRight(string(runes[:len(runes)-1]), " ") + ellipsis
}
