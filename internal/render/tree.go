package render

import (
	"fmt"
	"image/color"

	"iwasp/internal/layout"
	"iwasp/internal/units"
)

// Kind classifies a node of the render tree.
type Kind string

const (
	KindLogo        Kind = "logo"
	KindText        Kind = "text"
	KindWatermark   Kind = "watermark"
	KindNFCIcon     Kind = "nfc_icon"
	KindGuide       Kind = "guide"
	KindPlaceholder Kind = "placeholder"
)

// Guide names for KindGuide nodes.
const (
	GuideSafeMargin = "safe_margin"
	GuideNFCZone    = "nfc_zone"
)

// RectPx is a rectangle in device pixels, origin top-left.
type RectPx struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Node is one positioned visual element. Non-printing nodes exist only in
// preview trees.
type Node struct {
	Kind            Kind          `json:"kind"`
	Slot            layout.Slot   `json:"slot,omitempty"`
	Guide           string        `json:"guide,omitempty"`
	Rect            RectPx        `json:"rect"`
	Text            string        `json:"text,omitempty"`
	FontSizePx      float64       `json:"font_size_px,omitempty"`
	Weight          layout.Weight `json:"weight,omitempty"`
	LetterSpacingPx float64       `json:"letter_spacing_px,omitempty"`
	StrokePx        float64       `json:"stroke_px,omitempty"`
	Color           color.NRGBA   `json:"-"`
	ColorHex        string        `json:"color"`
	Opacity         float64       `json:"opacity"`
	LogoKey         string        `json:"logo_key,omitempty"`
	LogoMIME        string        `json:"logo_mime,omitempty"`
	Printing        bool          `json:"printing"`
}

// Tree is the fully positioned card for one mode.
type Tree struct {
	Mode           units.Mode  `json:"mode"`
	PxPerMM        float64     `json:"px_per_mm"`
	SpecID         string      `json:"spec_id"`
	TemplateID     string      `json:"template_id"`
	ColorID        string      `json:"color_id"`
	WidthPx        float64     `json:"width_px"`
	HeightPx       float64     `json:"height_px"`
	CornerRadiusPx float64     `json:"corner_radius_px"`
	Background     color.NRGBA `json:"-"`
	BackgroundHex  string      `json:"background"`
	Nodes          []Node      `json:"nodes"`
}

// Dimensions returns the unrounded card size.
func (t *Tree) Dimensions() units.Dimensions {
	return units.Dimensions{WidthPx: t.WidthPx, HeightPx: t.HeightPx}
}

// Find returns the first node for slot.
func (t *Tree) Find(slot layout.Slot) (Node, bool) {
	for _, n := range t.Nodes {
		if n.Slot == slot && n.Kind != KindPlaceholder {
			return n, true
		}
	}
	return Node{}, false
}

// Geometry maps every printing node to its rectangle. Two trees of the same
// design in different modes have the same keys and rectangles that differ by
// the scale ratio only.
func (t *Tree) Geometry() map[string]RectPx {
	out := make(map[string]RectPx, len(t.Nodes))
	for _, n := range t.Nodes {
		if !n.Printing {
			continue
		}
		out[string(n.Slot)] = n.Rect
	}
	return out
}

func hex(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
