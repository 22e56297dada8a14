// Package layout is the read-only registry of card templates. All positions
// are authored in millimeters against a card spec.
package layout

import (
	"errors"
	"fmt"
	"strings"

	"iwasp/internal/units"
)

var ErrUnknownTemplate = errors.New("unknown template")

// Slot names a placeable element of a card.
type Slot string

const (
	SlotLogo           Slot = "logo"
	SlotName           Slot = "name"
	SlotTitle          Slot = "title"
	SlotCompany        Slot = "company"
	SlotNFCIcon        Slot = "nfc_icon"
	SlotBrandWatermark Slot = "brand_watermark"
)

// Slots lists every slot in paint order.
var Slots = []Slot{SlotLogo, SlotName, SlotTitle, SlotCompany, SlotNFCIcon, SlotBrandWatermark}

// IsText reports whether the slot holds customer-entered text.
func (s Slot) IsText() bool {
	return s == SlotName || s == SlotTitle || s == SlotCompany
}

// LineHeight is the text line box as a multiple of the font size.
const LineHeight = 1.25

type Weight string

const (
	Regular Weight = "regular"
	Bold    Weight = "bold"
)

// Typography describes how a text slot is set. Sizes are in millimeters.
type Typography struct {
	SizeMM          float64 `json:"size_mm"`
	Weight          Weight  `json:"weight"`
	LetterSpacingMM float64 `json:"letter_spacing_mm"`
	Opacity         float64 `json:"opacity"`
}

// Position is a slot's top-left corner and its maximum box. XMM is ignored
// for centered templates.
type Position struct {
	XMM         float64 `json:"x_mm"`
	YMM         float64 `json:"y_mm"`
	MaxWidthMM  float64 `json:"max_width_mm"`
	MaxHeightMM float64 `json:"max_height_mm"`
}

// Template is a named layout. Slots absent from Positions are not part of it.
type Template struct {
	ID             string              `json:"id"`
	DisplayName    string              `json:"display_name"`
	Description    string              `json:"description"`
	DefaultColorID string              `json:"default_color_id"`
	SpecID         string              `json:"spec_id"`
	Centered       bool                `json:"centered"`
	WatermarkText  string              `json:"watermark_text"`
	NFCIconStroke  float64             `json:"nfc_icon_stroke_mm"`
	Positions      map[Slot]Position   `json:"positions"`
	Type           map[Slot]Typography `json:"typography"`
}

// Has reports whether the template declares slot.
func (t Template) Has(slot Slot) bool {
	_, ok := t.Positions[slot]
	return ok
}

// X applies the alignment rule: centered templates place content of the
// given width in the middle of the card, others use the declared x.
func (t Template) X(slot Slot, contentWidthMM float64, spec units.CardSpec) float64 {
	if t.Centered {
		return (spec.WidthMM - contentWidthMM) / 2
	}
	return t.Positions[slot].XMM
}

// Box is the slot's maximum rectangle on the card.
func (t Template) Box(slot Slot, spec units.CardSpec) (units.RectMM, bool) {
	p, ok := t.Positions[slot]
	if !ok {
		return units.RectMM{}, false
	}
	return units.RectMM{
		X: t.X(slot, p.MaxWidthMM, spec),
		Y: p.YMM,
		W: p.MaxWidthMM,
		H: p.MaxHeightMM,
	}, true
}

// PointPx is a device-pixel coordinate.
type PointPx struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SlotPosition resolves the top-left corner of a slot's content in device
// pixels. Content width is in millimeters; centering happens before scaling
// so preview and print use the same arithmetic.
func SlotPosition(t Template, slot Slot, contentWidthMM float64, spec units.CardSpec, scale units.DeviceScale) (PointPx, error) {
	if err := scale.Check(); err != nil {
		return PointPx{}, err
	}
	p, ok := t.Positions[slot]
	if !ok {
		return PointPx{}, fmt.Errorf("template %q has no %s slot", t.ID, slot)
	}
	if contentWidthMM <= 0 {
		contentWidthMM = p.MaxWidthMM
	}
	return PointPx{
		X: units.MMToPx(t.X(slot, contentWidthMM, spec), scale),
		Y: units.MMToPx(p.YMM, scale),
	}, nil
}

// Validate checks that the template fits the card: every slot inside the
// card, printed type (watermark included) inside the safe area, nothing over
// the NFC antenna.
func (t Template) Validate(spec units.CardSpec) error {
	var errs []error
	bounds := spec.Bounds()
	safe := spec.SafeArea()
	for _, slot := range Slots {
		box, ok := t.Box(slot, spec)
		if !ok {
			continue
		}
		if box.W <= 0 || box.H <= 0 {
			errs = append(errs, fmt.Errorf("%s: empty box", slot))
			continue
		}
		if !bounds.Contains(box) {
			errs = append(errs, fmt.Errorf("%s: outside card bounds", slot))
		}
		if (slot.IsText() || slot == SlotBrandWatermark) && !safe.Contains(box) {
			errs = append(errs, fmt.Errorf("%s: outside safe area", slot))
		}
		if box.Intersects(spec.NFCZone) {
			errs = append(errs, fmt.Errorf("%s: overlaps nfc zone", slot))
		}
		if slot.IsText() || slot == SlotBrandWatermark {
			ty, ok := t.Type[slot]
			if !ok || ty.SizeMM <= 0 {
				errs = append(errs, fmt.Errorf("%s: missing typography", slot))
				continue
			}
			if ty.SizeMM*LineHeight > box.H+1e-9 {
				errs = append(errs, fmt.Errorf("%s: line box %.2f mm exceeds slot height %.2f mm", slot, ty.SizeMM*LineHeight, box.H))
			}
		}
	}
	if t.Has(SlotBrandWatermark) && strings.TrimSpace(t.WatermarkText) == "" {
		errs = append(errs, errors.New("watermark slot without text"))
	}
	if t.Has(SlotNFCIcon) && t.NFCIconStroke <= 0 {
		errs = append(errs, errors.New("nfc icon slot without stroke width"))
	}
	if !t.Has(SlotName) {
		errs = append(errs, errors.New("name slot is mandatory"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("template %q: %w", t.ID, err)
	}
	return nil
}
