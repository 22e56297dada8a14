package units

import (
	"fmt"
	"strings"
)

// RectMM is an axis-aligned rectangle in millimeters, origin top-left.
type RectMM struct {
	X float64 `json:"x_mm" yaml:"x_mm"`
	Y float64 `json:"y_mm" yaml:"y_mm"`
	W float64 `json:"w_mm" yaml:"w_mm"`
	H float64 `json:"h_mm" yaml:"h_mm"`
}

func (r RectMM) Right() float64  { return r.X + r.W }
func (r RectMM) Bottom() float64 { return r.Y + r.H }

// Intersects reports whether the interiors overlap. Touching edges do not count.
func (r RectMM) Intersects(o RectMM) bool {
	return r.X < o.Right() && o.X < r.Right() && r.Y < o.Bottom() && o.Y < r.Bottom()
}

// Contains reports whether o lies entirely inside r. A small tolerance absorbs
// float noise from centering arithmetic.
func (r RectMM) Contains(o RectMM) bool {
	const eps = 1e-9
	return o.X >= r.X-eps && o.Y >= r.Y-eps && o.Right() <= r.Right()+eps && o.Bottom() <= r.Bottom()+eps
}

// Inset shrinks the rectangle by m on every side.
func (r RectMM) Inset(m float64) RectMM {
	return RectMM{X: r.X + m, Y: r.Y + m, W: r.W - 2*m, H: r.H - 2*m}
}

// CardSpec is the immutable physical description of a card product.
type CardSpec struct {
	ID             string  `json:"id"`
	DisplayName    string  `json:"display_name"`
	WidthMM        float64 `json:"width_mm"`
	HeightMM       float64 `json:"height_mm"`
	CornerRadiusMM float64 `json:"corner_radius_mm"`
	SafeMarginMM   float64 `json:"safe_margin_mm"`
	NFCZone        RectMM  `json:"nfc_zone"`
}

// Bounds is the full card rectangle.
func (s CardSpec) Bounds() RectMM {
	return RectMM{W: s.WidthMM, H: s.HeightMM}
}

// SafeArea is the card rectangle inset by the safe margin.
func (s CardSpec) SafeArea() RectMM {
	return s.Bounds().Inset(s.SafeMarginMM)
}

// Validate checks the spec is a usable landscape card.
func (s CardSpec) Validate() error {
	if s.WidthMM <= 0 || s.HeightMM <= 0 {
		return fmt.Errorf("card spec %q: dimensions must be positive", s.ID)
	}
	if s.WidthMM <= s.HeightMM {
		return fmt.Errorf("card spec %q: cards are landscape, width must exceed height", s.ID)
	}
	if s.SafeMarginMM < 0 || 2*s.SafeMarginMM >= s.HeightMM {
		return fmt.Errorf("card spec %q: safe margin %.2f mm out of range", s.ID, s.SafeMarginMM)
	}
	if s.NFCZone.W <= 0 || s.NFCZone.H <= 0 || !s.Bounds().Contains(s.NFCZone) {
		return fmt.Errorf("card spec %q: nfc zone must lie inside the card", s.ID)
	}
	return nil
}

const DefaultSpecID = "cr80"

var specs = []CardSpec{
	{
		ID:             "cr80",
		DisplayName:    "CR80 (ISO/IEC 7810 ID-1)",
		WidthMM:        85.6,
		HeightMM:       54,
		CornerRadiusMM: 3.18,
		SafeMarginMM:   5,
		NFCZone:        RectMM{X: 64.6, Y: 6, W: 15, H: 15},
	},
	{
		ID:             "business",
		DisplayName:    "Carte de visite 85×55",
		WidthMM:        85,
		HeightMM:       55,
		CornerRadiusMM: 3,
		SafeMarginMM:   5,
		NFCZone:        RectMM{X: 64, Y: 6, W: 15, H: 15},
	},
}

// LookupSpec returns a copy of the registered spec.
func LookupSpec(id string) (CardSpec, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = DefaultSpecID
	}
	for _, s := range specs {
		if s.ID == id {
			return s, nil
		}
	}
	return CardSpec{}, fmt.Errorf("%w: %q", ErrUnknownSpec, id)
}

// AllSpecs returns every registered spec in registry order.
func AllSpecs() []CardSpec {
	out := make([]CardSpec, len(specs))
	copy(out, specs)
	return out
}
