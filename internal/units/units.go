// Package units holds the physical card description and the only sanctioned
// conversion from millimeters to device pixels.
//
// Every length in the system is authored in millimeters. A DeviceScale
// (pixels per millimeter) is bound to a rendering mode and can only be
// obtained from the constructors in this package, so no caller can smuggle
// in an ad-hoc scale.
package units

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// MMPerInch is exact by definition.
	MMPerInch = 25.4
	// PrintDPI is fixed for every print deliverable.
	PrintDPI = 300
	// PrintPxPerMM is ≈ 11.811 px/mm.
	PrintPxPerMM = PrintDPI / MMPerInch
	// PointsPerInch is the PDF user-space unit.
	PointsPerInch = 72

	MinPreviewWidthPx = 120
	MaxPreviewWidthPx = 2400
)

var (
	ErrInvalidScale = errors.New("invalid device scale")
	ErrUnknownSpec  = errors.New("unknown card spec")
	ErrUnknownMode  = errors.New("unknown render mode")
)

// Mode selects the device scale used to render a card.
type Mode string

const (
	ModePreview Mode = "preview"
	ModePrint   Mode = "print"
)

// ParseMode accepts "preview" or "print" (case-insensitive). Empty input
// yields ModePreview.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePreview:
		return ModePreview, nil
	case ModePrint:
		return ModePrint, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// DeviceScale is a pixels-per-millimeter factor bound to a mode.
// The zero value is invalid.
type DeviceScale struct {
	mode     Mode
	pxPerMM  float64
	specID   string
	fromSpec bool
}

// PrintScale returns the fixed 300 DPI scale.
func PrintScale() DeviceScale {
	return DeviceScale{mode: ModePrint, pxPerMM: PrintPxPerMM, fromSpec: true}
}

// PreviewScale derives the on-screen scale so that the card width renders at
// widthPx pixels.
func PreviewScale(spec CardSpec, widthPx float64) (DeviceScale, error) {
	if math.IsNaN(widthPx) || widthPx < MinPreviewWidthPx || widthPx > MaxPreviewWidthPx {
		return DeviceScale{}, fmt.Errorf("%w: preview width %.1f px outside [%d, %d]",
			ErrInvalidScale, widthPx, MinPreviewWidthPx, MaxPreviewWidthPx)
	}
	if spec.WidthMM <= 0 {
		return DeviceScale{}, fmt.Errorf("%w: spec %q has no width", ErrInvalidScale, spec.ID)
	}
	return DeviceScale{
		mode:     ModePreview,
		pxPerMM:  widthPx / spec.WidthMM,
		specID:   spec.ID,
		fromSpec: true,
	}, nil
}

// SpecID names the card spec a preview scale was derived from. Print scales
// are spec independent and return "".
func (s DeviceScale) SpecID() string { return s.specID }

// Mode reports the mode the scale belongs to.
func (s DeviceScale) Mode() Mode { return s.mode }

// PxPerMM returns the raw factor.
func (s DeviceScale) PxPerMM() float64 { return s.pxPerMM }

// Valid reports whether the scale was produced by a constructor.
func (s DeviceScale) Valid() bool { return s.fromSpec && s.pxPerMM > 0 }

// Check returns ErrInvalidScale for a zero or hand-built scale.
func (s DeviceScale) Check() error {
	if !s.Valid() {
		return ErrInvalidScale
	}
	return nil
}

// MMToPx multiplies a millimeter length by the scale. It is the single
// conversion path for positions, font sizes and stroke widths.
func MMToPx(valueMM float64, scale DeviceScale) float64 {
	return valueMM * scale.pxPerMM
}

// MMToPoints converts a physical length into PDF points.
func MMToPoints(valueMM float64) float64 {
	return valueMM / MMPerInch * PointsPerInch
}

// Dimensions is a card size in device pixels. Values are not rounded.
type Dimensions struct {
	WidthPx  float64 `json:"width_px"`
	HeightPx float64 `json:"height_px"`
}

// PixelBounds rounds up once, at raster time only.
func (d Dimensions) PixelBounds(factor int) (w, h int) {
	if factor < 1 {
		factor = 1
	}
	return int(math.Ceil(d.WidthPx * float64(factor))), int(math.Ceil(d.HeightPx * float64(factor)))
}

// Scales binds the preview and print scales to one card spec.
type Scales struct {
	Spec    CardSpec
	Preview DeviceScale
	Print   DeviceScale
}

// NewScales validates the spec and derives both scales.
func NewScales(spec CardSpec, previewWidthPx float64) (Scales, error) {
	if err := spec.Validate(); err != nil {
		return Scales{}, err
	}
	preview, err := PreviewScale(spec, previewWidthPx)
	if err != nil {
		return Scales{}, err
	}
	return Scales{Spec: spec, Preview: preview, Print: PrintScale()}, nil
}

// For returns the scale for mode.
func (s Scales) For(mode Mode) (DeviceScale, error) {
	var scale DeviceScale
	switch mode {
	case ModePreview:
		scale = s.Preview
	case ModePrint:
		scale = s.Print
	default:
		return DeviceScale{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if err := scale.Check(); err != nil {
		return DeviceScale{}, err
	}
	return scale, nil
}

// ResolveDimensions returns the card size in device pixels for mode.
func (s Scales) ResolveDimensions(mode Mode) (Dimensions, error) {
	scale, err := s.For(mode)
	if err != nil {
		return Dimensions{}, err
	}
	return Dimensions{
		WidthPx:  MMToPx(s.Spec.WidthMM, scale),
		HeightPx: MMToPx(s.Spec.HeightMM, scale),
	}, nil
}
