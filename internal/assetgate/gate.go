// Package assetgate decides whether an uploaded logo has enough pixels for
// its physical slot at print resolution.
package assetgate

import (
	"errors"
	"fmt"
	"math"

	"iwasp/internal/layout"
	"iwasp/internal/units"
)

var (
	ErrAssetTooSmall   = errors.New("asset too small")
	ErrAssetSuboptimal = errors.New("asset suboptimal")
)

// DefaultOptimalFactor is the multiple of the hard floor above which a logo
// is considered comfortably sharp.
const DefaultOptimalFactor = 2.0

// TooSmallError carries the numbers needed to tell the user what to upload.
type TooSmallError struct {
	Width, Height       int
	MinWidth, MinHeight int
}

func (e *TooSmallError) Error() string {
	return fmt.Sprintf("logo is %d×%d px; at least %d×%d px required for print",
		e.Width, e.Height, e.MinWidth, e.MinHeight)
}

func (e *TooSmallError) Is(target error) bool { return target == ErrAssetTooSmall }

// Report is the outcome of a single check.
type Report struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// QualityReport is derived from pixel dimensions and can always be recomputed.
type QualityReport struct {
	Valid     bool   `json:"is_valid"`
	Optimal   bool   `json:"is_optimal"`
	Message   string `json:"message,omitempty"`
	MinWidth  int    `json:"min_width_px"`
	MinHeight int    `json:"min_height_px"`
	Vector    bool   `json:"vector,omitempty"`
}

// Gate holds the quality policy.
type Gate struct {
	OptimalFactor float64
}

// New returns a gate; factors below 1 fall back to DefaultOptimalFactor.
func New(optimalFactor float64) Gate {
	if optimalFactor < 1 {
		optimalFactor = DefaultOptimalFactor
	}
	return Gate{OptimalFactor: optimalFactor}
}

// MinPixels is the print-resolution floor for a slot: one source pixel per
// output pixel across the slot's maximum box.
func MinPixels(slot layout.Position) (w, h int) {
	scale := units.PrintScale()
	return ceilPx(units.MMToPx(slot.MaxWidthMM, scale)), ceilPx(units.MMToPx(slot.MaxHeightMM, scale))
}

// ceilPx tolerates float noise so that 25.4 mm at 300 DPI is 300, not 301.
func ceilPx(v float64) int {
	return int(math.Ceil(v - 1e-6))
}

// ValidateDimensions is the hard gate. An invalid result comes with a
// *TooSmallError.
func (g Gate) ValidateDimensions(width, height int, slot layout.Position) (Report, error) {
	minW, minH := MinPixels(slot)
	if width >= minW && height >= minH {
		return Report{OK: true}, nil
	}
	err := &TooSmallError{Width: width, Height: height, MinWidth: minW, MinHeight: minH}
	return Report{OK: false, Message: err.Error()}, err
}

// CheckQuality is the soft gate; it never blocks.
func (g Gate) CheckQuality(width, height int, slot layout.Position) Report {
	minW, minH := MinPixels(slot)
	factor := g.factor()
	optW, optH := ceilPx(float64(minW)*factor), ceilPx(float64(minH)*factor)
	if width >= optW && height >= optH {
		return Report{OK: true}
	}
	return Report{
		OK: false,
		Message: fmt.Sprintf("logo is %d×%d px; %d×%d px or more recommended for a crisp print",
			width, height, optW, optH),
	}
}

// Evaluate runs both gates.
func (g Gate) Evaluate(width, height int, slot layout.Position) QualityReport {
	minW, minH := MinPixels(slot)
	rep := QualityReport{MinWidth: minW, MinHeight: minH}
	if r, err := g.ValidateDimensions(width, height, slot); err != nil {
		rep.Message = r.Message
		return rep
	}
	rep.Valid = true
	q := g.CheckQuality(width, height, slot)
	rep.Optimal = q.OK
	rep.Message = q.Message
	return rep
}

// EvaluateAsset handles vector logos, which scale to any size.
func (g Gate) EvaluateAsset(a Asset, slot layout.Position) QualityReport {
	if a.Vector {
		minW, minH := MinPixels(slot)
		return QualityReport{Valid: true, Optimal: true, Vector: true, MinWidth: minW, MinHeight: minH}
	}
	return g.Evaluate(a.PixelWidth, a.PixelHeight, slot)
}

// Err maps a report to the error taxonomy: nil when optimal,
// ErrAssetSuboptimal as a warning, ErrAssetTooSmall when blocked.
func (r QualityReport) Err() error {
	switch {
	case !r.Valid:
		return fmt.Errorf("%w: %s", ErrAssetTooSmall, r.Message)
	case !r.Optimal:
		return fmt.Errorf("%w: %s", ErrAssetSuboptimal, r.Message)
	default:
		return nil
	}
}

func (g Gate) factor() float64 {
	if g.OptimalFactor < 1 {
		return DefaultOptimalFactor
	}
	return g.OptimalFactor
}
