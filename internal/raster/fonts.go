package raster

import (
	"fmt"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"iwasp/internal/layout"
)

// Fonts holds the parsed card typefaces. A truetype.Font is immutable and
// safe for concurrent use; faces are not, so NewFace returns a fresh one.
type Fonts struct {
	regular *truetype.Font
	bold    *truetype.Font
}

var (
	defaultFonts    *Fonts
	defaultFontsErr error
	defaultOnce     sync.Once
)

// DefaultFonts parses the embedded Go font family once.
func DefaultFonts() (*Fonts, error) {
	defaultOnce.Do(func() {
		defaultFonts, defaultFontsErr = LoadFonts(goregular.TTF, gobold.TTF)
	})
	return defaultFonts, defaultFontsErr
}

// LoadFonts parses TrueType data for the two card weights.
func LoadFonts(regularTTF, boldTTF []byte) (*Fonts, error) {
	regular, err := truetype.Parse(regularTTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := truetype.Parse(boldTTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &Fonts{regular: regular, bold: bold}, nil
}

func (f *Fonts) font(w layout.Weight) *truetype.Font {
	if w == layout.Bold {
		return f.bold
	}
	return f.regular
}

// NewFace returns an unhinted face whose em is sizePx pixels.
func (f *Fonts) NewFace(w layout.Weight, sizePx float64) font.Face {
	return truetype.NewFace(f.font(w), &truetype.Options{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// AdvancePerMM measures in font units, so the result is exact and does not
// depend on any device scale.
func (f *Fonts) AdvancePerMM(text string, w layout.Weight) float64 {
	ft := f.font(w)
	upem := ft.FUnitsPerEm()
	scale := fixed.Int26_6(upem) << 6

	var total fixed.Int26_6
	prev, hasPrev := truetype.Index(0), false
	for _, r := range text {
		idx := ft.Index(r)
		if hasPrev {
			total += ft.Kern(scale, prev, idx)
		}
		total += ft.HMetric(scale, idx).AdvanceWidth
		prev, hasPrev = idx, true
	}
	return float64(total) / 64 / float64(upem)
}
