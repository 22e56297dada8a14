package layout

import (
	"fmt"
	"strings"

	"iwasp/internal/units"
)

const DefaultTemplateID = "iwasp-black"

var templates = []Template{
	{
		ID:             "iwasp-black",
		DisplayName:    "i-wasp Black",
		Description:    "Logo carré centré, typographie grasse sur fond sombre.",
		DefaultColorID: "onyx",
		SpecID:         "cr80",
		Centered:       true,
		WatermarkText:  "i-wasp",
		Positions: map[Slot]Position{
			SlotLogo:           {YMM: 6, MaxWidthMM: 25.4, MaxHeightMM: 25.4},
			SlotName:           {YMM: 32, MaxWidthMM: 60, MaxHeightMM: 5.5},
			SlotTitle:          {YMM: 38, MaxWidthMM: 60, MaxHeightMM: 3.6},
			SlotCompany:        {YMM: 41.8, MaxWidthMM: 60, MaxHeightMM: 3.6},
			SlotBrandWatermark: {YMM: 46.3, MaxWidthMM: 20, MaxHeightMM: 2.5},
		},
		Type: map[Slot]Typography{
			SlotName:           {SizeMM: 4.2, Weight: Bold, LetterSpacingMM: 0.15, Opacity: 1},
			SlotTitle:          {SizeMM: 2.8, Weight: Regular, Opacity: 0.8},
			SlotCompany:        {SizeMM: 2.6, Weight: Regular, LetterSpacingMM: 0.3, Opacity: 0.7},
			SlotBrandWatermark: {SizeMM: 1.8, Weight: Bold, LetterSpacingMM: 0.2, Opacity: 0.45},
		},
	},
	{
		ID:             "iwasp-pure",
		DisplayName:    "i-wasp Pure",
		Description:    "Composition aérée centrée, pictogramme NFC discret.",
		DefaultColorID: "pearl",
		SpecID:         "cr80",
		Centered:       true,
		WatermarkText:  "i-wasp",
		NFCIconStroke:  0.35,
		Positions: map[Slot]Position{
			SlotLogo:           {YMM: 7, MaxWidthMM: 30, MaxHeightMM: 16},
			SlotName:           {YMM: 26, MaxWidthMM: 56, MaxHeightMM: 5.5},
			SlotTitle:          {YMM: 32.2, MaxWidthMM: 56, MaxHeightMM: 3.6},
			SlotCompany:        {YMM: 36.4, MaxWidthMM: 56, MaxHeightMM: 3.6},
			SlotNFCIcon:        {YMM: 40.4, MaxWidthMM: 5.5, MaxHeightMM: 5.5},
			SlotBrandWatermark: {YMM: 46.3, MaxWidthMM: 20, MaxHeightMM: 2.5},
		},
		Type: map[Slot]Typography{
			SlotName:           {SizeMM: 4.0, Weight: Regular, LetterSpacingMM: 0.4, Opacity: 1},
			SlotTitle:          {SizeMM: 2.6, Weight: Regular, Opacity: 0.75},
			SlotCompany:        {SizeMM: 2.6, Weight: Bold, Opacity: 0.75},
			SlotBrandWatermark: {SizeMM: 1.8, Weight: Regular, LetterSpacingMM: 0.2, Opacity: 0.4},
		},
	},
	{
		ID:             "iwasp-corporate",
		DisplayName:    "i-wasp Corporate",
		Description:    "Alignement à gauche, logo en tête, repère NFC sous la puce.",
		DefaultColorID: "midnight",
		SpecID:         "cr80",
		Centered:       false,
		WatermarkText:  "i-wasp",
		NFCIconStroke:  0.35,
		Positions: map[Slot]Position{
			SlotLogo:           {XMM: 6, YMM: 6, MaxWidthMM: 28, MaxHeightMM: 14},
			SlotName:           {XMM: 6, YMM: 27, MaxWidthMM: 56, MaxHeightMM: 5.5},
			SlotTitle:          {XMM: 6, YMM: 33.2, MaxWidthMM: 56, MaxHeightMM: 3.6},
			SlotCompany:        {XMM: 6, YMM: 37.4, MaxWidthMM: 56, MaxHeightMM: 3.6},
			SlotNFCIcon:        {XMM: 69.1, YMM: 23, MaxWidthMM: 6, MaxHeightMM: 6},
			SlotBrandWatermark: {XMM: 6, YMM: 46.3, MaxWidthMM: 20, MaxHeightMM: 2.5},
		},
		Type: map[Slot]Typography{
			SlotName:           {SizeMM: 4.2, Weight: Bold, Opacity: 1},
			SlotTitle:          {SizeMM: 2.8, Weight: Regular, Opacity: 0.85},
			SlotCompany:        {SizeMM: 2.6, Weight: Bold, LetterSpacingMM: 0.2, Opacity: 0.85},
			SlotBrandWatermark: {SizeMM: 1.8, Weight: Regular, LetterSpacingMM: 0.2, Opacity: 0.4},
		},
	},
}

var index = func() map[string]int {
	m := make(map[string]int, len(templates))
	for i, t := range templates {
		spec, err := units.LookupSpec(t.SpecID)
		if err != nil {
			panic(fmt.Sprintf("layout: %s: %v", t.ID, err))
		}
		if err := t.Validate(spec); err != nil {
			panic(fmt.Sprintf("layout: %v", err))
		}
		m[t.ID] = i
	}
	return m
}()

// Get resolves a template id, failing closed on unknown ids.
func Get(id string) (Template, error) {
	i, ok := index[strings.TrimSpace(id)]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
	}
	return clone(templates[i]), nil
}

// All returns every template in catalog order.
func All() []Template {
	out := make([]Template, 0, len(templates))
	for _, t := range templates {
		out = append(out, clone(t))
	}
	return out
}

// Spec returns the card spec the template is authored against.
func (t Template) Spec() (units.CardSpec, error) {
	return units.LookupSpec(t.SpecID)
}

func clone(t Template) Template {
	pos := make(map[Slot]Position, len(t.Positions))
	for k, v := range t.Positions {
		pos[k] = v
	}
	ty := make(map[Slot]Typography, len(t.Type))
	for k, v := range t.Type {
		ty[k] = v
	}
	t.Positions = pos
	t.Type = ty
	return t
}
