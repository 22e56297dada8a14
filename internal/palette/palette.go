// Package palette is the closed registry of card body colors.
package palette

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

var ErrUnknownColor = errors.New("unknown color")

// Contrast tells the renderer which ink reads on the card body.
type Contrast string

const (
	LightOnDark Contrast = "light-on-dark"
	DarkOnLight Contrast = "dark-on-light"
)

// CardColor is a card body color. PrintCMYK is the reference handed to the
// printer; no color conversion is performed.
type CardColor struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	ScreenHex   string   `json:"screen_hex"`
	PrintCMYK   string   `json:"print_cmyk"`
	Contrast    Contrast `json:"contrast"`
}

var registry = []CardColor{
	{ID: "onyx", DisplayName: "Onyx", ScreenHex: "#0a0a0a", PrintCMYK: "C:75 M:68 Y:67 K:90", Contrast: LightOnDark},
	{ID: "pearl", DisplayName: "Perle", ScreenHex: "#f4f2ec", PrintCMYK: "C:3 M:3 Y:7 K:0", Contrast: DarkOnLight},
	{ID: "midnight", DisplayName: "Bleu nuit", ScreenHex: "#101c3d", PrintCMYK: "C:100 M:85 Y:35 K:45", Contrast: LightOnDark},
	{ID: "bordeaux", DisplayName: "Bordeaux", ScreenHex: "#5b1423", PrintCMYK: "C:30 M:95 Y:70 K:50", Contrast: LightOnDark},
	{ID: "forest", DisplayName: "Vert forêt", ScreenHex: "#163a2b", PrintCMYK: "C:85 M:40 Y:75 K:55", Contrast: LightOnDark},
	{ID: "champagne", DisplayName: "Champagne", ScreenHex: "#d8c39a", PrintCMYK: "C:15 M:22 Y:42 K:0", Contrast: DarkOnLight},
	{ID: "silver", DisplayName: "Argent", ScreenHex: "#c4c7cc", PrintCMYK: "C:22 M:15 Y:13 K:0", Contrast: DarkOnLight},
	{ID: "white", DisplayName: "Blanc", ScreenHex: "#ffffff", PrintCMYK: "C:0 M:0 Y:0 K:0", Contrast: DarkOnLight},
}

var index = func() map[string]int {
	m := make(map[string]int, len(registry))
	for i, c := range registry {
		if _, err := ParseHex(c.ScreenHex); err != nil {
			panic(fmt.Sprintf("palette: %s: %v", c.ID, err))
		}
		m[c.ID] = i
	}
	return m
}()

// Get resolves a color id. Unknown ids never fall back to a default.
func Get(id string) (CardColor, error) {
	i, ok := index[strings.TrimSpace(id)]
	if !ok {
		return CardColor{}, fmt.Errorf("%w: %q", ErrUnknownColor, id)
	}
	return registry[i], nil
}

// All returns the registry in display order.
func All() []CardColor {
	out := make([]CardColor, len(registry))
	copy(out, registry)
	return out
}

// RGBA returns the screen color.
func (c CardColor) RGBA() color.NRGBA {
	rgba, _ := ParseHex(c.ScreenHex)
	return rgba
}

// TextColor is the ink used for printed text on this body color.
func (c CardColor) TextColor() color.NRGBA {
	if c.Contrast == LightOnDark {
		return color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	}
	return color.NRGBA{R: 0x14, G: 0x14, B: 0x14, A: 0xff}
}

// GuideColor is used for non-printing preview overlays.
func (c CardColor) GuideColor() color.NRGBA {
	if c.Contrast == LightOnDark {
		return color.NRGBA{R: 0x4d, G: 0xd0, B: 0xe1, A: 0xcc}
	}
	return color.NRGBA{R: 0xe5, G: 0x39, B: 0x35, A: 0xcc}
}

// ParseHex accepts #rrggbb.
func ParseHex(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("hex color %q: want 6 digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("hex color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
