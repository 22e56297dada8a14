package assetgate

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/srwiley/oksvg"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUndecodable     = errors.New("file cannot be decoded")
	ErrMalware         = errors.New("malicious file detected")
)

const DefaultMaxBytes = 10 << 20

// Accepted upload types and the extension used for stored objects.
var acceptedTypes = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/svg+xml": ".svg",
	"image/webp":    ".webp",
}

// Asset describes an uploaded logo after intake.
type Asset struct {
	MIME        string `json:"mime"`
	Ext         string `json:"ext"`
	Size        int64  `json:"size"`
	PixelWidth  int    `json:"pixel_width"`
	PixelHeight int    `json:"pixel_height"`
	Vector      bool   `json:"vector"`
}

// Inspect sniffs the content type and reads the pixel dimensions. Only JPEGs
// are fully decoded, since their EXIF orientation can swap the axes.
func Inspect(data []byte, maxBytes int64) (Asset, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if int64(len(data)) > maxBytes {
		return Asset{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(data), maxBytes)
	}
	if len(data) == 0 {
		return Asset{}, fmt.Errorf("%w: empty file", ErrUndecodable)
	}

	mt := mimetype.Detect(data)
	var mime, ext string
	for m, e := range acceptedTypes {
		if mt.Is(m) {
			mime, ext = m, e
			break
		}
	}
	if mime == "" {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	a := Asset{MIME: mime, Ext: ext, Size: int64(len(data))}
	if mime == "image/svg+xml" {
		w, h, err := svgSize(data)
		if err != nil {
			return Asset{}, err
		}
		a.PixelWidth, a.PixelHeight, a.Vector = w, h, true
		return a, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Asset{}, fmt.Errorf("%w: zero dimensions", ErrUndecodable)
	}
	a.PixelWidth, a.PixelHeight = cfg.Width, cfg.Height
	if mime == "image/jpeg" {
		w, h, err := orientedSize(data)
		if err != nil {
			return Asset{}, err
		}
		a.PixelWidth, a.PixelHeight = w, h
	}
	return a, nil
}

// orientedSize decodes a JPEG the way the rasterizer does, EXIF orientation
// applied, so the gate and the contain-fit see the axes that get drawn.
func orientedSize(data []byte) (int, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// svgSize reports the viewBox size, which fixes the aspect ratio used for
// contain fitting.
func svgSize(data []byte) (int, int, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: svg: %v", ErrUndecodable, err)
	}
	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 || math.IsNaN(w) || math.IsNaN(h) {
		return 0, 0, fmt.Errorf("%w: svg without a usable viewBox", ErrUndecodable)
	}
	return int(math.Ceil(w)), int(math.Ceil(h)), nil
}
