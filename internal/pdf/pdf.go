// Package pdf wraps bitmaps into single-page PDF documents whose media box
// matches a physical size exactly.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/document"
	pdfimage "seehuhn.de/go/pdf/graphics/image"

	"iwasp/internal/units"
)

// A4 portrait in millimeters.
const (
	A4WidthMM  = 210.0
	A4HeightMM = 297.0
)

var ErrEmptyImage = errors.New("pdf: empty image")

// PageSize returns a media box of the given size with no margins.
func PageSize(widthMM, heightMM float64) *pdf.Rectangle {
	return &pdf.Rectangle{
		URx: units.MMToPoints(widthMM),
		URy: units.MMToPoints(heightMM),
	}
}

// WriteImagePage writes a one-page document of widthMM × heightMM with img
// stretched edge to edge.
func WriteImagePage(w io.Writer, img image.Image, widthMM, heightMM float64) error {
	if img == nil || img.Bounds().Empty() {
		return ErrEmptyImage
	}
	b := img.Bounds()
	return WriteContentPage(w, img, widthMM, heightMM, float64(b.Dx()), float64(b.Dy()))
}

// WriteContentPage writes a one-page document of widthMM × heightMM where
// the top-left contentW × contentH pixels of img cover the page exactly.
// Rasters are rounded up to whole pixels, so the partial last column and row
// fall past the media box instead of stretching the card.
func WriteContentPage(w io.Writer, img image.Image, widthMM, heightMM, contentW, contentH float64) error {
	if img == nil || img.Bounds().Empty() {
		return ErrEmptyImage
	}
	if widthMM <= 0 || heightMM <= 0 {
		return fmt.Errorf("pdf: invalid page size %.2f×%.2f mm", widthMM, heightMM)
	}
	b := img.Bounds()
	if contentW <= 0 || contentH <= 0 || contentW > float64(b.Dx()) || contentH > float64(b.Dy()) {
		return fmt.Errorf("pdf: content %.2f×%.2f px outside %d×%d image", contentW, contentH, b.Dx(), b.Dy())
	}
	box := PageSize(widthMM, heightMM)

	page, err := document.WriteSinglePage(w, box, pdf.V1_7, nil)
	if err != nil {
		return fmt.Errorf("pdf: open document: %w", err)
	}
	page.PushGraphicsState()
	page.Transform(imageMatrix(box, b.Dx(), b.Dy(), contentW, contentH))
	page.DrawXObject(&pdfimage.PNG{Data: img})
	page.PopGraphicsState()

	if err := page.Close(); err != nil {
		return fmt.Errorf("pdf: close document: %w", err)
	}
	return nil
}

// imageMatrix maps the unit image square so that content pixels span box,
// anchored at the top-left corner.
func imageMatrix(box *pdf.Rectangle, imgW, imgH int, contentW, contentH float64) matrix.Matrix {
	sx := box.URx * float64(imgW) / contentW
	sy := box.URy * float64(imgH) / contentH
	return matrix.Matrix{sx, 0, 0, sy, 0, box.URy - sy}
}

// ImagePage is WriteImagePage into memory.
func ImagePage(img image.Image, widthMM, heightMM float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteImagePage(&buf, img, widthMM, heightMM); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ContentPage is WriteContentPage into memory.
func ContentPage(img image.Image, widthMM, heightMM, contentW, contentH float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteContentPage(&buf, img, widthMM, heightMM, contentW, contentH); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
