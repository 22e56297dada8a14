package pdf

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/pagetree"
)

// readBack parses a document and returns its page count and first media box.
func readBack(t *testing.T, data []byte) (int, *pdf.Rectangle) {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(data), nil)
	require.NoError(t, err)
	n, err := pagetree.NumPages(r)
	require.NoError(t, err)
	_, page, err := pagetree.GetPage(r, 0)
	require.NoError(t, err)
	box, err := pdf.GetRectangle(r, page["MediaBox"])
	require.NoError(t, err)
	require.NotNil(t, box)
	return n, box
}

func TestPageSizeCR80(t *testing.T) {
	box := PageSize(85.6, 54)
	assert.InDelta(t, 242.65, box.URx, 0.01)
	assert.InDelta(t, 153.07, box.URy, 0.01)
	assert.Zero(t, box.LLx)
	assert.Zero(t, box.LLy)
	assert.Greater(t, box.URx, box.URy, "card pages are landscape")
}

func TestImagePage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 25))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.RGBA{A: 0xff})

	out, err := ImagePage(img, 85.6, 54)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.True(t, bytes.Contains(out, []byte("%%EOF")))

	pages, box := readBack(t, out)
	assert.Equal(t, 1, pages)
	assert.Zero(t, box.LLx)
	assert.Zero(t, box.LLy)
	assert.InDelta(t, 85.6/25.4*72, box.URx, 1e-3)
	assert.InDelta(t, 54/25.4*72, box.URy, 1e-3)
}

func TestImagePageA4(t *testing.T) {
	out, err := ImagePage(image.NewRGBA(image.Rect(0, 0, 21, 30)), A4WidthMM, A4HeightMM)
	require.NoError(t, err)
	pages, box := readBack(t, out)
	assert.Equal(t, 1, pages)
	assert.InDelta(t, 595.28, box.URx, 0.01)
	assert.InDelta(t, 841.89, box.URy, 0.01)
}

func TestImagePageRejectsBadInput(t *testing.T) {
	_, err := ImagePage(image.NewRGBA(image.Rect(0, 0, 0, 0)), 85.6, 54)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = ImagePage(image.NewRGBA(image.Rect(0, 0, 4, 4)), 0, 54)
	assert.Error(t, err)
}

func TestContentSpanCoversPageExactly(t *testing.T) {
	// 85.6 mm at 1200 dpi is 4043.3 px; the raster is rounded up to 4045.
	contentW, contentH := 85.6*1200/25.4, 54*1200/25.4
	box := PageSize(85.6, 54)

	m := imageMatrix(box, 4045, 2552, contentW, contentH)
	assert.InDelta(t, box.URx, m[0]*contentW/4045, 1e-9, "content right edge on page edge")
	assert.InDelta(t, box.URy, m[5]+m[3], 1e-9, "image top on page top")
	assert.InDelta(t, 0, m[5]+m[3]*(1-contentH/2552), 1e-9, "content bottom edge on page edge")
	assert.Zero(t, m[4])

	out, err := ContentPage(image.NewRGBA(image.Rect(0, 0, 11, 7)), 85.6, 54, 10.3, 6.5)
	require.NoError(t, err)
	pages, mb := readBack(t, out)
	assert.Equal(t, 1, pages)
	assert.InDelta(t, 242.65, mb.URx, 0.005)
}

func TestContentPageRejectsOversizedSpan(t *testing.T) {
	_, err := ContentPage(image.NewRGBA(image.Rect(0, 0, 10, 10)), 85.6, 54, 10.5, 10)
	assert.ErrorContains(t, err, "outside")
}
