package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	qrcode "github.com/skip2/go-qrcode"

	"iwasp/internal/design"
	"iwasp/internal/layout"
	"iwasp/internal/palette"
	"iwasp/internal/pdf"
	"iwasp/internal/units"
)

// The info sheet is an A4 portrait page rasterized at sheetDPI.
const (
	sheetDPI      = 150
	sheetPxPerMM  = sheetDPI / units.MMPerInch
	sheetMarginMM = 15.0
	qrSizePx      = 256
)

type sheetData struct {
	Design      *design.Design
	Order       Order
	Template    layout.Template
	Color       palette.CardColor
	Spec        units.CardSpec
	Card        image.Image
	Supersample int
}

func mmToSheet(mm float64) float64 { return mm * sheetPxPerMM }

func (d sheetData) rows() [][2]string {
	dash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	locked := "-"
	if d.Design.LockedAt != nil {
		locked = d.Design.LockedAt.UTC().Format("2006-01-02 15:04 MST")
	}
	return [][2]string{
		{"Commande", d.Order.Number},
		{"Quantité", strconv.Itoa(d.Order.Quantity)},
		{"Modèle", fmt.Sprintf("%s (%s)", d.Template.DisplayName, d.Template.ID)},
		{"Couleur", fmt.Sprintf("%s %s", d.Color.DisplayName, d.Color.ScreenHex)},
		{"Référence CMJN", d.Color.PrintCMYK},
		{"Nom", dash(d.Design.PrintedName)},
		{"Fonction", dash(d.Design.PrintedTitle)},
		{"Entreprise", dash(d.Design.PrintedCompany)},
		{"Format", fmt.Sprintf("%s %.2f × %.2f mm, rayon %.2f mm", d.Spec.DisplayName, d.Spec.WidthMM, d.Spec.HeightMM, d.Spec.CornerRadiusMM)},
		{"Résolution", fmt.Sprintf("%d dpi, suréchantillonnage %d×", units.PrintDPI, d.Supersample)},
		{"Verrouillée le", locked},
	}
}

// infoSheet draws the operator sheet. The card thumbnail is at 1:1 physical
// scale so it can be held against a printed card.
func (p *Pipeline) infoSheet(ctx context.Context, d sheetData) (image.Image, error) {
	w := int(math.Ceil(mmToSheet(pdf.A4WidthMM)))
	h := int(math.Ceil(mmToSheet(pdf.A4HeightMM)))
	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()

	fonts := p.rasterizer.Fonts
	ink := color.NRGBA{R: 0x14, G: 0x14, B: 0x14, A: 0xff}
	muted := color.NRGBA{R: 0x6b, G: 0x6b, B: 0x6b, A: 0xff}
	left := mmToSheet(sheetMarginMM)
	y := mmToSheet(sheetMarginMM)

	title := fonts.NewFace(layout.Bold, mmToSheet(7))
	defer title.Close()
	dc.SetFontFace(title)
	dc.SetColor(ink)
	dc.DrawStringAnchored(fmt.Sprintf("Fiche de fabrication %s", d.Order.Number), left, y, 0, 1)
	y += mmToSheet(14)

	label := fonts.NewFace(layout.Bold, mmToSheet(3.6))
	defer label.Close()
	value := fonts.NewFace(layout.Regular, mmToSheet(3.6))
	defer value.Close()
	valueX := left + mmToSheet(45)
	for _, row := range d.rows() {
		dc.SetFontFace(label)
		dc.SetColor(muted)
		dc.DrawString(row[0], left, y)
		dc.SetFontFace(value)
		dc.SetColor(ink)
		dc.DrawString(row[1], valueX, y)
		y += mmToSheet(7)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Card at physical size, outlined along the trim line.
	y += mmToSheet(6)
	cw := int(math.Round(mmToSheet(d.Spec.WidthMM)))
	ch := int(math.Round(mmToSheet(d.Spec.HeightMM)))
	thumb := imaging.Resize(d.Card, cw, ch, imaging.Lanczos)
	dc.DrawImage(thumb, int(left), int(y))
	dc.SetColor(muted)
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(left, y, float64(cw), float64(ch), mmToSheet(d.Spec.CornerRadiusMM))
	dc.Stroke()

	qr, err := orderQR(d.Order.Number)
	if err != nil {
		return nil, err
	}
	qrX := float64(w) - mmToSheet(sheetMarginMM) - float64(qr.Bounds().Dx())
	dc.DrawImage(qr, int(qrX), int(y))

	y += float64(ch) + mmToSheet(8)
	note := fonts.NewFace(layout.Regular, mmToSheet(3))
	defer note.Close()
	dc.SetFontFace(note)
	dc.SetColor(muted)
	dc.DrawString("Aperçu à l'échelle 1:1. Le fichier carte ne comporte ni traits de coupe ni fond perdu.", left, y)

	return dc.Image(), nil
}

func orderQR(order string) (image.Image, error) {
	raw, err := qrcode.Encode(order, qrcode.Medium, qrSizePx)
	if err != nil {
		return nil, fmt.Errorf("encode order qr: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode order qr: %w", err)
	}
	return img, nil
}
