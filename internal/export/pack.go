package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"iwasp/internal/render"
)

// Manifest describes a pack without its bytes. Two exports of the same
// locked design yield equal manifests.
type Manifest struct {
	DesignID       uint                     `json:"design_id"`
	OrderNumber    string                   `json:"order_number"`
	Quantity       int                      `json:"quantity"`
	TemplateID     string                   `json:"template_id"`
	ColorID        string                   `json:"color_id"`
	SpecID         string                   `json:"spec_id"`
	PageWidthMM    float64                  `json:"page_width_mm"`
	PageHeightMM   float64                  `json:"page_height_mm"`
	PageWidthPt    float64                  `json:"page_width_pt"`
	PageHeightPt   float64                  `json:"page_height_pt"`
	PrintPxPerMM   float64                  `json:"print_px_per_mm"`
	Supersample    int                      `json:"supersample"`
	EffectiveDPI   int                      `json:"effective_dpi"`
	RasterWidthPx  int                      `json:"raster_width_px"`
	RasterHeightPx int                      `json:"raster_height_px"`
	Geometry       map[string]render.RectPx `json:"geometry"`
	CardFile       string                   `json:"card_file"`
	InfoSheetFile  string                   `json:"info_sheet_file"`
	LockedAt       time.Time                `json:"locked_at"`
}

// Pack is a complete print deliverable.
type Pack struct {
	CardPDF       []byte
	InfoSheetPDF  []byte
	CardName      string
	InfoSheetName string
	Manifest      Manifest
}

// WriteDir stores both documents in dir. Files are staged under temporary
// names and renamed only once both are written.
func (p *Pack) WriteDir(dir string) (err error) {
	if p == nil {
		return errors.New("export: nil pack")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	files := []struct {
		name string
		data []byte
	}{
		{p.CardName, p.CardPDF},
		{p.InfoSheetName, p.InfoSheetPDF},
	}

	var staged, published []string
	defer func() {
		if err != nil {
			for _, path := range append(staged, published...) {
				_ = os.Remove(path)
			}
		}
	}()
	for _, f := range files {
		tmp, err := os.CreateTemp(dir, "."+f.name+".*")
		if err != nil {
			return fmt.Errorf("stage %s: %w", f.name, err)
		}
		staged = append(staged, tmp.Name())
		if _, err := tmp.Write(f.data); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("write %s: %w", f.name, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("close %s: %w", f.name, err)
		}
	}
	for i, f := range files {
		dst := filepath.Join(dir, f.name)
		if err := os.Rename(staged[i], dst); err != nil {
			return fmt.Errorf("publish %s: %w", f.name, err)
		}
		published = append(published, dst)
	}
	return nil
}
