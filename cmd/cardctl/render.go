package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"iwasp/internal/assetgate"
	"iwasp/internal/raster"
	"iwasp/internal/render"
	"iwasp/internal/units"
)

var renderOpts struct {
	design       string
	mode         string
	guides       bool
	placeholders bool
	scale        int
	out          string
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a design file to PNG",
	Long: `Render a design in preview or print mode. Print mode validates and locks
the design in memory first, exactly as an export would.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := units.ParseMode(renderOpts.mode)
		if err != nil {
			return err
		}
		if renderOpts.scale < 1 {
			return fmt.Errorf("scale must be at least 1")
		}

		d, assets, err := loadDesign(renderOpts.design, assetgate.New(cfg.Upload.OptimalFactor), mode == units.ModePrint)
		if err != nil {
			return err
		}
		rz, err := raster.New(assets)
		if err != nil {
			return err
		}
		r, err := render.NewRenderer(cfg.Render.PreviewWidthPx, rz.Fonts)
		if err != nil {
			return err
		}

		tree, err := r.Render(d, mode, render.Options{
			ShowGuides:       renderOpts.guides,
			ShowPlaceholders: renderOpts.placeholders,
		})
		if err != nil {
			return err
		}
		img, err := rz.Rasterize(cmd.Context(), tree, renderOpts.scale)
		if err != nil {
			return err
		}

		f, err := os.Create(renderOpts.out)
		if err != nil {
			return err
		}
		if err := raster.EncodePNG(f, img); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}

		return printResult(cmd.OutOrStdout(), map[string]any{
			"file":      renderOpts.out,
			"mode":      string(tree.Mode),
			"width_px":  img.Bounds().Dx(),
			"height_px": img.Bounds().Dy(),
			"px_per_mm": tree.PxPerMM * float64(renderOpts.scale),
		})
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderOpts.design, "design", "d", "", "design file (yaml)")
	f.StringVar(&renderOpts.mode, "mode", "preview", "preview or print")
	f.BoolVar(&renderOpts.guides, "guides", false, "draw safe margin and NFC zone (preview only)")
	f.BoolVar(&renderOpts.placeholders, "placeholders", false, "draw placeholders for empty fields (preview only)")
	f.IntVar(&renderOpts.scale, "scale", 1, "pixel multiplier")
	f.StringVar(&renderOpts.out, "out", "card.png", "output PNG path")
	_ = renderCmd.MarkFlagRequired("design")
}
