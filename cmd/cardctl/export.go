package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"iwasp/internal/assetgate"
	"iwasp/internal/export"
	"iwasp/internal/raster"
	"iwasp/internal/render"
)

var exportOpts struct {
	design   string
	order    string
	quantity int
	out      string
}

type exportSummary struct {
	CardFile       string  `json:"card_file" yaml:"card_file"`
	InfoSheetFile  string  `json:"info_sheet_file" yaml:"info_sheet_file"`
	PageWidthMM    float64 `json:"page_width_mm" yaml:"page_width_mm"`
	PageHeightMM   float64 `json:"page_height_mm" yaml:"page_height_mm"`
	RasterWidthPx  int     `json:"raster_width_px" yaml:"raster_width_px"`
	RasterHeightPx int     `json:"raster_height_px" yaml:"raster_height_px"`
	EffectiveDPI   int     `json:"effective_dpi" yaml:"effective_dpi"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Produce the print pack of a design file",
	Long: `Validate and lock the design in memory, then write the card PDF and the
info sheet PDF into the output directory. Nothing is written on failure.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, assets, err := loadDesign(exportOpts.design, assetgate.New(cfg.Upload.OptimalFactor), true)
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
		pipeline, err := export.NewPipeline(r, rz, export.Options{
			Prefix:      cfg.Export.FilePrefix,
			Supersample: cfg.Export.Supersample,
		})
		if err != nil {
			return err
		}

		order := exportOpts.order
		if order == "" {
			order = d.OrderNumber
		}
		pack, err := pipeline.GeneratePrintPack(cmd.Context(), d, export.Order{Number: order, Quantity: exportOpts.quantity})
		if err != nil {
			return err
		}
		if err := pack.WriteDir(exportOpts.out); err != nil {
			return err
		}

		m := pack.Manifest
		return printResult(cmd.OutOrStdout(), exportSummary{
			CardFile:       filepath.Join(exportOpts.out, pack.CardName),
			InfoSheetFile:  filepath.Join(exportOpts.out, pack.InfoSheetName),
			PageWidthMM:    m.PageWidthMM,
			PageHeightMM:   m.PageHeightMM,
			RasterWidthPx:  m.RasterWidthPx,
			RasterHeightPx: m.RasterHeightPx,
			EffectiveDPI:   m.EffectiveDPI,
		})
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOpts.design, "design", "d", "", "design file (yaml)")
	f.StringVar(&exportOpts.order, "order", "", "order number (defaults to the design file's)")
	f.IntVar(&exportOpts.quantity, "quantity", 1, "number of cards ordered")
	f.StringVar(&exportOpts.out, "out", ".", "output directory")
	_ = exportCmd.MarkFlagRequired("design")
}
