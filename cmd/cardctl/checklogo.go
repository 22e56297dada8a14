package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"iwasp/internal/assetgate"
	"iwasp/internal/layout"
)

var checkLogoTemplate string

type logoCheck struct {
	File      string `json:"file" yaml:"file"`
	MIME      string `json:"mime" yaml:"mime"`
	Width     int    `json:"width_px" yaml:"width_px"`
	Height    int    `json:"height_px" yaml:"height_px"`
	Vector    bool   `json:"vector" yaml:"vector"`
	Template  string `json:"template_id" yaml:"template_id"`
	MinWidth  int    `json:"min_width_px" yaml:"min_width_px"`
	MinHeight int    `json:"min_height_px" yaml:"min_height_px"`
	Valid     bool   `json:"is_valid" yaml:"is_valid"`
	Optimal   bool   `json:"is_optimal" yaml:"is_optimal"`
	Message   string `json:"message,omitempty" yaml:"message,omitempty"`
}

var checkLogoCmd = &cobra.Command{
	Use:   "check-logo <file>",
	Short: "Check a logo against a template's print resolution floor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		asset, err := assetgate.Inspect(data, cfg.Upload.MaxBytes)
		if err != nil {
			return err
		}
		tpl, err := layout.Get(checkLogoTemplate)
		if err != nil {
			return err
		}
		pos, ok := tpl.Positions[layout.SlotLogo]
		if !ok {
			return fmt.Errorf("template %s has no logo slot", tpl.ID)
		}

		report := assetgate.New(cfg.Upload.OptimalFactor).EvaluateAsset(asset, pos)
		if err := printResult(cmd.OutOrStdout(), logoCheck{
			File:      args[0],
			MIME:      asset.MIME,
			Width:     asset.PixelWidth,
			Height:    asset.PixelHeight,
			Vector:    asset.Vector,
			Template:  tpl.ID,
			MinWidth:  report.MinWidth,
			MinHeight: report.MinHeight,
			Valid:     report.Valid,
			Optimal:   report.Optimal,
			Message:   report.Message,
		}); err != nil {
			return err
		}
		if !report.Valid {
			return report.Err()
		}
		return nil
	},
}

func init() {
	checkLogoCmd.Flags().StringVarP(&checkLogoTemplate, "template", "t", layout.DefaultTemplateID, "template id")
}
