package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"iwasp/internal/config"
)

var (
	cfgFile      string
	outputFormat string
	v            = viper.New()
	cfg          *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cardctl",
	Short: "Offline tooling for i-wasp card designs",
	Long: `cardctl works on design files (YAML) and local logo files. It renders
previews, checks logo resolution against a template and produces the same
print pack the worker uploads.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", cfgFile, err)
			}
		}
		var err error
		cfg, err = config.LoadOffline(v)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		switch outputFormat {
		case "text", "json":
		default:
			return fmt.Errorf("unsupported output format: %s", outputFormat)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml)")
	flags.StringVarP(&outputFormat, "output", "o", "text", "output format: text or json")
	flags.String("prefix", "", "deliverable file name prefix")
	flags.Float64("preview-width", 0, "preview width in pixels")
	flags.Float64("optimal-factor", 0, "logo quality factor above the print floor")
	flags.String("session-secret", "", "HS256 secret shared with the order service")

	bind := map[string]string{
		"export.file_prefix":      "prefix",
		"render.preview_width_px": "preview-width",
		"upload.optimal_factor":   "optimal-factor",
		"session.secret":          "session-secret",
	}
	for key, flag := range bind {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(renderCmd, exportCmd, checkLogoCmd, tokenCmd)
}
