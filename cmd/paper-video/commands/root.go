// Package commands implements the paper-video CLI.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/spherical/paper-video/cmd/paper-video/ui"
	"github.com/spherical/paper-video/internal/config"
	"github.com/spherical/paper-video/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool

	appConfig *config.Config
	logger    *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "paper-video",
	Short: "Turn research papers into narrated explainer videos",
	Long: `paper-video reads a research paper PDF, explains each of its figures with a
vision model, narrates the abstract, the figures and the conclusion, and
assembles the narrated segments into a single video.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.InitUI(noColor)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Observability.LogLevel = "debug"
		}
		appConfig = cfg

		logger = observability.NewLogger(observability.LogConfig{
			Level:  cfg.Observability.LogLevel,
			Format: cfg.Observability.LogFormat,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		ui.Error("%v", err)
	}
	return err
}
