package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/paper-video/cmd/paper-video/ui"
	"github.com/spherical/paper-video/internal/config"
	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/pkg/papervideo"
)

func newGenerateCmd() *cobra.Command {
	var (
		outputPath string
		onFailure  string
		locale     string
	)

	cmd := &cobra.Command{
		Use:   "generate <pdf-file>",
		Short: "Generate a narrated video from a research paper",
		Example: `  paper-video generate paper.pdf
  paper-video generate -o explainer.mp4 --on-failure skip paper.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pdfPath := args[0]
			cfg := appConfig

			if onFailure != "" {
				cfg.Explanation.OnFailure = onFailure
			}
			if locale != "" {
				cfg.Narration.Locale = locale
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if outputPath == "" {
				outputPath = cfg.Video.OutputName
			}

			client, err := papervideo.NewClient(ctx, cfg, papervideo.WithLogger(logger))
			if err != nil {
				return err
			}
			defer client.Close()

			// the video is staged next to the output and renamed on success
			tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".paper-video-*.mp4")
			if err != nil {
				return domain.IOError("create output file", err)
			}
			defer os.Remove(tmp.Name())

			ui.Step("Processing PDF: %s", pdfPath)
			if cfg.Explanation.OnFailure == config.OnFailureSkip {
				ui.Warning("Figures that cannot be explained will be skipped")
			}
			startTime := time.Now()

			progress := ui.NewProgressSink("Reading PDF...")
			artifact, err := client.Generate(ctx, pdfPath, tmp, progress)
			progress.Finish()
			if cerr := tmp.Close(); err == nil && cerr != nil {
				err = domain.IOError("write output file", cerr)
			}
			if err != nil {
				return err
			}

			if err := os.Rename(tmp.Name(), outputPath); err != nil {
				return domain.IOError("move output file", err)
			}

			ui.Success("Video written to %s", outputPath)
			ui.KeyValue("Segments", fmt.Sprintf("%d (%d figures)", len(artifact.Segments), artifact.CountKind(domain.SegmentImageExplanation)))
			ui.KeyValue("Duration", ui.FormatDuration(artifact.Duration))
			ui.KeyValue("Size", ui.FormatBytes(artifact.Bytes))
			ui.KeyValue("Total time", ui.FormatDuration(time.Since(startTime)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output video path (default research_explanation.mp4)")
	cmd.Flags().StringVar(&onFailure, "on-failure", "", "what to do when a figure cannot be explained: abort or skip")
	cmd.Flags().StringVar(&locale, "locale", "", "narration locale")
	return cmd
}
