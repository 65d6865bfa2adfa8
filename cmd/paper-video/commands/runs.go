package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/paper-video/cmd/paper-video/ui"
	"github.com/spherical/paper-video/internal/storage"
)

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs from the run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appConfig
			if cfg.History.Driver == "none" {
				return errors.New("run history is disabled (history.driver: none)")
			}

			db, err := storage.Open(ctx, cfg.History.Driver, cfg.HistoryDSN())
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := storage.NewRunRepository(db).List(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				ui.Info("No runs recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					ui.StatusText(string(r.Status)),
					r.Source,
					fmt.Sprintf("%d", r.Images),
					fmt.Sprintf("%d", r.Segments),
					ui.FormatDuration(r.Duration),
					ui.FormatBytes(r.Bytes),
				})
			}
			ui.Table([]string{"ID", "STARTED", "STATUS", "SOURCE", "IMAGES", "SEGMENTS", "LENGTH", "SIZE"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}
