package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/spherical/paper-video/cmd/paper-video/ui"
	"github.com/spherical/paper-video/internal/api"
	"github.com/spherical/paper-video/pkg/papervideo"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the video generator over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appConfig
			if port != 0 {
				cfg.Server.Port = port
			}

			client, err := papervideo.NewClient(ctx, cfg, papervideo.WithLogger(logger))
			if err != nil {
				return err
			}
			defer client.Close()

			pool := api.NewRunnerPool(cfg.Server.MaxConcurrent, func() api.Runner {
				return client.NewOrchestrator()
			})

			var runs api.RunLister
			if h := client.History(); h != nil {
				runs = h
			}

			handler := api.NewRouter(logger, pool, runs, api.Config{
				MaxUploadBytes: cfg.Server.MaxUploadBytes,
				RequestTimeout: cfg.Server.WriteTimeout,
				OutputName:     cfg.Video.OutputName,
				WorkDir:        cfg.WorkDir,
			})

			srv := &http.Server{
				Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
				Handler:      handler,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				ui.Info("Listening on %s", srv.Addr)
				logger.Info().Str("addr", srv.Addr).Int("max_concurrent", cfg.Server.MaxConcurrent).Msg("HTTP server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info().Msg("Shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	return cmd
}
