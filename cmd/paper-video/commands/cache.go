package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/spherical/paper-video/cmd/paper-video/ui"
	"github.com/spherical/paper-video/internal/cache"
	"github.com/spherical/paper-video/internal/llm"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the explanation cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every cached figure explanation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appConfig
			client, err := cache.New(cache.Options{
				Driver: cfg.Cache.Driver,
				Redis: cache.RedisConfig{
					Addr:     cfg.Cache.Redis.Addr,
					Password: cfg.Cache.Redis.Password,
					DB:       cfg.Cache.Redis.DB,
					PoolSize: cfg.Cache.Redis.PoolSize,
				},
			})
			if err != nil {
				return err
			}
			if client == nil {
				return errors.New("explanation cache is disabled (cache.driver: none)")
			}
			defer client.Close()

			if err := client.DeleteByPrefix(cmd.Context(), llm.CacheKeyPrefix); err != nil {
				return err
			}
			ui.Success("Explanation cache cleared (%s)", cfg.Cache.Driver)
			return nil
		},
	})

	return cmd
}
