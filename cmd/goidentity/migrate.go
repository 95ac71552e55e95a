package main

import (
	"github.com/MrEthical07/goIdentity/store/postgres"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := postgres.Migrate(cmd.Context(), pool)
			if err != nil {
				return err
			}
			opts.logger.Info("migrations applied", zap.Int("count", n))
			return nil
		},
	}
}
