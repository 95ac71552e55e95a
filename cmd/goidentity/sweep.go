package main

import (
	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSweepCmd(opts *options) *cobra.Command {
	var (
		watch    bool
		schedule string
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions, refresh records and consumed tokens",
		Long: `Runs one sweep and exits. With --watch the sweep runs on the cron
schedule until the process is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var active string
			rt, err := opts.build(ctx, func(cfg *goIdentity.Config, _ *goIdentity.Builder) {
				cfg.Sweep.Enabled = watch
				if schedule != "" {
					cfg.Sweep.Schedule = schedule
				}
				active = cfg.Sweep.Schedule
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			if watch {
				opts.logger.Info("sweeper running", zap.String("schedule", active))
				<-ctx.Done()
				return nil
			}

			res, err := rt.engine.Sweep(ctx)
			if err != nil {
				return err
			}
			opts.logger.Info("sweep complete",
				zap.Int64("sessions", res.Sessions),
				zap.Int64("refresh_tokens", res.RefreshTokens),
				zap.Int64("consumed_tokens", res.ConsumedTokens),
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and sweep on the schedule")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule override for --watch")
	return cmd
}
