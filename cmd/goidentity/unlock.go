package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newUnlockCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock USER_ID",
		Short: "Clear the lockout of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.build(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.engine.UnlockAccount(cmd.Context(), args[0]); err != nil {
				return err
			}
			opts.logger.Info("account unlocked", zap.String("user_id", args[0]))
			return nil
		},
	}
}
