package main

import (
	"fmt"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/notify"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
)

func newResetPasswordCmd(opts *options) *cobra.Command {
	var (
		amqpURL  string
		exchange string
		key      string
	)
	cmd := &cobra.Command{
		Use:   "reset-password EMAIL",
		Short: "Send a password reset token to an account",
		Long: `Issues a password reset token and delivers it over AMQP when --amqp-url
is set, otherwise it is written to the log. Unknown addresses succeed silently.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var sender goIdentity.EmailSender = notify.NewLogSender(opts.logger)
			if amqpURL != "" {
				conn, err := amqp.Dial(amqpURL)
				if err != nil {
					return fmt.Errorf("dial amqp: %w", err)
				}
				defer conn.Close()
				ch, err := conn.Channel()
				if err != nil {
					return fmt.Errorf("open amqp channel: %w", err)
				}
				defer ch.Close()

				sender, err = notify.NewAMQPSender(ch, notify.AMQPConfig{Exchange: exchange, RoutingKey: key})
				if err != nil {
					return err
				}
			}

			rt, err := opts.build(ctx, func(_ *goIdentity.Config, b *goIdentity.Builder) {
				b.WithEmailSender(sender)
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			return rt.engine.RequestPasswordReset(ctx, args[0])
		},
	}
	cmd.Flags().StringVar(&amqpURL, "amqp-url", envOr(envAMQPURL, ""), "amqp broker url; empty logs the token")
	cmd.Flags().StringVar(&exchange, "exchange", "", "amqp exchange")
	cmd.Flags().StringVar(&key, "routing-key", notify.DefaultRoutingKey, "amqp routing key")
	return cmd
}
