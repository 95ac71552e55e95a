// Package notify delivers verification and password reset tokens.
//
// [AMQPSender] publishes one JSON message per mail to a RabbitMQ exchange for
// a separate mailer to render. [LogSender] writes the mail to a zap logger and
// is meant for local development.
package notify
