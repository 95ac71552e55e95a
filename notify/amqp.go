package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultRoutingKey is used when AMQPConfig.RoutingKey is empty.
const DefaultRoutingKey = "goidentity.mail"

// Publisher is satisfied by *amqp091.Channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Message is the JSON body of one published mail.
type Message struct {
	ID       string    `json:"id"`
	To       string    `json:"to"`
	Template string    `json:"template"`
	Token    string    `json:"token"`
	SentAt   time.Time `json:"sent_at"`
}

// AMQPConfig selects the exchange and routing key.
type AMQPConfig struct {
	Exchange   string
	RoutingKey string
	Now        func() time.Time
}

// AMQPSender implements the engine EmailSender over AMQP.
type AMQPSender struct {
	pub Publisher
	cfg AMQPConfig
}

// NewAMQPSender returns a sender publishing through pub.
func NewAMQPSender(pub Publisher, cfg AMQPConfig) (*AMQPSender, error) {
	if pub == nil {
		return nil, errors.New("amqp sender requires a publisher")
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = DefaultRoutingKey
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AMQPSender{pub: pub, cfg: cfg}, nil
}

// Send publishes a persistent message.
func (s *AMQPSender) Send(ctx context.Context, to, templateID, token string) error {
	msg := Message{
		ID:       uuid.NewString(),
		To:       to,
		Template: templateID,
		Token:    token,
		SentAt:   s.cfg.Now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail message: %w", err)
	}

	err = s.pub.PublishWithContext(ctx, s.cfg.Exchange, s.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.SentAt,
		Type:         templateID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish mail message: %w", err)
	}
	return nil
}
