package outbound

import (
	"context"
	"encoding/json"
	"fmt"

	"labbilling-backend/config"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// TransmissionMessage announces an exported document to the delivery
// worker that forwards it to the exchange system.
type TransmissionMessage struct {
	Schema      string `json:"schema"`
	InvoiceID   uint   `json:"invoice_id"`
	Number      string `json:"number"`
	Progressive int64  `json:"progressive"`
	FileName    string `json:"file_name"`
	Digest      string `json:"digest"`
	ObjectKey   string `json:"object_key,omitempty"`
}

// Publisher pushes transmission messages onto a durable queue.
type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	queue   string
}

func NewPublisher(cfg config.MessagingConfig) (*Publisher, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}
	return &Publisher{conn: conn, channel: channel, queue: cfg.Queue}, nil
}

func (p *Publisher) Publish(ctx context.Context, msg TransmissionMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	message := amqp091.Publishing{
		MessageId:    uuid.NewString(),
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Headers: amqp091.Table{
			"message_type": "einvoice.transmission",
		},
	}
	if err := p.channel.PublishWithContext(ctx, "", p.queue, false, false, message); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if err := p.channel.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}
