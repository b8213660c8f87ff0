// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"
)

// Publisher is the subset of *amqp.Channel used by AMQPSender.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// mailEnvelope is the JSON body consumed by the external mailer.
type mailEnvelope struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Template string `json:"template"`
}

// AMQPSender publishes rendered messages for an external mailer to deliver.
type AMQPSender struct {
	publisher  Publisher
	exchange   string
	routingKey string
	now        func() time.Time
}

// NewAMQPSender creates an AMQPSender.
func NewAMQPSender(publisher Publisher, exchange, routingKey string) *AMQPSender {
	return &AMQPSender{publisher: publisher, exchange: exchange, routingKey: routingKey, now: time.Now}
}

// Send publishes msg as a persistent JSON message.
func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(mailEnvelope(msg))
	if err != nil {
		return oops.Code("AMQP_ENCODE_FAILED").Wrap(err)
	}

	err = s.publisher.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ulid.Make().String(),
		Timestamp:    s.now(),
		Type:         msg.Template,
		Body:         body,
	})
	if err != nil {
		return oops.Code("AMQP_PUBLISH_FAILED").
			With("exchange", s.exchange).
			With("routing_key", s.routingKey).
			Wrap(err)
	}
	return nil
}

// AMQPChannel owns a broker connection and the channel published on.
type AMQPChannel struct {
	*amqp.Channel
	conn *amqp.Connection
}

// DialAMQP connects to url and declares exchange as a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, oops.Code("AMQP_DIAL_FAILED").Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("AMQP_CHANNEL_FAILED").Wrap(err)
	}
	if exchange != "" {
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, oops.Code("AMQP_DECLARE_FAILED").With("exchange", exchange).Wrap(err)
		}
	}
	return &AMQPChannel{Channel: ch, conn: conn}, nil
}

// Close closes the channel and the connection.
func (c *AMQPChannel) Close() error {
	chErr := c.Channel.Close()
	if err := c.conn.Close(); err != nil {
		return oops.Code("AMQP_CLOSE_FAILED").Wrap(err)
	}
	if chErr != nil {
		return oops.Code("AMQP_CLOSE_FAILED").Wrap(chErr)
	}
	return nil
}
