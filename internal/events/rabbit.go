package events

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher sends a JSON payload under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// RabbitPublisher publishes JSON events to a RabbitMQ topic exchange.
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewRabbitPublisher dials url and declares a durable topic exchange.
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open amqp channel")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish serializes the payload to JSON and sends it to the exchange.
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	return errors.Wrapf(err, "publish %s", routingKey)
}

// Close terminates the channel and connection.
func (p *RabbitPublisher) Close() error {
	if p == nil {
		return nil
	}
	_ = p.channel.Close()
	return p.conn.Close()
}

// RoutingKey maps an event to its topic, e.g. "ticket.status_changed".
func RoutingKey(t EventType) string {
	const prefix = "ticket_"
	name := string(t)
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		name = name[len(prefix):]
	}
	return "ticket." + name
}

// Forward subscribes a handler that relays every event to publisher. Broker
// failures are logged and never reach the workflow caller, which has already
// committed.
func Forward(d Dispatcher, publisher Publisher, logger *zap.Logger) {
	SubscribeAll(d, func(ctx context.Context, event Event) error {
		if err := publisher.Publish(ctx, RoutingKey(event.Type), event); err != nil {
			logger.Warn("event forward failed",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
		}
		return nil
	})
}
