// Package rabbitmq provides the event bus (C4): a topic-exchange publisher
// and a durable, dead-lettering, manual-ack consumer, built on
// amqp091-go the way the teacher's producer/consumer pair does it.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/transfa/wallet-service/internal/domain"
)

// WalletEventsExchange is the durable topic exchange every wallet event is
// published to. Consumers bind with "wallet.#" to catch everything, or a
// narrower pattern to catch a subset (spec.md §4.4).
const WalletEventsExchange = "wallet_events"

// routingKeyFor maps a domain event type to the bus routing key spec.md
// §4.4 names for it.
func routingKeyFor(t domain.EventType) string {
	switch t {
	case domain.EventMoneyDeposited:
		return "wallet.money.deposited"
	case domain.EventMoneyWithdrawn:
		return "wallet.money.withdrawn"
	default:
		return "wallet.unknown"
	}
}

// busMessage is the bit-exact wire schema from spec.md §6:
// {eventType, data, publishedAt}.
type busMessage struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	PublishedAt string        `json:"publishedAt"`
}

// EventProducer holds the RabbitMQ connection and channel for publishing
// wallet events.
type EventProducer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// Publisher is the interface implemented by types that can publish events.
// app.AggregateRepository depends on its narrower EventPublisher subset
// instead of this directly, so unit tests can stub it without a broker.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	PublishWalletEvent(ctx context.Context, e domain.Event) error
	Close()
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is
// unavailable at startup; the repository still commits events to the log,
// but nothing is published for the life of the process, even if the broker
// comes back.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"publish skipped\" exchange=%s routing_key=%s", exchange, routingKey)
	return nil
}

func (p *EventProducerFallback) PublishWalletEvent(ctx context.Context, e domain.Event) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"wallet event publish skipped\" aggregate_id=%s event_type=%s", e.AggregateID, e.EventType)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials the broker with a bounded timeout so startup never
// hangs indefinitely on a bad URL.
func NewEventProducer(amqpURL string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch}, nil
}

// Publish sends a message to a specific exchange with a routing key,
// declaring the exchange durable-topic on the fly and reopening the channel
// once if either the declare or the publish fails transiently.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"exchange declare failed; reopening channel\" exchange=%s err=%v", exchange, err)
		if p.conn == nil {
			return err
		}
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return chErr
		}
		p.channel = ch
		if err2 := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err2 != nil {
			return err2
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
		return err
	}

	err = p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         jsonBody,
		},
	)
	if err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" exchange=%s routing_key=%s err=%v", exchange, routingKey, err)
		if p.conn != nil {
			if ch, chErr := p.conn.Channel(); chErr == nil {
				p.channel = ch
				if exErr := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); exErr == nil {
					err = p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp091.Publishing{
						ContentType:  "application/json",
						DeliveryMode: amqp091.Persistent,
						Timestamp:    time.Now(),
						Body:         jsonBody,
					})
					if err == nil {
						return nil
					}
				}
			}
		}
		return err
	}
	return nil
}

// PublishWalletEvent wraps a committed domain.Event in the bus's bit-exact
// envelope and publishes it under its routing key on WalletEventsExchange.
func (p *EventProducer) PublishWalletEvent(ctx context.Context, e domain.Event) error {
	msg := busMessage{
		EventType:   string(e.EventType),
		Data:        e.Payload,
		PublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	return p.Publish(ctx, WalletEventsExchange, routingKeyFor(e.EventType), msg)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
